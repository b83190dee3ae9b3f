// Copyright (c) 2024 Bryan Frimin <bryan@frimin.fr>.
//
// Permission to use, copy, modify, and/or distribute this software
// for any purpose with or without fee is hereby granted, provided
// that the above copyright notice and this permission notice appear
// in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL
// WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED
// WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE
// AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR
// CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS
// OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT,
// NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN
// CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigFromYAML(t *testing.T) {
	blob := []byte(`
environment: production
http:
  addr: ":9000"
rate-limit:
  store: redis
  public:
    limit: 200
    window-seconds: 30
admin:
  bearer-token: hunter2
cors:
  allowed-origins:
    - https://shop.tevex.dev
`)

	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal(blob, cfg))
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "redis", cfg.RateLimit.Store)
	assert.Equal(t, 200, cfg.RateLimit.Public.Limit)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Public.Window())
	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.RateLimit.Login.Limit)
	assert.Equal(t, []string{"https://shop.tevex.dev"}, cfg.CORS.AllowedOrigins)
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{
			name:   "unknown environment",
			mutate: func(c *Config) { c.Environment = "qa" },
			errMsg: "unknown environment",
		},
		{
			name:   "unknown store",
			mutate: func(c *Config) { c.RateLimit.Store = "etcd" },
			errMsg: "unknown rate-limit store",
		},
		{
			name: "redis store without addr",
			mutate: func(c *Config) {
				c.RateLimit.Store = "redis"
				c.Redis.Addr = ""
			},
			errMsg: "redis address is empty",
		},
		{
			name:   "zero quota",
			mutate: func(c *Config) { c.RateLimit.Login.Limit = 0 },
			errMsg: "login limit must be positive",
		},
		{
			name: "production requires admin token",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Admin.BearerToken = ""
			},
			errMsg: "missing admin bearer token",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
