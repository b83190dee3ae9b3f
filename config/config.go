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

// Package config describes the storefront section of the service
// configuration file. The file is YAML; fields carry json tags
// because the loader goes through sigs.k8s.io/yaml.
package config

import (
	"fmt"
	"time"
)

type (
	Config struct {
		Environment string          `json:"environment"`
		HTTP        HTTPConfig      `json:"http"`
		Postgres    PostgresConfig  `json:"postgres"`
		Redis       RedisConfig     `json:"redis"`
		RateLimit   RateLimitConfig `json:"rate-limit"`
		CORS        CORSConfig      `json:"cors"`
		Admin       AdminConfig     `json:"admin"`
		Renderer    RendererConfig  `json:"renderer"`
		Migrations  string          `json:"migrations"`
	}

	HTTPConfig struct {
		Addr string `json:"addr"`
	}

	PostgresConfig struct {
		Addr     string `json:"addr"`
		User     string `json:"user"`
		Password string `json:"password"`
		Database string `json:"database"`
		PoolSize int    `json:"pool-size"`
	}

	RedisConfig struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	}

	// RateLimitConfig selects the counter store and the
	// per-category quotas. Store is one of "memory", "redis",
	// "postgres".
	RateLimitConfig struct {
		Store  string      `json:"store"`
		Public QuotaConfig `json:"public"`
		Login  QuotaConfig `json:"login"`
		Admin  QuotaConfig `json:"admin"`
	}

	QuotaConfig struct {
		Limit         int `json:"limit"`
		WindowSeconds int `json:"window-seconds"`
	}

	CORSConfig struct {
		AllowedOrigins []string `json:"allowed-origins"`
	}

	AdminConfig struct {
		BearerToken string `json:"bearer-token"`
	}

	RendererConfig struct {
		BaseURL string `json:"base-url"`
	}
)

// DefaultConfig returns the configuration used when the file omits a
// section.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Postgres: PostgresConfig{
			Addr:     "localhost:5432",
			User:     "storefront",
			Database: "storefront",
			PoolSize: 25,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		RateLimit: RateLimitConfig{
			Store:  "memory",
			Public: QuotaConfig{Limit: 100, WindowSeconds: 60},
			Login:  QuotaConfig{Limit: 10, WindowSeconds: 60},
			Admin:  QuotaConfig{Limit: 30, WindowSeconds: 60},
		},
		Migrations: "migrations",
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("missing http listen address")
	}

	switch c.RateLimit.Store {
	case "memory", "postgres":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("rate-limit store is %q but redis address is empty", c.RateLimit.Store)
		}
	default:
		return fmt.Errorf("unknown rate-limit store %q", c.RateLimit.Store)
	}

	for _, quota := range []struct {
		name string
		q    QuotaConfig
	}{
		{"public", c.RateLimit.Public},
		{"login", c.RateLimit.Login},
		{"admin", c.RateLimit.Admin},
	} {
		if quota.q.Limit < 1 {
			return fmt.Errorf("rate-limit %s limit must be positive", quota.name)
		}

		if quota.q.WindowSeconds < 1 {
			return fmt.Errorf("rate-limit %s window must be positive", quota.name)
		}
	}

	if c.Admin.BearerToken == "" && c.Environment == "production" {
		return fmt.Errorf("missing admin bearer token")
	}

	return nil
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Window returns the quota window as a duration.
func (q QuotaConfig) Window() time.Duration {
	return time.Duration(q.WindowSeconds) * time.Second
}
