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

package migrator

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsLoadFromDir(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"0002_second.sql": "CREATE TABLE b ()",
		"0001_first.sql":  "CREATE TABLE a ()",
		"notes.txt":       "ignored",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(path.Join(dir, name), []byte(content), 0o600))
	}

	var ms Migrations
	require.NoError(t, ms.LoadFromDir(dir))
	require.Len(t, ms, 2)

	ms.Sort()
	assert.Equal(t, "0001_first", ms[0].Version)
	assert.Equal(t, "CREATE TABLE a ()", ms[0].SQL)
	assert.Equal(t, "0002_second", ms[1].Version)
}

func TestMigrationsLoadFromMissingDir(t *testing.T) {
	var ms Migrations
	require.Error(t, ms.LoadFromDir("does-not-exist"))
}
