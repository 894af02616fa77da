package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("CONFIG", "")
	t.Setenv("SERVER_ADDRESS", "")

	opts, err := Parse([]string{"-c", filepath.Join(t.TempDir(), "missing.json")})
	require.NoError(t, err)
	require.Equal(t, "localhost:8080", opts.Port)
	require.Equal(t, 30*24*time.Hour, opts.Retention)
	require.Equal(t, "sitekeeper", opts.MinioBucket)
}

func TestParse_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"address":"0.0.0.0:9000","database_dsn":"postgres://file"}`), 0600))

	t.Setenv("CONFIG", path)
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("SERVER_ADDRESS", "")

	opts, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", opts.Port)
	require.Equal(t, "postgres://env", opts.DatabaseDSN)
}

func TestParse_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0600))
	t.Setenv("CONFIG", "")

	_, err := Parse([]string{"-config", path})
	require.ErrorContains(t, err, "error while parsing config file")
}

func TestParse_BadMinioSSL(t *testing.T) {
	t.Setenv("CONFIG", "")
	t.Setenv("MINIO_USE_SSL", "maybe")

	_, err := Parse([]string{"-c", ""})
	require.ErrorContains(t, err, "MINIO_USE_SSL")
}

func TestParseClient(t *testing.T) {
	t.Setenv("SITEKEEPER_URL", "")
	t.Setenv("SITEKEEPER_TOKEN", "tok-env")

	opts, err := ParseClient([]string{"-store", "file", "-config", ""})
	require.NoError(t, err)
	require.Equal(t, "file", opts.Store)
	require.Equal(t, "tok-env", opts.Token)
	require.Equal(t, 5*time.Second, opts.ProbeInterval)

	_, err = ParseClient([]string{"-store", "indexeddb", "-config", ""})
	require.ErrorContains(t, err, "unknown local store")
}
