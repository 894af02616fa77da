// Package config provides functionality for managing configuration options
// of the SiteKeeper server and client using command-line flags, an optional
// JSON config file and environment variables (highest precedence).
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Options holds the configuration values for the server.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address"`

	// DatabaseDSN holds the PostgreSQL connection string.
	DatabaseDSN string `json:"database_dsn"`

	// RedisURL points at the Redis instance holding bearer tokens.
	RedisURL string `json:"redis_url"`

	// TokenTTL is how long an issued bearer token stays valid.
	TokenTTL time.Duration `json:"token_ttl"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// MinIO object storage for uploaded files. Storage endpoints are
	// disabled when MinioEndpoint is empty.
	MinioEndpoint  string `json:"minio_endpoint"`
	MinioAccessKey string `json:"minio_access_key"`
	MinioSecretKey string `json:"minio_secret_key"`
	MinioBucket    string `json:"minio_bucket"`
	MinioUseSSL    bool   `json:"minio_use_ssl"`

	// Retention is how long soft-deleted rows are kept before purge.
	Retention time.Duration `json:"retention"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// Config is the path to the Config file.
	Config string `json:"-"`
}

// ClientOptions holds the configuration values for the CLI client.
type ClientOptions struct {
	// BaseURL is the remote store address.
	BaseURL string `json:"url"`
	// Token is the bearer token; empty until registration or login.
	Token string `json:"token"`
	// CAFile is a PEM bundle trusted for https servers with a private CA.
	CAFile string `json:"ca_file"`
	// Store selects the local store backend: "sqlite" or "file".
	Store string `json:"store"`
	// DataDir holds the local store files.
	DataDir string `json:"data_dir"`
	// ProbeInterval is how often connectivity is checked.
	ProbeInterval time.Duration `json:"probe_interval"`
	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`
	// Config is the path to the Config file.
	Config string `json:"-"`
	// ShowVersion prints build information and exits.
	ShowVersion bool `json:"-"`
}

// Parse parses server flags from args, then applies the JSON config file
// and environment variables.
func Parse(args []string) (*Options, error) {
	options := &Options{}
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.RedisURL, "r", "redis://localhost:6379/0", "redis url for token sessions")
	fs.DurationVar(&options.TokenTTL, "token-ttl", 30*24*time.Hour, "bearer token lifetime")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "path to TLS certificate")
	fs.StringVar(&options.TLSKey, "tls-key", "", "path to TLS key")
	fs.StringVar(&options.MinioEndpoint, "minio", "", "minio endpoint host:port")
	fs.StringVar(&options.MinioAccessKey, "minio-access-key", "", "minio access key")
	fs.StringVar(&options.MinioSecretKey, "minio-secret-key", "", "minio secret key")
	fs.StringVar(&options.MinioBucket, "minio-bucket", "sitekeeper", "minio bucket for uploaded files")
	fs.BoolVar(&options.MinioUseSSL, "minio-ssl", false, "use TLS towards minio")
	fs.DurationVar(&options.Retention, "retention", 30*24*time.Hour, "retention of soft-deleted rows")
	fs.StringVar(&options.LogLevel, "log-level", "Info", "log level")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}
	if err := loadFile(options.Config, options); err != nil {
		return nil, err
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		options.RedisURL = redisURL
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		options.MinioEndpoint = endpoint
	}
	if key := os.Getenv("MINIO_ACCESS_KEY"); key != "" {
		options.MinioAccessKey = key
	}
	if secret := os.Getenv("MINIO_SECRET_KEY"); secret != "" {
		options.MinioSecretKey = secret
	}
	if bucket := os.Getenv("MINIO_BUCKET"); bucket != "" {
		options.MinioBucket = bucket
	}
	if useSSL := os.Getenv("MINIO_USE_SSL"); useSSL != "" {
		v, err := strconv.ParseBool(useSSL)
		if err != nil {
			return nil, fmt.Errorf("MINIO_USE_SSL: %w", err)
		}
		options.MinioUseSSL = v
	}

	return options, nil
}

// ParseClient parses client flags from args, then applies the JSON config
// file and environment variables.
func ParseClient(args []string) (*ClientOptions, error) {
	options := &ClientOptions{}
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&options.BaseURL, "url", "http://localhost:8080", "server base URL")
	fs.StringVar(&options.Token, "token", "", "bearer token")
	fs.StringVar(&options.CAFile, "ca", "", "path to CA cert for https")
	fs.StringVar(&options.Store, "store", "sqlite", "local store backend: sqlite | file")
	fs.StringVar(&options.DataDir, "data", ".sitekeeper", "local data directory")
	fs.DurationVar(&options.ProbeInterval, "probe", 5*time.Second, "connectivity probe interval")
	fs.StringVar(&options.LogLevel, "log-level", "Warn", "log level")
	fs.StringVar(&options.Config, "config", "client.json", "path to config file")
	fs.BoolVar(&options.ShowVersion, "version", false, "show build version and date")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := loadFile(options.Config, options); err != nil {
		return nil, err
	}

	if baseURL := os.Getenv("SITEKEEPER_URL"); baseURL != "" {
		options.BaseURL = baseURL
	}
	if token := os.Getenv("SITEKEEPER_TOKEN"); token != "" {
		options.Token = token
	}

	switch options.Store {
	case "sqlite", "file":
	default:
		return nil, fmt.Errorf("unknown local store %q", options.Store)
	}
	return options, nil
}

// loadFile overlays the JSON document at path onto dst when the file exists.
func loadFile(path string, dst any) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}
