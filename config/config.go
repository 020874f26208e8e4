// Package config holds the client configuration surface: environment
// variables first, with an optional YAML file underneath, and compiled-in
// OAuth constants.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OAuth constants fixed for this client build. The PKCE pair is generated
// out-of-band and registered with the authorization server.
const (
	ClientID = "p8-node-desktop"
	Scope    = "read write sync"

	CodeVerifier  = "YvbpnOOFD_iq-YuDT7l8FSz0GIQi6x9T77dyWd0_hrgNkyNqEgjOseLb8OtAtTBE"
	CodeChallenge = "Dosch7lYwKvPoPilkhmCE8wb5KAwKtofOfy-qdQG8tY"
)

// Environment variable names.
const (
	EnvAuthBaseURL = "P8_AUTH_BASE_URL"
	EnvRedirectURI = "P8_OAUTH_REDIRECT_URI"
	EnvS3Endpoint  = "P8_S3_ENDPOINT"
	EnvS3Region    = "P8_S3_REGION"
	EnvS3AccessKey = "P8_S3_ACCESS_KEY"
	EnvS3SecretKey = "P8_S3_SECRET_KEY"
	EnvListenAddr  = "P8_LISTEN_ADDR"
	EnvStoragePath = "P8_STORAGE_PATH"
)

// Config is the runtime configuration for the client and presign service.
type Config struct {
	AuthBaseURL string `yaml:"auth_base_url"`
	RedirectURI string `yaml:"redirect_uri"`

	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Region    string `yaml:"s3_region"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`

	ListenAddr  string `yaml:"listen_addr"`
	StoragePath string `yaml:"storage_path"`
	UseKeyring  bool   `yaml:"use_keyring"`

	DeviceName  string `yaml:"device_name"`
	DeviceModel string `yaml:"device_model"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		AuthBaseURL: "https://p8fs.percolationlabs.ai",
		RedirectURI: "https://p8fs.percolationlabs.ai/oauth/callback",
		S3Endpoint:  "https://s3.percolationlabs.ai",
		S3Region:    "us-east-1",
		ListenAddr:  ":8787",
		StoragePath: defaultStoragePath(),
		DeviceName:  "P8 Node Desktop",
		DeviceModel: "p8node/go",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is empty the file is skipped; if path is set the file must exist),
// then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg.AuthBaseURL, EnvAuthBaseURL)
	applyEnv(&cfg.RedirectURI, EnvRedirectURI)
	applyEnv(&cfg.S3Endpoint, EnvS3Endpoint)
	applyEnv(&cfg.S3Region, EnvS3Region)
	applyEnv(&cfg.S3AccessKey, EnvS3AccessKey)
	applyEnv(&cfg.S3SecretKey, EnvS3SecretKey)
	applyEnv(&cfg.ListenAddr, EnvListenAddr)
	applyEnv(&cfg.StoragePath, EnvStoragePath)

	return cfg, nil
}

func applyEnv(target *string, name string) {
	if v := os.Getenv(name); v != "" {
		*target = v
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".p8node", "storage.json")
	}
	return filepath.Join(home, ".p8node", "storage.json")
}
