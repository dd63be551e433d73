package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddr     = "127.0.0.1:5000"
	DefaultAPIURL         = "http://127.0.0.1:5000"
	DefaultDBFileName     = ".scfingest.db"
	DefaultObjectsDirName = ".scfingest-objects"
	DefaultLogLevel       = "info"

	DefaultStorageBackend    = "local"
	DefaultStoragePutTimeout = 30 * time.Second
	DefaultStorageMaxRetries = 3

	DefaultUploadMaxRequestBytes    int64 = 64 << 20
	DefaultUploadMultipartMaxMemory int64 = 8 << 20
	DefaultUploadMaxFileBytes       int64 = 10 << 20

	DefaultSessionTTL       = 24 * time.Hour
	DefaultLoginMaxFailures = 5
	DefaultLoginWindow      = 15 * time.Minute
	DefaultLoginBlock       = 15 * time.Minute

	configFileName           = ".scfingest.toml"
	configDirEnvKey          = "SCFINGEST_CONFIG_DIR"
	trustProjectConfigEnvKey = "SCFINGEST_TRUST_PROJECT_CONFIG"
)

// StorageConfig selects the blob store backend.
type StorageConfig struct {
	Backend    string        `toml:"backend"`
	Bucket     string        `toml:"bucket"`
	Prefix     string        `toml:"prefix"`
	Region     string        `toml:"region"`
	Endpoint   string        `toml:"endpoint"`
	PathStyle  bool          `toml:"path_style"`
	Root       string        `toml:"root"`
	PutTimeout time.Duration `toml:"put_timeout"`
	MaxRetries int           `toml:"max_retries"`
}

// UploadConfig bounds multipart ingests.
type UploadConfig struct {
	MaxRequestBytes    int64  `toml:"max_request_bytes"`
	MultipartMaxMemory int64  `toml:"multipart_max_memory"`
	MaxFileBytes       int64  `toml:"max_file_bytes"`
	Concurrency        int    `toml:"concurrency"`
	ManifestPath       string `toml:"manifest_path"`
}

// AuthConfig controls registration, sessions and sign-in throttling.
type AuthConfig struct {
	SessionTTL        time.Duration `toml:"session_ttl"`
	AllowRegistration bool          `toml:"allow_registration"`
	SecureCookies     bool          `toml:"secure_cookies"`
	LoginMaxFailures  int           `toml:"login_max_failures"`
	LoginWindow       time.Duration `toml:"login_window"`
	LoginBlock        time.Duration `toml:"login_block"`
}

// Config defines runtime configuration for scfingest.
type Config struct {
	ListenAddr               string        `toml:"listen_addr"`
	APIURL                   string        `toml:"api_url"`
	DBPath                   string        `toml:"db_path"`
	LogLevel                 string        `toml:"log_level"`
	Namespace                string        `toml:"namespace"`
	Storage                  StorageConfig `toml:"storage"`
	Upload                   UploadConfig  `toml:"upload"`
	Auth                     AuthConfig    `toml:"auth"`
	TrustedProjectConfigPath string        `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		ListenAddr: DefaultListenAddr,
		APIURL:     DefaultAPIURL,
		LogLevel:   DefaultLogLevel,
		Storage: StorageConfig{
			Backend:    DefaultStorageBackend,
			PutTimeout: DefaultStoragePutTimeout,
			MaxRetries: DefaultStorageMaxRetries,
		},
		Upload: UploadConfig{
			MaxRequestBytes:    DefaultUploadMaxRequestBytes,
			MultipartMaxMemory: DefaultUploadMultipartMaxMemory,
			MaxFileBytes:       DefaultUploadMaxFileBytes,
		},
		Auth: AuthConfig{
			SessionTTL:        DefaultSessionTTL,
			AllowRegistration: true,
			LoginMaxFailures:  DefaultLoginMaxFailures,
			LoginWindow:       DefaultLoginWindow,
			LoginBlock:        DefaultLoginBlock,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"listen_addr",
	"api_url",
	"db_path",
	"log_level",
	"namespace",
	"storage.backend",
	"storage.bucket",
	"storage.prefix",
	"storage.region",
	"storage.endpoint",
	"storage.path_style",
	"storage.root",
	"storage.put_timeout",
	"storage.max_retries",
	"upload.max_request_bytes",
	"upload.multipart_max_memory",
	"upload.max_file_bytes",
	"upload.concurrency",
	"upload.manifest_path",
	"auth.session_ttl",
	"auth.allow_registration",
	"auth.secure_cookies",
	"auth.login_max_failures",
	"auth.login_window",
	"auth.login_block",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "listen_addr":
		return c.ListenAddr, nil
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "namespace":
		return c.Namespace, nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "storage.bucket":
		return c.Storage.Bucket, nil
	case "storage.prefix":
		return c.Storage.Prefix, nil
	case "storage.region":
		return c.Storage.Region, nil
	case "storage.endpoint":
		return c.Storage.Endpoint, nil
	case "storage.path_style":
		return strconv.FormatBool(c.Storage.PathStyle), nil
	case "storage.root":
		return c.Storage.Root, nil
	case "storage.put_timeout":
		return c.Storage.PutTimeout.String(), nil
	case "storage.max_retries":
		return strconv.Itoa(c.Storage.MaxRetries), nil
	case "upload.max_request_bytes":
		return strconv.FormatInt(c.Upload.MaxRequestBytes, 10), nil
	case "upload.multipart_max_memory":
		return strconv.FormatInt(c.Upload.MultipartMaxMemory, 10), nil
	case "upload.max_file_bytes":
		return strconv.FormatInt(c.Upload.MaxFileBytes, 10), nil
	case "upload.concurrency":
		return strconv.Itoa(c.Upload.Concurrency), nil
	case "upload.manifest_path":
		return c.Upload.ManifestPath, nil
	case "auth.session_ttl":
		return c.Auth.SessionTTL.String(), nil
	case "auth.allow_registration":
		return strconv.FormatBool(c.Auth.AllowRegistration), nil
	case "auth.secure_cookies":
		return strconv.FormatBool(c.Auth.SecureCookies), nil
	case "auth.login_max_failures":
		return strconv.Itoa(c.Auth.LoginMaxFailures), nil
	case "auth.login_window":
		return c.Auth.LoginWindow.String(), nil
	case "auth.login_block":
		return c.Auth.LoginBlock.String(), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	applyEnvOverrides(&cfg)

	if cwd, err := os.Getwd(); err == nil {
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
		if cfg.Storage.Root == "" {
			cfg.Storage.Root = filepath.Join(cwd, DefaultObjectsDirName)
		}
	}

	cfg.normalizeDefaults()
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"SCFINGEST_LISTEN", &cfg.ListenAddr},
		{"SCFINGEST_API_URL", &cfg.APIURL},
		{"SCFINGEST_DB", &cfg.DBPath},
		{"SCFINGEST_NAMESPACE", &cfg.Namespace},
		{"SCFINGEST_STORAGE_BACKEND", &cfg.Storage.Backend},
		{"SCFINGEST_BUCKET", &cfg.Storage.Bucket},
		{"SCFINGEST_STORAGE_ROOT", &cfg.Storage.Root},
		{"SCFINGEST_MANIFEST", &cfg.Upload.ManifestPath},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.key)); value != "" {
			*o.dst = value
		}
	}
}

// Validate reports configuration that cannot start a server.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case "s3":
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	case "local":
		if strings.TrimSpace(c.Storage.Root) == "" {
			return fmt.Errorf("storage.root is required for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.backend %q (expected s3, local or memory)", c.Storage.Backend)
	}
	if c.Storage.MaxRetries < 0 {
		return fmt.Errorf("storage.max_retries must be >= 0")
	}
	if c.Upload.Concurrency < 0 {
		return fmt.Errorf("upload.concurrency must be >= 0")
	}
	if c.Upload.MaxFileBytes > c.Upload.MaxRequestBytes {
		return fmt.Errorf("upload.max_file_bytes must not exceed upload.max_request_bytes")
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "upload.max_request_bytes", "upload.multipart_max_memory", "upload.max_file_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.max_retries", "upload.concurrency":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return int64(parsed), nil
	case "auth.login_max_failures":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return int64(parsed), nil
	case "storage.path_style", "auth.allow_registration", "auth.secure_cookies":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "storage.put_timeout", "auth.session_ttl", "auth.login_window", "auth.login_block":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration such as 30s or 24h", key)
		}
		return parsed.String(), nil
	case "storage.backend":
		switch strings.ToLower(value) {
		case "s3", "local", "memory":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("%s must be one of s3, local, memory", key)
	case "log_level":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "warning", "error":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("%s must be one of debug, info, warn, error", key)
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if strings.TrimSpace(c.APIURL) == "" {
		c.APIURL = DefaultAPIURL
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Storage.PutTimeout <= 0 {
		c.Storage.PutTimeout = DefaultStoragePutTimeout
	}
	if c.Upload.MaxRequestBytes <= 0 {
		c.Upload.MaxRequestBytes = DefaultUploadMaxRequestBytes
	}
	if c.Upload.MultipartMaxMemory <= 0 {
		c.Upload.MultipartMaxMemory = DefaultUploadMultipartMaxMemory
	}
	if c.Upload.MaxFileBytes <= 0 {
		c.Upload.MaxFileBytes = DefaultUploadMaxFileBytes
	}
	if c.Auth.SessionTTL <= 0 {
		c.Auth.SessionTTL = DefaultSessionTTL
	}
	if c.Auth.LoginMaxFailures <= 0 {
		c.Auth.LoginMaxFailures = DefaultLoginMaxFailures
	}
	if c.Auth.LoginWindow <= 0 {
		c.Auth.LoginWindow = DefaultLoginWindow
	}
	if c.Auth.LoginBlock <= 0 {
		c.Auth.LoginBlock = DefaultLoginBlock
	}
}
