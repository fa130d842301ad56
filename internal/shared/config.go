package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Tidal       TidalConfig       `toml:"tidal"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Tidal TidalCredentials `toml:"tidal"`
}

// TidalCredentials contains the registered TIDAL application credentials.
type TidalCredentials struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURI  string   `toml:"redirect_uri"`
	Scopes       []string `toml:"scopes"`
}

// TidalConfig holds endpoint locations and tuning for the TIDAL integration.
//
// Endpoint lists are tried in order. Paths containing {userId} are expanded
// with the resolved user id; relative paths are joined to APIURL.
type TidalConfig struct {
	AuthURL           string   `toml:"auth_url"`
	LoginURL          string   `toml:"login_url"`
	APIURL            string   `toml:"api_url"`
	Accept            string   `toml:"accept"`
	DefaultCountry    string   `toml:"default_country"`
	PageSize          int      `toml:"page_size"`
	TimeoutSeconds    int      `toml:"timeout_seconds"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Workers           int      `toml:"workers"`
	IdentityEndpoints []string `toml:"identity_endpoints"`
	PlaylistEndpoints []string `toml:"playlist_endpoints"`
	FavoritesEndpoint string   `toml:"favorites_endpoint"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Addr returns host:port for [http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Timeout returns the per-request HTTP timeout, defaulting to 15 seconds.
func (t TidalConfig) Timeout() time.Duration {
	if t.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// Validate reports an [ErrMissingCredentials] error when the client id or secret is unset.
func (c TidalCredentials) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: TIDAL %s not set", ErrMissingCredentials, strings.Join(missing, " and "))
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values absent from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML.
func SaveConfig(path string, config *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// LoadEnv loads variables from the given .env files, falling back to ./.env.
//
// A missing file is not an error.
func LoadEnv(files ...string) {
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err == nil {
			return
		}
	}
	_ = godotenv.Load()
}

// ApplyEnv overlays credentials and deployment settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("TIDAL_CLIENT_ID", &c.Credentials.Tidal.ClientID)
	set("TIDAL_CLIENT_SECRET", &c.Credentials.Tidal.ClientSecret)
	set("TIDAL_REDIRECT_URI", &c.Credentials.Tidal.RedirectURI)
	set("MUSICSPACE_DB_PATH", &c.Database.Path)

	if v, ok := lookup("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
}
