package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jaypipes/envutil"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rflorenc/intersight-workbench/internal/logging"
	"github.com/rflorenc/intersight-workbench/internal/models"
)

const (
	defaultPrivateKeyFile = "./SecretKey.txt"
	defaultListen         = ":8080"
	defaultWorkbook       = "intersight-workbench.xlsx"
	defaultPageSize       = 100
	defaultRateLimit      = 10
	defaultMaxRetries     = 4
	defaultTimeout        = 60 * time.Second
)

// IntersightConfig holds the credentials and endpoint of the remote system.
type IntersightConfig struct {
	BaseURL        string `yaml:"base_url"`
	KeyID          string `yaml:"key_id"`
	PrivateKeyFile string `yaml:"private_key_file"`
	Insecure       bool   `yaml:"insecure"`
	CACertFile     string `yaml:"ca_cert_file"`
}

// ClientConfig tunes the API client.
type ClientConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	PageSize   int           `yaml:"page_size"`
	RateLimit  int           `yaml:"rate_limit"` // requests per second
	MaxRetries int           `yaml:"max_retries"`
}

// Config holds all configuration (config file, environment, CLI flags).
type Config struct {
	Intersight IntersightConfig `yaml:"intersight"`
	Client     ClientConfig     `yaml:"client"`
	Log        logging.Config   `yaml:"log"`
	Listen     string           `yaml:"listen"`
	Workbook   string           `yaml:"workbook"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Intersight: IntersightConfig{
			BaseURL:        models.DefaultBaseURL,
			PrivateKeyFile: defaultPrivateKeyFile,
		},
		Client: ClientConfig{
			Timeout:    defaultTimeout,
			PageSize:   defaultPageSize,
			RateLimit:  defaultRateLimit,
			MaxRetries: defaultMaxRetries,
		},
		Log:      logging.DefaultConfig(),
		Listen:   defaultListen,
		Workbook: defaultWorkbook,
	}
}

// Load builds the configuration in increasing order of precedence:
// defaults, the YAML file at path (if any), the .env file (if present) and
// the process environment. CLI flags are applied on top by the caller.
func Load(path, envFile string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}
	if envFile != "" {
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	c.applyEnv()
	return c, nil
}

// loadFile reads a YAML config file. Only keys present in the file replace
// the defaults.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	in := &c.Intersight
	in.BaseURL = envutil.WithDefault("INTERSIGHT_BASE_URL", in.BaseURL)
	in.KeyID = envutil.WithDefault("INTERSIGHT_API_KEY_ID", in.KeyID)
	in.PrivateKeyFile = envutil.WithDefault("INTERSIGHT_PRIVATE_KEY_FILE", in.PrivateKeyFile)
	in.Insecure = envutil.WithDefaultBool("INTERSIGHT_INSECURE", in.Insecure)
	in.CACertFile = envutil.WithDefault("INTERSIGHT_CA_CERT_FILE", in.CACertFile)

	cl := &c.Client
	cl.PageSize = envutil.WithDefaultInt("INTERSIGHT_PAGE_SIZE", cl.PageSize)
	cl.RateLimit = envutil.WithDefaultInt("INTERSIGHT_RATE_LIMIT", cl.RateLimit)
	cl.MaxRetries = envutil.WithDefaultInt("INTERSIGHT_MAX_RETRIES", cl.MaxRetries)
	secs := envutil.WithDefaultInt("INTERSIGHT_TIMEOUT_SECONDS", int(cl.Timeout/time.Second))
	cl.Timeout = time.Duration(secs) * time.Second

	c.Log.Level = envutil.WithDefault("WORKBENCH_LOG_LEVEL", c.Log.Level)
	c.Log.Format = logging.Format(envutil.WithDefault("WORKBENCH_LOG_FORMAT", string(c.Log.Format)))
	c.Listen = envutil.WithDefault("WORKBENCH_LISTEN", c.Listen)
	c.Workbook = envutil.WithDefault("WORKBENCH_FILE", c.Workbook)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Client.PageSize < 1 || c.Client.PageSize > 1000 {
		return fmt.Errorf("client.page_size must be between 1 and 1000, got %d", c.Client.PageSize)
	}
	if c.Client.RateLimit < 1 {
		return fmt.Errorf("client.rate_limit must be positive, got %d", c.Client.RateLimit)
	}
	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("client.max_retries must not be negative, got %d", c.Client.MaxRetries)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive, got %s", c.Client.Timeout)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Connection returns the validated remote connection. The CA bundle, if
// configured, is read here.
func (c *Config) Connection() (*models.Connection, error) {
	conn := &models.Connection{
		BaseURL:        c.Intersight.BaseURL,
		KeyID:          c.Intersight.KeyID,
		PrivateKeyFile: c.Intersight.PrivateKeyFile,
		Insecure:       c.Intersight.Insecure,
	}
	if c.Intersight.CACertFile != "" {
		pem, err := os.ReadFile(c.Intersight.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		conn.CACert = string(pem)
	}
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	return conn, nil
}
