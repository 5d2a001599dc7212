package impactboard

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/greendrive/impactboard/internal/codec"
	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/logger"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "IMPACTBOARD_"

// Config holds everything needed to open a board session.
type Config struct {
	// APIURL is the root of the Document Store and auth routes, e.g. "http://localhost:8080".
	APIURL string `yaml:"api_url"`
	// SocketURL is the channel endpoint. Empty means APIURL with a ws scheme and /socket appended to its path.
	SocketURL string `yaml:"socket_url"`
	// Token is the bearer credential of the local participant.
	Token string `yaml:"token"`
	// Codec is the channel frame format, "json" or "cbor".
	Codec string `yaml:"codec"`

	DebounceWindow    time.Duration `yaml:"debounce_window"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	// ConnectRetries bounds the retries of one connect or reconnect attempt. Zero retries
	// until the context is done.
	ConnectRetries int `yaml:"connect_retries"`

	// BroadcastEdits emits every local edit on the channel as it happens.
	BroadcastEdits bool `yaml:"broadcast_edits"`

	// LogFormat is "json", "text" or "zerolog".
	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		APIURL:            "http://localhost:8080",
		Codec:             "json",
		DebounceWindow:    constants.DefaultDebounceWindow,
		ReconnectInterval: constants.DefaultReconnectInterval,
		RequestTimeout:    constants.DefaultRequestTimeout,
		ConnectRetries:    5,
		LogFormat:         "text",
		LogLevel:          "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api url is required")
	}
	if _, err := c.SocketEndpoint(); err != nil {
		return err
	}
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	if _, ok := codec.ByName(c.Codec); !ok {
		return fmt.Errorf("unknown codec %q", c.Codec)
	}
	switch c.LogFormat {
	case "", "json", "text", "zerolog":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.DebounceWindow < 0 || c.ReconnectInterval < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.ConnectRetries < 0 {
		return fmt.Errorf("connect retries must not be negative")
	}
	return nil
}

// SocketEndpoint returns SocketURL, or derives it from APIURL.
func (c *Config) SocketEndpoint() (string, error) {
	if c.SocketURL != "" {
		return c.SocketURL, nil
	}

	u, err := url.Parse(c.APIURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	switch u.Scheme {
	case constants.HTTPScheme:
		u.Scheme = constants.WebsocketScheme
	case constants.HTTPSecureScheme:
		u.Scheme = constants.WebsocketSecureScheme
	default:
		return "", fmt.Errorf("invalid api url scheme %q", u.Scheme)
	}
	u.Path = path.Join("/", u.Path, constants.DefaultSocketPath)
	u.RawPath = ""
	u.RawQuery = ""
	return u.String(), nil
}

// LoadConfigFile overlays the YAML file at path onto c. Keys missing from the file keep
// their current values.
func (c *Config) LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays IMPACTBOARD_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	c.APIURL = GetEnvOrDefault(EnvPrefix+"API_URL", c.APIURL)
	c.SocketURL = GetEnvOrDefault(EnvPrefix+"SOCKET_URL", c.SocketURL)
	c.Token = GetEnvOrDefault(EnvPrefix+"TOKEN", c.Token)
	c.Codec = GetEnvOrDefault(EnvPrefix+"CODEC", c.Codec)
	c.LogFormat = GetEnvOrDefault(EnvPrefix+"LOG_FORMAT", c.LogFormat)
	c.LogLevel = GetEnvOrDefault(EnvPrefix+"LOG_LEVEL", c.LogLevel)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"DEBOUNCE_WINDOW", &c.DebounceWindow},
		{"RECONNECT_INTERVAL", &c.ReconnectInterval},
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(EnvPrefix + d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, d.key, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv(EnvPrefix + "CONNECT_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sCONNECT_RETRIES: %w", EnvPrefix, err)
		}
		c.ConnectRetries = n
	}
	if v := os.Getenv(EnvPrefix + "BROADCAST_EDITS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sBROADCAST_EDITS: %w", EnvPrefix, err)
		}
		c.BroadcastEdits = b
	}
	return nil
}

// NewLogger builds the logger selected by LogFormat and LogLevel, writing to w.
// The returned close function releases the zerolog writer when there is one.
func (c *Config) NewLogger(w io.Writer) (logger.Logger, func() error, error) {
	level := logger.ParseLevel(c.LogLevel)

	if c.LogFormat == "zerolog" {
		data, err := logger.NewBuild().FromBuffer(w).WithLevel(level).Make()
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error {
			if data.LogFile != nil {
				return data.LogFile.Close()
			}
			return nil
		}
		return logger.FromZerolog(data.Logger), closeFn, nil
	}

	return logger.New(logger.NewHandler(w, c.LogFormat, level)), func() error { return nil }, nil
}
