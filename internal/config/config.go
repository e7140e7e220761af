package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Default configuration values
const (
	DefaultDomain         = "localhost:8080"
	DefaultSTUN           = "stun:stun.l.google.com:19302"
	DefaultReconnectDelay = 3 * time.Second
	DefaultListenAddr     = ":8080"
)

// Config holds application configuration
type Config struct {
	// Domain is the signaling server host, with an optional port
	Domain string `env:"DOMAIN" validate:"required"`
	// Secure selects wss/https over ws/http
	Secure bool `env:"SECURE"`

	// ICE servers for WebRTC
	STUNServer string `env:"STUN_SERVER"`
	TURNServer string `env:"TURN_SERVER"`
	TURNUser   string `env:"TURN_USERNAME" validate:"required_with=TURNServer"`
	TURNPass   string `env:"TURN_PASSWORD" validate:"required_with=TURNServer"`
	ForceRelay bool   `env:"FORCE_RELAY"`

	// Signaling reconnect policy. MaxReconnects of zero retries forever.
	ReconnectDelay time.Duration `env:"RECONNECT_DELAY" validate:"gt=0"`
	MaxReconnects  int           `env:"MAX_RECONNECTS" validate:"gte=0"`

	// AnnounceTracks tells peers about local mute toggles over the data channel
	AnnounceTracks bool `env:"ANNOUNCE_TRACKS"`

	// Local media
	Audio bool `env:"MEDIA_AUDIO"`
	Video bool `env:"MEDIA_VIDEO"`

	DisplayName string `env:"DISPLAY_NAME" validate:"max=64"`

	// ListenAddr is where `serve` binds
	ListenAddr string `env:"LISTEN_ADDR" validate:"required"`
}

// Options for loading config with CLI flag overrides. Nil or empty fields
// were not set on the command line.
type Options struct {
	EnvFile        string
	Domain         string
	Secure         *bool
	STUNServer     string
	TURNServer     string
	TURNUser       string
	TURNPass       string
	ForceRelay     *bool
	ReconnectDelay *time.Duration
	MaxReconnects  *int
	AnnounceTracks *bool
	Audio          *bool
	Video          *bool
	DisplayName    string
	ListenAddr     string
}

var validate = validator.New()

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Domain:         DefaultDomain,
		STUNServer:     DefaultSTUN,
		ReconnectDelay: DefaultReconnectDelay,
		Audio:          true,
		Video:          true,
		ListenAddr:     DefaultListenAddr,
	}
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables, including an optional .env file
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	cfg := Default()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	opts.apply(&cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads path, or ./.env when path is empty. A missing default
// file is not an error. Variables already set in the environment win.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func (o Options) apply(cfg *Config) {
	setString(&cfg.Domain, o.Domain)
	setString(&cfg.STUNServer, o.STUNServer)
	setString(&cfg.TURNServer, o.TURNServer)
	setString(&cfg.TURNUser, o.TURNUser)
	setString(&cfg.TURNPass, o.TURNPass)
	setString(&cfg.DisplayName, o.DisplayName)
	setString(&cfg.ListenAddr, o.ListenAddr)
	set(&cfg.Secure, o.Secure)
	set(&cfg.ForceRelay, o.ForceRelay)
	set(&cfg.ReconnectDelay, o.ReconnectDelay)
	set(&cfg.MaxReconnects, o.MaxReconnects)
	set(&cfg.AnnounceTracks, o.AnnounceTracks)
	set(&cfg.Audio, o.Audio)
	set(&cfg.Video, o.Video)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) scheme(secure, insecure string) string {
	if c.Secure {
		return secure
	}
	return insecure
}

// SignalingEndpoint returns the websocket URL of a room
func (c *Config) SignalingEndpoint(roomID string) string {
	return fmt.Sprintf("%s://%s/ws/signaling/%s/", c.scheme("wss", "ws"), c.Domain, url.PathEscape(roomID))
}

// APIURL returns the base URL of the room REST API
func (c *Config) APIURL() string {
	return fmt.Sprintf("%s://%s", c.scheme("https", "http"), c.Domain)
}

// GetRoomLink returns the shareable URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("%s/r/%s", c.APIURL(), url.PathEscape(roomID))
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
