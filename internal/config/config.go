// Package config holds the runtime configuration for the call client and
// the relay.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Role represents the mode the binary runs in.
type Role string

const (
	RoleCall  Role = "call"
	RoleRelay Role = "relay"
)

const (
	envRelayHost          = "RTCALL_RELAY_HOST"
	envRelayPort          = "RTCALL_RELAY_PORT"
	envRelayPath          = "RTCALL_RELAY_PATH"
	envRelaySecure        = "RTCALL_RELAY_SECURE"
	envListenAddr         = "RTCALL_LISTEN_ADDR"
	envICEServers         = "RTCALL_ICE_SERVERS"
	envSendQueueSize      = "RTCALL_SEND_QUEUE_SIZE"
	envDialTimeout        = "RTCALL_DIAL_TIMEOUT"
	envWriteTimeout       = "RTCALL_WRITE_TIMEOUT"
	envPingInterval       = "RTCALL_PING_INTERVAL"
	envNegotiationTimeout = "RTCALL_NEGOTIATION_TIMEOUT"
	envDebug              = "RTCALL_DEBUG"
)

const (
	DefaultRelayHost          = "127.0.0.1"
	DefaultRelayPort          = 3000
	DefaultRelayPath          = "/"
	DefaultListenAddr         = ":3000"
	DefaultSendQueueSize      = 64
	DefaultDialTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 20 * time.Second
	DefaultNegotiationTimeout = 30 * time.Second
)

// DefaultICEServers are public STUN servers used for candidate gathering.
// No TURN: relaying media is out of scope.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config stores every parameter gathered from defaults, the environment and
// CLI flags.
type Config struct {
	Role Role

	RelayHost   string // Call: relay host to dial
	RelayPort   int    // Call: relay port to dial
	RelayPath   string // Call: HTTP path of the relay endpoint
	RelaySecure bool   // Call: dial wss:// instead of ws://
	ListenAddr  string // Relay: address the relay listens on

	ICEServers         []string
	SendQueueSize      int
	DialTimeout        time.Duration
	WriteTimeout       time.Duration
	PingInterval       time.Duration // 0 disables keepalive pings
	NegotiationTimeout time.Duration // 0 disables the negotiation deadline

	Debug bool
}

// Default returns a Config populated with the package defaults.
func Default() Config {
	return Config{
		Role:               RoleCall,
		RelayHost:          DefaultRelayHost,
		RelayPort:          DefaultRelayPort,
		RelayPath:          DefaultRelayPath,
		ListenAddr:         DefaultListenAddr,
		ICEServers:         append([]string(nil), DefaultICEServers...),
		SendQueueSize:      DefaultSendQueueSize,
		DialTimeout:        DefaultDialTimeout,
		WriteTimeout:       DefaultWriteTimeout,
		PingInterval:       DefaultPingInterval,
		NegotiationTimeout: DefaultNegotiationTimeout,
	}
}

// FromEnv overlays RTCALL_* environment variables on top of cfg. Variables
// from the given dotenv files (".env" when none are given) are loaded first;
// a missing file is not an error and never overrides variables that are
// already set in the process environment.
func FromEnv(cfg Config, files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if v, ok := os.LookupEnv(envRelayHost); ok {
		cfg.RelayHost = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(envRelayPath); ok {
		cfg.RelayPath = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(envListenAddr); ok {
		cfg.ListenAddr = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(envICEServers); ok {
		cfg.ICEServers = SplitList(v)
	}

	var err error
	if cfg.RelayPort, err = intEnv(envRelayPort, cfg.RelayPort); err != nil {
		return cfg, err
	}
	if cfg.SendQueueSize, err = intEnv(envSendQueueSize, cfg.SendQueueSize); err != nil {
		return cfg, err
	}
	if cfg.RelaySecure, err = boolEnv(envRelaySecure, cfg.RelaySecure); err != nil {
		return cfg, err
	}
	if cfg.Debug, err = boolEnv(envDebug, cfg.Debug); err != nil {
		return cfg, err
	}
	if cfg.DialTimeout, err = durationEnv(envDialTimeout, cfg.DialTimeout); err != nil {
		return cfg, err
	}
	if cfg.WriteTimeout, err = durationEnv(envWriteTimeout, cfg.WriteTimeout); err != nil {
		return cfg, err
	}
	if cfg.PingInterval, err = durationEnv(envPingInterval, cfg.PingInterval); err != nil {
		return cfg, err
	}
	if cfg.NegotiationTimeout, err = durationEnv(envNegotiationTimeout, cfg.NegotiationTimeout); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate reports the first invalid field for the configured role.
func (c Config) Validate() error {
	switch c.Role {
	case RoleCall:
		if c.RelayHost == "" {
			return fmt.Errorf("missing relay host")
		}
		if c.RelayPort < 1 || c.RelayPort > 65535 {
			return fmt.Errorf("invalid relay port %d: must be 1~65535", c.RelayPort)
		}
	case RoleRelay:
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
		}
	default:
		return fmt.Errorf("invalid role %q: must be 'call' or 'relay'", c.Role)
	}

	if c.SendQueueSize < 1 {
		return fmt.Errorf("invalid send queue size %d: must be positive", c.SendQueueSize)
	}
	if c.DialTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("dial and write timeouts must be positive")
	}
	if c.PingInterval < 0 || c.NegotiationTimeout < 0 {
		return fmt.Errorf("ping interval and negotiation timeout must not be negative")
	}
	for _, s := range c.ICEServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "stuns:") {
			return fmt.Errorf("invalid ICE server %q: only stun: URLs are supported", s)
		}
	}
	return nil
}

// RelayURL returns the WebSocket URL of the relay, e.g. ws://127.0.0.1:3000/.
func (c Config) RelayURL() string {
	scheme := "ws"
	if c.RelaySecure {
		scheme = "wss"
	}
	path := c.RelayPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.RelayHost, strconv.Itoa(c.RelayPort)),
		Path:   path,
	}
	return u.String()
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// SplitList splits a comma-separated list, dropping blank entries.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intEnv(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return d, nil
}
