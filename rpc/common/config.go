package common

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	// DefaultHost and DefaultPort are the endpoint a frontend attaches to if nothing is configured
	DefaultHost = "localhost"
	DefaultPort = "51123"

	DefaultPollInterval   = 100 * time.Millisecond
	DefaultRetryDelay     = 100 * time.Millisecond
	DefaultDialTimeout    = 2 * time.Second
	DefaultMaxPayloadSize = 16 << 20 // 16 MB
)

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// Network selects the socket family of a connection
type Network string

const (
	NetworkTCP  Network = "tcp"
	NetworkUnix Network = "unix"
)

// SocketConf holds socket buffer sizes (0 = OS default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // negative = leave the OS default
}

// TransportConfig configures establishment and framing of one connection
type TransportConfig struct {
	Network Network

	// PollInterval is the sleep between two polls while Start blocks for establishment
	PollInterval time.Duration
	// RetryDelay is the pause before a failed accept or dial is retried
	RetryDelay time.Duration
	// DialTimeout bounds a single connect attempt of the dialer
	DialTimeout time.Duration
	// WriteTimeout bounds a single command write (0 = no deadline)
	WriteTimeout time.Duration
	// MaxPayloadSize is the largest payload accepted from the peer
	MaxPayloadSize uint32

	SocketConf
	TCPConf
}

// DefaultTransportConfig returns the configuration used when nothing else is set
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Network:        NetworkTCP,
		PollInterval:   DefaultPollInterval,
		RetryDelay:     DefaultRetryDelay,
		DialTimeout:    DefaultDialTimeout,
		WriteTimeout:   5 * time.Second,
		MaxPayloadSize: DefaultMaxPayloadSize,
		TCPConf: TCPConf{
			TCPNoDelay:   true,
			TCPLingerSec: -1,
		},
	}
}

// WithDefaults fills every zero value with its default
func (c TransportConfig) WithDefaults() TransportConfig {
	d := DefaultTransportConfig()
	if c.Network == "" {
		c.Network = d.Network
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = d.MaxPayloadSize
	}
	return c
}

// --------------------------------------------------------------------------
// Engine configuration
// --------------------------------------------------------------------------

// EngineConfig configures one debugging session
type EngineConfig struct {
	// ListenHost is the interface the server role binds to when only a port is given
	ListenHost string

	Transport TransportConfig

	// Logging configuration
	LogLevel string
}

// DefaultEngineConfig returns the configuration used by NewEngine if nothing is passed
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ListenHost: "0.0.0.0",
		Transport:  DefaultTransportConfig(),
		LogLevel:   "info",
	}
}

// String returns a formatted string representation of the configuration
func (c *EngineConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	t := c.Transport

	addSection("Transport")
	addField("Network", string(t.Network))
	addField("Listen Host", c.ListenHost)
	addField("Poll Interval", t.PollInterval.String())
	addField("Retry Delay", t.RetryDelay.String())
	addField("Dial Timeout", t.DialTimeout.String())
	addField("Write Timeout", t.WriteTimeout.String())
	addField("Max Payload", fmt.Sprintf("%d bytes", t.MaxPayloadSize))

	if t.Network == NetworkTCP {
		addSection("TCP")
		addField("No Delay", fmt.Sprintf("%t", t.TCPNoDelay))
		addField("Keep Alive", fmt.Sprintf("%d sec", t.TCPKeepAliveSec))
		addField("Linger", fmt.Sprintf("%d sec", t.TCPLingerSec))
		addField("Read Buffer", fmt.Sprintf("%d bytes", t.ReadBufferSize))
		addField("Write Buffer", fmt.Sprintf("%d bytes", t.WriteBufferSize))
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
