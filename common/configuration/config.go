package configuration

import (
	"io"
	"log"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/yamux"
)

const (
	// DefaultPort is the default port on which the master accepts worker connections.
	DefaultPort = 15000

	// DefaultKeepAliveIntervalSec is the default interval, in seconds, between keep-alive pings on a worker session.
	DefaultKeepAliveIntervalSec = 10

	// DefaultHandshakeTimeoutSec is the default time, in seconds, a newly-accepted worker has to open its stream and
	// complete the handshake.
	DefaultHandshakeTimeoutSec = 10

	// DefaultConnectionWriteTimeoutSec is the default time, in seconds, a write (including a keep-alive ping) may
	// block before the session is considered dead.
	DefaultConnectionWriteTimeoutSec = 10
)

// CommonOptions includes all configuration parameters that are common to both the master and the slaves.
type CommonOptions struct {
	Port                      int  `name:"port"                         json:"port"                         yaml:"port"                         description:"The port on which the master accepts worker connections."`
	PrometheusPort            int  `name:"prometheus_port"              json:"prometheus_port"              yaml:"prometheus_port"              description:"The port on which to serve Prometheus metrics. Negative disables the HTTP server."`
	KeepAliveIntervalSec      int  `name:"keepalive_interval_sec"       json:"keepalive_interval_sec"       yaml:"keepalive_interval_sec"       description:"Interval, in seconds, between keep-alive pings on a worker session. Zero selects the default; negative disables keep-alive."`
	HandshakeTimeoutSec       int  `name:"handshake_timeout_sec"        json:"handshake_timeout_sec"        yaml:"handshake_timeout_sec"        description:"Time, in seconds, a newly-accepted worker has to open its stream and complete the handshake."`
	ConnectionWriteTimeoutSec int  `name:"connection_write_timeout_sec" json:"connection_write_timeout_sec" yaml:"connection_write_timeout_sec" description:"Time, in seconds, a write may block before the worker session is considered dead."`
	Compression               bool `name:"compression"                  json:"compression"                  yaml:"compression"                  description:"Compress the job and result stream. The master's setting wins; both sides must agree for compression to be used."`
	DebugMode                 bool `name:"debug_mode"                   json:"debug_mode"                   yaml:"debug_mode"                   description:"Enable verbose logging of every job and result."`

	// PrettyPrintOptions, when true, instructs the driver script to pretty-print
	// the options struct when the program first begins running.
	PrettyPrintOptions bool `name:"pretty_print_options" json:"pretty_print_options" yaml:"pretty_print_options"`
}

// ValidateCommonOptions replaces invalid and unset values with their defaults. A negative keep-alive interval is kept
// as is and disables keep-alive.
func (opts *CommonOptions) ValidateCommonOptions() {
	if opts.Port <= 0 {
		log.Printf("[WARNING] Invalid port specified: %d. Defaulting to %d.\n", opts.Port, DefaultPort)
		opts.Port = DefaultPort
	}

	if opts.KeepAliveIntervalSec == 0 {
		opts.KeepAliveIntervalSec = DefaultKeepAliveIntervalSec
	} else if opts.KeepAliveIntervalSec < 0 {
		log.Printf("[WARNING] Keep-alive is disabled. Workers that stop responding without closing their connection " +
			"will not be detected.\n")
	}

	if opts.HandshakeTimeoutSec <= 0 {
		opts.HandshakeTimeoutSec = DefaultHandshakeTimeoutSec
	}

	if opts.ConnectionWriteTimeoutSec <= 0 {
		log.Printf("[WARNING] Invalid connection write timeout specified: %d. Defaulting to %d.\n",
			opts.ConnectionWriteTimeoutSec, DefaultConnectionWriteTimeoutSec)
		opts.ConnectionWriteTimeoutSec = DefaultConnectionWriteTimeoutSec
	}
}

// YamuxConfig returns the yamux session configuration derived from the options.
//
// Keep-alive pings are the heartbeat of a worker session: a peer that stops answering them causes the session to be
// closed, which the reading side observes as an ordinary connection failure.
func (opts *CommonOptions) YamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = io.Discard

	switch {
	case opts.KeepAliveIntervalSec > 0:
		cfg.EnableKeepAlive = true
		cfg.KeepAliveInterval = time.Duration(opts.KeepAliveIntervalSec) * time.Second
	case opts.KeepAliveIntervalSec == 0:
		cfg.EnableKeepAlive = true
		cfg.KeepAliveInterval = DefaultKeepAliveIntervalSec * time.Second
	default:
		cfg.EnableKeepAlive = false
	}

	if opts.ConnectionWriteTimeoutSec > 0 {
		cfg.ConnectionWriteTimeout = time.Duration(opts.ConnectionWriteTimeoutSec) * time.Second
	}

	return cfg
}

// HandshakeTimeout returns the time a newly-accepted worker has to open its stream and complete the handshake.
func (opts *CommonOptions) HandshakeTimeout() time.Duration {
	if opts.HandshakeTimeoutSec <= 0 {
		return DefaultHandshakeTimeoutSec * time.Second
	}

	return time.Duration(opts.HandshakeTimeoutSec) * time.Second
}

// PrettyString is the same as String, except that PrettyString calls json.MarshalIndent instead of json.Marshal.
func (opts *CommonOptions) PrettyString(indentSize int) string {
	indentBuilder := strings.Builder{}
	for i := 0; i < indentSize; i++ {
		indentBuilder.WriteString(" ")
	}

	m, err := json.MarshalIndent(opts, "", indentBuilder.String())
	if err != nil {
		panic(err)
	}

	return string(m)
}

func (opts *CommonOptions) Clone() *CommonOptions {
	clone := *opts
	return &clone
}

func (opts *CommonOptions) String() string {
	m, err := json.Marshal(opts)
	if err != nil {
		panic(err)
	}

	return string(m)
}
