package monitor

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/hashicorp/yamux"
	"github.com/pkg/errors"

	"github.com/scusemua/distributed-evaluation/common/configuration"
	"github.com/scusemua/distributed-evaluation/common/protocol"
	"github.com/scusemua/distributed-evaluation/common/utils/hashmap"
)

// Listener accepts worker connections and registers them with a Monitor.
//
// Every accepted TCP connection is wrapped in a yamux session. The worker opens exactly one stream on the session,
// which carries the handshake and then every job and result. The session's keep-alive pings act as the heartbeat
// of the worker: when they go unanswered, the session is closed and the Connection's reader fails.
type Listener struct {
	log logger.Logger

	monitor  *Monitor
	opts     *configuration.CommonOptions
	listener net.Listener
	closed   atomic.Bool

	// handshakes maps the names of workers whose handshake is in progress to their remote addresses. A name stays
	// reserved until its Connection is registered, so two workers cannot both be accepted under the same name.
	handshakes *hashmap.CornelkMap[string]
}

// NewListener creates a new Listener. Call Listen and then Serve.
func NewListener(monitor *Monitor, opts *configuration.CommonOptions) *Listener {
	l := &Listener{
		monitor:    monitor,
		opts:       opts,
		handshakes: hashmap.NewCornelkMap[string](64),
	}
	config.InitLogger(&l.log, l)

	return l
}

// Listen listens on the network address addr.
func (l *Listener) Listen(transport string, addr string) error {
	lis, err := net.Listen(transport, addr)
	if err != nil {
		return err
	}

	l.log.Debug("Listening for workers on transport %s, addr %v.", transport, lis.Addr())

	l.listener = lis
	return nil
}

// Addr returns the address the Listener is listening on.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Serve accepts worker connections until Close is called, in which case it returns nil.
func (l *Listener) Serve() error {
	for {
		incoming, err := l.listener.Accept()
		if err != nil {
			if l.closed.Load() {
				return nil
			}

			return err
		}

		go func() {
			if _, err := l.acceptWorkerConnection(incoming); err != nil {
				l.log.Warn("Failed to accept worker connection from %v: %v", incoming.RemoteAddr(), err)
			}
		}()
	}
}

// Close stops accepting worker connections. Registered connections are unaffected.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	return l.listener.Close()
}

// acceptWorkerConnection establishes the yamux session with a newly-accepted worker, performs the handshake, and
// registers the worker with the Monitor.
func (l *Listener) acceptWorkerConnection(incoming net.Conn) (*Connection, error) {
	l.log.Debug("Accepting a new connection [%v].", incoming.RemoteAddr())

	session, err := yamux.Server(incoming, l.opts.YamuxConfig())
	if err != nil {
		_ = incoming.Close()
		return nil, errors.Wrap(err, "failed to create yamux server session")
	}

	// A worker that never opens its stream would otherwise hold the session open for as long as it answers pings.
	timeout := l.opts.HandshakeTimeout()
	timer := time.AfterFunc(timeout, func() {
		_ = session.Close()
	})

	conn, hello, err := l.handshake(session, timeout)
	if !timer.Stop() {
		if err == nil {
			l.handshakes.Delete(hello.Name)
		}

		err = errors.Wrapf(ErrHandshakeTimeout, "no handshake from %v within %v", incoming.RemoteAddr(), timeout)
	}

	if err != nil {
		_ = session.Close()
		return nil, err
	}
	defer l.handshakes.Delete(hello.Name)

	compress := l.opts.Compression && hello.WantsCompression

	connection, err := l.monitor.RegisterConnection(hello.Name, conn, compress)
	if err != nil {
		// The worker observes a closed stream.
		_ = conn.Close()
		return nil, err
	}

	return connection, nil
}

func (l *Listener) handshake(session *yamux.Session, timeout time.Duration) (*sessionConn, *protocol.Hello, error) {
	// The accepted stream replaces the incoming connection.
	stream, err := session.AcceptStream()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to wait for the worker's stream")
	}

	conn := &sessionConn{Stream: stream, session: session}

	if err = conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, err
	}

	hello, err := protocol.ReadHello(conn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read handshake")
	}

	remoteAddr := session.RemoteAddr().String()

	_, reserved := l.handshakes.LoadOrStore(hello.Name, remoteAddr)
	welcome := &protocol.Welcome{
		Accepted:    !reserved && !l.monitor.HasConnection(hello.Name),
		Compression: l.opts.Compression && hello.WantsCompression,
	}

	if !reserved && !welcome.Accepted {
		l.handshakes.Delete(hello.Name)
	}

	if err = protocol.WriteWelcome(conn, welcome); err != nil {
		if welcome.Accepted {
			l.handshakes.Delete(hello.Name)
		}

		return nil, nil, errors.Wrap(err, "failed to write handshake reply")
	}

	if !welcome.Accepted {
		return nil, nil, errors.Wrapf(ErrDuplicateConnection, "rejected worker \"%s\" from %s", hello.Name, remoteAddr)
	}

	if err = conn.SetDeadline(time.Time{}); err != nil {
		l.handshakes.Delete(hello.Name)
		return nil, nil, err
	}

	l.log.Debug("Completed handshake with worker \"%s\" [compression=%v].", hello.Name, welcome.Compression)

	return conn, hello, nil
}

// sessionConn is the single stream of a worker's yamux session. Closing it closes the whole session.
type sessionConn struct {
	*yamux.Stream
	session *yamux.Session
}

func (c *sessionConn) Close() error {
	streamErr := c.Stream.Close()
	if err := c.session.Close(); err != nil {
		return err
	}

	return streamErr
}
