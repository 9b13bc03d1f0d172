package monitor_test

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/scusemua/distributed-evaluation/common/configuration"
	"github.com/scusemua/distributed-evaluation/common/individual"
	"github.com/scusemua/distributed-evaluation/common/job"
	"github.com/scusemua/distributed-evaluation/common/protocol"
	"github.com/scusemua/distributed-evaluation/master/domain"
	"github.com/scusemua/distributed-evaluation/master/monitor"
)

// dialWorker connects to the listener the way a worker does and completes the handshake.
func dialWorker(addr net.Addr, name string, wantsCompression bool) (*yamux.Session, net.Conn, *protocol.Welcome, error) {
	incoming, err := net.Dial("tcp", addr.String())
	if err != nil {
		return nil, nil, nil, err
	}

	session, err := yamux.Client(incoming, yamux.DefaultConfig())
	if err != nil {
		return nil, nil, nil, err
	}

	stream, err := session.Open()
	if err != nil {
		return nil, nil, nil, err
	}

	if err = protocol.WriteHello(stream, &protocol.Hello{Name: name, WantsCompression: wantsCompression}); err != nil {
		return nil, nil, nil, err
	}

	welcome, err := protocol.ReadWelcome(stream)
	return session, stream, welcome, err
}

// stallingConn is a worker's TCP connection that, once stalled, stops reading without closing. Its yamux session
// then no longer answers the master's keep-alive pings.
type stallingConn struct {
	net.Conn

	stallOnce   sync.Once
	stalled     chan struct{}
	releaseOnce sync.Once
	released    chan struct{}
}

func newStallingConn(conn net.Conn) *stallingConn {
	return &stallingConn{Conn: conn, stalled: make(chan struct{}), released: make(chan struct{})}
}

func (c *stallingConn) Read(b []byte) (int, error) {
	select {
	case <-c.stalled:
		<-c.released
		return 0, io.EOF
	default:
	}

	return c.Conn.Read(b)
}

func (c *stallingConn) stall() {
	c.stallOnce.Do(func() { close(c.stalled) })
}

func (c *stallingConn) Close() error {
	c.releaseOnce.Do(func() { close(c.released) })
	return c.Conn.Close()
}

// quietClientConfig is a worker's yamux configuration without keep-alive of its own, so that only the master
// decides when the session is dead.
func quietClientConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.EnableKeepAlive = false
	cfg.LogOutput = io.Discard
	return cfg
}

var _ = Describe("Listener Tests", func() {
	var (
		m        *monitor.Monitor
		listener *monitor.Listener
		opts     *configuration.CommonOptions
	)

	BeforeEach(func() {
		opts = &configuration.CommonOptions{
			Compression:               true,
			KeepAliveIntervalSec:      1,
			HandshakeTimeoutSec:       1,
			ConnectionWriteTimeoutSec: 2,
		}
		m = monitor.NewMonitor(&domain.MonitorOptions{MaxJobsPerConnection: 1, JobSize: 1}, individual.VectorFactory, nil)

		listener = monitor.NewListener(m, opts)
		Expect(listener.Listen("tcp", "127.0.0.1:0")).To(Succeed())

		go func() {
			defer GinkgoRecover()
			Expect(listener.Serve()).To(Succeed())
		}()
	})

	AfterEach(func() {
		Expect(listener.Close()).To(Succeed())
		Expect(listener.Close()).To(Succeed())
		m.Shutdown()
	})

	It("Will register a worker after the handshake and exchange compressed frames", func() {
		session, stream, welcome, err := dialWorker(listener.Addr(), "worker-1", true)
		Expect(err).To(BeNil())
		defer session.Close()

		Expect(welcome.Accepted).To(BeTrue())
		Expect(welcome.Compression).To(BeTrue())
		Eventually(func() bool { return m.HasConnection("worker-1") }, time.Second*5, time.Millisecond*10).Should(BeTrue())

		j := newVectorJob([]float64{3})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		Expect(m.ScheduleJobForEvaluation(ctx, j)).To(Succeed())

		frame, err := protocol.NewDecoder(stream, true).ReadJob()
		Expect(err).To(BeNil())
		Expect(frame.ID).To(Equal(j.ID()))

		v := &individual.Vector{}
		Expect(v.UnmarshalBinary(frame.Blobs[0])).To(Succeed())
		v.SetFitness(individual.Fitness{Value: 1})
		v.SetEvaluated(true)

		reply, err := job.NewResultFrame(frame.ID, []individual.Individual{v}, nil)
		Expect(err).To(BeNil())
		Expect(protocol.NewEncoder(stream, true).WriteResult(reply)).To(Succeed())

		Expect(m.WaitForAllSlavesToFinishEvaluating(ctx)).To(Succeed())
		Expect(j.Individuals()[0].Fitness().Value).To(Equal(1.0))
	})

	It("Will reject a worker whose name is already registered", func() {
		session, _, _, err := dialWorker(listener.Addr(), "worker-1", false)
		Expect(err).To(BeNil())
		defer session.Close()
		Eventually(func() bool { return m.HasConnection("worker-1") }, time.Second*5, time.Millisecond*10).Should(BeTrue())

		duplicate, _, welcome, err := dialWorker(listener.Addr(), "worker-1", false)
		Expect(errors.Is(err, protocol.ErrRejected)).To(BeTrue())
		Expect(welcome.Accepted).To(BeFalse())
		if duplicate != nil {
			_ = duplicate.Close()
		}

		Expect(m.NumConnections()).To(Equal(1))
	})

	It("Will accept only one of several workers racing to register under the same name", func() {
		const numWorkers = 8

		accepted := make(chan bool, numWorkers)
		sessions := make(chan *yamux.Session, numWorkers)

		for i := 0; i < numWorkers; i++ {
			go func() {
				session, _, welcome, _ := dialWorker(listener.Addr(), "contested", false)
				if session != nil {
					sessions <- session
				}

				accepted <- welcome != nil && welcome.Accepted
			}()
		}

		numAccepted := 0
		for i := 0; i < numWorkers; i++ {
			var ok bool
			Eventually(accepted, time.Second*5).Should(Receive(&ok))
			if ok {
				numAccepted += 1
			}
		}

		Expect(numAccepted).To(Equal(1))
		Eventually(m.NumConnections, time.Second*5, time.Millisecond*10).Should(Equal(1))

		close(sessions)
		for session := range sessions {
			_ = session.Close()
		}
	})

	It("Will unregister a worker whose session closes", func() {
		session, _, welcome, err := dialWorker(listener.Addr(), "worker-1", false)
		Expect(err).To(BeNil())
		Expect(welcome.Compression).To(BeFalse())
		Eventually(m.NumConnections, time.Second*5, time.Millisecond*10).Should(Equal(1))

		Expect(session.Close()).To(Succeed())
		Eventually(m.NumConnections, time.Second*5, time.Millisecond*10).Should(Equal(0))
	})

	It("Will close a session on which the worker never opens its stream", func() {
		incoming, err := net.Dial("tcp", listener.Addr().String())
		Expect(err).To(BeNil())

		// The session answers the master's pings, so only the handshake timeout can reap it.
		session, err := yamux.Client(incoming, quietClientConfig())
		Expect(err).To(BeNil())
		defer session.Close()

		Eventually(session.IsClosed, time.Second*5, time.Millisecond*50).Should(BeTrue())
		Expect(m.NumConnections()).To(Equal(0))
	})

	It("Will unregister a worker that stops answering keep-alive pings and reschedule its job", func() {
		incoming, err := net.Dial("tcp", listener.Addr().String())
		Expect(err).To(BeNil())

		stalling := newStallingConn(incoming)
		defer stalling.Close()

		session, err := yamux.Client(stalling, quietClientConfig())
		Expect(err).To(BeNil())
		defer session.Close()

		stream, err := session.Open()
		Expect(err).To(BeNil())
		Expect(protocol.WriteHello(stream, &protocol.Hello{Name: "stalled"})).To(Succeed())

		welcome, err := protocol.ReadWelcome(stream)
		Expect(err).To(BeNil())
		Expect(welcome.Accepted).To(BeTrue())
		Eventually(func() bool { return m.HasConnection("stalled") }, time.Second*5, time.Millisecond*10).Should(BeTrue())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		j := newVectorJob([]float64{2})
		Expect(m.ScheduleJobForEvaluation(ctx, j)).To(Succeed())

		_, err = protocol.NewDecoder(stream, false).ReadJob()
		Expect(err).To(BeNil())

		// The worker holds the job and goes silent without closing its socket.
		stalling.stall()
		Eventually(func() bool { return m.HasConnection("stalled") }, time.Second*10, time.Millisecond*50).Should(BeFalse())
		Expect(session.IsClosed()).To(BeFalse())

		worker, masterEnd := newFakeWorker(false)
		_, err = m.RegisterConnection("healthy", masterEnd, false)
		Expect(err).To(BeNil())

		Expect(m.WaitForAllSlavesToFinishEvaluating(ctx)).To(Succeed())
		Expect(worker.receivedIDs()).To(ContainElement(j.ID()))
		Expect(j.State()).To(Equal(job.Completed))
		Expect(j.Attempts()).To(Equal(2))
		Expect(j.Individuals()[0].Fitness().Value).To(Equal(-4.0))
	})
})
