package monitor

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/petermattis/goid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/scusemua/distributed-evaluation/common/individual"
	"github.com/scusemua/distributed-evaluation/common/job"
	"github.com/scusemua/distributed-evaluation/common/protocol"
	"github.com/scusemua/distributed-evaluation/common/queue"
	"github.com/scusemua/distributed-evaluation/common/utils"
)

// Connection is the master-side handle of a single worker.
//
// A Connection exclusively owns its socket and two goroutines: a writer that puts the oldest unsent job of the queue
// onto the wire, and a reader that decodes results and hands them to the Monitor. The Monitor holds a non-owning
// reference used for scheduling and shutdown.
//
// Lock order: the Monitor's lock is always acquired before a Connection's lock. The reader never holds the
// Connection's lock while calling into the Monitor.
type Connection struct {
	log logger.Logger

	name    string
	conn    net.Conn
	monitor *Monitor
	factory individual.Factory

	encoder *protocol.Encoder
	decoder *protocol.Decoder

	mu sync.Mutex
	// jobAvailable is signalled when a job is enqueued or the Connection begins shutting down.
	jobAvailable *sync.Cond
	queue        *queue.Fifo[*job.Job]
	shuttingDown bool

	// randomState is the most recent random-number-generator state reported by the worker.
	randomState []byte

	group        *errgroup.Group
	shutdownOnce sync.Once
	failureOnce  sync.Once

	compressed   bool
	registeredAt time.Time
}

func newConnection(name string, conn net.Conn, compress bool, monitor *Monitor) *Connection {
	c := &Connection{
		name:         name,
		conn:         conn,
		monitor:      monitor,
		factory:      monitor.factory,
		encoder:      protocol.NewEncoder(conn, compress),
		decoder:      protocol.NewDecoder(conn, compress),
		queue:        queue.NewFifo[*job.Job](monitor.maxJobsPerConnection),
		compressed:   compress,
		registeredAt: time.Now(),
	}
	c.jobAvailable = sync.NewCond(&c.mu)

	config.InitLogger(&c.log, fmt.Sprintf("Connection %s ", name))

	return c
}

// start launches the writer and reader goroutines.
func (c *Connection) start() {
	c.group = new(errgroup.Group)
	c.group.Go(c.writeLoop)
	c.group.Go(c.readLoop)
}

// Name returns the name that the worker supplied during the handshake.
func (c *Connection) Name() string {
	return c.name
}

// Enqueue appends job to the Connection's queue and wakes the writer.
func (c *Connection) Enqueue(j *job.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shuttingDown {
		return errors.Wrapf(ErrShutdownInProgress, "connection %s", c.name)
	}

	j.MarkQueued()
	c.queue.Enqueue(j)
	c.jobAvailable.Signal()

	return nil
}

// Len returns the number of jobs held by the Connection, whether sent or not.
func (c *Connection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.queue.Len()
}

// NumUnsent returns the number of jobs that are queued but have not yet been written to the wire.
func (c *Connection) NumUnsent() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	unsent := 0
	c.queue.Find(func(j *job.Job) bool {
		if !j.Sent() {
			unsent += 1
		}
		return false
	})

	return unsent
}

// RandomState returns a copy of the most recent random-number-generator state reported by the worker, or nil.
func (c *Connection) RandomState() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.randomState == nil {
		return nil
	}

	return append([]byte(nil), c.randomState...)
}

// IsShuttingDown returns true once InitiateShutdown has been called.
func (c *Connection) IsShuttingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.shuttingDown
}

// InitiateShutdown stops the Connection: it refuses further jobs, closes the socket, waits for both goroutines to
// exit, and then returns every job that was still held (sent or not), oldest first. The queue is left empty.
//
// InitiateShutdown is idempotent. Only the first call returns the outstanding jobs; later calls return nil.
// It must not be called from the Connection's own goroutines.
func (c *Connection) InitiateShutdown() []*job.Job {
	var outstanding []*job.Job

	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.shuttingDown = true
		c.jobAvailable.Broadcast()
		c.mu.Unlock()

		if err := c.conn.Close(); err != nil {
			c.log.Debug("Error while closing socket: %v", err)
		}

		if c.group != nil {
			// Errors were already reported to the Monitor by the goroutine that observed them.
			_ = c.group.Wait()
		}

		c.mu.Lock()
		outstanding = c.queue.Drain()
		c.mu.Unlock()

		c.log.Debug("Shut down with %d outstanding job(s).", len(outstanding))
	})

	return outstanding
}

// nextUnsent blocks until the queue holds an unsent job, marks the oldest one as sent, and returns its frame.
// It returns nil when the Connection begins shutting down.
func (c *Connection) nextUnsent() (*job.Job, *protocol.JobFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.shuttingDown {
			return nil, nil, nil
		}

		if next, ok := c.queue.Find(func(j *job.Job) bool { return !j.Sent() }); ok {
			frame, err := next.Frame()
			if err != nil {
				return nil, nil, err
			}

			next.MarkSent()
			return next, frame, nil
		}

		c.jobAvailable.Wait()
	}
}

func (c *Connection) writeLoop() error {
	c.log.Debug("Writer goroutine %d started.", goid.Get())
	defer c.log.Debug("Writer goroutine %d exited.", goid.Get())

	for {
		next, frame, err := c.nextUnsent()
		if err != nil {
			return c.fail(err)
		}

		if next == nil {
			return nil
		}

		c.log.Trace("Writing %v.", next)

		if err = c.encoder.WriteJob(frame); err != nil {
			return c.fail(errors.Wrapf(err, "failed to write job %s", next.ID()))
		}
	}
}

func (c *Connection) readLoop() error {
	c.log.Debug("Reader goroutine %d started.", goid.Get())
	defer c.log.Debug("Reader goroutine %d exited.", goid.Get())

	for {
		frame, err := c.decoder.ReadResult()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return c.fail(errors.Wrap(err, "failed to read result"))
		}

		c.log.Trace("Read %v.", frame)

		c.mu.Lock()
		owner, ok := c.queue.Find(func(j *job.Job) bool { return j.ID() == frame.JobID && j.Sent() })
		if ok && len(frame.RandomState) > 0 {
			c.randomState = frame.RandomState
		}
		c.mu.Unlock()

		if !ok {
			return c.fail(errors.Wrapf(ErrUnknownJob, "job %s", frame.JobID))
		}

		result, err := owner.DecodeResult(frame, c.factory)
		if err != nil {
			return c.fail(err)
		}

		c.monitor.notifyAvailability(c, result)
	}
}

// complete removes the job with the given ID from the queue. It returns the job and the new queue length.
func (c *Connection) complete(jobID string) (*job.Job, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.queue.Remove(func(j *job.Job) bool { return j.ID() == jobID })
	return j, c.queue.Len(), ok
}

// fail reports err to the Monitor exactly once, unless the Connection is already shutting down, in which case the
// error is the expected consequence of the socket being closed.
func (c *Connection) fail(err error) error {
	failure := &ConnectionFailure{Name: c.name, Err: err}

	c.failureOnce.Do(func() {
		if c.IsShuttingDown() {
			return
		}

		c.log.Warn(utils.OrangeStyle.Render("Connection failed: %v"), err)
		c.monitor.reportFailure(c, failure)
	})

	return failure
}

func (c *Connection) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return fmt.Sprintf("Connection[Name=%s, Remote=%v, QueueLength=%d, Compressed=%v, ShuttingDown=%v]",
		c.name, c.conn.RemoteAddr(), c.queue.Len(), c.compressed, c.shuttingDown)
}
