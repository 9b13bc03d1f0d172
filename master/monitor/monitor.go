package monitor

import (
	"context"
	"net"
	"sync"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/pkg/errors"

	"github.com/scusemua/distributed-evaluation/common/individual"
	"github.com/scusemua/distributed-evaluation/common/job"
	"github.com/scusemua/distributed-evaluation/common/metrics"
	"github.com/scusemua/distributed-evaluation/common/queue"
	"github.com/scusemua/distributed-evaluation/common/utils"
	"github.com/scusemua/distributed-evaluation/common/utils/hashmap"
	"github.com/scusemua/distributed-evaluation/master/domain"
)

// unassigned is the owner of a job that is waiting for a connection with free capacity.
const unassigned = ""

// Monitor is the central coordinator of the master. It keeps the registry of worker connections, assigns jobs to
// connections with free capacity, reschedules the jobs of failed connections, and delivers completed individuals.
//
// All of the Monitor's state is guarded by a single lock with three condition variables:
//   - capacity is broadcast when a connection may have room for another job (a job completed, a connection
//     registered, or the Monitor is shutting down).
//   - drained is broadcast when the number of outstanding jobs drops to zero.
//   - completed is broadcast when an evaluated individual is appended to the completed queue.
type Monitor struct {
	log logger.Logger

	mu        sync.Mutex
	capacity  *sync.Cond
	drained   *sync.Cond
	completed *sync.Cond

	// connections is the registry of live connections, in registration order.
	connections *orderedmap.OrderedMap[string, *Connection]

	// ownership maps the ID of every outstanding job to the name of the connection it was last enqueued on, or to
	// unassigned while the first call to schedule it waits for capacity. It is written under mu and read without
	// it by JobOwner.
	ownership *hashmap.ConcurrentMap[string]

	// completedIndividuals holds evaluated individuals until a steady-state caller retrieves them.
	// Only populated when retainCompleted is true.
	completedIndividuals *queue.Fifo[individual.Individual]

	// outstanding is the number of jobs that were scheduled and have neither completed nor been discarded.
	// Jobs being moved off of a failed connection remain outstanding.
	outstanding int

	maxJobsPerConnection int
	retainCompleted      bool
	shutdownInProgress   bool

	factory individual.Factory
	metrics *metrics.MonitorMetrics

	// failureHandlers tracks the goroutines that recover failed connections.
	failureHandlers sync.WaitGroup
}

// NewMonitor creates a new Monitor.
//
// factory is used to decode the individuals returned by workers. metrics may be nil.
func NewMonitor(opts *domain.MonitorOptions, factory individual.Factory, monitorMetrics *metrics.MonitorMetrics) *Monitor {
	opts.ValidateMonitorOptions()

	m := &Monitor{
		connections:          orderedmap.NewOrderedMap[string, *Connection](),
		ownership:            hashmap.NewConcurrentMap[string](),
		completedIndividuals: queue.NewFifo[individual.Individual](opts.JobSize * opts.MaxJobsPerConnection),
		maxJobsPerConnection: opts.MaxJobsPerConnection,
		retainCompleted:      opts.SteadyState,
		factory:              factory,
		metrics:              monitorMetrics,
	}
	m.capacity = sync.NewCond(&m.mu)
	m.drained = sync.NewCond(&m.mu)
	m.completed = sync.NewCond(&m.mu)

	config.InitLogger(&m.log, m)

	return m
}

// RegisterConnection wraps conn in a new Connection, starts its goroutines, and makes it available for scheduling.
//
// compress selects the negotiated stream compression mode.
func (m *Monitor) RegisterConnection(name string, conn net.Conn, compress bool) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdownInProgress {
		return nil, ErrShutdownInProgress
	}

	if _, loaded := m.connections.Get(name); loaded {
		return nil, errors.Wrapf(ErrDuplicateConnection, "name \"%s\"", name)
	}

	connection := newConnection(name, conn, compress, m)
	m.connections.Set(name, connection)
	connection.start()

	m.metrics.ConnectionRegistered()
	m.log.Info(utils.ConnectionEventStyle.Render("Registered connection %s from %v. Number of connections: %d."),
		name, conn.RemoteAddr(), m.connections.Len())

	m.capacity.Broadcast()

	return connection, nil
}

// UnregisterConnection removes conn from the registry. It does not reschedule the jobs held by conn.
func (m *Monitor) UnregisterConnection(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unregisterLocked(conn, false)
}

func (m *Monitor) unregisterLocked(conn *Connection, failed bool) bool {
	registered, ok := m.connections.Get(conn.name)
	if !ok || registered != conn {
		return false
	}

	m.connections.Delete(conn.name)
	m.metrics.ConnectionUnregistered(conn.name, failed)

	m.log.Info(utils.ConnectionEventStyle.Render("Unregistered connection %s. Number of connections: %d."),
		conn.name, m.connections.Len())

	return true
}

// HasConnection returns true if a connection with the given name is registered.
func (m *Monitor) HasConnection(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.connections.Get(name)
	return ok
}

// NumConnections returns the number of registered connections.
func (m *Monitor) NumConnections() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connections.Len()
}

// NumOutstandingJobs returns the number of scheduled jobs that have not yet completed.
func (m *Monitor) NumOutstandingJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.outstanding
}

// Connections returns the registered connections in registration order.
func (m *Monitor) Connections() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	connections := make([]*Connection, 0, m.connections.Len())
	for el := m.connections.Front(); el != nil; el = el.Next() {
		connections = append(connections, el.Value)
	}

	return connections
}

// ScheduleJobForEvaluation places j on a connection that holds fewer than the maximum number of jobs, preferring
// the least-loaded connection and, among equally-loaded connections, the one that registered first.
//
// If no connection has free capacity, ScheduleJobForEvaluation blocks until one does. It returns
// ErrShutdownInProgress if the Monitor is (or begins) shutting down, and ctx.Err() if ctx ends while waiting.
func (m *Monitor) ScheduleJobForEvaluation(ctx context.Context, j *job.Job) error {
	if !j.Prepared() {
		if err := j.PrepareForTransmission(); err != nil {
			return err
		}
	}

	return m.schedule(ctx, j, false)
}

func (m *Monitor) schedule(ctx context.Context, j *job.Job, rescheduled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.capacity.Broadcast()
	})
	defer stop()

	if !rescheduled {
		if owner, loaded := m.ownership.Load(j.ID()); loaded {
			if owner == unassigned {
				return errors.Wrapf(ErrJobAlreadyScheduled, "job %s is waiting for a connection", j.ID())
			}

			return errors.Wrapf(ErrJobAlreadyScheduled, "job %s is held by connection %s", j.ID(), owner)
		}

		// The reservation is held until the job is enqueued, so a concurrent call for the same job fails.
		m.ownership.Store(j.ID(), unassigned)
	}

	for {
		if m.shutdownInProgress {
			m.releaseReservationLocked(j, rescheduled)
			return ErrShutdownInProgress
		}

		if err := ctx.Err(); err != nil {
			m.releaseReservationLocked(j, rescheduled)
			return err
		}

		if conn := m.selectConnectionLocked(); conn != nil {
			if err := conn.Enqueue(j); err == nil {
				if !rescheduled {
					m.outstanding += 1
				}

				m.ownership.Store(j.ID(), conn.name)
				m.metrics.JobScheduled(conn.name, conn.Len())

				m.log.Debug("Scheduled %v on connection %s.", j, conn.name)
				return nil
			}
		}

		m.capacity.Wait()
	}
}

// releaseReservationLocked drops the ownership entry of a job that was never enqueued. A rescheduled job keeps its
// entry; it is discarded by the caller.
func (m *Monitor) releaseReservationLocked(j *job.Job, rescheduled bool) {
	if rescheduled {
		return
	}

	m.ownership.Delete(j.ID())
}

// JobOwner returns the name of the connection that holds the job with the given ID. The name is empty while the job
// waits for a connection with free capacity. ok is false if the job is not outstanding.
//
// JobOwner does not acquire the Monitor's lock.
func (m *Monitor) JobOwner(jobID string) (name string, ok bool) {
	return m.ownership.Load(jobID)
}

// selectConnectionLocked returns the least-loaded connection with free capacity, or nil.
func (m *Monitor) selectConnectionLocked() *Connection {
	var (
		selected *Connection
		minLen   int
	)

	for el := m.connections.Front(); el != nil; el = el.Next() {
		conn := el.Value
		if conn.IsShuttingDown() {
			continue
		}

		length := conn.Len()
		if length >= m.maxJobsPerConnection {
			continue
		}

		if selected == nil || length < minLen {
			selected = conn
			minLen = length
		}
	}

	return selected
}

// notifyAvailability is called by a Connection's reader with the result of one of its jobs. It removes the job
// from the Connection, merges the result into the caller's individuals, and wakes waiters.
func (m *Monitor) notifyAvailability(conn *Connection, result *job.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, depth, ok := conn.complete(result.JobID)
	if !ok {
		// The job was taken from the connection while the result was being decoded.
		m.log.Debug("Dropping result of job %s from connection %s: the connection no longer holds it.",
			result.JobID, conn.name)
		return
	}

	if err := j.MergeResults(result); err != nil {
		m.log.Error(utils.RedStyle.Render("Failed to merge result of job %s from connection %s: %v"),
			j.ID(), conn.name, err)
	}

	m.ownership.Delete(j.ID())
	m.outstanding -= 1

	label := ""
	if registered, _ := m.connections.Get(conn.name); registered == conn {
		label = conn.name
	}
	m.metrics.JobCompleted(label, depth, j.Len(), j.Age())

	m.log.Debug(utils.GreenStyle.Render("Completed %v on connection %s."), j, conn.name)

	if m.retainCompleted {
		for _, ind := range j.Individuals() {
			m.completedIndividuals.Enqueue(ind)
		}

		m.completed.Broadcast()
	}

	m.capacity.Broadcast()
	if m.outstanding == 0 {
		m.drained.Broadcast()
	}
}

// WaitForAllSlavesToFinishEvaluating blocks until every scheduled job has completed.
//
// New jobs may be scheduled by other goroutines while a call is blocked. If scheduling never stops, the call may
// never return.
func (m *Monitor) WaitForAllSlavesToFinishEvaluating(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.drained.Broadcast()
	})
	defer stop()

	for {
		if m.shutdownInProgress {
			return ErrShutdownInProgress
		}

		if m.outstanding == 0 {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		m.drained.Wait()
	}
}

// WaitForIndividual blocks until an evaluated individual is available, then removes and returns it.
// Individuals are returned in the order their results arrived.
//
// Individuals are only retained when the Monitor was created with steady-state retention enabled. Otherwise,
// WaitForIndividual blocks until ctx ends or the Monitor shuts down.
func (m *Monitor) WaitForIndividual(ctx context.Context) (individual.Individual, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.completed.Broadcast()
	})
	defer stop()

	for {
		if ind, ok := m.completedIndividuals.Dequeue(); ok {
			return ind, nil
		}

		if m.shutdownInProgress {
			return nil, ErrShutdownInProgress
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m.completed.Wait()
	}
}

// EvaluatedIndividualAvailable returns true if WaitForIndividual would return without blocking.
func (m *Monitor) EvaluatedIndividualAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.completedIndividuals.Len() > 0
}

// reportFailure starts the recovery of a failed connection.
func (m *Monitor) reportFailure(conn *Connection, failure *ConnectionFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdownInProgress {
		// Shutdown tears the connection down itself.
		return
	}

	m.failureHandlers.Add(1)
	go m.handleFailure(conn, failure)
}

// handleFailure unregisters a failed connection, shuts it down, and reschedules its outstanding jobs on the
// remaining connections. Rescheduling blocks like ordinary scheduling when no connection has free capacity.
func (m *Monitor) handleFailure(conn *Connection, failure *ConnectionFailure) {
	defer m.failureHandlers.Done()

	m.mu.Lock()
	m.unregisterLocked(conn, true)
	m.mu.Unlock()

	outstanding := conn.InitiateShutdown()

	m.log.Warn(utils.RescheduleStyle.Render("Recovering from %v. Rescheduling %d outstanding job(s)."),
		failure, len(outstanding))

	for _, j := range outstanding {
		j.ResetForReschedule()
		m.metrics.JobRescheduled()

		if err := m.schedule(context.Background(), j, true); err != nil {
			m.log.Warn("Could not reschedule %v: %v", j, err)
			m.discard(j)
		}
	}
}

func (m *Monitor) discard(j *job.Job) {
	j.Discard()
	m.ownership.Delete(j.ID())
	m.metrics.JobDiscarded()
}

// Shutdown tears down every connection and discards their outstanding jobs. Goroutines blocked in the Monitor
// return ErrShutdownInProgress. Shutdown is idempotent.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	if m.shutdownInProgress {
		m.mu.Unlock()
		return
	}

	m.shutdownInProgress = true

	connections := make([]*Connection, 0, m.connections.Len())
	for el := m.connections.Front(); el != nil; el = el.Next() {
		connections = append(connections, el.Value)
	}
	m.connections = orderedmap.NewOrderedMap[string, *Connection]()

	m.capacity.Broadcast()
	m.drained.Broadcast()
	m.completed.Broadcast()
	m.mu.Unlock()

	m.log.Info("Shutting down %d connection(s).", len(connections))

	discarded := 0
	for _, conn := range connections {
		for _, j := range conn.InitiateShutdown() {
			m.discard(j)
			discarded += 1
		}

		m.metrics.ConnectionUnregistered(conn.name, false)
	}

	m.failureHandlers.Wait()

	m.mu.Lock()
	m.outstanding = 0
	m.mu.Unlock()

	m.log.Info("Shut down. Discarded %d outstanding job(s).", discarded)
}
