package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"

	"github.com/scusemua/distributed-evaluation/common/individual"
	"github.com/scusemua/distributed-evaluation/common/job"
	"github.com/scusemua/distributed-evaluation/master/domain"
)

//go:generate mockgen -source=dispatcher.go -destination=mock_dispatcher/mock_dispatcher.go

// Monitor is the subset of the master's monitor.Monitor used by the Dispatcher.
type Monitor interface {
	// ScheduleJobForEvaluation places a job on a worker connection, blocking until one has capacity.
	ScheduleJobForEvaluation(ctx context.Context, j *job.Job) error

	// WaitForAllSlavesToFinishEvaluating blocks until every scheduled job has completed.
	WaitForAllSlavesToFinishEvaluating(ctx context.Context) error

	// WaitForIndividual blocks until an evaluated individual is available and returns it.
	WaitForIndividual(ctx context.Context) (individual.Individual, error)

	// EvaluatedIndividualAvailable returns true if WaitForIndividual would not block.
	EvaluatedIndividualAvailable() bool
}

// Dispatcher is the interface between the evolutionary algorithm and the distributed evaluation layer.
//
// Individuals submitted with Submit are accumulated into batches of JobSize individuals, each of which is scheduled
// as a single Simple job. Generational algorithms call FinishEvaluating at the end of each generation. Steady-state
// algorithms retrieve individuals one at a time with NextEvaluatedIndividual.
type Dispatcher struct {
	log logger.Logger

	monitor Monitor
	jobSize int

	mu      sync.Mutex
	pending []individual.Individual
	subpops []int
}

// NewDispatcher creates a new Dispatcher that schedules its jobs with monitor.
func NewDispatcher(monitor Monitor, opts *domain.MonitorOptions) *Dispatcher {
	opts.ValidateMonitorOptions()

	d := &Dispatcher{
		monitor: monitor,
		jobSize: opts.JobSize,
		pending: make([]individual.Individual, 0, opts.JobSize),
		subpops: make([]int, 0, opts.JobSize),
	}
	config.InitLogger(&d.log, d)

	return d
}

// Submit adds ind, which belongs to subpopulation subpop, to the current batch. If the batch is full, it is
// scheduled, which blocks until a worker connection has capacity.
func (d *Dispatcher) Submit(ctx context.Context, ind individual.Individual, subpop int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = append(d.pending, ind)
	d.subpops = append(d.subpops, subpop)

	if len(d.pending) < d.jobSize {
		return nil
	}

	return d.flushLocked(ctx)
}

// SubmitGroup schedules a Grouped job of individuals that are evaluated jointly. updateFitness[i] indicates whether
// the fitness computed for individuals[i] is merged back.
func (d *Dispatcher) SubmitGroup(ctx context.Context, individuals []individual.Individual, subpops []int,
	updateFitness []bool, countVictoriesOnly bool) error {

	j, err := job.NewGroupedJob(individuals, subpops, updateFitness, countVictoriesOnly)
	if err != nil {
		return err
	}

	d.log.Trace("Scheduling grouped %v.", j)

	return d.monitor.ScheduleJobForEvaluation(ctx, j)
}

// Flush schedules the current batch, even if it is not full.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.flushLocked(ctx)
}

func (d *Dispatcher) flushLocked(ctx context.Context) error {
	if len(d.pending) == 0 {
		return nil
	}

	j, err := job.NewSimpleJob(d.pending, d.subpops)
	if err != nil {
		return err
	}

	if err = d.monitor.ScheduleJobForEvaluation(ctx, j); err != nil {
		// The batch stays pending so that a later Flush can retry it.
		return err
	}

	d.log.Trace("Scheduled %v.", j)

	d.pending = d.pending[:0]
	d.subpops = d.subpops[:0]

	return nil
}

// FinishEvaluating schedules the current batch and then blocks until every scheduled job has completed. When it
// returns nil, every individual submitted so far has had its fitness merged back.
func (d *Dispatcher) FinishEvaluating(ctx context.Context) error {
	if err := d.Flush(ctx); err != nil {
		return err
	}

	return d.monitor.WaitForAllSlavesToFinishEvaluating(ctx)
}

// NextEvaluatedIndividual blocks until an evaluated individual is available and returns it.
//
// NextEvaluatedIndividual and EvaluatedIndividualAvailable are not safe to combine from multiple goroutines without
// external synchronization: an individual reported as available may be taken by another goroutine.
func (d *Dispatcher) NextEvaluatedIndividual(ctx context.Context) (individual.Individual, error) {
	return d.monitor.WaitForIndividual(ctx)
}

// EvaluatedIndividualAvailable returns true if NextEvaluatedIndividual would not block.
func (d *Dispatcher) EvaluatedIndividualAvailable() bool {
	return d.monitor.EvaluatedIndividualAvailable()
}

// NumPending returns the number of submitted individuals that have not yet been scheduled.
func (d *Dispatcher) NumPending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.pending)
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("Dispatcher[JobSize=%d, NumPending=%d]", d.jobSize, d.NumPending())
}
