package job

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/scusemua/distributed-evaluation/common/individual"
	"github.com/scusemua/distributed-evaluation/common/protocol"
)

// Kind is an alias of protocol.JobKind so that callers of this package need not import the protocol package.
type Kind = protocol.JobKind

const (
	Simple  = protocol.SimpleJob
	Grouped = protocol.GroupedJob
)

var (
	ErrNotPrepared    = errors.New("job has not been prepared for transmission")
	ErrResultMismatch = errors.New("result does not match job")
)

// InvalidJobError is returned when a Job is constructed with arguments that violate its contract.
type InvalidJobError struct {
	Reason string
}

func (e *InvalidJobError) Error() string {
	return fmt.Sprintf("invalid job: %s", e.Reason)
}

// Job is a batch of individuals that is dispatched to a single worker and evaluated there.
//
// The individuals of a Job belong to the caller. The Job only ever reads them, when PrepareForTransmission encodes
// them into its transmit buffer, and writes their fitness back in MergeResults.
type Job struct {
	id   string
	kind Kind

	individuals    []individual.Individual
	subpopulations []int

	// updateFitness and countVictoriesOnly are only meaningful for Grouped jobs.
	updateFitness      []bool
	countVictoriesOnly bool

	// blobs is the transmit buffer populated by PrepareForTransmission.
	blobs [][]byte

	sent     atomic.Bool
	state    atomic.Int32
	attempts atomic.Int32

	createdAt time.Time
}

// NewSimpleJob creates a Job whose individuals are each evaluated in isolation.
func NewSimpleJob(individuals []individual.Individual, subpopulations []int) (*Job, error) {
	if len(individuals) == 0 {
		return nil, &InvalidJobError{Reason: "a job must contain at least one individual"}
	}

	if len(individuals) != len(subpopulations) {
		return nil, &InvalidJobError{Reason: fmt.Sprintf("%d individuals but %d subpopulation indices",
			len(individuals), len(subpopulations))}
	}

	return newJob(Simple, individuals, subpopulations, nil, false)
}

// NewGroupedJob creates a Job whose individuals are evaluated jointly.
//
// updateFitness[i] indicates whether the fitness computed for individuals[i] should be merged back.
// If countVictoriesOnly is true, the worker records only win/loss outcomes rather than numeric scores.
func NewGroupedJob(individuals []individual.Individual, subpopulations []int, updateFitness []bool,
	countVictoriesOnly bool) (*Job, error) {

	if len(individuals) == 0 {
		return nil, &InvalidJobError{Reason: "a job must contain at least one individual"}
	}

	if len(individuals) != len(subpopulations) || len(individuals) != len(updateFitness) {
		return nil, &InvalidJobError{Reason: fmt.Sprintf("%d individuals, %d subpopulation indices, and %d update flags",
			len(individuals), len(subpopulations), len(updateFitness))}
	}

	return newJob(Grouped, individuals, subpopulations, updateFitness, countVictoriesOnly)
}

func newJob(kind Kind, individuals []individual.Individual, subpopulations []int, updateFitness []bool,
	countVictoriesOnly bool) (*Job, error) {

	for i, ind := range individuals {
		if ind == nil {
			return nil, &InvalidJobError{Reason: fmt.Sprintf("individual %d is nil", i)}
		}
	}

	// Subpopulation indices travel as int32.
	for i, subpop := range subpopulations {
		if subpop < 0 || subpop > math.MaxInt32 {
			return nil, &InvalidJobError{Reason: fmt.Sprintf("subpopulation index %d of individual %d is out of range",
				subpop, i)}
		}
	}

	j := &Job{
		id:                 uuid.NewString(),
		kind:               kind,
		individuals:        append([]individual.Individual(nil), individuals...),
		subpopulations:     append([]int(nil), subpopulations...),
		countVictoriesOnly: countVictoriesOnly,
		createdAt:          time.Now(),
	}

	if updateFitness != nil {
		j.updateFitness = append([]bool(nil), updateFitness...)
	}

	j.state.Store(int32(Created))

	return j, nil
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Kind() Kind {
	return j.kind
}

// Len returns the number of individuals in the Job.
func (j *Job) Len() int {
	return len(j.individuals)
}

// Individuals returns the caller's original individuals.
func (j *Job) Individuals() []individual.Individual {
	return j.individuals
}

// Subpopulations returns the subpopulation index of each individual.
func (j *Job) Subpopulations() []int {
	return j.subpopulations
}

// CountVictoriesOnly returns the coevolution flag of a Grouped job.
func (j *Job) CountVictoriesOnly() bool {
	return j.countVictoriesOnly
}

// Sent returns true if the Job has been handed to a connection's writer since it was last (re)scheduled.
func (j *Job) Sent() bool {
	return j.sent.Load()
}

// MarkSent flips the sent flag. It returns false if the Job was already marked as sent.
func (j *Job) MarkSent() bool {
	if !j.sent.CompareAndSwap(false, true) {
		return false
	}

	j.state.Store(int32(Sent))
	return true
}

// MarkQueued records that the Job has been placed on a connection's queue.
func (j *Job) MarkQueued() {
	j.attempts.Add(1)
	j.state.Store(int32(Queued))
}

// ResetForReschedule returns a Job whose connection failed to the unsent state so that it can be placed on another
// connection as a fresh scheduling unit.
func (j *Job) ResetForReschedule() {
	j.sent.Store(false)
	j.state.Store(int32(Created))
}

// Discard marks the Job as abandoned during shutdown.
func (j *Job) Discard() {
	j.state.Store(int32(Discarded))
}

// State returns the current lifecycle state of the Job.
func (j *Job) State() State {
	return State(j.state.Load())
}

// Attempts returns the number of times the Job has been placed on a connection's queue.
func (j *Job) Attempts() int {
	return int(j.attempts.Load())
}

// Age returns the time elapsed since the Job was created.
func (j *Job) Age() time.Duration {
	return time.Since(j.createdAt)
}

// PrepareForTransmission encodes the caller's individuals into the Job's transmit buffer.
//
// The caller's individuals are not modified.
func (j *Job) PrepareForTransmission() error {
	blobs := make([][]byte, len(j.individuals))
	for i, ind := range j.individuals {
		blob, err := ind.MarshalBinary()
		if err != nil {
			return errors.Wrapf(err, "failed to encode individual %d of job %s", i, j.id)
		}

		blobs[i] = blob
	}

	j.blobs = blobs
	return nil
}

// Prepared returns true if the transmit buffer is populated.
func (j *Job) Prepared() bool {
	return j.blobs != nil
}

// Frame returns the wire representation of the Job.
func (j *Job) Frame() (*protocol.JobFrame, error) {
	if j.blobs == nil {
		return nil, errors.Wrapf(ErrNotPrepared, "job %s", j.id)
	}

	subpops := make([]int32, len(j.subpopulations))
	for i, subpop := range j.subpopulations {
		subpops[i] = int32(subpop)
	}

	return &protocol.JobFrame{
		Kind:               j.kind,
		ID:                 j.id,
		Subpopulations:     subpops,
		Blobs:              j.blobs,
		CountVictoriesOnly: j.countVictoriesOnly,
		UpdateFitness:      j.updateFitness,
	}, nil
}

// MergeResults copies the fitness and evaluated status of each result individual onto the caller's original
// individual at the same position, then discards the transmit buffer.
//
// For Grouped jobs, positions whose update flag is false are left untouched. The merge is a plain field copy, so
// merging the same well-formed Result twice leaves the caller's individuals unchanged.
func (j *Job) MergeResults(result *Result) error {
	if result.JobID != j.id {
		return errors.Wrapf(ErrResultMismatch, "result for job %s delivered to job %s", result.JobID, j.id)
	}

	if len(result.Individuals) != len(j.individuals) {
		return errors.Wrapf(ErrResultMismatch, "job %s has %d individuals but result has %d",
			j.id, len(j.individuals), len(result.Individuals))
	}

	for i, original := range j.individuals {
		if j.kind == Grouped && !j.updateFitness[i] {
			continue
		}

		individual.CopyFitness(original, result.Individuals[i])
	}

	j.blobs = nil
	j.state.Store(int32(Completed))

	return nil
}

func (j *Job) String() string {
	return fmt.Sprintf("Job[ID=%s, Kind=%v, NumIndividuals=%d, State=%v, Sent=%v, Attempts=%d]",
		j.id, j.kind, len(j.individuals), j.State(), j.Sent(), j.Attempts())
}
