package job

import (
	"time"

	"github.com/pkg/errors"

	"github.com/scusemua/distributed-evaluation/common/individual"
	"github.com/scusemua/distributed-evaluation/common/protocol"
)

// Result is the immutable record of a completed Job, produced by a connection's reader from a ResultFrame.
//
// Individuals are fresh instances decoded from the worker's reply. They are never the caller's original objects;
// Job.MergeResults copies their fitness onto the originals by position.
type Result struct {
	JobID       string
	Individuals []individual.Individual

	// RandomState is the worker's random-number-generator state after evaluating the job, if it sent one.
	RandomState []byte

	ReceivedAt time.Time
}

// DecodeResult decodes frame into a Result for j, creating one fresh individual per position with factory.
func (j *Job) DecodeResult(frame *protocol.ResultFrame, factory individual.Factory) (*Result, error) {
	if frame.JobID != j.id {
		return nil, errors.Wrapf(ErrResultMismatch, "result for job %s decoded against job %s", frame.JobID, j.id)
	}

	if len(frame.Blobs) != len(j.individuals) {
		return nil, errors.Wrapf(ErrResultMismatch, "job %s has %d individuals but result has %d",
			j.id, len(j.individuals), len(frame.Blobs))
	}

	individuals := make([]individual.Individual, len(frame.Blobs))
	for i, blob := range frame.Blobs {
		ind := factory(j.subpopulations[i])
		if err := ind.UnmarshalBinary(blob); err != nil {
			return nil, errors.Wrapf(err, "failed to decode result individual %d of job %s", i, j.id)
		}

		individuals[i] = ind
	}

	return &Result{
		JobID:       j.id,
		Individuals: individuals,
		RandomState: frame.RandomState,
		ReceivedAt:  time.Now(),
	}, nil
}

// NewResultFrame encodes evaluated individuals into the ResultFrame that answers the job with the given ID.
func NewResultFrame(jobID string, individuals []individual.Individual, randomState []byte) (*protocol.ResultFrame, error) {
	blobs := make([][]byte, len(individuals))
	for i, ind := range individuals {
		blob, err := ind.MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode evaluated individual %d of job %s", i, jobID)
		}

		blobs[i] = blob
	}

	return &protocol.ResultFrame{
		JobID:       jobID,
		Blobs:       blobs,
		RandomState: randomState,
	}, nil
}
