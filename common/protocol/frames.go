package protocol

import "fmt"

const (
	// Magic opens every handshake sent by a worker ("EVL1").
	Magic uint32 = 0x45564C31

	// MaxBlobSize is the largest individual payload (or random-number-generator state) accepted on the wire.
	MaxBlobSize = 64 << 20

	// MaxIndividuals is the largest number of individuals accepted in a single job or result.
	MaxIndividuals = 1 << 20

	// MaxNameLength is the longest worker name accepted during the handshake.
	MaxNameLength = 1024
)

// JobKind indicates how the individuals of a job are to be evaluated.
type JobKind uint8

const (
	// SimpleJob individuals are evaluated independently of one another.
	SimpleJob JobKind = 1

	// GroupedJob individuals are evaluated jointly (coevolution).
	GroupedJob JobKind = 2
)

func (k JobKind) String() string {
	switch k {
	case SimpleJob:
		return "Simple"
	case GroupedJob:
		return "Grouped"
	default:
		return fmt.Sprintf("JobKind(%d)", uint8(k))
	}
}

// Valid returns true if k is a known JobKind.
func (k JobKind) Valid() bool {
	return k == SimpleJob || k == GroupedJob
}

// JobFrame is a job as it travels from the master to a worker.
type JobFrame struct {
	Kind JobKind
	ID   string

	// Subpopulations and Blobs are parallel slices.
	Subpopulations []int32
	Blobs          [][]byte

	// CountVictoriesOnly and UpdateFitness are only transmitted for GroupedJob frames.
	CountVictoriesOnly bool
	UpdateFitness      []bool
}

func (f *JobFrame) String() string {
	return fmt.Sprintf("JobFrame[Kind=%v, ID=%s, NumIndividuals=%d]", f.Kind, f.ID, len(f.Blobs))
}

// ResultFrame is a completed job as it travels from a worker back to the master.
type ResultFrame struct {
	JobID string

	// Blobs holds the evaluated individuals, in the same order in which they were submitted.
	Blobs [][]byte

	// RandomState is the worker's random-number-generator state after evaluating the job. It may be empty.
	RandomState []byte
}

func (f *ResultFrame) String() string {
	return fmt.Sprintf("ResultFrame[JobID=%s, NumIndividuals=%d, RandomStateBytes=%d]",
		f.JobID, len(f.Blobs), len(f.RandomState))
}

// Hello is the handshake sent by a worker immediately after it connects.
type Hello struct {
	Name             string
	WantsCompression bool
}

// Welcome is the master's reply to a Hello.
type Welcome struct {
	Accepted    bool
	Compression bool
}
