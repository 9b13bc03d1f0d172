package individual

import (
	"encoding"
	"fmt"
)

// Fitness is the score assigned to an Individual by a worker.
//
// Value is the numeric score. Victories and Trials are only meaningful for individuals that were evaluated as part
// of a grouped (coevolutionary) job, where a worker may be instructed to record only win/loss outcomes.
type Fitness struct {
	Value     float64 `json:"value"`
	Victories int     `json:"victories"`
	Trials    int     `json:"trials"`
}

func (f Fitness) String() string {
	return fmt.Sprintf("Fitness[Value=%f, Victories=%d, Trials=%d]", f.Value, f.Victories, f.Trials)
}

// Individual is a candidate solution whose fitness is computed remotely.
//
// The evaluation layer treats an Individual as an opaque blob. It only ever reads or writes the fitness and the
// evaluated flag, and relies on MarshalBinary / UnmarshalBinary to move the individual across the wire.
type Individual interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	// Fitness returns the current fitness of the Individual.
	Fitness() Fitness

	// SetFitness replaces the fitness of the Individual.
	SetFitness(Fitness)

	// Evaluated returns true if the Individual has been assigned a fitness by a worker.
	Evaluated() bool

	// SetEvaluated sets the evaluated flag of the Individual.
	SetEvaluated(bool)
}

// Factory creates an empty Individual that belongs to the given subpopulation.
//
// Results read back from a worker are decoded into fresh instances created by a Factory, so they are never the same
// objects as the ones that were submitted.
type Factory func(subpop int) Individual

// CopyFitness copies the fitness and evaluated status of src onto dst.
//
// This is a plain field copy, so calling it repeatedly with the same src is harmless.
func CopyFitness(dst Individual, src Individual) {
	dst.SetFitness(src.Fitness())
	dst.SetEvaluated(src.Evaluated())
}
