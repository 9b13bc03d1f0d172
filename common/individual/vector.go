package individual

import (
	"math/rand"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

var (
	ErrEmptyPayload = errors.New("cannot unmarshal an individual from an empty payload")
)

// Vector is an Individual whose genome is a fixed-length vector of real numbers.
type Vector struct {
	Genome []float64

	fitness   Fitness
	evaluated bool
}

// vectorPayload is the JSON representation of a Vector on the wire.
type vectorPayload struct {
	Genome    []float64 `json:"genome"`
	Fitness   Fitness   `json:"fitness"`
	Evaluated bool      `json:"evaluated"`
}

// NewVector creates a new, unevaluated Vector with a copy of the given genome.
func NewVector(genome []float64) *Vector {
	g := make([]float64, len(genome))
	copy(g, genome)

	return &Vector{Genome: g}
}

// NewRandomVector creates a new Vector of the given length whose genes are drawn uniformly from [min, max).
func NewRandomVector(rng *rand.Rand, length int, min float64, max float64) *Vector {
	genome := make([]float64, length)
	for i := range genome {
		genome[i] = min + rng.Float64()*(max-min)
	}

	return &Vector{Genome: genome}
}

// VectorFactory is a Factory that creates empty Vector individuals, regardless of the subpopulation.
func VectorFactory(_ int) Individual {
	return &Vector{}
}

func (v *Vector) Fitness() Fitness {
	return v.fitness
}

func (v *Vector) SetFitness(f Fitness) {
	v.fitness = f
}

func (v *Vector) Evaluated() bool {
	return v.evaluated
}

func (v *Vector) SetEvaluated(evaluated bool) {
	v.evaluated = evaluated
}

// MarshalBinary encodes the Vector, including its fitness and evaluated status.
func (v *Vector) MarshalBinary() ([]byte, error) {
	return json.Marshal(&vectorPayload{
		Genome:    v.Genome,
		Fitness:   v.fitness,
		Evaluated: v.evaluated,
	})
}

// UnmarshalBinary decodes the Vector from data, replacing the genome, fitness, and evaluated status.
func (v *Vector) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}

	var payload vectorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.Wrap(err, "failed to decode vector individual")
	}

	v.Genome = payload.Genome
	v.fitness = payload.Fitness
	v.evaluated = payload.Evaluated

	return nil
}
