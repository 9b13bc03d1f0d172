package evaluator

import (
	"context"

	"github.com/pkg/errors"

	"github.com/scusemua/distributed-evaluation/common/individual"
)

var (
	ErrUnsupportedIndividual = errors.New("unsupported individual type")
)

// Sphere is the sphere minimisation problem: the fitness of a Vector is the negated sum of its squared genes, so the
// optimum is 0 at the origin.
type Sphere struct{}

func NewSphere() *Sphere {
	return &Sphere{}
}

func (s *Sphere) Evaluate(ctx context.Context, ind individual.Individual, _ int) (individual.Fitness, error) {
	if err := ctx.Err(); err != nil {
		return individual.Fitness{}, err
	}

	score, err := sphereScore(ind)
	if err != nil {
		return individual.Fitness{}, err
	}

	return individual.Fitness{Value: score, Trials: 1}, nil
}

func sphereScore(ind individual.Individual) (float64, error) {
	v, ok := ind.(*individual.Vector)
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedIndividual, "%T", ind)
	}

	sum := 0.0
	for _, gene := range v.Genome {
		sum += gene * gene
	}

	return -sum, nil
}

func (s *Sphere) String() string {
	return "Sphere"
}
