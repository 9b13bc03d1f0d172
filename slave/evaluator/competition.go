package evaluator

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/pkg/errors"

	"github.com/scusemua/distributed-evaluation/common/individual"
)

// Competition evaluates the individuals of a grouped job against one another in a round-robin tournament. Every
// pair plays one game, which the individual with the better sphere score wins. Ties are broken at random.
//
// Each individual's Victories and Trials record its tournament. Its Value is its own sphere score, or its number of
// victories when only victories are counted.
//
// Individuals of Simple jobs are scored as by Sphere.
type Competition struct {
	Sphere

	mu  sync.Mutex
	pcg *rand.PCG
	rng *rand.Rand
}

func NewCompetition(seed uint64) *Competition {
	pcg := rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)

	return &Competition{
		pcg: pcg,
		rng: rand.New(pcg),
	}
}

func (c *Competition) EvaluateGroup(ctx context.Context, individuals []individual.Individual, _ []int,
	countVictoriesOnly bool) ([]individual.Fitness, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make([]float64, len(individuals))
	for i, ind := range individuals {
		score, err := sphereScore(ind)
		if err != nil {
			return nil, errors.Wrapf(err, "individual %d", i)
		}

		scores[i] = score
	}

	victories := make([]int, len(individuals))

	c.mu.Lock()
	for i := 0; i < len(individuals); i++ {
		for j := i + 1; j < len(individuals); j++ {
			switch {
			case scores[i] > scores[j]:
				victories[i] += 1
			case scores[j] > scores[i]:
				victories[j] += 1
			case c.rng.IntN(2) == 0:
				victories[i] += 1
			default:
				victories[j] += 1
			}
		}
	}
	c.mu.Unlock()

	fitness := make([]individual.Fitness, len(individuals))
	for i := range individuals {
		fitness[i] = individual.Fitness{
			Value:     scores[i],
			Victories: victories[i],
			Trials:    len(individuals) - 1,
		}

		if countVictoriesOnly {
			fitness[i].Value = float64(victories[i])
		}
	}

	return fitness, nil
}

// RandomState returns the state of the tie-breaking random number generator.
func (c *Competition) RandomState() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pcg.MarshalBinary()
}

func (c *Competition) String() string {
	return "Competition"
}
