package worker

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/yamux"
	"github.com/petermattis/goid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/scusemua/distributed-evaluation/common/individual"
	"github.com/scusemua/distributed-evaluation/common/job"
	"github.com/scusemua/distributed-evaluation/common/protocol"
	"github.com/scusemua/distributed-evaluation/common/utils"
	"github.com/scusemua/distributed-evaluation/slave/domain"
)

//go:generate mockgen -source=worker.go -destination=mock_worker/mock_worker.go

var (
	ErrEvaluationFailed = errors.New("evaluation failed")
	ErrMalformedJob     = errors.New("malformed job")
)

// Evaluator computes the fitness of individuals one at a time.
type Evaluator interface {
	Evaluate(ctx context.Context, ind individual.Individual, subpop int) (individual.Fitness, error)
}

// GroupEvaluator computes the fitness of the individuals of a grouped job jointly. An Evaluator that is not also a
// GroupEvaluator evaluates the individuals of grouped jobs independently of one another.
type GroupEvaluator interface {
	EvaluateGroup(ctx context.Context, individuals []individual.Individual, subpops []int,
		countVictoriesOnly bool) ([]individual.Fitness, error)
}

// RandomStater is implemented by evaluators whose random number generator state is returned to the master with
// every result.
type RandomStater interface {
	RandomState() ([]byte, error)
}

// session is an established connection to the master.
type session struct {
	mux      *yamux.Session
	stream   net.Conn
	compress bool
}

// Worker connects to the master, evaluates the jobs it receives, and sends back the evaluated individuals.
//
// When the connection to the master is lost, the Worker reconnects with exponential backoff. Jobs that were in
// flight are rescheduled by the master.
type Worker struct {
	log logger.Logger

	opts      *domain.SlaveOptions
	evaluator Evaluator
	factory   individual.Factory

	numSessions      atomic.Int32
	numJobsEvaluated atomic.Int64
}

// NewWorker creates a new Worker. factory creates the empty individuals into which received individuals are decoded.
func NewWorker(opts *domain.SlaveOptions, evaluator Evaluator, factory individual.Factory) *Worker {
	w := &Worker{
		opts:      opts,
		evaluator: evaluator,
		factory:   factory,
	}
	config.InitLogger(&w.log, fmt.Sprintf("Worker %s ", opts.Name))

	return w
}

// Run connects to the master and evaluates jobs until ctx is cancelled, in which case Run returns nil.
//
// Run returns an error if it gives up connecting to the master or if the Evaluator fails.
func (w *Worker) Run(ctx context.Context) error {
	for {
		s, err := w.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return errors.Wrapf(err, "failed to connect to master at %s", w.opts.MasterAddress())
		}

		w.numSessions.Add(1)
		w.log.Info(utils.ConnectionEventStyle.Render("Connected to master at %s [compression=%v]."),
			w.opts.MasterAddress(), s.compress)

		err = w.serve(ctx, s)
		if ctx.Err() != nil {
			return nil
		}

		if errors.Is(err, ErrEvaluationFailed) {
			return err
		}

		w.log.Warn(utils.OrangeStyle.Render("Lost connection to master: %v. Reconnecting."), err)
	}
}

// NumSessions returns the number of times the Worker has connected to the master.
func (w *Worker) NumSessions() int {
	return int(w.numSessions.Load())
}

// NumJobsEvaluated returns the number of jobs the Worker has evaluated and answered.
func (w *Worker) NumJobsEvaluated() int64 {
	return w.numJobsEvaluated.Load()
}

// connect dials the master and performs the handshake, retrying with exponential backoff.
//
// A rejected handshake is retried as well: the master may not yet have noticed that a previous session under the
// same name is gone.
func (w *Worker) connect(ctx context.Context) (*session, error) {
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     w.opts.ReconnectInitialInterval(),
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         w.opts.ReconnectMaxInterval(),
	}

	return backoff.Retry(ctx, func() (*session, error) {
		return w.dial(ctx)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(w.opts.ReconnectMaxTries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.log.Warn("Failed to connect to master at %s: %v. Retrying in %v.", w.opts.MasterAddress(), err, next)
		}))
}

func (w *Worker) dial(ctx context.Context) (*session, error) {
	dialer := &net.Dialer{Timeout: w.opts.DialTimeout()}

	conn, err := dialer.DialContext(ctx, "tcp", w.opts.MasterAddress())
	if err != nil {
		return nil, err
	}

	mux, err := yamux.Client(conn, w.opts.YamuxConfig())
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to create yamux client session")
	}

	stream, err := mux.Open()
	if err != nil {
		_ = mux.Close()
		return nil, errors.Wrap(err, "failed to open stream")
	}

	welcome, err := w.handshake(stream)
	if err != nil {
		_ = mux.Close()
		return nil, err
	}

	return &session{mux: mux, stream: stream, compress: welcome.Compression}, nil
}

func (w *Worker) handshake(stream net.Conn) (*protocol.Welcome, error) {
	if err := stream.SetDeadline(time.Now().Add(w.opts.DialTimeout())); err != nil {
		return nil, err
	}

	hello := &protocol.Hello{Name: w.opts.Name, WantsCompression: w.opts.Compression}
	if err := protocol.WriteHello(stream, hello); err != nil {
		return nil, errors.Wrap(err, "failed to write handshake")
	}

	welcome, err := protocol.ReadWelcome(stream)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read handshake reply")
	}

	if err = stream.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}

	return welcome, nil
}

// serve runs the job loop of an established session until the session fails or ctx is cancelled. The session is
// closed when serve returns.
func (w *Worker) serve(ctx context.Context, s *session) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group errgroup.Group

	group.Go(func() error {
		defer cancel()
		return w.jobLoop(loopCtx, s)
	})

	group.Go(func() error {
		<-loopCtx.Done()
		return s.mux.Close()
	})

	return group.Wait()
}

func (w *Worker) jobLoop(ctx context.Context, s *session) error {
	w.log.Debug("Job loop goroutine %d started.", goid.Get())
	defer w.log.Debug("Job loop goroutine %d exited.", goid.Get())

	decoder := protocol.NewDecoder(s.stream, s.compress)
	encoder := protocol.NewEncoder(s.stream, s.compress)

	for {
		frame, err := decoder.ReadJob()
		if err != nil {
			return err
		}

		w.log.Trace("Received %v.", frame)

		result, err := w.evaluate(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			w.log.Error(utils.RedStyle.Render("Failed to evaluate %v: %v"), frame, err)
			return err
		}

		if err = encoder.WriteResult(result); err != nil {
			return err
		}

		w.numJobsEvaluated.Add(1)
		w.log.Trace("Sent %v.", result)
	}
}

// evaluate decodes the individuals of frame, evaluates them, and encodes the ResultFrame that answers it.
//
// Individuals of a grouped job whose update flag is false are returned as they were received.
func (w *Worker) evaluate(ctx context.Context, frame *protocol.JobFrame) (*protocol.ResultFrame, error) {
	if len(frame.Subpopulations) != len(frame.Blobs) {
		return nil, errors.Wrapf(ErrEvaluationFailed, "%v: %v", ErrMalformedJob, frame)
	}

	individuals := make([]individual.Individual, len(frame.Blobs))
	subpops := make([]int, len(frame.Blobs))
	for i, blob := range frame.Blobs {
		subpops[i] = int(frame.Subpopulations[i])
		individuals[i] = w.factory(subpops[i])

		if err := individuals[i].UnmarshalBinary(blob); err != nil {
			return nil, errors.Wrapf(ErrEvaluationFailed, "failed to decode individual %d of job %s: %v",
				i, frame.ID, err)
		}
	}

	fitness, err := w.computeFitness(ctx, frame, individuals, subpops)
	if err != nil {
		return nil, errors.Wrapf(ErrEvaluationFailed, "job %s: %v", frame.ID, err)
	}

	for i, ind := range individuals {
		if frame.Kind == protocol.GroupedJob && !frame.UpdateFitness[i] {
			continue
		}

		ind.SetFitness(fitness[i])
		ind.SetEvaluated(true)
	}

	var randomState []byte
	if stater, ok := w.evaluator.(RandomStater); ok {
		if randomState, err = stater.RandomState(); err != nil {
			return nil, errors.Wrapf(ErrEvaluationFailed, "failed to capture random state: %v", err)
		}
	}

	result, err := job.NewResultFrame(frame.ID, individuals, randomState)
	if err != nil {
		return nil, errors.Wrapf(ErrEvaluationFailed, "%v", err)
	}

	return result, nil
}

func (w *Worker) computeFitness(ctx context.Context, frame *protocol.JobFrame, individuals []individual.Individual,
	subpops []int) ([]individual.Fitness, error) {

	if frame.Kind == protocol.GroupedJob {
		if len(frame.UpdateFitness) != len(individuals) {
			return nil, ErrMalformedJob
		}

		if groupEvaluator, ok := w.evaluator.(GroupEvaluator); ok {
			fitness, err := groupEvaluator.EvaluateGroup(ctx, individuals, subpops, frame.CountVictoriesOnly)
			if err != nil {
				return nil, err
			}

			if len(fitness) != len(individuals) {
				return nil, errors.Errorf("evaluator returned %d fitness values for %d individuals",
					len(fitness), len(individuals))
			}

			return fitness, nil
		}
	}

	fitness := make([]individual.Fitness, len(individuals))
	for i, ind := range individuals {
		f, err := w.evaluator.Evaluate(ctx, ind, subpops[i])
		if err != nil {
			return nil, err
		}

		fitness[i] = f
	}

	return fitness, nil
}

func (w *Worker) String() string {
	return fmt.Sprintf("Worker[Name=%s, Master=%s, NumSessions=%d, NumJobsEvaluated=%d]",
		w.opts.Name, w.opts.MasterAddress(), w.NumSessions(), w.NumJobsEvaluated())
}
