package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Scusemua/go-utils/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"

	"github.com/scusemua/distributed-evaluation/common/individual"
	"github.com/scusemua/distributed-evaluation/common/utils"
	"github.com/scusemua/distributed-evaluation/slave/domain"
	"github.com/scusemua/distributed-evaluation/slave/evaluator"
	"github.com/scusemua/distributed-evaluation/slave/worker"
)

var (
	options      = domain.SlaveOptions{}
	globalLogger = config.GetLogger("")
	sig          = make(chan os.Signal, 1)
)

func init() {
	lipgloss.SetColorProfile(termenv.ANSI256)

	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
}

// ValidateOptions ensures that the options/configuration is valid.
func ValidateOptions() {
	flags, err := config.ValidateOptions(&options)
	if errors.Is(err, config.ErrPrintUsage) {
		flags.PrintDefaults()
		os.Exit(0)
	} else if err != nil {
		log.Fatal(err)
	}
}

// newEvaluator creates the fitness function named by the options.
func newEvaluator(opts *domain.SlaveOptions) worker.Evaluator {
	switch opts.Evaluator {
	case domain.EvaluatorCompetition:
		return evaluator.NewCompetition(uint64(opts.Seed))
	default:
		return evaluator.NewSphere()
	}
}

func main() {
	ValidateOptions()

	if options.PrettyPrintOptions {
		globalLogger.Info("Starting worker %s with the following options:\n%s\n", options.Name, options.PrettyString(2))
	} else {
		globalLogger.Info("Starting worker %s.", options.Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start detecting stop signals
	go func() {
		<-sig
		globalLogger.Info("Shutting down...")
		cancel()
	}()

	w := worker.NewWorker(&options, newEvaluator(&options), individual.VectorFactory)
	if err := w.Run(ctx); err != nil {
		globalLogger.Error(utils.RedStyle.Render("Worker exited with error: %v"), err)
		os.Exit(1)
	}

	globalLogger.Info("Worker exited after evaluating %d job(s).", w.NumJobsEvaluated())
}
