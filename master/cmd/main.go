package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"

	"github.com/scusemua/distributed-evaluation/common/individual"
	"github.com/scusemua/distributed-evaluation/common/metrics"
	"github.com/scusemua/distributed-evaluation/common/utils"
	"github.com/scusemua/distributed-evaluation/master/dispatcher"
	"github.com/scusemua/distributed-evaluation/master/domain"
	"github.com/scusemua/distributed-evaluation/master/monitor"
)

const (
	// geneRange bounds the genes of the demo run's random individuals to [-geneRange, geneRange).
	geneRange = 5.12
)

var (
	options      = domain.MasterOptions{}
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

func finalize(fix bool, identity string) {
	if !fix {
		return
	}

	if err := recover(); err != nil {
		globalLogger.Error("%s panicked: %v", identity, err)
		os.Exit(1)
	}
}

func main() {
	defer finalize(true, "Main thread")

	ValidateOptions()
	options.ValidateMasterOptions()

	if options.NodeId == "" {
		options.NodeId = utils.GetEnv("NODE_ID", utils.Hostname("master"))
	}

	if options.PrettyPrintOptions {
		globalLogger.Info("Starting the master with the following options:\n%s\n", options.PrettyString(2))
	} else {
		globalLogger.Info("Starting the master.")
	}

	prometheusManager, err := metrics.NewPrometheusManager(options.PrometheusPort, options.NodeId)
	if err != nil {
		log.Fatalf("Failed to create Prometheus manager: %v", err)
	}

	m := monitor.NewMonitor(&options.MonitorOptions, individual.VectorFactory, prometheusManager.Metrics)
	prometheusManager.SetHealthReporter(m)

	if err = prometheusManager.Start(); err != nil {
		log.Fatalf("Failed to start Prometheus manager: %v", err)
	}

	listener := monitor.NewListener(m, &options.CommonOptions)
	if err = listener.Listen("tcp", fmt.Sprintf(":%d", options.Port)); err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	globalLogger.Info("Listening for workers at %v", listener.Addr())

	go func() {
		defer finalize(true, "Listener")
		if serveErr := listener.Serve(); serveErr != nil {
			globalLogger.Error(utils.RedStyle.Render("Error while accepting worker connections: %v"), serveErr)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start detecting stop signals
	go func() {
		<-sig
		globalLogger.Info("Shutting down...")
		cancel()
	}()

	runErr := run(ctx, dispatcher.NewDispatcher(m, &options.MonitorOptions), m)

	_ = listener.Close()
	m.Shutdown()
	if prometheusManager.IsRunning() {
		_ = prometheusManager.Stop()
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		globalLogger.Error(utils.RedStyle.Render("Demo run failed: %v"), runErr)
		os.Exit(1)
	}
}

// run is the demo run: a generational loop over random Vector individuals, or a single steady-state pass over
// one population if the Monitor retains evaluated individuals.
func run(ctx context.Context, d *dispatcher.Dispatcher, m *monitor.Monitor) error {
	if err := waitForWorkers(ctx, m, options.MinWorkers); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(options.Seed))

	if options.SteadyState {
		return runSteadyState(ctx, d, rng)
	}

	for generation := 0; generation < options.NumGenerations; generation++ {
		population := make([]*individual.Vector, options.PopulationSize)

		start := time.Now()
		for i := range population {
			population[i] = individual.NewRandomVector(rng, options.GenomeLength, -geneRange, geneRange)

			if err := d.Submit(ctx, population[i], 0); err != nil {
				return err
			}
		}

		if err := d.FinishEvaluating(ctx); err != nil {
			return err
		}

		best := math.Inf(-1)
		for _, v := range population {
			best = math.Max(best, v.Fitness().Value)
		}

		globalLogger.Info(utils.GreenStyle.Render("Generation %d: evaluated %d individuals in %v. Best fitness: %f."),
			generation, len(population), time.Since(start), best)
	}

	return nil
}

func runSteadyState(ctx context.Context, d *dispatcher.Dispatcher, rng *rand.Rand) error {
	for i := 0; i < options.PopulationSize; i++ {
		v := individual.NewRandomVector(rng, options.GenomeLength, -geneRange, geneRange)
		if err := d.Submit(ctx, v, 0); err != nil {
			return err
		}
	}

	if err := d.Flush(ctx); err != nil {
		return err
	}

	best := math.Inf(-1)
	for i := 0; i < options.PopulationSize; i++ {
		ind, err := d.NextEvaluatedIndividual(ctx)
		if err != nil {
			return err
		}

		best = math.Max(best, ind.Fitness().Value)
		globalLogger.Debug("Received evaluated individual %d: %v.", i, ind.Fitness())
	}

	globalLogger.Info(utils.GreenStyle.Render("Evaluated %d individuals. Best fitness: %f."), options.PopulationSize, best)
	return nil
}

func waitForWorkers(ctx context.Context, m *monitor.Monitor, minWorkers int) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for m.NumConnections() < minWorkers {
		globalLogger.Debug("Waiting for workers: %d/%d registered.", m.NumConnections(), minWorkers)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	globalLogger.Info("%d worker(s) registered. Starting the demo run.", m.NumConnections())
	return nil
}
