package domain

import (
	"log"
	"strings"

	"github.com/Scusemua/go-utils/config"
	"github.com/goccy/go-json"

	"github.com/scusemua/distributed-evaluation/common/configuration"
)

const (
	// DefaultMaxJobsPerConnection is the default number of jobs that may be queued on a single worker connection.
	DefaultMaxJobsPerConnection = 1

	// DefaultJobSize is the default number of individuals that the Dispatcher batches into a single Simple job.
	DefaultJobSize = 1

	DefaultNumGenerations = 10
	DefaultPopulationSize = 64
	DefaultGenomeLength   = 16

	// DefaultMinWorkers is the default number of workers that must register before the demo run begins.
	DefaultMinWorkers = 1
)

// MonitorOptions are the parameters of the master's Monitor and Dispatcher.
type MonitorOptions struct {
	// MaxJobsPerConnection is the admission-control ceiling: a connection only accepts a new job while it holds
	// fewer than MaxJobsPerConnection jobs.
	MaxJobsPerConnection int `name:"max_jobs_per_connection" json:"max_jobs_per_connection" yaml:"max_jobs_per_connection" description:"Maximum number of jobs queued on a single worker connection."`

	// JobSize is the number of individuals the Dispatcher accumulates before it builds and schedules a Simple job.
	JobSize int `name:"job_size" json:"job_size" yaml:"job_size" description:"Number of individuals batched into a single job."`

	// SteadyState, when true, retains every evaluated individual so that it can be retrieved one at a time with
	// Dispatcher.NextEvaluatedIndividual. Generational callers should leave this off, as nothing would drain the
	// retained individuals.
	SteadyState bool `name:"steady_state" json:"steady_state" yaml:"steady_state" description:"Retain evaluated individuals for one-at-a-time retrieval."`
}

// ValidateMonitorOptions replaces invalid values with their defaults.
func (o *MonitorOptions) ValidateMonitorOptions() {
	if o.MaxJobsPerConnection <= 0 {
		log.Printf("[WARNING] Invalid maximum number of jobs per connection specified: %d. Defaulting to %d.\n",
			o.MaxJobsPerConnection, DefaultMaxJobsPerConnection)
		o.MaxJobsPerConnection = DefaultMaxJobsPerConnection
	}

	if o.JobSize <= 0 {
		log.Printf("[WARNING] Invalid job size specified: %d. Defaulting to %d.\n", o.JobSize, DefaultJobSize)
		o.JobSize = DefaultJobSize
	}
}

// MasterOptions are the options of the master entrypoint.
type MasterOptions struct {
	config.LoggerOptions        `yaml:",inline" json:"logger_options"`
	configuration.CommonOptions `yaml:",inline" json:"common_options"`
	MonitorOptions              `yaml:",inline" json:"monitor_options"`

	NodeId string `name:"id" json:"id" yaml:"id" description:"Identifier of this master, used to label its metrics. Defaults to $NODE_ID, or to the hostname."`

	// The remaining options parameterize the bundled demo run: a generational loop over random Vector individuals.
	NumGenerations int   `name:"generations"     json:"generations"     yaml:"generations"     description:"Number of generations evaluated by the demo run."`
	PopulationSize int   `name:"population_size" json:"population_size" yaml:"population_size" description:"Number of individuals per generation."`
	GenomeLength   int   `name:"genome_length"   json:"genome_length"   yaml:"genome_length"   description:"Length of each individual's genome."`
	Seed           int64 `name:"seed"            json:"seed"            yaml:"seed"            description:"Seed of the demo run's random number generator."`
	MinWorkers     int   `name:"min_workers"     json:"min_workers"     yaml:"min_workers"     description:"Number of workers that must register before the demo run begins."`
}

// ValidateMasterOptions ensures that the values of the configuration parameters are usable, replacing invalid
// values with their defaults.
func (opts *MasterOptions) ValidateMasterOptions() {
	opts.CommonOptions.ValidateCommonOptions()
	opts.MonitorOptions.ValidateMonitorOptions()

	if opts.NumGenerations <= 0 {
		log.Printf("[WARNING] Invalid number of generations specified: %d. Defaulting to %d.\n",
			opts.NumGenerations, DefaultNumGenerations)
		opts.NumGenerations = DefaultNumGenerations
	}

	if opts.PopulationSize <= 0 {
		log.Printf("[WARNING] Invalid population size specified: %d. Defaulting to %d.\n",
			opts.PopulationSize, DefaultPopulationSize)
		opts.PopulationSize = DefaultPopulationSize
	}

	if opts.GenomeLength <= 0 {
		log.Printf("[WARNING] Invalid genome length specified: %d. Defaulting to %d.\n",
			opts.GenomeLength, DefaultGenomeLength)
		opts.GenomeLength = DefaultGenomeLength
	}

	if opts.MinWorkers <= 0 {
		log.Printf("[WARNING] Invalid minimum number of workers specified: %d. Defaulting to %d.\n",
			opts.MinWorkers, DefaultMinWorkers)
		opts.MinWorkers = DefaultMinWorkers
	}
}

func (opts *MasterOptions) String() string {
	m, err := json.Marshal(opts)
	if err != nil {
		panic(err)
	}

	return string(m)
}

// PrettyString is the same as String, except that PrettyString calls json.MarshalIndent instead of json.Marshal.
func (opts *MasterOptions) PrettyString(indentSize int) string {
	indentBuilder := strings.Builder{}
	for i := 0; i < indentSize; i++ {
		indentBuilder.WriteString(" ")
	}

	m, err := json.MarshalIndent(opts, "", indentBuilder.String())
	if err != nil {
		panic(err)
	}

	return string(m)
}
