package domain

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/scusemua/distributed-evaluation/common/configuration"
	"github.com/scusemua/distributed-evaluation/common/utils"
)

const (
	DefaultMasterHost = "127.0.0.1"

	// WorkerNameEnv names the environment variable consulted when no worker name is configured.
	WorkerNameEnv = "WORKER_NAME"

	// EvaluatorSphere scores a Vector by the negated sum of its squared genes.
	EvaluatorSphere = "sphere"

	// EvaluatorCompetition scores the Vectors of a grouped job against one another.
	EvaluatorCompetition = "competition"

	DefaultEvaluator = EvaluatorSphere

	DefaultDialTimeoutSec             = 5
	DefaultReconnectInitialIntervalMs = 500
	DefaultReconnectMaxIntervalMs     = 10_000
)

// SlaveOptions are the options of the slave (worker) entrypoint.
type SlaveOptions struct {
	config.LoggerOptions        `yaml:",inline" json:"logger_options"`
	configuration.CommonOptions `yaml:",inline" json:"common_options"`

	MasterHost string `name:"master"    json:"master"    yaml:"master"    description:"Host of the master. The master's port is given by the 'port' option."`
	Name       string `name:"name"      json:"name"      yaml:"name"      description:"Name under which the worker registers with the master. Must be unique. Defaults to $WORKER_NAME, or to the hostname plus a random suffix."`
	Evaluator  string `name:"evaluator" json:"evaluator" yaml:"evaluator" description:"Fitness function of the worker: 'sphere' or 'competition'."`

	// Seed seeds the random number generator of evaluators that use one. The generator's state is returned to the
	// master with every result.
	Seed int64 `name:"seed" json:"seed" yaml:"seed" description:"Seed of the evaluator's random number generator."`

	DialTimeoutSec int `name:"dial_timeout_sec" json:"dial_timeout_sec" yaml:"dial_timeout_sec" description:"Timeout, in seconds, of a single attempt to connect to the master."`

	// ReconnectMaxTries is the maximum number of consecutive failed attempts to connect to the master before the
	// worker gives up. Zero means unlimited.
	ReconnectMaxTries          int `name:"reconnect_max_tries"           json:"reconnect_max_tries"           yaml:"reconnect_max_tries"           description:"Maximum number of consecutive connection attempts. Zero means unlimited."`
	ReconnectInitialIntervalMs int `name:"reconnect_initial_interval_ms" json:"reconnect_initial_interval_ms" yaml:"reconnect_initial_interval_ms" description:"Initial delay, in milliseconds, between connection attempts."`
	ReconnectMaxIntervalMs     int `name:"reconnect_max_interval_ms"     json:"reconnect_max_interval_ms"     yaml:"reconnect_max_interval_ms"     description:"Maximum delay, in milliseconds, between connection attempts."`
}

// Validate is called by config.ValidateOptions once the flags and the optional YAML file have been parsed.
func (o *SlaveOptions) Validate() error {
	o.ValidateSlaveOptions()
	return nil
}

// ValidateSlaveOptions replaces invalid values with their defaults.
func (o *SlaveOptions) ValidateSlaveOptions() {
	o.CommonOptions.ValidateCommonOptions()

	if o.MasterHost == "" {
		log.Printf("[WARNING] Master host is not set. Defaulting to \"%s\".\n", DefaultMasterHost)
		o.MasterHost = DefaultMasterHost
	}

	if o.Name == "" {
		o.Name = utils.GetEnv(WorkerNameEnv, fmt.Sprintf("%s-%s", utils.Hostname("worker"), uuid.NewString()[:8]))
		log.Printf("[WARNING] Worker name is not set. Defaulting to \"%s\".\n", o.Name)
	}

	switch o.Evaluator {
	case EvaluatorSphere, EvaluatorCompetition:
	default:
		log.Printf("[WARNING] Unknown evaluator specified: \"%s\". Defaulting to \"%s\".\n", o.Evaluator, DefaultEvaluator)
		o.Evaluator = DefaultEvaluator
	}

	if o.DialTimeoutSec <= 0 {
		log.Printf("[WARNING] Invalid dial timeout specified: %d. Defaulting to %d.\n", o.DialTimeoutSec, DefaultDialTimeoutSec)
		o.DialTimeoutSec = DefaultDialTimeoutSec
	}

	if o.ReconnectMaxTries < 0 {
		log.Printf("[WARNING] Invalid maximum number of connection attempts specified: %d. Defaulting to unlimited.\n",
			o.ReconnectMaxTries)
		o.ReconnectMaxTries = 0
	}

	if o.ReconnectInitialIntervalMs <= 0 {
		o.ReconnectInitialIntervalMs = DefaultReconnectInitialIntervalMs
	}

	if o.ReconnectMaxIntervalMs < o.ReconnectInitialIntervalMs {
		o.ReconnectMaxIntervalMs = max(DefaultReconnectMaxIntervalMs, o.ReconnectInitialIntervalMs)
	}
}

// MasterAddress returns the host:port address of the master.
func (o *SlaveOptions) MasterAddress() string {
	return fmt.Sprintf("%s:%d", o.MasterHost, o.Port)
}

func (o *SlaveOptions) DialTimeout() time.Duration {
	return time.Duration(o.DialTimeoutSec) * time.Second
}

func (o *SlaveOptions) ReconnectInitialInterval() time.Duration {
	return time.Duration(o.ReconnectInitialIntervalMs) * time.Millisecond
}

func (o *SlaveOptions) ReconnectMaxInterval() time.Duration {
	return time.Duration(o.ReconnectMaxIntervalMs) * time.Millisecond
}

// PrettyString is the same as String, except that PrettyString calls json.MarshalIndent instead of json.Marshal.
func (o *SlaveOptions) PrettyString(indentSize int) string {
	indentBuilder := strings.Builder{}
	for i := 0; i < indentSize; i++ {
		indentBuilder.WriteString(" ")
	}

	m, err := json.MarshalIndent(o, "", indentBuilder.String())
	if err != nil {
		panic(err)
	}

	return string(m)
}

func (o *SlaveOptions) String() string {
	m, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}

	return string(m)
}
