package domain_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/scusemua/distributed-evaluation/common/configuration"
	"github.com/scusemua/distributed-evaluation/slave/domain"
)

var _ = Describe("Slave Options", func() {
	It("Will apply defaults to unset values", func() {
		opts := &domain.SlaveOptions{}
		Expect(opts.Validate()).To(Succeed())

		Expect(opts.Port).To(Equal(configuration.DefaultPort))
		Expect(opts.MasterHost).To(Equal(domain.DefaultMasterHost))
		Expect(opts.Evaluator).To(Equal(domain.DefaultEvaluator))
		Expect(opts.Name).ToNot(BeEmpty())
		Expect(opts.MasterAddress()).To(Equal("127.0.0.1:15000"))
		Expect(opts.DialTimeout()).To(Equal(domain.DefaultDialTimeoutSec * time.Second))
		Expect(opts.ReconnectInitialInterval()).To(Equal(domain.DefaultReconnectInitialIntervalMs * time.Millisecond))
		Expect(opts.ReconnectMaxInterval()).To(Equal(domain.DefaultReconnectMaxIntervalMs * time.Millisecond))
		Expect(opts.ReconnectMaxTries).To(Equal(0))

		cfg := opts.YamuxConfig()
		Expect(cfg.EnableKeepAlive).To(BeTrue())
		Expect(cfg.KeepAliveInterval).To(Equal(configuration.DefaultKeepAliveIntervalSec * time.Second))
	})

	It("Will generate distinct default names", func() {
		first := &domain.SlaveOptions{}
		first.ValidateSlaveOptions()

		second := &domain.SlaveOptions{}
		second.ValidateSlaveOptions()

		Expect(first.Name).ToNot(Equal(second.Name))
	})

	It("Will replace an unknown evaluator and a negative number of tries", func() {
		opts := &domain.SlaveOptions{Evaluator: "rastrigin", ReconnectMaxTries: -3}
		opts.ValidateSlaveOptions()

		Expect(opts.Evaluator).To(Equal(domain.EvaluatorSphere))
		Expect(opts.ReconnectMaxTries).To(Equal(0))
	})

	It("Will keep the maximum reconnect interval at least as large as the initial one", func() {
		opts := &domain.SlaveOptions{ReconnectInitialIntervalMs: 20_000, ReconnectMaxIntervalMs: 1_000}
		opts.ValidateSlaveOptions()

		Expect(opts.ReconnectInitialInterval()).To(Equal(20 * time.Second))
		Expect(opts.ReconnectMaxInterval()).To(Equal(20 * time.Second))
	})

	It("Will keep valid values", func() {
		opts := &domain.SlaveOptions{
			CommonOptions: configuration.CommonOptions{Port: 9000},
			MasterHost:    "master.local",
			Name:          "worker-7",
			Evaluator:     domain.EvaluatorCompetition,
			Seed:          42,
		}
		opts.ValidateSlaveOptions()

		Expect(opts.MasterAddress()).To(Equal("master.local:9000"))
		Expect(opts.Name).To(Equal("worker-7"))
		Expect(opts.Evaluator).To(Equal(domain.EvaluatorCompetition))
		Expect(opts.PrettyString(2)).To(ContainSubstring(`"name": "worker-7"`))
		Expect(opts.String()).To(ContainSubstring(`"seed":42`))
	})
})
