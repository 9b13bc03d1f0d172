package worker_test

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"go.uber.org/mock/gomock"

	"github.com/scusemua/distributed-evaluation/common/configuration"
	"github.com/scusemua/distributed-evaluation/common/individual"
	"github.com/scusemua/distributed-evaluation/common/job"
	"github.com/scusemua/distributed-evaluation/master/dispatcher"
	masterdomain "github.com/scusemua/distributed-evaluation/master/domain"
	"github.com/scusemua/distributed-evaluation/master/monitor"
	"github.com/scusemua/distributed-evaluation/slave/domain"
	"github.com/scusemua/distributed-evaluation/slave/evaluator"
	"github.com/scusemua/distributed-evaluation/slave/worker"
	"github.com/scusemua/distributed-evaluation/slave/worker/mock_worker"
)

// groupStater is an evaluator that supports grouped jobs and reports a random state.
type groupStater struct {
	*mock_worker.MockEvaluator
	*mock_worker.MockGroupEvaluator
	*mock_worker.MockRandomStater
}

// runningWorker is a Worker whose Run method executes in the background.
type runningWorker struct {
	*worker.Worker

	cancel context.CancelFunc
	done   chan error
}

func startWorker(opts *domain.SlaveOptions, eval worker.Evaluator) *runningWorker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &runningWorker{
		Worker: worker.NewWorker(opts, eval, individual.VectorFactory),
		cancel: cancel,
		done:   make(chan error, 1),
	}

	go func() {
		w.done <- w.Run(ctx)
	}()

	return w
}

func (w *runningWorker) stop() {
	w.cancel()
	Eventually(w.done, time.Second*5).Should(Receive(BeNil()))
}

func slaveOptions(name string, port int) *domain.SlaveOptions {
	opts := &domain.SlaveOptions{
		CommonOptions: configuration.CommonOptions{
			Port:                 port,
			Compression:          true,
			KeepAliveIntervalSec: 1,
		},
		MasterHost:                 "127.0.0.1",
		Name:                       name,
		ReconnectInitialIntervalMs: 10,
		ReconnectMaxIntervalMs:     50,
	}
	opts.ValidateSlaveOptions()

	return opts
}

func waitForEvaluation(m *monitor.Monitor, jobs ...*job.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, j := range jobs {
		Expect(m.ScheduleJobForEvaluation(ctx, j)).To(Succeed())
	}

	Expect(m.WaitForAllSlavesToFinishEvaluating(ctx)).To(Succeed())
}

var _ = Describe("Worker Tests", func() {
	var (
		m        *monitor.Monitor
		listener *monitor.Listener
		port     int
		workers  []*runningWorker
	)

	launch := func(name string, eval worker.Evaluator) *runningWorker {
		w := startWorker(slaveOptions(name, port), eval)
		workers = append(workers, w)

		Eventually(func() bool { return m.HasConnection(name) }, time.Second*5, time.Millisecond*10).Should(BeTrue())
		return w
	}

	BeforeEach(func() {
		workers = nil

		m = monitor.NewMonitor(&masterdomain.MonitorOptions{MaxJobsPerConnection: 2, JobSize: 2}, individual.VectorFactory, nil)

		listener = monitor.NewListener(m, &configuration.CommonOptions{Compression: true, KeepAliveIntervalSec: 1, ConnectionWriteTimeoutSec: 2})
		Expect(listener.Listen("tcp", "127.0.0.1:0")).To(Succeed())
		port = listener.Addr().(*net.TCPAddr).Port

		go func() {
			defer GinkgoRecover()
			Expect(listener.Serve()).To(Succeed())
		}()
	})

	AfterEach(func() {
		for _, w := range workers {
			w.stop()
		}

		Expect(listener.Close()).To(Succeed())
		m.Shutdown()
	})

	Context("Evaluation", func() {
		It("Will evaluate simple jobs submitted through a dispatcher", func() {
			launch("sphere-1", evaluator.NewSphere())
			launch("sphere-2", evaluator.NewSphere())

			d := dispatcher.NewDispatcher(m, &masterdomain.MonitorOptions{JobSize: 2})

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			population := make([]*individual.Vector, 0, 9)
			for i := 0; i < 9; i++ {
				v := individual.NewVector([]float64{float64(i), 1})
				population = append(population, v)
				Expect(d.Submit(ctx, v, 0)).To(Succeed())
			}

			Expect(d.FinishEvaluating(ctx)).To(Succeed())

			for i, v := range population {
				Expect(v.Evaluated()).To(BeTrue())
				Expect(v.Fitness().Value).To(Equal(-float64(i*i + 1)))
			}

			Eventually(func() int64 {
				return workers[0].NumJobsEvaluated() + workers[1].NumJobsEvaluated()
			}, time.Second*5, time.Millisecond*10).Should(Equal(int64(5)))
		})

		It("Will only update the flagged members of a grouped job", func() {
			launch("competition", evaluator.NewCompetition(11))

			first := individual.NewVector([]float64{0})
			second := individual.NewVector([]float64{3})

			j, err := job.NewGroupedJob([]individual.Individual{first, second}, []int{0, 1}, []bool{true, false}, true)
			Expect(err).To(BeNil())
			waitForEvaluation(m, j)

			Expect(first.Evaluated()).To(BeTrue())
			Expect(first.Fitness()).To(Equal(individual.Fitness{Value: 1, Victories: 1, Trials: 1}))
			Expect(second.Evaluated()).To(BeFalse())

			Expect(m.Connections()[0].RandomState()).ToNot(BeEmpty())
		})

		It("Will evaluate the members of a grouped job independently without a group evaluator", func() {
			launch("sphere", evaluator.NewSphere())

			first := individual.NewVector([]float64{2})
			second := individual.NewVector([]float64{3})

			j, err := job.NewGroupedJob([]individual.Individual{first, second}, []int{0, 0}, []bool{true, true}, false)
			Expect(err).To(BeNil())
			waitForEvaluation(m, j)

			Expect(first.Fitness().Value).To(Equal(-4.0))
			Expect(second.Fitness().Value).To(Equal(-9.0))
			Expect(m.Connections()[0].RandomState()).To(BeEmpty())
		})
	})

	Context("Evaluators", func() {
		var mockCtrl *gomock.Controller

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
		})

		AfterEach(func() {
			for _, w := range workers {
				w.stop()
			}
			workers = nil

			mockCtrl.Finish()
		})

		It("Will pass each individual's subpopulation to the evaluator", func() {
			eval := mock_worker.NewMockEvaluator(mockCtrl)
			eval.EXPECT().Evaluate(gomock.Any(), gomock.Any(), 3).Return(individual.Fitness{Value: 7, Trials: 1}, nil).Times(1)
			eval.EXPECT().Evaluate(gomock.Any(), gomock.Any(), 4).Return(individual.Fitness{Value: 8, Trials: 1}, nil).Times(1)

			launch("mock", eval)

			first := individual.NewVector([]float64{1})
			second := individual.NewVector([]float64{1})

			j, err := job.NewSimpleJob([]individual.Individual{first, second}, []int{3, 4})
			Expect(err).To(BeNil())
			waitForEvaluation(m, j)

			Expect(first.Fitness().Value).To(Equal(7.0))
			Expect(second.Fitness().Value).To(Equal(8.0))
		})

		It("Will use the group evaluator and return its random state", func() {
			eval := &groupStater{
				MockEvaluator:      mock_worker.NewMockEvaluator(mockCtrl),
				MockGroupEvaluator: mock_worker.NewMockGroupEvaluator(mockCtrl),
				MockRandomStater:   mock_worker.NewMockRandomStater(mockCtrl),
			}

			eval.MockGroupEvaluator.EXPECT().EvaluateGroup(gomock.Any(), gomock.Len(2), []int{0, 0}, true).Return(
				[]individual.Fitness{{Value: 1, Victories: 1, Trials: 1}, {Value: 0, Victories: 0, Trials: 1}}, nil).Times(1)
			eval.MockRandomStater.EXPECT().RandomState().Return([]byte("state"), nil).Times(1)

			launch("group", eval)

			first := individual.NewVector([]float64{1})
			second := individual.NewVector([]float64{2})

			j, err := job.NewGroupedJob([]individual.Individual{first, second}, []int{0, 0}, []bool{true, true}, true)
			Expect(err).To(BeNil())
			waitForEvaluation(m, j)

			Expect(first.Fitness().Victories).To(Equal(1))
			Expect(second.Evaluated()).To(BeTrue())
			Expect(m.Connections()[0].RandomState()).To(Equal([]byte("state")))
		})

		It("Will stop when the evaluator fails", func() {
			eval := mock_worker.NewMockEvaluator(mockCtrl)
			eval.EXPECT().Evaluate(gomock.Any(), gomock.Any(), gomock.Any()).Return(individual.Fitness{}, errors.New("boom")).Times(1)

			w := startWorker(slaveOptions("failing", port), eval)
			Eventually(func() bool { return m.HasConnection("failing") }, time.Second*5, time.Millisecond*10).Should(BeTrue())

			j, err := job.NewSimpleJob([]individual.Individual{individual.NewVector([]float64{1})}, []int{0})
			Expect(err).To(BeNil())
			Expect(m.ScheduleJobForEvaluation(context.Background(), j)).To(Succeed())

			var runErr error
			Eventually(w.done, time.Second*5).Should(Receive(&runErr))
			Expect(errors.Is(runErr, worker.ErrEvaluationFailed)).To(BeTrue())

			Eventually(m.NumConnections, time.Second*5, time.Millisecond*10).Should(Equal(0))
			Expect(m.NumOutstandingJobs()).To(Equal(1))
		})
	})

	Context("Reconnection", func() {
		It("Will reconnect after the master drops its session", func() {
			w := launch("reconnecting", evaluator.NewSphere())
			Eventually(w.NumSessions, time.Second*5, time.Millisecond*10).Should(Equal(1))

			conn := m.Connections()[0]
			m.UnregisterConnection(conn)
			conn.InitiateShutdown()

			Eventually(w.NumSessions, time.Second*5, time.Millisecond*10).Should(Equal(2))
			Eventually(func() bool { return m.HasConnection("reconnecting") }, time.Second*5, time.Millisecond*10).Should(BeTrue())

			v := individual.NewVector([]float64{2})
			j, err := job.NewSimpleJob([]individual.Individual{v}, []int{0})
			Expect(err).To(BeNil())
			waitForEvaluation(m, j)

			Expect(v.Fitness().Value).To(Equal(-4.0))
		})

		It("Will keep retrying until the master becomes reachable", func() {
			probe, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).To(BeNil())
			latePort := probe.Addr().(*net.TCPAddr).Port
			Expect(probe.Close()).To(Succeed())

			w := startWorker(slaveOptions("late", latePort), evaluator.NewSphere())
			workers = append(workers, w)

			Consistently(w.NumSessions, time.Millisecond*200, time.Millisecond*20).Should(Equal(0))

			late := monitor.NewListener(m, &configuration.CommonOptions{})
			Expect(late.Listen("tcp", probe.Addr().String())).To(Succeed())
			defer late.Close()

			go func() {
				defer GinkgoRecover()
				Expect(late.Serve()).To(Succeed())
			}()

			Eventually(func() bool { return m.HasConnection("late") }, time.Second*5, time.Millisecond*10).Should(BeTrue())
			Eventually(w.NumSessions, time.Second*5, time.Millisecond*10).Should(Equal(1))
		})

		It("Will give up after the maximum number of attempts", func() {
			probe, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).To(BeNil())
			deadPort := probe.Addr().(*net.TCPAddr).Port
			Expect(probe.Close()).To(Succeed())

			opts := slaveOptions("doomed", deadPort)
			opts.ReconnectMaxTries = 3

			err = worker.NewWorker(opts, evaluator.NewSphere(), individual.VectorFactory).Run(context.Background())
			Expect(err).ToNot(BeNil())
			Expect(err.Error()).To(ContainSubstring("failed to connect to master"))
		})

		It("Will return nil when its context is cancelled while connecting", func() {
			probe, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).To(BeNil())
			deadPort := probe.Addr().(*net.TCPAddr).Port
			Expect(probe.Close()).To(Succeed())

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			Expect(worker.NewWorker(slaveOptions("cancelled", deadPort), evaluator.NewSphere(), individual.VectorFactory).Run(ctx)).To(Succeed())
		})
	})
})
