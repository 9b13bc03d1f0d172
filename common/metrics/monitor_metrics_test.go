package metrics_test

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/scusemua/distributed-evaluation/common/metrics"
)

type fixedHealth int

func (h fixedHealth) NumConnections() int {
	return int(h)
}

var _ = Describe("Monitor Metrics Tests", func() {
	It("Will ignore calls on nil metrics", func() {
		var m *metrics.MonitorMetrics
		Expect(func() {
			m.JobScheduled("w", 1)
			m.JobCompleted("w", 0, 3, time.Millisecond)
			m.JobRescheduled()
			m.JobDiscarded()
			m.ConnectionRegistered()
			m.ConnectionUnregistered("w", true)
		}).ToNot(Panic())
	})

	It("Will record job and connection events", func() {
		m := metrics.NewMonitorMetrics("test")

		m.ConnectionRegistered()
		m.ConnectionRegistered()
		m.JobScheduled("w1", 1)
		m.JobScheduled("w1", 2)
		m.JobCompleted("w1", 1, 5, 10*time.Millisecond)
		m.ConnectionUnregistered("w2", true)

		Expect(testutil.ToFloat64(m.JobsScheduled)).To(Equal(2.0))
		Expect(testutil.ToFloat64(m.JobsCompleted)).To(Equal(1.0))
		Expect(testutil.ToFloat64(m.IndividualsEvaluated)).To(Equal(5.0))
		Expect(testutil.ToFloat64(m.RegisteredConnections)).To(Equal(1.0))
		Expect(testutil.ToFloat64(m.ConnectionFailures)).To(Equal(1.0))
		Expect(testutil.ToFloat64(m.QueueDepthGaugeVec.WithLabelValues("w1"))).To(Equal(1.0))
	})

	It("Will serve metrics and health over HTTP", func() {
		manager, err := metrics.NewPrometheusManager(0, "test-node")
		Expect(err).To(BeNil())
		manager.SetHealthReporter(fixedHealth(3))

		Expect(manager.Start()).To(Succeed())
		defer func() {
			Expect(manager.Stop()).To(Succeed())
		}()
		Expect(manager.Start()).To(MatchError(metrics.ErrPrometheusManagerAlreadyRunning))

		manager.Metrics.JobScheduled("w1", 1)

		base := fmt.Sprintf("http://127.0.0.1:%d", manager.Addr().(*net.TCPAddr).Port)

		Eventually(func() string {
			resp, err := http.Get(base + "/metrics")
			if err != nil {
				return ""
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return string(body)
		}, 5*time.Second, 50*time.Millisecond).Should(ContainSubstring("distributed_evaluation_jobs_scheduled_total"))

		resp, err := http.Get(base + "/healthz")
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		Expect(string(body)).To(ContainSubstring(`"connections":3`))
	})
})
