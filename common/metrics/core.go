package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scusemua/distributed-evaluation/common/utils"
)

var (
	ErrPrometheusManagerAlreadyRunning = errors.New("PrometheusManager is already running")
	ErrPrometheusManagerNotRunning     = errors.New("PrometheusManager is not running")
)

// HealthReporter is queried by the "/healthz" endpoint.
type HealthReporter interface {
	// NumConnections returns the number of currently-registered worker connections.
	NumConnections() int
}

// PrometheusManager registers the master's metrics with a dedicated Prometheus registry and serves them via HTTP.
type PrometheusManager struct {
	log logger.Logger

	registry          *prometheus.Registry
	prometheusHandler http.Handler
	engine            *gin.Engine
	httpServer        *http.Server
	listener          net.Listener

	// Metrics is the set of metrics recorded by the master's Monitor.
	Metrics *MonitorMetrics

	health HealthReporter

	nodeId string
	port   int
	mu     sync.Mutex

	// serving indicates whether the manager has been started and is serving requests.
	serving bool
}

// NewPrometheusManager creates a new PrometheusManager and returns a pointer to it.
//
// If port is 0, an ephemeral port is chosen when the manager is started. If port is negative, metrics are still
// recorded, but no HTTP server is started.
func NewPrometheusManager(port int, nodeId string) (*PrometheusManager, error) {
	registry := prometheus.NewRegistry()

	manager := &PrometheusManager{
		port:              port,
		nodeId:            nodeId,
		registry:          registry,
		prometheusHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Metrics:           NewMonitorMetrics(nodeId),
	}
	config.InitLogger(&manager.log, manager)

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	if err := manager.Metrics.Register(registry); err != nil {
		return nil, err
	}

	return manager, nil
}

// SetHealthReporter sets the HealthReporter consulted by the "/healthz" endpoint.
func (m *PrometheusManager) SetHealthReporter(reporter HealthReporter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.health = reporter
}

// IsRunning returns true if the PrometheusManager has been started and is serving metrics.
func (m *PrometheusManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.serving
}

// Addr returns the address of the HTTP server, or nil if the server is not running.
func (m *PrometheusManager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listener == nil {
		return nil
	}

	return m.listener.Addr()
}

// Start begins serving the metrics via an HTTP endpoint.
func (m *PrometheusManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.serving {
		m.log.Warn("PrometheusManager for node %s is already running.", m.nodeId)
		return ErrPrometheusManagerAlreadyRunning
	}

	if m.port < 0 {
		m.log.Debug("Prometheus port is set to %d. Not serving HTTP server.", m.port)
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", m.port))
	if err != nil {
		return err
	}

	m.listener = listener
	m.serving = true
	m.initializeHttpServer()

	return nil
}

// Stop instructs the PrometheusManager to shut down its HTTP server.
func (m *PrometheusManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.serving {
		return ErrPrometheusManagerNotRunning
	}

	m.serving = false
	if err := m.httpServer.Shutdown(context.Background()); err != nil {
		m.log.Error("Failed to cleanly shutdown the HTTP server: %v", err)
		return err
	}

	m.listener = nil
	return nil
}

// HandleRequest handles Prometheus HTTP requests (when Prometheus is scraping for metrics).
func (m *PrometheusManager) HandleRequest(c *gin.Context) {
	m.prometheusHandler.ServeHTTP(c.Writer, c.Request)
}

// HandleHealthRequest reports whether the master is up and how many workers are connected.
func (m *PrometheusManager) HandleHealthRequest(c *gin.Context) {
	m.mu.Lock()
	reporter := m.health
	m.mu.Unlock()

	numConnections := 0
	if reporter != nil {
		numConnections = reporter.NumConnections()
	}

	c.JSON(http.StatusOK, gin.H{
		"node_id":     m.nodeId,
		"connections": numConnections,
	})
}

func (m *PrometheusManager) initializeHttpServer() {
	gin.SetMode(gin.ReleaseMode)
	m.engine = gin.New()
	m.engine.Use(gin.Recovery())

	m.engine.GET("/metrics", m.HandleRequest)
	m.engine.GET("/healthz", m.HandleHealthRequest)

	m.httpServer = &http.Server{
		Handler: m.engine,
	}

	listener := m.listener
	go func() {
		m.log.Debug("Serving Prometheus metrics at %s", listener.Addr())
		if err := m.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error(utils.RedStyle.Render("HTTP server failed to serve on '%s'. Error: %v"), listener.Addr(), err)
		}
	}()
}
