package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	protocol "luxmeter-gateway/internal/protocol/t10a"
)

// Metrics 照度计轮询相关指标
type Metrics struct {
	// 请求/应答交换次数，按命令与结果 (ok 或错误种类)
	Exchanges *prometheus.CounterVec
	// 交换耗时
	ExchangeDuration *prometheus.HistogramVec
	// 导致重连的故障，按错误种类
	Faults *prometheus.CounterVec
	// 重连次数
	Reconnects prometheus.Counter
	// 最近一次照度值 (lx)
	Illuminance *prometheus.GaugeVec
	// 无数据 (六个空格) 的测量次数
	AbsentReadings *prometheus.CounterVec
}

// NewMetrics 创建指标并注册到 reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "luxmeter_exchanges_total",
			Help: "请求/应答交换次数",
		}, []string{"command", "result"}),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "luxmeter_exchange_duration_seconds",
			Help:    "请求/应答交换耗时",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"command"}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "luxmeter_faults_total",
			Help: "导致重连的会话故障数",
		}, []string{"kind"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "luxmeter_reconnects_total",
			Help: "重连次数",
		}),
		Illuminance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "luxmeter_illuminance_lux",
			Help: "最近一次照度测量值",
		}, []string{"receptor_head"}),
		AbsentReadings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "luxmeter_absent_readings_total",
			Help: "仪表返回无数据的次数",
		}, []string{"receptor_head"}),
	}

	reg.MustRegister(
		m.Exchanges,
		m.ExchangeDuration,
		m.Faults,
		m.Reconnects,
		m.Illuminance,
		m.AbsentReadings,
	)
	return m
}

func (m *Metrics) ObserveExchange(command string, elapsed time.Duration, result string) {
	m.Exchanges.WithLabelValues(command, result).Inc()
	m.ExchangeDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveReading 更新照度值。无数据时保留上一次的值，只计数。
func (m *Metrics) ObserveReading(receptorHead int, r protocol.Reading) {
	head := strconv.Itoa(receptorHead)
	v, ok := r.Float64()
	if !ok {
		m.AbsentReadings.WithLabelValues(head).Inc()
		return
	}
	m.Illuminance.WithLabelValues(head).Set(v)
}

func (m *Metrics) ObserveFault(kind string) {
	m.Faults.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveReconnect() {
	m.Reconnects.Inc()
}

// NewRegistry 返回包含 Go 运行时与进程指标的注册表
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Server 提供 /metrics 与 /health
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(port int, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start 在后台启动 HTTP 服务
func (s *Server) Start() {
	s.logger.Info("Metrics server starting", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler 暴露路由，便于测试
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
