package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	WakeTotal       *prometheus.CounterVec // labels: kind=job|heartbeat|duplicate
	SendTotal       *prometheus.CounterVec // labels: outcome=success|retry|terminal
	TransmitTotal   *prometheus.CounterVec // labels: mode=single|multipart
	EventPushTotal  *prometheus.CounterVec // labels: event, result=ok|error
	CompletionTotal *prometheus.CounterVec // labels: kind=sent|delivered, result
	InboundTotal    *prometheus.CounterVec // labels: kind=sms|missed_call, result=ok|dropped|error
	HeartbeatTotal  prometheus.Counter     // 心跳上报计数
	SegmentsGauge   prometheus.Histogram   // 每条消息分段数分布
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		WakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_wake_total",
			Help: "Wake signals handled by kind.",
		}, []string{"kind"}),
		SendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_send_total",
			Help: "Send orchestrations by outcome.",
		}, []string{"outcome"}),
		TransmitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_transmit_total",
			Help: "Radio transmit calls by mode.",
		}, []string{"mode"}),
		EventPushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_event_push_total",
			Help: "Events reported to the backend.",
		}, []string{"event", "result"}),
		CompletionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_completion_total",
			Help: "Radio completion signals consumed.",
		}, []string{"kind", "result"}),
		InboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_inbound_total",
			Help: "Inbound SMS / missed-call relays.",
		}, []string{"kind", "result"}),
		HeartbeatTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_heartbeat_total",
			Help: "Heartbeats reported to the backend.",
		}),
		SegmentsGauge: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_message_segments",
			Help:    "Segments per outbound message.",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		}),
	}
	reg.MustRegister(m.WakeTotal, m.SendTotal, m.TransmitTotal, m.EventPushTotal, m.CompletionTotal, m.InboundTotal, m.HeartbeatTotal, m.SegmentsGauge)
	return m
}
