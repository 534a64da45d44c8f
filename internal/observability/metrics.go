package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors, registered against
// the default registry so a single promhttp.Handler() serves them all.
type Metrics struct {
	FramesReceived   *prometheus.CounterVec
	FramesSent       *prometheus.CounterVec
	ToolExecutions   *prometheus.CounterVec
	ChannelMessages  *prometheus.CounterVec
	ConnectedClients prometheus.Gauge
}

// NewMetrics registers and returns the gateway's metric collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haya_gateway_frames_received_total",
			Help: "Frames received from gateway clients, by method.",
		}, []string{"method"}),
		FramesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haya_gateway_frames_sent_total",
			Help: "Frames sent to gateway clients, by type.",
		}, []string{"type"}),
		ToolExecutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haya_gateway_tool_executions_total",
			Help: "Tool executions, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ChannelMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haya_gateway_channel_messages_total",
			Help: "Inbound channel messages, by channel id.",
		}, []string{"channel"}),
		ConnectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "haya_gateway_connected_clients",
			Help: "Currently connected WebSocket clients.",
		}),
	}
}
