package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsCollectorsAreUsable(t *testing.T) {
	m := NewMetrics()

	m.FramesReceived.WithLabelValues("chat.send").Inc()
	m.FramesSent.WithLabelValues("response").Inc()
	m.ToolExecutions.WithLabelValues("web_search", "ok").Inc()
	m.ChannelMessages.WithLabelValues("discord").Inc()
	m.ConnectedClients.Set(3)

	if got := testutil.ToFloat64(m.FramesReceived.WithLabelValues("chat.send")); got != 1 {
		t.Errorf("FramesReceived = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConnectedClients); got != 3 {
		t.Errorf("ConnectedClients = %v, want 3", got)
	}
}
