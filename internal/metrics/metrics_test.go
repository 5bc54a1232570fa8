package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/loykin/devctl/internal/port"
	"github.com/loykin/devctl/internal/tracker"
)

func TestWriteTextIncludesSnapshot(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	c := New()
	c.Observe(
		[]port.Status{{Port: 3000, Process: "node"}, {Port: 3333, Available: true}},
		[]tracker.Process{
			{Record: tracker.Record{PID: 10, Service: "web", StartTime: now.Add(-90 * time.Second)}, Running: true},
			{Record: tracker.Record{PID: 11, Service: "studio"}},
		},
		now,
	)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.tracked))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.portAvailable.WithLabelValues("3000", "node")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.processRunning.WithLabelValues("10", "web")))

	var buf bytes.Buffer
	if err := c.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	cases := []struct{ series, value string }{
		{`devctl_port_available{port="3000",process="node"}`, "0"},
		{`devctl_port_available{port="3333"`, "1"},
		{`devctl_process_running{pid="10",service="web"}`, "1"},
		{`devctl_process_running{pid="11",service="studio"}`, "0"},
		{`devctl_process_uptime_seconds{pid="10",service="web"}`, "90"},
		{`devctl_tracked_processes`, "2"},
	}
	for _, c := range cases {
		got, ok := sample(out, c.series)
		assert.True(t, ok, "series %s missing in:\n%s", c.series, out)
		assert.Equal(t, c.value, got, c.series)
	}
	assert.NotContains(t, out, `uptime_seconds{pid="11"`, "stopped process must not report uptime")
}

func TestObserveResetsPreviousSnapshot(t *testing.T) {
	c := New()
	c.Observe([]port.Status{{Port: 3000}}, nil, time.Now())
	c.Observe([]port.Status{{Port: 4000, Available: true}}, nil, time.Now())
	var buf bytes.Buffer
	if err := c.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	assert.NotContains(t, buf.String(), `port="3000"`, "stale series kept")
	assert.Equal(t, 1, testutil.CollectAndCount(c.portAvailable))
}

// sample returns the value of the first non-comment line starting with prefix.
func sample(out, prefix string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "#") || !strings.HasPrefix(line, prefix) {
			continue
		}
		fields := strings.Fields(line)
		return fields[len(fields)-1], true
	}
	return "", false
}
