// Package metrics exposes a status snapshot in the Prometheus text format so
// it can be scraped through node_exporter's textfile collector.
package metrics

import (
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/loykin/devctl/internal/port"
	"github.com/loykin/devctl/internal/tracker"
)

// Collector owns a private registry; nothing is registered globally.
type Collector struct {
	reg            *prometheus.Registry
	portAvailable  *prometheus.GaugeVec
	processRunning *prometheus.GaugeVec
	processUptime  *prometheus.GaugeVec
	tracked        prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		portAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "devctl",
				Subsystem: "port",
				Name:      "available",
				Help:      "1 when the port can be bound, 0 when it is in use.",
			}, []string{"port", "process"},
		),
		processRunning: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "devctl",
				Subsystem: "process",
				Name:      "running",
				Help:      "1 when the tracked process answers a liveness probe.",
			}, []string{"pid", "service"},
		),
		processUptime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "devctl",
				Subsystem: "process",
				Name:      "uptime_seconds",
				Help:      "Seconds since the tracked process was started.",
			}, []string{"pid", "service"},
		),
		tracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "devctl",
				Name:      "tracked_processes",
				Help:      "Number of records in the tracking file.",
			},
		),
	}
	c.reg.MustRegister(c.portAvailable, c.processRunning, c.processUptime, c.tracked)
	return c
}

// Observe replaces the gauges with the given snapshot.
func (c *Collector) Observe(ports []port.Status, procs []tracker.Process, now time.Time) {
	c.portAvailable.Reset()
	c.processRunning.Reset()
	c.processUptime.Reset()
	for _, p := range ports {
		c.portAvailable.WithLabelValues(strconv.Itoa(p.Port), p.Process).Set(boolFloat(p.Available))
	}
	for _, p := range procs {
		pid := strconv.Itoa(p.PID)
		c.processRunning.WithLabelValues(pid, p.Service).Set(boolFloat(p.Running))
		if p.Running && !p.StartTime.IsZero() {
			c.processUptime.WithLabelValues(pid, p.Service).Set(now.Sub(p.StartTime).Seconds())
		}
	}
	c.tracked.Set(float64(len(procs)))
}

// WriteText encodes every gathered family in the text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	mfs, err := c.reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
