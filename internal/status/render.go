package status

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/loykin/devctl/internal/metrics"
	"github.com/loykin/devctl/internal/tracker"
)

// RenderJSON writes the snapshot as indented JSON.
func RenderJSON(w io.Writer, s Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// RenderPrometheus writes the snapshot in the Prometheus text format.
func RenderPrometheus(w io.Writer, s Snapshot) error {
	c := metrics.New()
	c.Observe(s.Ports, s.Processes, s.GeneratedAt)
	return c.WriteText(w)
}

type styles struct {
	title lipgloss.Style
	head  lipgloss.Style
	ok    lipgloss.Style
	bad   lipgloss.Style
	dim   lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{title: plain, head: plain, ok: plain, bad: plain, dim: plain}
	}
	return styles{
		title: lipgloss.NewStyle().Bold(true).Underline(true),
		head:  lipgloss.NewStyle().Bold(true),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		bad:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// RenderText writes the human-readable view. color enables ANSI styling.
func RenderText(w io.Writer, s Snapshot, color bool) error {
	st := newStyles(color)
	var b strings.Builder

	env := s.Environment
	b.WriteString(st.title.Render("Environment") + "\n")
	rows := [][]string{
		{"project", orUnset(env.ProjectID)},
		{"dataset", orUnset(env.Dataset)},
		{"log level", env.LogLevel},
		{"ci", strconv.FormatBool(env.CI)},
		{"node", orUnset(env.NodeVersion)},
		{"read token", yesNo(env.HasToken)},
	}
	writeTable(&b, st, nil, rows)

	b.WriteString("\n" + st.title.Render("Tracked processes") + "\n")
	writeProcesses(&b, st, s.Processes, s.GeneratedAt)

	b.WriteString("\n" + st.title.Render("Ports") + "\n")
	rows = nil
	for _, p := range s.Ports {
		state := st.ok.Render("free")
		if !p.Available {
			state = st.bad.Render("in use")
		}
		rows = append(rows, []string{strconv.Itoa(p.Port), state, orDash(p.Process)})
	}
	writeTable(&b, st, []string{"PORT", "STATE", "PROCESS"}, rows)

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderProcesses writes only the tracked process table, as "devctl list"
// shows it.
func RenderProcesses(w io.Writer, procs []tracker.Process, now time.Time, color bool) error {
	var b strings.Builder
	writeProcesses(&b, newStyles(color), procs, now)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeProcesses(b *strings.Builder, st styles, procs []tracker.Process, now time.Time) {
	if len(procs) == 0 {
		b.WriteString("  " + st.dim.Render("none") + "\n")
		return
	}
	rows := make([][]string, 0, len(procs))
	for _, p := range procs {
		state := st.bad.Render("stopped")
		if p.Running {
			state = st.ok.Render("running")
		}
		rows = append(rows, []string{
			strconv.Itoa(p.PID),
			orDash(p.Service),
			state,
			joinInts(p.Ports),
			since(now, p.StartTime),
			p.Command,
		})
	}
	writeTable(b, st, []string{"PID", "SERVICE", "STATE", "PORTS", "UPTIME", "COMMAND"}, rows)
}

// writeTable pads cells using their rendered width so ANSI codes do not skew
// alignment.
func writeTable(b *strings.Builder, st styles, header []string, rows [][]string) {
	all := rows
	if header != nil {
		all = append([][]string{header}, rows...)
	}
	var widths []int
	for _, r := range all {
		for i, c := range r {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if w := lipgloss.Width(c); w > widths[i] {
				widths[i] = w
			}
		}
	}
	line := func(r []string, style *lipgloss.Style) {
		b.WriteString("  ")
		for i, c := range r {
			if style != nil {
				c = style.Render(c)
			}
			b.WriteString(c)
			if i < len(r)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(c)+2))
			}
		}
		b.WriteString("\n")
	}
	if header != nil {
		line(header, &st.head)
	}
	for _, r := range rows {
		line(r, nil)
	}
}

func joinInts(xs []int) string {
	parts := make([]string, 0, len(xs))
	for _, x := range xs {
		parts = append(parts, strconv.Itoa(x))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

func since(now, start time.Time) string {
	if start.IsZero() {
		return "-"
	}
	d := now.Sub(start).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
