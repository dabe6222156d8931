// Package timers accumulates wall clock time per named phase on a Prometheus
// registry.
package timers

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	namespace = "regionmg"
	label     = "timer"
)

// Monitor is safe for concurrent use. A nil *Monitor times nothing.
type Monitor struct {
	registry *prometheus.Registry
	seconds  *prometheus.CounterVec
	calls    *prometheus.CounterVec

	mu    sync.Mutex
	order map[string]int // First use of every timer
}

func New() (m *Monitor) {
	m = &Monitor{
		registry: prometheus.NewRegistry(),
		seconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_seconds_total",
			Help:      "Accumulated wall clock seconds per timer",
		}, []string{label}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_calls_total",
			Help:      "Number of times each timer was started",
		}, []string{label}),
		order: make(map[string]int),
	}
	m.registry.MustRegister(m.seconds, m.calls)
	return
}

func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// Start begins timing name and returns the function that stops it.
func (m *Monitor) Start(name string) (stop func()) {
	if m == nil {
		return func() {}
	}
	m.mu.Lock()
	if _, ok := m.order[name]; !ok {
		m.order[name] = len(m.order)
	}
	m.mu.Unlock()
	m.calls.WithLabelValues(name).Inc()
	t0 := time.Now()
	return func() {
		m.seconds.WithLabelValues(name).Add(time.Since(t0).Seconds())
	}
}

type Entry struct {
	Name    string
	Seconds float64
	Calls   int
}

// Summary reads the timers back from the registry in order of first use.
func (m *Monitor) Summary() (entries []Entry, err error) {
	if m == nil {
		return
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering timers: %w", err)
	}
	byName := make(map[string]*Entry)
	get := func(metric *dto.Metric) *Entry {
		var name string
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label {
				name = lp.GetValue()
			}
		}
		e, ok := byName[name]
		if !ok {
			e = &Entry{Name: name}
			byName[name] = e
		}
		return e
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch mf.GetName() {
			case namespace + "_timer_seconds_total":
				get(metric).Seconds = metric.GetCounter().GetValue()
			case namespace + "_timer_calls_total":
				get(metric).Calls = int(metric.GetCounter().GetValue())
			}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range byName {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return m.order[entries[i].Name] < m.order[entries[j].Name] })
	return
}

// Write prints the summary as a table.
func (m *Monitor) Write(w io.Writer) (err error) {
	entries, err := m.Summary()
	if err != nil {
		return
	}
	width := len("Timer")
	for _, e := range entries {
		width = max(width, len(e.Name))
	}
	if _, err = fmt.Fprintf(w, "%-*s %12s %8s\n", width, "Timer", "Seconds", "Calls"); err != nil {
		return
	}
	for _, e := range entries {
		if _, err = fmt.Fprintf(w, "%-*s %12.6f %8d\n", width, e.Name, e.Seconds, e.Calls); err != nil {
			return
		}
	}
	return
}
