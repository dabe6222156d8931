package timers

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor(t *testing.T) {
	m := New()
	for i := 0; i < 3; i++ {
		stop := m.Start("vCycle: 1 - pre-smoother")
		time.Sleep(time.Millisecond)
		stop()
	}
	m.Start("createRegionHierarchy: SmootherSetup")()

	assert.Equal(t, 3., testutil.ToFloat64(m.calls.WithLabelValues("vCycle: 1 - pre-smoother")))

	entries, err := m.Summary()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "vCycle: 1 - pre-smoother", entries[0].Name)
	assert.Equal(t, 3, entries[0].Calls)
	assert.GreaterOrEqual(t, entries[0].Seconds, 0.003)
	assert.Equal(t, 1, entries[1].Calls)

	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "vCycle: 1 - pre-smoother"))
}

func TestNilMonitor(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() { m.Start("anything")() })
	entries, err := m.Summary()
	assert.NoError(t, err)
	assert.Empty(t, entries)
}
