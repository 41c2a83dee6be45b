package terminal

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellar/syncer"
)

type counterSource struct {
	inserted atomic.Uint64
}

func (c *counterSource) Snapshot() syncer.State {
	n := c.inserted.Load()
	return syncer.State{NextHeight: n, Tip: 200, BlocksInserted: n}
}

func TestFormatLine(t *testing.T) {
	line := formatLine(syncer.State{NextHeight: 50, Tip: 99, BlocksInserted: 50}, 12.5)
	assert.Equal(t, " cellar | Block: 50 / 99 | Sync: 50.0% | Speed: 12.5 b/s | Inserted: 50", line)

	line = formatLine(syncer.State{NextHeight: 10, Tip: 9, Rollbacks: 2, ConsecutiveFailures: 3}, 0)
	assert.Contains(t, line, "Sync: 100.0%")
	assert.Contains(t, line, "Rollbacks: 2")
	assert.Contains(t, line, "Retrying (3)")

	assert.Contains(t, formatLine(syncer.State{}, 0), "Sync: 0.0%")
}

func TestSampleComputesRate(t *testing.T) {
	source := &counterSource{}
	p := newProgressIndicator(source, &bytes.Buffer{})

	start := time.Unix(1_700_000_000, 0)
	p.sample(start)
	source.inserted.Store(30)
	p.sample(start.Add(2 * time.Second))
	assert.InDelta(t, 15.0, p.blocksPerSec, 0.001)
	assert.Contains(t, p.line(), "Speed: 15.0 b/s")
}

func TestStartStop(t *testing.T) {
	source := &counterSource{}
	var out bytes.Buffer
	p := newProgressIndicator(source, &out)
	p.updateInterval = 10 * time.Millisecond

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))
	source.inserted.Store(5)
	time.Sleep(50 * time.Millisecond)
	p.Stop()
	p.Stop()

	assert.False(t, p.isRunning)
	assert.Contains(t, out.String(), "\033[K")
}
