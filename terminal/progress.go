package terminal

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"

	"cellar/syncer"
)

// StateSource is polled for the current sync state
type StateSource interface {
	Snapshot() syncer.State
}

// ProgressIndicator is a one-line spinner showing sync progress
type ProgressIndicator struct {
	spinner *spinner.Spinner
	source  StateSource
	writer  io.Writer
	mu      sync.Mutex

	isRunning      bool
	cancel         context.CancelFunc
	done           chan struct{}
	updateInterval time.Duration

	lastInserted uint64
	lastSample   time.Time
	blocksPerSec float64
}

// NewProgressIndicator writes to stderr so log lines on stdout stay readable
func NewProgressIndicator(source StateSource) *ProgressIndicator {
	return newProgressIndicator(source, os.Stderr)
}

func newProgressIndicator(source StateSource, writer io.Writer) *ProgressIndicator {
	// CharSets[11] renders well over SSH
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(writer))
	s.HideCursor = true
	return &ProgressIndicator{
		spinner:        s,
		source:         source,
		writer:         writer,
		updateInterval: 500 * time.Millisecond,
	}
}

// Start begins the display and refreshes it until Stop or ctx ends
func (p *ProgressIndicator) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.isRunning = true
	p.sample(time.Now())
	p.spinner.Suffix = p.line()
	p.spinner.Start()

	go p.updateLoop(ctx)
	return nil
}

// Stop halts the display and clears the line
func (p *ProgressIndicator) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.cancel()
	done := p.done
	p.mu.Unlock()

	<-done
	p.spinner.Stop()
	fmt.Fprint(p.writer, "\r\033[K")
}

func (p *ProgressIndicator) updateLoop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.mu.Lock()
			p.sample(now)
			line := p.line()
			p.mu.Unlock()

			p.spinner.Lock()
			p.spinner.Suffix = line
			p.spinner.Unlock()
		}
	}
}

// sample updates the insert rate. Caller holds mu.
func (p *ProgressIndicator) sample(now time.Time) {
	inserted := p.source.Snapshot().BlocksInserted
	if !p.lastSample.IsZero() {
		if elapsed := now.Sub(p.lastSample).Seconds(); elapsed > 0 && inserted >= p.lastInserted {
			p.blocksPerSec = float64(inserted-p.lastInserted) / elapsed
		}
	}
	p.lastInserted = inserted
	p.lastSample = now
}

func (p *ProgressIndicator) line() string {
	return formatLine(p.source.Snapshot(), p.blocksPerSec)
}

func formatLine(state syncer.State, blocksPerSec float64) string {
	var b strings.Builder
	synced := float64(0)
	if state.Tip > 0 {
		synced = float64(state.NextHeight) / float64(state.Tip+1) * 100
	}
	if synced > 100 {
		synced = 100
	}
	fmt.Fprintf(&b, " cellar | Block: %d / %d | Sync: %.1f%% | Speed: %.1f b/s | Inserted: %d",
		state.NextHeight, state.Tip, synced, blocksPerSec, state.BlocksInserted)
	if state.Rollbacks > 0 {
		fmt.Fprintf(&b, " | Rollbacks: %d", state.Rollbacks)
	}
	if state.ConsecutiveFailures > 0 {
		fmt.Fprintf(&b, " | Retrying (%d)", state.ConsecutiveFailures)
	}
	return b.String()
}
