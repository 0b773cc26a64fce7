package dashboard

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/ojparkinson/gpx-ingest/internal/processing"
)

// Progress shows one tracker per file, advanced by committed rows.
type Progress struct {
	pw       progress.Writer
	mu       sync.Mutex
	trackers map[string]*progress.Tracker
}

func NewProgress(w io.Writer, expectedFiles int) *Progress {
	pw := progress.NewWriter()
	pw.SetOutputWriter(w)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(25)
	pw.SetMessageLength(30)
	pw.SetNumTrackersExpected(expectedFiles)
	pw.SetStyle(progress.StyleDefault)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Colors = progress.StyleColorsExample
	pw.Style().Options.PercentFormat = "%4.1f%%"
	pw.Style().Visibility.ETA = false
	pw.Style().Visibility.Value = true

	return &Progress{
		pw:       pw,
		trackers: make(map[string]*progress.Tracker),
	}
}

func (p *Progress) Start() {
	go p.pw.Render()

	// Stop is a no-op until the render loop is running.
	deadline := time.Now().Add(time.Second)
	for !p.pw.IsRenderInProgress() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func (p *Progress) OnFileStart(filename string, totalPoints int) {
	tracker := &progress.Tracker{
		Message: fmt.Sprintf("%-30s", filepath.Base(filename)),
		Total:   int64(totalPoints),
		Units:   progress.UnitsDefault,
	}

	p.mu.Lock()
	p.trackers[filename] = tracker
	p.mu.Unlock()

	p.pw.AppendTracker(tracker)
}

// OnSegmentLoaded advances the tracker of the file being loaded.
func (p *Progress) OnSegmentLoaded(result processing.SegmentResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, tracker := range p.trackers {
		if !tracker.IsDone() {
			tracker.Increment(int64(result.Rows))
		}
	}
}

func (p *Progress) OnFileComplete(filename string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tracker, ok := p.trackers[filename]; ok {
		tracker.MarkAsDone()
	}
}

// Stop marks unfinished trackers as errored and waits for the final render.
func (p *Progress) Stop() {
	p.mu.Lock()
	for _, tracker := range p.trackers {
		if !tracker.IsDone() {
			tracker.MarkAsErrored()
		}
	}
	p.mu.Unlock()

	p.pw.Stop()

	timeout := time.After(2 * time.Second)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return
		case <-ticker.C:
			if !p.pw.IsRenderInProgress() {
				return
			}
		}
	}
}

// Done reports the number of files whose trackers completed.
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, tracker := range p.trackers {
		if tracker.IsDone() && !tracker.IsErrored() {
			n++
		}
	}
	return n
}
