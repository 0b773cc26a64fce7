package dashboard

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/ojparkinson/gpx-ingest/internal/processing"
)

// Summary collects committed segments and renders them as a table.
type Summary struct {
	mu       sync.Mutex
	segments []processing.SegmentResult
	files    int
	start    time.Time
	style    table.Style
}

func NewSummary() *Summary {
	return &Summary{
		start: time.Now(),
		style: table.StyleColoredBright,
	}
}

// SetStyle overrides the table style.
func (s *Summary) SetStyle(style table.Style) {
	s.mu.Lock()
	s.style = style
	s.mu.Unlock()
}

func (s *Summary) OnFileStart(filename string, totalPoints int) {}

func (s *Summary) OnFileComplete(filename string) {
	s.mu.Lock()
	s.files++
	s.mu.Unlock()
}

func (s *Summary) OnSegmentLoaded(result processing.SegmentResult) {
	s.mu.Lock()
	s.segments = append(s.segments, result)
	s.mu.Unlock()
}

func (s *Summary) TotalRows() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total uint32
	for _, seg := range s.segments {
		total += seg.Rows
	}
	return total
}

func (s *Summary) Render(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Track name", "Track", "Segment", "Rows", "Avg km/h", "Max km/h", "Took"})

	var totalRows uint32
	for _, seg := range s.segments {
		t.AppendRow(table.Row{
			seg.TrackName,
			seg.Track,
			seg.Segment,
			seg.Rows,
			fmt.Sprintf("%.2f", seg.AvgSpeed),
			fmt.Sprintf("%.2f", seg.MaxSpeed),
			seg.Duration.Round(time.Millisecond),
		})
		totalRows += seg.Rows
	}

	t.AppendSeparator()
	t.AppendFooter(table.Row{"Total", fmt.Sprintf("%d files", s.files), len(s.segments), totalRows, "-", "-", time.Since(s.start).Round(time.Millisecond)})

	t.SetStyle(s.style)
	t.Render()
}
