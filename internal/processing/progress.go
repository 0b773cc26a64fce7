package processing

import "time"

// SegmentResult describes one committed segment.
type SegmentResult struct {
	TrackName string
	Track     uint32
	Segment   uint32
	Rows      uint32
	// Derived speed statistics in km/h, zero when the segment has none.
	AvgSpeed float64
	MaxSpeed float64
	Duration time.Duration
}

// ProgressCallback provides progress updates while a run loads files
type ProgressCallback interface {
	// OnFileStart is called when a file begins loading
	OnFileStart(filename string, totalPoints int)

	// OnSegmentLoaded is called after a segment's batch has been committed
	OnSegmentLoaded(result SegmentResult)

	// OnFileComplete is called when every segment of a file is committed
	OnFileComplete(filename string)
}

// NoOpProgressCallback is a default implementation that does nothing
type NoOpProgressCallback struct{}

func (n *NoOpProgressCallback) OnFileStart(filename string, totalPoints int) {}
func (n *NoOpProgressCallback) OnSegmentLoaded(result SegmentResult)         {}
func (n *NoOpProgressCallback) OnFileComplete(filename string)               {}

type multiProgress []ProgressCallback

// MultiProgress fans every update out to each callback in order.
func MultiProgress(callbacks ...ProgressCallback) ProgressCallback {
	return multiProgress(callbacks)
}

func (m multiProgress) OnFileStart(filename string, totalPoints int) {
	for _, cb := range m {
		cb.OnFileStart(filename, totalPoints)
	}
}

func (m multiProgress) OnSegmentLoaded(result SegmentResult) {
	for _, cb := range m {
		cb.OnSegmentLoaded(result)
	}
}

func (m multiProgress) OnFileComplete(filename string) {
	for _, cb := range m {
		cb.OnFileComplete(filename)
	}
}
