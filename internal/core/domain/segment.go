package domain

// Window is a closed block range queried as one unit. It exists only for
// the duration of one fetch attempt.
type Window struct {
	Start int64
	End   int64
}

// Size returns the number of blocks the window spans.
func (w Window) Size() int64 {
	return w.End - w.Start + 1
}

// Segment records one fully drained window. Segments are appended in
// strictly increasing block order and never overlap.
type Segment struct {
	Start   int64 `json:"start"`
	End     int64 `json:"end"`
	Pages   int   `json:"pages"`
	Records int   `json:"records"`
}
