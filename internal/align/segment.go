package align

// Span is a run of consecutive indexes [Start, End] during which the
// detector condition held. Open spans reached the end of the series.
type Span struct {
	Start int
	End   int
	Open  bool
}

type scanState int

const (
	scanning scanState = iota
	inEvent
)

// Segment walks the series once from index warmup onwards. An event opens
// at the first index where inside reports true and closes at the first
// later index where it reports false. At most one span is open at a time,
// so returned spans are ordered and never overlap.
func Segment(n int, warmup int, inside func(i int) bool) []Span {
	if warmup < 0 {
		warmup = 0
	}
	var spans []Span
	state := scanning
	start := 0
	for i := warmup; i < n; i++ {
		hit := inside(i)
		switch state {
		case scanning:
			if hit {
				state = inEvent
				start = i
			}
		case inEvent:
			if !hit {
				spans = append(spans, Span{Start: start, End: i - 1})
				state = scanning
			}
		}
	}
	if state == inEvent {
		spans = append(spans, Span{Start: start, End: n - 1, Open: true})
	}
	return spans
}
