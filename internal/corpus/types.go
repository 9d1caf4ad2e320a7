package corpus

import (
	"fmt"
	"time"
)

// Chunk is an immutable unit of source text.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"` // zero when the source carries none
	Source    string    `json:"source"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
}

// IdentityID is the fixed identifier of the owner's profile chunk.
const IdentityID = "identity:profile"

// IsIdentity reports whether the chunk is the owner's profile.
func (c Chunk) IsIdentity() bool { return c.ID == IdentityID }

// Window is a closed interval [Start, End]. A zero bound is unbounded.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies inside the window. A zero t is never inside.
func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// Overlaps reports whether the two closed intervals share at least one instant.
func (w Window) Overlaps(o Window) bool {
	if !w.Start.IsZero() && !o.End.IsZero() && o.End.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !o.Start.IsZero() && o.Start.After(w.End) {
		return false
	}
	return true
}

// Expand widens both bounded sides by d.
func (w Window) Expand(d time.Duration) Window {
	out := w
	if !out.Start.IsZero() {
		out.Start = out.Start.Add(-d)
	}
	if !out.End.IsZero() {
		out.End = out.End.Add(d)
	}
	return out
}

func (w Window) String() string {
	f := func(t time.Time) string {
		if t.IsZero() {
			return "*"
		}
		return t.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("[%s, %s]", f(w.Start), f(w.End))
}

// Period is a coarse summary of a span of the corpus used to narrow retrieval.
type Period struct {
	ID        string    `json:"id"`
	Window    Window    `json:"window"`
	Summary   string    `json:"summary"`
	Embedding []float64 `json:"embedding,omitempty"`
	ChunkIDs  []string  `json:"chunk_ids"`
}
