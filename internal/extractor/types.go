package extractor

import "time"

// MaxItems is the most quotes one extraction may return.
const MaxItems = 6

// Minimum quote lengths, in runes after whitespace normalization.
const (
	MinQuoteSummary = 5
	MinQuoteFact    = 8
)

// Item is a verbatim quote that has been checked against its chunk.
// Items that fail the check are never constructed.
type Item struct {
	Quote     string    `json:"quote"`
	ChunkID   string    `json:"chunk_id"`
	Verified  bool      `json:"verified"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// candidate is one element of the oracle's reply. Pointers distinguish a
// missing field from an empty one.
type candidate struct {
	Quote   *string `json:"quote"`
	ChunkID *string `json:"chunkId"`
}
