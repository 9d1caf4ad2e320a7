// Package oracle defines the contracts for the embedding and generative
// services the pipeline consumes, and the strict JSON decoding every
// generative response goes through.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

var (
	// ErrUnavailable marks transport failures and timeouts.
	ErrUnavailable = errors.New("oracle unavailable")
	// ErrSchema marks output that does not match the requested JSON schema.
	ErrSchema = errors.New("oracle output does not match schema")
)

// Request is a single generative call. Schema is the JSON shape the caller
// will accept; it is appended to the prompt verbatim.
type Request struct {
	System    string
	Prompt    string
	Schema    string
	MaxTokens int
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(stage string, err error) error {
	return fmt.Errorf("%s: %w: %w", stage, ErrUnavailable, err)
}

// DecodeStrict decodes raw into v. The whole payload must be a single JSON
// value with no unknown fields and nothing around it.
func DecodeStrict(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing content after JSON value", ErrSchema)
	}
	return nil
}

// FullPrompt renders the user prompt with the schema instruction appended.
func (r Request) FullPrompt() string {
	if r.Schema == "" {
		return r.Prompt
	}
	var b bytes.Buffer
	b.WriteString(r.Prompt)
	b.WriteString("\n\nRespond with JSON matching exactly this schema:\n")
	b.WriteString(r.Schema)
	b.WriteString("\n\nReturn ONLY the JSON, no markdown fences or other text.")
	return b.String()
}

// TimedGenerator bounds every call with a timeout.
type TimedGenerator struct {
	next    Generator
	timeout time.Duration
}

func WithGenerateTimeout(g Generator, timeout time.Duration) *TimedGenerator {
	return &TimedGenerator{next: g, timeout: timeout}
}

func (t *TimedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	out, err := t.next.Generate(ctx, req)
	if err != nil {
		return "", classify(ctx, err)
	}
	return out, nil
}

// TimedEmbedder bounds every call with a timeout.
type TimedEmbedder struct {
	next    Embedder
	timeout time.Duration
}

func WithEmbedTimeout(e Embedder, timeout time.Duration) *TimedEmbedder {
	return &TimedEmbedder{next: e, timeout: timeout}
}

func (t *TimedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	v, err := t.next.Embed(ctx, text)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return v, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrSchema) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty,
// zero, or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
