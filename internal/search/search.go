// Package search mirrors the corpus into Elasticsearch for keyword lookup.
// It is a debugging surface: nothing here feeds the answer pipeline.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
)

const (
	defaultSize = 10
	maxSize     = 100
	bulkBatch   = 500
)

type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// Document is the indexed form of a chunk.
type Document struct {
	ChunkID         string     `json:"chunk_id"`
	Text            string     `json:"text"`
	Source          string     `json:"source"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	StartLine       int        `json:"start_line"`
	EndLine         int        `json:"end_line"`
	SnapshotVersion string     `json:"snapshot_version"`
}

type Hit struct {
	Document
	Score float64 `json:"score"`
}

type Result struct {
	Total int64 `json:"total"`
	Hits  []Hit `json:"hits"`
}

func New(addr, index string, logger *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{es: es, index: index, log: logger}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

// IndexSnapshot writes every chunk of snap with bulk requests, then deletes
// documents left over from earlier snapshots.
func (c *Client) IndexSnapshot(ctx context.Context, snap *corpus.Snapshot) error {
	version := snap.Version.String()
	chunks := snap.Chunks()

	for start := 0; start < len(chunks); start += bulkBatch {
		end := min(start+bulkBatch, len(chunks))
		if err := c.bulk(ctx, chunks[start:end], version); err != nil {
			return err
		}
	}

	deleted, err := c.deleteStale(ctx, version)
	if err != nil {
		return err
	}
	c.log.Info("corpus indexed for search", "chunks", len(chunks), "stale_deleted", deleted, "version", version)
	return nil
}

func (c *Client) bulk(ctx context.Context, chunks []corpus.Chunk, version string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ch := range chunks {
		meta := map[string]any{"index": map[string]any{"_index": c.index, "_id": ch.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("encode bulk meta: %w", err)
		}
		if err := enc.Encode(toDocument(ch, version)); err != nil {
			return fmt.Errorf("encode bulk doc: %w", err)
		}
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk index failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if parsed.Errors {
		return fmt.Errorf("bulk index reported item errors")
	}
	return nil
}

func (c *Client) deleteStale(ctx context.Context, version string) (int64, error) {
	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must_not": []map[string]any{
					{"term": map[string]any{"snapshot_version": version}},
				},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}

// Search runs a multi_match over chunk text and source.
func (c *Client) Search(ctx context.Context, query string, size int) (*Result, error) {
	if size <= 0 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}

	payload, err := json.Marshal(map[string]any{
		"size":             size,
		"track_total_hits": true,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"text", "source^0.5"},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Score  float64  `json:"_score"`
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{Document: h.Source, Score: h.Score})
	}
	return &Result{Total: parsed.Hits.Total.Value, Hits: hits}, nil
}

func toDocument(ch corpus.Chunk, version string) Document {
	doc := Document{
		ChunkID:         ch.ID,
		Text:            ch.Text,
		Source:          ch.Source,
		StartLine:       ch.StartLine,
		EndLine:         ch.EndLine,
		SnapshotVersion: version,
	}
	if !ch.Timestamp.IsZero() {
		ts := ch.Timestamp.UTC()
		doc.Timestamp = &ts
	}
	return doc
}
