package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// Gap is a question the corpus could not answer.
type Gap struct {
	AnswerID   string
	Question   string
	Mode       string
	Reason     string
	Periods    []string
	Candidates int
	Evidence   int
	AskedAt    time.Time
}

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostGap posts a refused question with its reason, then threads the
// retrieval detail under it. Returns the parent message timestamp.
func (p *Poster) PostGap(ctx context.Context, gap Gap) (string, error) {
	text := formatGapMessage(gap)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "Add notes covering this to the corpus and the twin will pick them up.",
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("posted knowledge gap to slack", "ts", ts, "answer_id", gap.AnswerID)

	if err := p.PostThread(ctx, ts, formatGapDetail(gap)); err != nil {
		p.logger.Warn("gap detail thread failed", "error", err, "ts", ts)
	}
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatGapMessage(gap Gap) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Unanswered question* (%s)\n", gap.Mode)
	fmt.Fprintf(&sb, "> %s\n", gap.Question)
	fmt.Fprintf(&sb, "*Reason:* %s", gap.Reason)
	return sb.String()
}

func formatGapDetail(gap Gap) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Answer ID: `%s`\n", gap.AnswerID)
	if len(gap.Periods) > 0 {
		fmt.Fprintf(&sb, "Periods searched: %s\n", strings.Join(gap.Periods, ", "))
	} else {
		sb.WriteString("Periods searched: _none_\n")
	}
	fmt.Fprintf(&sb, "Candidates scored: %d | Verified quotes: %d\n", gap.Candidates, gap.Evidence)
	if !gap.AskedAt.IsZero() {
		fmt.Fprintf(&sb, "Asked at: %s", gap.AskedAt.UTC().Format(time.RFC3339))
	}
	return strings.TrimRight(sb.String(), "\n")
}
