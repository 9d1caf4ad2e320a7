package corpus

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const maxDocumentChunkChars = 1000

var (
	isoStamp   = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})[T ](\d{2}:\d{2})`)
	monthStamp = regexp.MustCompile(`([A-Za-z]+)\s+(\d{1,2}),\s*(\d{4})(?:\s+(\d{1,2}:\d{2}))?`)
)

// ParseTimestamp extracts the first recognised timestamp from a line.
// Supported: "2025-10-14 09:30", "2025-10-14T09:30", "Oct 14, 2025 09:30",
// "October 14, 2025" (midnight when the time is absent). All times are UTC.
func ParseTimestamp(line string) (time.Time, bool) {
	if m := isoStamp.FindStringSubmatch(line); m != nil {
		if t, err := time.Parse("2006-01-02 15:04", m[1]+" "+m[2]); err == nil {
			return t, true
		}
	}
	if m := monthStamp.FindStringSubmatch(line); m != nil {
		clock := m[4]
		if clock == "" {
			clock = "00:00"
		}
		value := fmt.Sprintf("%s %s, %s %s", m[1], m[2], m[3], clock)
		for _, layout := range []string{"January 2, 2006 15:04", "Jan 2, 2006 15:04"} {
			if t, err := time.Parse(layout, value); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// ParseChat splits a chat export into one chunk per message. A message starts
// at a line carrying a timestamp and runs until the next such line.
func ParseChat(text, stem, source string) []Chunk {
	var (
		chunks  []Chunk
		current strings.Builder
		ts      time.Time
		start   int
	)

	flush := func(end int) {
		body := strings.TrimSpace(current.String())
		if body != "" {
			chunks = append(chunks, Chunk{
				ID:        fmt.Sprintf("%s:msg:%d", stem, len(chunks)),
				Text:      body,
				Timestamp: ts,
				Source:    source,
				StartLine: start,
				EndLine:   end,
			})
		}
		current.Reset()
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lineNum := i + 1
		if t, ok := ParseTimestamp(line); ok {
			flush(lineNum - 1)
			ts = t
			start = lineNum
			current.WriteString(line)
			continue
		}
		if current.Len() == 0 {
			if strings.TrimSpace(line) == "" {
				continue
			}
			ts = time.Time{}
			start = lineNum
		} else {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	flush(len(lines))

	return chunks
}

// ParseDocument groups paragraphs into chunks of roughly maxDocumentChunkChars.
// Paragraphs are never split.
func ParseDocument(text, stem, source string) []Chunk {
	var (
		chunks  []Chunk
		current string
		start   = 1
		line    = 1
	)

	emit := func(end int) {
		body := strings.TrimSpace(current)
		if body == "" {
			return
		}
		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("%s:chunk:%d", stem, len(chunks)),
			Text:      body,
			Source:    source,
			StartLine: start,
			EndLine:   end,
		})
	}

	for _, para := range strings.Split(text, "\n\n") {
		height := strings.Count(para, "\n") + 2
		if strings.TrimSpace(para) == "" {
			line += height
			continue
		}
		if current != "" && len(current)+len(para) > maxDocumentChunkChars {
			emit(line - 1)
			current = para
			start = line
		} else if current == "" {
			current = para
			start = line
		} else {
			current += "\n\n" + para
		}
		line += height
	}
	emit(line - 1)

	return chunks
}

// ParseIdentity keeps the profile whole.
func ParseIdentity(text, source string) []Chunk {
	body := strings.TrimSpace(text)
	if body == "" {
		return nil
	}
	return []Chunk{{
		ID:        IdentityID,
		Text:      body,
		Source:    source,
		StartLine: 1,
		EndLine:   strings.Count(text, "\n") + 1,
	}}
}
