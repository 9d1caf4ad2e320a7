// Package intent turns a free-text question into the time window, topics and
// answer mode the rest of the pipeline works from.
package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
)

// Mode selects how strictly the gate admits answers.
type Mode string

const (
	ModeSummary Mode = "SUMMARY"
	ModeFact    Mode = "FACT"
)

const maxTopics = 5

// Intent is the structured reading of one question. It is not modified
// after Parse returns.
type Intent struct {
	Window *corpus.Window `json:"window,omitempty"`
	Topics []string       `json:"topics"`
	Mode   Mode           `json:"mode"`
}

// Understander parses questions. Years absent from the question resolve to
// DefaultYear.
type Understander struct {
	DefaultYear int
}

func New(defaultYear int) *Understander {
	return &Understander{DefaultYear: defaultYear}
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	yearRe       = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	quarterRe    = regexp.MustCompile(`\b(?:((?:19|20)\d{2})\s+)?q([1-4])\b(?:\s+(?:of\s+)?((?:19|20)\d{2})\b)?`)
	fractionRe   = regexp.MustCompile(`\b(early|mid|late)[\s-]+([a-z]+)\.?(?:\s+((?:19|20)\d{2})\b)?`)
	monthYearRe  = regexp.MustCompile(`\b([a-z]+)\.?,?\s+((?:19|20)\d{2})\b`)
	inMonthRe    = regexp.MustCompile(`\b(?:in|during|throughout)\s+([a-z]+)\b`)
)

var months = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// Parse never fails: anything it cannot read as a date leaves Window nil.
func (u *Understander) Parse(question string) Intent {
	q := Normalize(question)
	w := u.window(q)
	return Intent{
		Window: w,
		Topics: Topics(q),
		Mode:   classify(q, w),
	}
}

// Normalize lower-cases the question, folds typographic apostrophes and
// collapses whitespace.
func Normalize(question string) string {
	q := strings.ToLower(question)
	q = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'").Replace(q)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(q, " "))
}

func classify(q string, w *corpus.Window) Mode {
	switch {
	case w != nil:
		return ModeSummary
	case strings.HasPrefix(q, "what happened"):
		return ModeSummary
	case strings.HasPrefix(q, "what was i working on"):
		return ModeSummary
	case strings.Contains(q, "what was i doing"):
		return ModeSummary
	default:
		return ModeFact
	}
}

// window tries the patterns from most to least specific.
func (u *Understander) window(q string) *corpus.Window {
	if w := u.holiday(q); w != nil {
		return w
	}
	if w := u.fraction(q); w != nil {
		return w
	}
	if w := u.quarter(q); w != nil {
		return w
	}
	if w := u.month(q); w != nil {
		return w
	}
	return nil
}

func (u *Understander) year(q string) int {
	if m := yearRe.FindStringSubmatch(q); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	return u.DefaultYear
}

type holiday struct {
	names []string
	date  func(year int) time.Time
}

var holidays = []holiday{
	{names: []string{"christmas", "xmas"}, date: fixed(time.December, 25)},
	{names: []string{"new year's eve", "new years eve", "nye"}, date: fixed(time.December, 31)},
	{names: []string{"new year"}, date: fixed(time.January, 1)},
	{names: []string{"thanksgiving"}, date: thanksgiving},
	{names: []string{"halloween"}, date: fixed(time.October, 31)},
	{names: []string{"independence day", "july 4th", "fourth of july"}, date: fixed(time.July, 4)},
}

func fixed(m time.Month, d int) func(int) time.Time {
	return func(y int) time.Time { return day(y, m, d) }
}

// thanksgiving is the fourth Thursday of November.
func thanksgiving(y int) time.Time {
	first := day(y, time.November, 1)
	offset := (int(time.Thursday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+21)
}

func (u *Understander) holiday(q string) *corpus.Window {
	for _, h := range holidays {
		for _, name := range h.names {
			if !containsPhrase(q, name) {
				continue
			}
			center := h.date(u.year(q))
			return span(center.AddDate(0, 0, -1), center.AddDate(0, 0, 1))
		}
	}
	return nil
}

// containsPhrase matches phrase on word boundaries, also accepting a plural
// or possessive ending ("new years", "christmas's").
func containsPhrase(q, phrase string) bool {
	i := strings.Index(q, phrase)
	for i >= 0 {
		end := i + len(phrase)
		switch {
		case strings.HasPrefix(q[end:], "'s"):
			end += 2
		case strings.HasPrefix(q[end:], "s"):
			end++
		}
		before := i == 0 || !isWordByte(q[i-1])
		after := end == len(q) || !isWordByte(q[end])
		if before && after {
			return true
		}
		next := strings.Index(q[i+1:], phrase)
		if next < 0 {
			break
		}
		i += next + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

func (u *Understander) fraction(q string) *corpus.Window {
	for _, m := range fractionRe.FindAllStringSubmatch(q, -1) {
		mon, ok := monthNamed(m[2])
		if !ok {
			continue
		}
		y := u.year(q)
		if m[3] != "" {
			y, _ = strconv.Atoi(m[3])
		}
		last := lastDay(y, mon)
		switch m[1] {
		case "early":
			return span(day(y, mon, 1), day(y, mon, 10))
		case "mid":
			return span(day(y, mon, 11), day(y, mon, 20))
		default:
			return span(day(y, mon, 21), last)
		}
	}
	return nil
}

func (u *Understander) quarter(q string) *corpus.Window {
	m := quarterRe.FindStringSubmatch(q)
	if m == nil {
		return nil
	}
	n, _ := strconv.Atoi(m[2])
	y := u.year(q)
	switch {
	case m[1] != "":
		y, _ = strconv.Atoi(m[1])
	case m[3] != "":
		y, _ = strconv.Atoi(m[3])
	}
	first := time.Month((n-1)*3 + 1)
	return span(day(y, first, 1), lastDay(y, first+2))
}

func (u *Understander) month(q string) *corpus.Window {
	for _, m := range monthYearRe.FindAllStringSubmatch(q, -1) {
		if mon, ok := monthNamed(m[1]); ok {
			y, _ := strconv.Atoi(m[2])
			return span(day(y, mon, 1), lastDay(y, mon))
		}
	}
	for _, m := range inMonthRe.FindAllStringSubmatch(q, -1) {
		if mon, ok := monthNamed(m[1]); ok {
			y := u.year(q)
			return span(day(y, mon, 1), lastDay(y, mon))
		}
	}
	return nil
}

// monthNamed accepts full names and prefixes of at least three letters
// ("dec", "sept").
func monthNamed(word string) (time.Month, bool) {
	if len(word) < 3 {
		return 0, false
	}
	for i, name := range months {
		if strings.HasPrefix(name, word) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lastDay(y int, m time.Month) time.Time {
	return day(y, m+1, 1).AddDate(0, 0, -1)
}

// span covers whole days from first through last.
func span(first, last time.Time) *corpus.Window {
	return &corpus.Window{
		Start: first,
		End:   last.Add(24*time.Hour - time.Second),
	}
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "not": true, "and": true,
	"or": true, "but": true, "if": true, "then": true, "than": true,
	"so": true, "as": true, "at": true, "by": true, "for": true,
	"from": true, "in": true, "into": true, "of": true, "on": true,
	"to": true, "with": true, "about": true, "it": true, "its": true,
	"this": true, "that": true, "what": true, "which": true, "who": true,
	"how": true, "when": true, "where": true, "why": true, "you": true,
	"me": true, "i": true, "my": true, "your": true, "we": true,
	"they": true, "our": true, "us": true, "them": true, "tell": true,
	"around": true, "during": true, "early": true, "mid": true, "late": true,
	"happened": true, "working": true, "doing": true, "any": true, "there": true,
	"long": true, "much": true, "many": true, "take": true, "took": true,
}

// Topics returns up to five distinct keywords in order of first appearance.
func Topics(question string) []string {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	seen := make(map[string]bool)
	topics := []string{}
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len(w) <= 2 || stopwords[w] || seen[w] || isNumber(w) {
			continue
		}
		seen[w] = true
		topics = append(topics, w)
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
