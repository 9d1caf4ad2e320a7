package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOf(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

func TestParse_Windows(t *testing.T) {
	u := New(2025)

	tests := []struct {
		question string
		start    time.Time
		end      time.Time
	}{
		{"What was I working on in Q4 2025?", date(2025, 10, 1), endOf(2025, 12, 31)},
		{"what shipped in q1?", date(2025, 1, 1), endOf(2025, 3, 31)},
		{"Anything from 2024 Q2", date(2024, 4, 1), endOf(2024, 6, 30)},
		{"What happened in late Dec?", date(2025, 12, 21), endOf(2025, 12, 31)},
		{"early february 2024 plans", date(2024, 2, 1), endOf(2024, 2, 10)},
		{"what did I fix mid-March", date(2025, 3, 11), endOf(2025, 3, 20)},
		{"What was I doing around Christmas?", date(2025, 12, 24), endOf(2025, 12, 26)},
		{"meetings around New Year 2026", date(2025, 12, 31), endOf(2026, 1, 2)},
		{"What was I doing around New Years?", date(2024, 12, 31), endOf(2025, 1, 2)},
		{"anything over the new years break?", date(2024, 12, 31), endOf(2025, 1, 2)},
		{"new year's day plans", date(2024, 12, 31), endOf(2025, 1, 2)},
		{"what about new years eve", date(2025, 12, 30), endOf(2026, 1, 1)},
		{"anything on thanksgiving", date(2025, 11, 26), endOf(2025, 11, 28)},
		{"What did I do in December 2025?", date(2025, 12, 1), endOf(2025, 12, 31)},
		{"bugs during october", date(2025, 10, 1), endOf(2025, 10, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got := u.Parse(tt.question)
			require.NotNil(t, got.Window)
			require.Equal(t, tt.start, got.Window.Start)
			require.Equal(t, tt.end, got.Window.End)
			require.Equal(t, ModeSummary, got.Mode)
		})
	}
}

func TestParse_NoWindow(t *testing.T) {
	u := New(2025)
	for _, q := range []string{
		"How long did cold start take?",
		"What is my favorite color?",
		"late decision on the schema",
		"was the midnight deploy rolled back",
		"may I see the release notes",
		"q5 numbers",
		"How long did cold start take in 2025?",
		"the newyear rollout",
	} {
		require.Nil(t, u.Parse(q).Window, q)
	}
}

func TestParse_Mode(t *testing.T) {
	u := New(2025)
	tests := []struct {
		question string
		want     Mode
	}{
		{"How long did cold start take?", ModeFact},
		{"What happened with the migration?", ModeSummary},
		{"  WHAT   happened  yesterday", ModeSummary},
		{"What was I working on?", ModeSummary},
		{"Tell me what was I doing last week", ModeSummary},
		{"So what happened?", ModeFact},
		{"What customer complaints did we receive?", ModeFact},
		{"How long did cold start take in 2025?", ModeFact},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, u.Parse(tt.question).Mode, tt.question)
	}
}

func TestParse_WindowAlwaysSummary(t *testing.T) {
	u := New(2025)
	got := u.Parse("What is the cold start time in Q3?")
	require.NotNil(t, got.Window)
	require.Equal(t, ModeSummary, got.Mode)
}

func TestTopics(t *testing.T) {
	require.Equal(t, []string{"cold", "start"}, Topics("How long did cold start take?"))
	require.Equal(t, []string{"customer", "complaints", "receive"}, Topics("What customer complaints did we receive?"))
	require.Equal(t, []string{"deploy", "rollback", "cold-start", "latency", "alerts"},
		Topics("deploy rollback cold-start latency alerts pager deploy"))
	require.Empty(t, Topics("What was I working on in Q4 2025?"))
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "what's up", Normalize("  What’s \n\t up "))
}

func TestThanksgiving(t *testing.T) {
	require.Equal(t, date(2025, 11, 27), thanksgiving(2025))
	require.Equal(t, date(2024, 11, 28), thanksgiving(2024))
}
