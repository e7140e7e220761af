package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/BioHazard786/Warpcall/internal/chat"
	"github.com/BioHazard786/Warpcall/internal/session"
	"github.com/stretchr/testify/require"
)

func TestSummaryFromState(t *testing.T) {
	// Given
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	s := session.State{
		RoomID:    "calm-fox-kite",
		StartedAt: start,
		Seen:      []string{"Alice", "Bob"},
		Chat:      []chat.Entry{{Sender: "Alice", Body: "hi"}, {Sender: "Bob", Body: "yo"}},
	}

	// When
	summary := SummaryFromState(s, start.Add(95*time.Second))

	// Then
	require.Equal(t, "calm-fox-kite", summary.RoomID)
	require.Equal(t, 95*time.Second, summary.Duration)
	require.Equal(t, 2, summary.Messages)
	require.Equal(t, []string{"Alice", "Bob"}, summary.Participants)
}

func TestSummaryFromState_NeverJoined(t *testing.T) {
	// When
	summary := SummaryFromState(session.State{}, time.Now())

	// Then
	require.Zero(t, summary.Duration)
}

func TestCallSummaryView(t *testing.T) {
	// Given
	summary := CallSummary{
		RoomID:       "calm-fox-kite",
		Duration:     95 * time.Second,
		Participants: []string{"Alice", "Bob"},
		Messages:     4,
	}

	// When
	view := CallSummaryView("Call Summary", summary)

	// Then
	require.Contains(t, view, "Call Summary")
	require.Contains(t, view, "calm-fox-kite")
	require.Contains(t, view, "1m 35s")
	require.Contains(t, view, "Alice, Bob")
	require.Contains(t, view, "Ended")
}

func TestCallSummaryView_Error(t *testing.T) {
	// When
	view := CallSummaryView("Call Summary", CallSummary{Err: errors.New("signaling lost")})

	// Then
	require.Contains(t, view, "signaling lost")
	require.Contains(t, view, "nobody")
}
