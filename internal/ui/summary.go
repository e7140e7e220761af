package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/Warpcall/internal/session"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CallSummary is what the end-of-call table reports.
type CallSummary struct {
	RoomID       string
	Duration     time.Duration
	Participants []string
	Messages     int
	Err          error
}

// SummaryFromState builds the summary of the call described by the final state.
func SummaryFromState(s session.State, ended time.Time) CallSummary {
	var d time.Duration
	if !s.StartedAt.IsZero() {
		d = ended.Sub(s.StartedAt)
	}
	return CallSummary{
		RoomID:       s.RoomID,
		Duration:     d,
		Participants: s.Seen,
		Messages:     len(s.Chat),
		Err:          s.Err,
	}
}

func CallSummaryView(title string, summary CallSummary) string {
	status := IconSuccess + " Ended"
	if summary.Err != nil {
		status = IconError + " " + summary.Err.Error()
	}

	met := "nobody"
	if len(summary.Participants) > 0 {
		met = strings.Join(summary.Participants, ", ")
	}

	t := prettytable.NewWriter()
	t.SetTitle(title)
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{"Status", status},
		{"Room", summary.RoomID},
		{"Duration", FormatDuration(summary.Duration)},
		{"Participants", met},
		{"Chat Messages", summary.Messages},
	})
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Options.SeparateRows = false
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 2, WidthMax: 48},
	})
	return t.Render()
}

func RenderCallSummary(title string, summary CallSummary) {
	fmt.Println()
	fmt.Println(CallSummaryView(title, summary))
}
