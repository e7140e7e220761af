package ui

import (
	"fmt"

	"github.com/BioHazard786/Warpcall/internal/room"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// ParticipantTableView renders the local participant followed by the remote
// ones in room order.
func ParticipantTableView(local room.Participant, remote []room.Participant) string {
	rows := make([][]string, 0, len(remote)+1)
	rows = append(rows, participantRow(local, true))
	for _, p := range remote {
		rows = append(rows, participantRow(p, false))
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Name", "Mic", "Cam", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func participantRow(p room.Participant, local bool) []string {
	name := TruncateString(p.DisplayName, 24)
	if local {
		name += " (you)"
	}
	return []string{
		name,
		onOff(p.HasAudio, IconMic, IconMuted),
		onOff(p.HasVideo, IconCamera, IconNoCamera),
		stateLabel(p.State),
	}
}

func stateLabel(s room.ConnectionState) string {
	switch s {
	case room.Connected:
		return SuccessStyle.Render(s.String())
	case room.Disconnected:
		return ErrorStyle.Render(s.String())
	default:
		return WarningStyle.Render(s.String())
	}
}

type RoomInfo struct {
	RoomID   string
	RoomName string
	RoomLink string
}

func (r RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Ready: %s\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess, BoldStyle.Render(r.RoomName),
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconLink, MutedStyle.Render(r.RoomLink),
	)

	return SuccessBoxStyle.Render(content)
}

func RenderRoomInfo(info RoomInfo) {
	fmt.Println(info.View())
}
