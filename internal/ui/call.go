package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/Warpcall/internal/chat"
	"github.com/BioHazard786/Warpcall/internal/session"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const chatHistoryLines = 12

// CallController is the part of the session coordinator the call screen drives.
type CallController interface {
	ToggleAudio() (bool, error)
	ToggleVideo() (bool, error)
	SendChat(text string) error
	LeaveCall() error
	Updates() <-chan session.State
	Snapshot() session.State
	Done() <-chan struct{}
}

type stateMsg session.State

type callEndedMsg struct{}

// CallModel is the Bubble Tea model of an ongoing call.
type CallModel struct {
	ctrl    CallController
	state   session.State
	input   textinput.Model
	spinner spinner.Model

	notice    string
	noticeErr bool
	// wasJoined is set once the session reached Joined, so a later Joining
	// phase means the signaling channel is being re-established.
	wasJoined bool
	now       func() time.Time

	width    int
	quitting bool
}

func NewCallModel(ctrl CallController) *CallModel {
	in := textinput.New()
	in.Placeholder = "Type a message and press enter"
	in.CharLimit = 500
	in.Prompt = IconChat + " "
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		ctrl:    ctrl,
		state:   ctrl.Snapshot(),
		input:   in,
		spinner: s,
		width:   80,
		now:     time.Now,
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForState(m.ctrl),
	)
}

// waitForState blocks until the coordinator publishes or stops.
func waitForState(ctrl CallController) tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-ctrl.Updates():
			return stateMsg(s)
		case <-ctrl.Done():
			return callEndedMsg{}
		}
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		m.state = session.State(msg)
		if m.state.Phase == session.PhaseJoined {
			m.wasJoined = true
		}
		if m.state.Phase == session.PhaseLeft {
			m.quitting = true
			return m, tea.Quit
		}
		return m, waitForState(m.ctrl)

	case callEndedMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *CallModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		if err := m.ctrl.LeaveCall(); err != nil {
			m.setNotice(err.Error(), true)
		}
		m.quitting = true
		return m, tea.Quit

	case "f2":
		on, err := m.ctrl.ToggleAudio()
		m.toggled("Microphone", on, err)
		return m, nil

	case "f3":
		on, err := m.ctrl.ToggleVideo()
		m.toggled("Camera", on, err)
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if err := m.ctrl.SendChat(text); err != nil {
			m.setNotice(err.Error(), true)
			return m, nil
		}
		m.input.Reset()
		m.notice = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *CallModel) toggled(device string, on bool, err error) {
	if err != nil {
		m.setNotice(err.Error(), true)
		return
	}
	if on {
		m.setNotice(device+" on", false)
	} else {
		m.setNotice(device+" off", false)
	}
}

func (m *CallModel) setNotice(msg string, isErr bool) {
	m.notice = msg
	m.noticeErr = isErr
}

// State returns the last state the screen rendered.
func (m *CallModel) State() session.State {
	return m.state
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	room := m.state.RoomID
	if room == "" {
		room = "-"
	}
	header := fmt.Sprintf("%s Warpcall  %s %s", IconCall, IconRoom, room)
	if !m.state.StartedAt.IsZero() {
		header += fmt.Sprintf("  %s %s", IconTime, FormatDuration(m.now().Sub(m.state.StartedAt)))
	}
	b.WriteString(HeaderStyle.Render(header))
	b.WriteString("\n")

	switch {
	case m.state.Phase == session.PhaseJoining && m.wasJoined:
		b.WriteString(WarningStyle.Render(fmt.Sprintf("%s Signaling lost, reconnecting...", IconWaiting)))
		b.WriteString("\n")
	case m.state.Phase == session.PhaseJoining, m.state.Phase == session.PhaseIdle:
		b.WriteString(fmt.Sprintf("%s Connecting to room...\n", m.spinner.View()))
	default:
		b.WriteString(MutedStyle.Render(fmt.Sprintf("%s %d in call", IconPeer, m.state.Total)))
		b.WriteString("\n")
	}

	b.WriteString(ParticipantTableView(m.state.Local, m.state.Participants))
	b.WriteString("\n")

	b.WriteString(PanelStyle.Width(max(m.width-4, 20)).Render(m.chatView()))
	b.WriteString("\n")

	if m.notice != "" {
		style := MutedStyle
		if m.noticeErr {
			style = ErrorStyle
		}
		b.WriteString(style.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("enter send • f2 mic • f3 camera • esc leave"))

	return ContainerStyle.Render(b.String())
}

func (m *CallModel) chatView() string {
	entries := m.state.Chat
	if len(entries) == 0 {
		return MutedStyle.Render("No messages yet")
	}
	if len(entries) > chatHistoryLines {
		entries = entries[len(entries)-chatHistoryLines:]
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, chatLine(e))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func chatLine(e chat.Entry) string {
	sender := RemoteSenderStyle.Render(e.Sender)
	if e.Origin == chat.Local {
		sender = LocalSenderStyle.Render(e.Sender)
	}
	return fmt.Sprintf("%s %s %s",
		TimestampStyle.Render(e.SentAt.Local().Format("15:04")),
		sender,
		e.Body,
	)
}

// RunCall shows the call screen until the user leaves or the session ends,
// and returns the final session state.
func RunCall(ctrl CallController) (session.State, error) {
	p := tea.NewProgram(NewCallModel(ctrl), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		_ = ctrl.LeaveCall()
		return ctrl.Snapshot(), err
	}
	return ctrl.Snapshot(), nil
}
