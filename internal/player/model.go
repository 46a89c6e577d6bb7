// Package player is a terminal front end for a quiz session.
package player

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/quiz"
)

// Session is the part of *quiz.Session the player drives.
type Session interface {
	View() quiz.View
	Submit(ctx context.Context, selected string) (quiz.View, error)
	Hint(ctx context.Context) (removed string, v quiz.View, err error)
	Next(ctx context.Context) (quiz.View, error)
	Confirm(ctx context.Context) (domain.Attempt, error)
	Exit()
}

type Options struct {
	NoColor bool
	// Timeout bounds each session operation. Zero means 30s.
	Timeout time.Duration
}

// Model renders a session and maps key presses to session operations. Operations run as
// commands; keys are ignored while one is in flight.
type Model struct {
	session Session
	notices <-chan domain.Notice
	timeout time.Duration
	noColor bool

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	view    quiz.View
	cursor  int
	busy    bool
	err     error
	removed string
	notice  *domain.Notice
	attempt *domain.Attempt
}

func NewModel(s Session, notices <-chan domain.Notice, opts Options) Model {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return Model{
		session: s,
		notices: notices,
		timeout: timeout,
		noColor: opts.NoColor,
		keys:    defaultKeys(),
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		view:    s.View(),
	}
}

// Attempt returns the confirmed attempt, or nil if the quiz was left before confirming.
func (m Model) Attempt() *domain.Attempt {
	return m.attempt
}

func (m Model) Init() tea.Cmd {
	return waitForNotice(m.notices)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = typed.Width
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case viewMsg:
		m.busy = false
		m.err = typed.err
		m.removed = typed.removed
		m.setView(typed.view)
		return m, nil
	case confirmedMsg:
		m.busy = false
		m.err = typed.err
		if typed.err == nil {
			m.attempt = &typed.attempt
		}
		return m, nil
	case NoticeMsg:
		m.notice = &typed.Notice
		return m, waitForNotice(m.notices)
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		if m.attempt == nil {
			m.session.Exit()
		}
		return m, tea.Quit
	}

	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.view.Options)-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, m.keys.Hint):
		return m.run(m.hint)
	case key.Matches(msg, m.keys.Enter):
		if m.attempt != nil {
			return m, tea.Quit
		}
		return m.run(m.advance())
	}

	return m, nil
}

func (m Model) run(cmd tea.Cmd) (tea.Model, tea.Cmd) {
	if cmd == nil {
		return m, nil
	}
	m.busy = true
	m.err = nil
	return m, tea.Batch(cmd, m.spinner.Tick)
}

// advance picks the operation enter stands for in the current state.
func (m Model) advance() tea.Cmd {
	switch m.view.State {
	case quiz.StateUnanswered:
		var selected string
		if m.cursor < len(m.view.Options) {
			selected = m.view.Options[m.cursor]
		}
		return m.submit(selected)
	case quiz.StateSubmitted:
		return m.next
	case quiz.StateComplete:
		return m.confirm
	}
	return nil
}

func (m Model) submit(selected string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		v, err := m.session.Submit(ctx, selected)
		return viewMsg{view: v, err: err}
	}
}

func (m Model) hint() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	removed, v, err := m.session.Hint(ctx)
	return viewMsg{view: v, removed: removed, err: err}
}

func (m Model) next() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	v, err := m.session.Next(ctx)
	return viewMsg{view: v, err: err}
}

func (m Model) confirm() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	at, err := m.session.Confirm(ctx)
	return confirmedMsg{attempt: at, err: err}
}

// setView moves the cursor back to the top when the question changes and keeps it in range
// when a hint removed an option.
func (m *Model) setView(v quiz.View) {
	if v.Index != m.view.Index || v.State == quiz.StateUnanswered && m.view.State != quiz.StateUnanswered {
		m.cursor = 0
	}
	m.view = v
	if m.cursor >= len(v.Options) {
		m.cursor = max(len(v.Options)-1, 0)
	}
}

type viewMsg struct {
	view    quiz.View
	removed string
	err     error
}

type confirmedMsg struct {
	attempt domain.Attempt
	err     error
}

// NoticeMsg carries a notice raised by the session.
type NoticeMsg struct {
	Notice domain.Notice
}

func waitForNotice(notices <-chan domain.Notice) tea.Cmd {
	return func() tea.Msg {
		if notices == nil {
			return nil
		}
		n, ok := <-notices
		if !ok {
			return nil
		}
		return NoticeMsg{Notice: n}
	}
}
