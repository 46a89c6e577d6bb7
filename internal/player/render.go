package player

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/victornm/keiko/internal/analytics"
	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
	"github.com/victornm/keiko/internal/quiz"
)

var (
	colorTitle   = lipgloss.Color("33")
	colorDim     = lipgloss.Color("242")
	colorCursor  = lipgloss.Color("212")
	colorCorrect = lipgloss.Color("42")
	colorWrong   = lipgloss.Color("196")
	colorWarn    = lipgloss.Color("214")
)

func (m Model) View() string {
	if m.attempt != nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			renderResult(*m.attempt, m.noColor),
			"",
			stylize("Press enter or q to leave.", m.noColor, colorDim),
		)
	}

	v := m.view
	parts := []string{
		renderHeader(v, m.noColor),
		"",
		renderQuestion(v),
		renderOptions(v, m.cursor, m.noColor),
	}

	if line := m.renderStatus(); line != "" {
		parts = append(parts, "", line)
	}
	if m.notice != nil {
		parts = append(parts, renderNotice(*m.notice, m.noColor))
	}

	parts = append(parts, "", m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderHeader(v quiz.View, noColor bool) string {
	line := fmt.Sprintf("%s / %s  question %d of %d  correct %d",
		v.CourseCode, v.Category, min(v.Index+1, v.Total), v.Total, v.CorrectCount)
	if v.Difficulty != "" {
		line += "  [" + string(v.Difficulty) + "]"
	}
	return stylize(line, noColor, colorTitle)
}

func renderQuestion(v quiz.View) string {
	if v.State == quiz.StateComplete {
		return "All questions answered. Press enter to confirm."
	}
	return lipgloss.NewStyle().Bold(true).Render(v.Question)
}

func renderOptions(v quiz.View, cursor int, noColor bool) string {
	if v.State == quiz.StateComplete {
		return ""
	}

	var b strings.Builder
	for i, o := range v.Options {
		prefix := "  "
		if i == cursor && v.State == quiz.StateUnanswered {
			prefix = "> "
		}

		line := prefix + o
		switch {
		case v.State == quiz.StateSubmitted && o == v.CorrectAnswer:
			line = stylize(line+"  ✓", noColor, colorCorrect)
		case v.State == quiz.StateSubmitted && o == v.Selected:
			line = stylize(line+"  ✗", noColor, colorWrong)
		case prefix == "> ":
			line = stylize(line, noColor, colorCursor)
		}

		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderStatus() string {
	switch {
	case m.busy:
		return m.spinner.View() + " working..."
	case m.err != nil:
		return stylize("Error: "+errorMessage(m.err), m.noColor, colorWrong)
	case m.view.Feedback != "" && m.view.State == quiz.StateSubmitted:
		color := colorWrong
		if m.view.Selected == m.view.CorrectAnswer {
			color = colorCorrect
		}
		return stylize(m.view.Feedback, m.noColor, color)
	case m.removed != "":
		return stylize(fmt.Sprintf("Hint: %q is not the answer.", m.removed), m.noColor, colorDim)
	}
	return ""
}

func renderNotice(n domain.Notice, noColor bool) string {
	color := colorDim
	switch n.Level {
	case domain.NoticeWarning:
		color = colorWarn
	case domain.NoticeError:
		color = colorWrong
	}
	return stylize("["+string(n.Level)+"] "+n.Message, noColor, color)
}

func renderResult(at domain.Attempt, noColor bool) string {
	acc := analytics.Accuracy(at.CorrectCount, at.CardCount)
	lines := []string{
		stylize("Quiz complete!", noColor, colorTitle),
		fmt.Sprintf("Correct answers: %d of %d (%s%%)", at.CorrectCount, at.CardCount, acc.StringFixed(2)),
		fmt.Sprintf("Hints used: %d", at.HintsUsed),
	}
	return strings.Join(lines, "\n")
}

// errorMessage prefers the message of an *errors.Error over its full chain.
func errorMessage(err error) string {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}
