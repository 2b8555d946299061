package render

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2).
			Width(100)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)

	ruleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// Console writes styled output to a terminal stream.
type Console struct {
	w io.Writer
}

// NewConsole creates a console over the given writer.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Panel prints a bordered panel with a bold title and body text.
func (c *Console) Panel(title, body string) {
	content := panelTitleStyle.Render(title) + "\n\n" + body
	fmt.Fprintln(c.w, panelStyle.Render(content))
}

// Rule prints a dim horizontal divider with an optional label.
func (c *Console) Rule(label string) {
	line := "────────────────────────────────────────"
	if label != "" {
		line = "── " + label + " " + line
	}
	fmt.Fprintln(c.w, ruleStyle.Render(line))
}

// Info prints a dim status line, used for stage progress.
func (c *Console) Info(format string, args ...interface{}) {
	fmt.Fprintln(c.w, dimStyle.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a highlighted warning line.
func (c *Console) Warn(format string, args ...interface{}) {
	fmt.Fprintln(c.w, warnStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints a highlighted error line.
func (c *Console) Error(format string, args ...interface{}) {
	fmt.Fprintln(c.w, errStyle.Render(fmt.Sprintf(format, args...)))
}

// Plain prints unstyled text.
func (c *Console) Plain(format string, args ...interface{}) {
	fmt.Fprintln(c.w, fmt.Sprintf(format, args...))
}
