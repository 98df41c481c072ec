package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	boldStyle    = lipgloss.NewStyle().Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

func (o *Output) styled(style lipgloss.Style, text string) string {
	if !o.IsTTY() {
		return text
	}
	return style.Render(text)
}

// Success prints a checkmarked line.
func (o *Output) Success(format string, args ...any) {
	fmt.Fprintln(o.Writer, o.styled(successStyle, "✓ "+fmt.Sprintf(format, args...)))
}

// Error prints a cross-marked line.
func (o *Output) Error(format string, args ...any) {
	fmt.Fprintln(o.Writer, o.styled(errorStyle, "✗ "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning line.
func (o *Output) Warning(format string, args ...any) {
	fmt.Fprintln(o.Writer, o.styled(warningStyle, "⚠ "+fmt.Sprintf(format, args...)))
}

// Info prints an informational line.
func (o *Output) Info(format string, args ...any) {
	fmt.Fprintln(o.Writer, o.styled(infoStyle, fmt.Sprintf(format, args...)))
}

// Dim prints secondary text.
func (o *Output) Dim(format string, args ...any) {
	fmt.Fprintln(o.Writer, o.styled(dimStyle, fmt.Sprintf(format, args...)))
}

// Plainln prints an unstyled line.
func (o *Output) Plainln(format string, args ...any) {
	fmt.Fprintln(o.Writer, fmt.Sprintf(format, args...))
}

// Header prints a bold title with a separator rule.
func (o *Output) Header(title string) {
	fmt.Fprintln(o.Writer, o.styled(boldStyle, title))
	fmt.Fprintln(o.Writer, o.styled(dimStyle, strings.Repeat("─", len(title))))
}

// Panel prints content inside a bordered box with a title, or as an indented
// block in plain mode.
func (o *Output) Panel(title, content string) {
	if !o.IsTTY() {
		fmt.Fprintf(o.Writer, "-- %s --\n", title)
		for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
			fmt.Fprintln(o.Writer, "  "+line)
		}
		return
	}
	body := o.styled(boldStyle, title) + "\n" + content
	fmt.Fprintln(o.Writer, panelStyle.Render(body))
}

// SQL prints a rendered statement, dimmed so it reads as preview not action.
func (o *Output) SQL(stmt string) {
	fmt.Fprintln(o.Writer, o.styled(dimStyle, "  "+stmt+";"))
}

// StatusLabel colors a migration status word for the status table.
func (o *Output) StatusLabel(status string) string {
	switch status {
	case "applied":
		return o.styled(successStyle, status)
	case "pending":
		return o.styled(warningStyle, status)
	case "missing", "modified":
		return o.styled(errorStyle, status)
	default:
		return status
	}
}

// Table prints rows with columns padded to the widest cell.
func (o *Output) Table(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
			}
		}
		fmt.Fprintln(o.Writer, b.String())
	}
}
