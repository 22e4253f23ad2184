package consent

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	dangerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	questionText = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

const divider = "----------------------------------------"

// RenderTerms writes the consent terms for wrapping the CLI with flag.
func RenderTerms(w io.Writer, flag string) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n\n", titleStyle.Render("🔥 CLAUDE-YOLO CONSENT REQUIRED 🔥"))
	fmt.Fprintln(&b, ruleStyle.Render(divider))
	fmt.Fprintln(&b, boldStyle.Render("What is claude-yolo?"))
	fmt.Fprintln(&b, "This wrapper runs a patched copy of the official Claude CLI that:")
	fmt.Fprintf(&b, "  1. %s by automatically adding the %s flag\n", dangerStyle.Render("BYPASSES safety checks"), flag)
	fmt.Fprintln(&b, "  2. Reports when a newer Claude CLI version is available")
	fmt.Fprintln(&b, "  3. Adds colorful YOLO-themed loading messages")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, warnStyle.Render("⚠️ IMPORTANT SECURITY WARNING ⚠️"))
	fmt.Fprintf(&b, "The %s flag was designed for use in containers\n", boldStyle.Render(flag))
	fmt.Fprintln(&b, "and bypasses important safety checks. This includes ignoring file access")
	fmt.Fprintln(&b, "permissions that protect your system and privacy.")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, boldStyle.Render("By using claude-yolo:"))
	fmt.Fprintln(&b, "  • You acknowledge these safety checks are being bypassed")
	fmt.Fprintln(&b, "  • You understand this may allow Claude CLI to access sensitive files")
	fmt.Fprintln(&b, "  • You accept full responsibility for any security implications")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, ruleStyle.Render(divider))
	fmt.Fprintln(&b)
	_, _ = io.WriteString(w, b.String())
}

func renderQuestion() string {
	return questionText.Render("Do you consent to using claude-yolo with these modifications? (yes/no): ")
}

func renderApproved(auto bool) string {
	if auto {
		return titleStyle.Render("🔥 YOLO MODE AUTO-APPROVED (unattended run) 🔥")
	}
	return titleStyle.Render("🔥 YOLO MODE APPROVED 🔥")
}

func renderDeclined() string {
	return ruleStyle.Render("Aborted. YOLO mode not activated.") +
		"\nIf you want the official Claude CLI with normal safety features, run:\nclaude"
}

// RenderUsing names the installation being wrapped.
func RenderUsing(w io.Writer, dir string) {
	fmt.Fprintln(w, ruleStyle.Render("Using Claude installation from: "+dir))
}

// RenderActivated is printed right before the patched CLI starts.
func RenderActivated(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("🔥 YOLO MODE ACTIVATED 🔥"))
}
