package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Printer writes styled status lines. With color disabled it writes the
// plain text.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

func (p *Printer) render(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

func (p *Printer) Title(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(TitleStyle, fmt.Sprintf(format, args...)))
}

func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.w, fmt.Sprintf(format, args...))
}

func (p *Printer) Detail(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(HelpStyle, "   "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, IconSuccess+" "+p.render(SuccessStyle, fmt.Sprintf(format, args...)))
}

func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.w, IconWarning+" "+p.render(WarningStyle, fmt.Sprintf(format, args...)))
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.w, IconError+" "+p.render(ErrorStyle, fmt.Sprintf(format, args...)))
}
