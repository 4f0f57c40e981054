// Package exporter выводит размеченные списки объектов: таблицей в терминал и в xlsx.
package exporter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"wialonblock/internal/domain"
	"wialonblock/internal/ports"
)

// DefaultNameWidth — ширина колонки с именем объекта по умолчанию.
const DefaultNameWidth = 32

// ConsoleExporter печатает объекты таблицей фиксированной ширины.
type ConsoleExporter struct {
	nameWidth int
	colorize  bool
}

var _ ports.Exporter = (*ConsoleExporter)(nil)

// NewConsoleExporter создает ConsoleExporter. colorize включает ANSI-цвета состояний.
func NewConsoleExporter(nameWidth int, colorize bool) *ConsoleExporter {
	if nameWidth <= 0 {
		nameWidth = DefaultNameWidth
	}
	return &ConsoleExporter{nameWidth: nameWidth, colorize: colorize}
}

// Export пишет таблицу "ID | Name | State" в w.
func (e *ConsoleExporter) Export(w io.Writer, units []domain.Unit) error {
	if len(units) == 0 {
		_, err := fmt.Fprintln(w, "No units found.")
		return err
	}

	idWidth := len("ID")
	for _, u := range units {
		if n := len(strconv.FormatInt(u.ID, 10)); n > idWidth {
			idWidth = n
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-*s | %s | %s\n", idWidth, "ID", pad("Name", e.nameWidth), "State")
	fmt.Fprintf(&sb, "%s-+-%s-+-%s\n", strings.Repeat("-", idWidth), strings.Repeat("-", e.nameWidth), strings.Repeat("-", len("unlocked")))
	for _, u := range units {
		name := runewidth.Truncate(strings.ReplaceAll(u.Name, "\n", " "), e.nameWidth, "…")
		fmt.Fprintf(&sb, "%*d | %s | %s\n", idWidth, u.ID, pad(name, e.nameWidth), e.state(u.LockState))
	}
	fmt.Fprintf(&sb, "Total: %d\n", len(units))

	_, err := io.WriteString(w, sb.String())
	return err
}

// StateLabel возвращает цветную подпись состояния.
func (e *ConsoleExporter) StateLabel(s domain.LockState) string {
	return e.state(s)
}

func (e *ConsoleExporter) state(s domain.LockState) string {
	label := s.String()
	if !e.colorize {
		return label
	}
	var c *color.Color
	switch s {
	case domain.LockLocked:
		c = color.New(color.FgRed, color.Bold)
	case domain.LockUnlocked:
		c = color.New(color.FgGreen)
	default:
		c = color.New(color.FgYellow)
	}
	c.EnableColor()
	return c.Sprint(label)
}

// pad дополняет строку пробелами до ширины с учетом широких символов.
func pad(s string, width int) string {
	if n := width - runewidth.StringWidth(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}
