package exporter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wialonblock/internal/domain"
)

func TestConsoleExporter_Export(t *testing.T) {
	units := []domain.Unit{
		{ID: 7, Name: "AA 1234 BB", LockState: domain.LockLocked},
		{ID: 12345, Name: "Excavator with a very long descriptive name", LockState: domain.LockUnlocked},
		{ID: 9, Name: "Broken\nname", LockState: domain.LockUnknown},
	}

	var buf bytes.Buffer
	require.NoError(t, NewConsoleExporter(16, false).Export(&buf, units))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "ID    | Name             | State", lines[0])
	assert.Equal(t, "    7 | AA 1234 BB       | locked", lines[2])
	assert.Equal(t, "12345 | Excavator with … | unlocked", lines[3])
	assert.Equal(t, "    9 | Broken name      | unknown", lines[4])
	assert.Equal(t, "Total: 3", lines[5])
}

func TestConsoleExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConsoleExporter(0, false).Export(&buf, nil))
	assert.Equal(t, "No units found.\n", buf.String())
}

func TestConsoleExporter_Colors(t *testing.T) {
	e := NewConsoleExporter(10, true)
	locked := e.StateLabel(domain.LockLocked)
	assert.Contains(t, locked, "\x1b[")
	assert.Contains(t, locked, "locked")

	assert.Equal(t, "unknown", NewConsoleExporter(10, false).StateLabel(domain.LockUnknown))
}
