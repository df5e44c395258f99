package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mvp-joe/symseek/internal/symbol"
)

// Test Plan for CLIProgressReporter:
// - Rejected files are counted and listed even when quiet
// - OnInterrupted marks the scan and prints a notice unless quiet
// - A new scan resets the counters
// - An empty scan creates no progress bar

func TestCLIProgressReporter_Counters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewCLIProgressReporter(&buf, true)

	p.OnStartProcessingItems(3)
	p.OnItemStatus("a", symbol.Start)
	p.OnItemStatus("a", symbol.Finish)
	p.OnItemsRemaining(2)
	p.OnItemStatus("b", symbol.Start)
	p.OnItemStatus("b", symbol.Reject)
	p.OnItemsRemaining(1)
	p.OnInterrupted()

	assert.Equal(t, 1, p.Rejected())
	assert.Equal(t, []string{"b"}, p.RejectedPaths())
	assert.True(t, p.Interrupted())
	assert.Empty(t, buf.String())

	p.OnStartProcessingItems(1)
	assert.Equal(t, 0, p.Rejected())
	assert.Empty(t, p.RejectedPaths())
	assert.False(t, p.Interrupted())
}

func TestCLIProgressReporter_InterruptNotice(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewCLIProgressReporter(&buf, false)

	p.OnStartProcessingItems(0)
	assert.Nil(t, p.bar)

	p.OnStartProcessingItems(4)
	assert.NotNil(t, p.bar)
	p.OnItemsRemaining(3)
	p.OnInterrupted()

	assert.Nil(t, p.bar)
	assert.Contains(t, buf.String(), "Interrupted!")
}
