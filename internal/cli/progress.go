package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/symseek/internal/symbol"
)

// CLIProgressReporter implements seeker.ProgressReporter with a progress bar.
// It also keeps the counters the summary line needs, quiet or not.
type CLIProgressReporter struct {
	quiet       bool
	out         io.Writer
	bar         *progressbar.ProgressBar
	startTime   time.Time
	totalFiles  int
	rejected    []string
	interrupted bool
}

// NewCLIProgressReporter creates a new CLI progress reporter writing to out.
func NewCLIProgressReporter(out io.Writer, quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{
		quiet:     quiet,
		out:       out,
		startTime: time.Now(),
	}
}

func (c *CLIProgressReporter) OnStartProcessingItems(count int) {
	c.startTime = time.Now()
	c.totalFiles = count
	c.rejected = nil
	c.interrupted = false

	if c.quiet || count == 0 {
		c.bar = nil
		return
	}

	c.bar = progressbar.NewOptions(count,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("Scanning binaries"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

func (c *CLIProgressReporter) OnItemStatus(path string, status symbol.ProgressStatus) {
	if status == symbol.Reject {
		c.rejected = append(c.rejected, path)
	}
}

func (c *CLIProgressReporter) OnItemsRemaining(count int) {
	if c.bar != nil {
		c.bar.Set(c.totalFiles - count)
	}
}

func (c *CLIProgressReporter) OnInterrupted() {
	c.interrupted = true
	if c.bar != nil {
		c.bar.Exit()
		c.bar = nil
	}
	if !c.quiet {
		fmt.Fprintln(c.out, "\nInterrupted! Keeping the binaries scanned so far.")
	}
}

// Interrupted reports whether the last scan was cut short.
func (c *CLIProgressReporter) Interrupted() bool {
	return c.interrupted
}

// Rejected is the number of files of the last scan no parser accepted.
func (c *CLIProgressReporter) Rejected() int {
	return len(c.rejected)
}

// RejectedPaths lists the rejected files of the last scan in scan order.
func (c *CLIProgressReporter) RejectedPaths() []string {
	return c.rejected
}

// Elapsed is the time since the last scan started.
func (c *CLIProgressReporter) Elapsed() time.Duration {
	return time.Since(c.startTime)
}
