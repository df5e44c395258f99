package seeker

import "github.com/mvp-joe/symseek/internal/symbol"

// ProgressReporter receives scan events. Implementations can display
// progress bars, log messages, or remain silent.
type ProgressReporter interface {
	// OnStartProcessingItems is called once, after discovery, with the
	// number of candidate files.
	OnStartProcessingItems(count int)

	// OnItemStatus reports a file starting, being rejected, or finishing.
	OnItemStatus(path string, status symbol.ProgressStatus)

	// OnItemsRemaining is called after every processed file.
	OnItemsRemaining(count int)

	// OnInterrupted is called at most once per scan.
	OnInterrupted()
}

// NoOpProgressReporter is a progress reporter that does nothing.
// Used when progress reporting is disabled (e.g., --quiet flag).
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnStartProcessingItems(count int)                       {}
func (n *NoOpProgressReporter) OnItemStatus(path string, status symbol.ProgressStatus) {}
func (n *NoOpProgressReporter) OnItemsRemaining(count int)                             {}
func (n *NoOpProgressReporter) OnInterrupted()                                         {}
