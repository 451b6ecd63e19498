package detector

import gopsproc "github.com/shirou/gopsutil/v4/process"

// Detector locates the live process a supervised entry refers to.
// Implementations must be safe for concurrent use.
type Detector interface {
	// Find returns the live process, or nil when none is detected.
	Find() (*gopsproc.Process, error)
	// Describe names the detection method for logs.
	Describe() string
}

var _ Detector = PIDFileDetector{}
