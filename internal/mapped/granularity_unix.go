//go:build unix

package mapped

import "golang.org/x/sys/unix"

var allocationGranularity = int64(unix.Getpagesize())
