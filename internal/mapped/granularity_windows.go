//go:build windows

package mapped

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// systemInfo mirrors SYSTEM_INFO.
type systemInfo struct {
	ProcessorArchitecture     uint16
	Reserved                  uint16
	PageSize                  uint32
	MinimumApplicationAddress uintptr
	MaximumApplicationAddress uintptr
	ActiveProcessorMask       uintptr
	NumberOfProcessors        uint32
	ProcessorType             uint32
	AllocationGranularity     uint32
	ProcessorLevel            uint16
	ProcessorRevision         uint16
}

var procGetSystemInfo = windows.NewLazySystemDLL("kernel32.dll").NewProc("GetSystemInfo")

// Views on Windows must start on the system allocation granularity.
var allocationGranularity = systemAllocationGranularity()

func systemAllocationGranularity() int64 {
	const fallback = 64 << 10
	if err := procGetSystemInfo.Find(); err != nil {
		return fallback
	}
	var si systemInfo
	procGetSystemInfo.Call(uintptr(unsafe.Pointer(&si)))
	if si.AllocationGranularity == 0 {
		return fallback
	}
	return int64(si.AllocationGranularity)
}
