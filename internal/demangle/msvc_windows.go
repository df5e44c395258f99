//go:build windows

package demangle

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// UNDNAME_COMPLETE | UNDNAME_NO_LEADING_UNDERSCORES | UNDNAME_NO_MS_KEYWORDS
const undnameFlags = 0x0000 | 0x0001 | 0x0002

var (
	modDbgHelp               = windows.NewLazySystemDLL("dbghelp.dll")
	procUnDecorateSymbolName = modDbgHelp.NewProc("UnDecorateSymbolName")

	// dbghelp functions are single threaded.
	dbgHelpMu sync.Mutex
)

func systemUndecorate(name string) (string, bool) {
	if procUnDecorateSymbolName.Find() != nil {
		return "", false
	}

	cname, err := windows.BytePtrFromString(name)
	if err != nil {
		return "", false
	}

	buf := make([]byte, 4096)

	dbgHelpMu.Lock()
	n, _, _ := procUnDecorateSymbolName.Call(
		uintptr(unsafe.Pointer(cname)),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		undnameFlags,
	)
	dbgHelpMu.Unlock()

	if n == 0 || int(n) > len(buf) {
		return "", false
	}
	return string(buf[:n]), true
}
