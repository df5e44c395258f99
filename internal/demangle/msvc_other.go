//go:build !windows

package demangle

func systemUndecorate(string) (string, bool) {
	return "", false
}
