//go:build symseek_debug

package format

func guard(err error) error {
	panic(err)
}
