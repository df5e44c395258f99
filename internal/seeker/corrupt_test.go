//go:build !symseek_debug

package seeker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/symseek/internal/symbol"
)

// Test Plan for Scan over corrupt binaries (release builds):
// - A file whose tables are corrupt when opened is rejected and the scan goes on
// - A file whose tables break during iteration is rejected and its partial symbols are dropped
// - The healthy file after both is still scanned in full

func TestScan_CorruptFilesAreRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// Linker member count far beyond the member size.
	huge := archive("A")
	copy(huge[len("!<arch>\n")+60:], []byte{0x7f, 0xff, 0xff, 0xff})
	writeFile(t, filepath.Join(dir, "a_count.lib"), huge)

	// The last name loses its terminator, so iteration fails after "Alpha".
	trunc := archive("Alpha", "Beta")
	trunc[len(trunc)-1] = 'x'
	writeFile(t, filepath.Join(dir, "b_names.lib"), trunc)

	writeFile(t, filepath.Join(dir, "c_good.lib"), archive("Good"))

	rec := &recorder{}
	result, err := New(Config{Progress: rec}).Scan(context.Background(), dir, []string{"*.lib"}, nil)
	require.NoError(t, err)

	require.Len(t, result, 1)
	assert.Equal(t, filepath.Join(dir, "c_good.lib"), result[0].BinaryPath)
	assert.Equal(t, []string{"Good"}, demangledNames(result[0].Symbols))

	assert.Equal(t, []event{
		{kind: "start", count: 3},
		{kind: "status", path: "a_count.lib", status: symbol.Start},
		{kind: "status", path: "a_count.lib", status: symbol.Reject},
		{kind: "remaining", count: 2},
		{kind: "status", path: "b_names.lib", status: symbol.Start},
		{kind: "status", path: "b_names.lib", status: symbol.Reject},
		{kind: "remaining", count: 1},
		{kind: "status", path: "c_good.lib", status: symbol.Start},
		{kind: "status", path: "c_good.lib", status: symbol.Finish},
		{kind: "remaining", count: 0},
	}, rec.events)
}
