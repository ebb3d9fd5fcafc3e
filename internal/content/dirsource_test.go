package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirSource_ListAndRewrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "about.html"), []byte(`<a href="/x">x</a>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.htm"), []byte(`<p>home</p>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o644))

	src := NewDirSource(dir)
	require.Equal(t, SourceTypePage, src.Type())

	units, err := src.ListUnits(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 2, "only html files are served")
	require.Equal(t, FormatHTML, units[0].Format)
	require.Equal(t, `<a href="/x">x</a>`, units[0].Raw)

	ok, err := src.RewriteUnit(context.Background(), units[0].ID, "content", `<a href="/y">y</a>`)
	require.NoError(t, err)
	require.True(t, ok)

	data, err := os.ReadFile(filepath.Join(dir, "about.html"))
	require.NoError(t, err)
	require.Equal(t, `<a href="/y">y</a>`, string(data))

	ok, err = src.RewriteUnit(context.Background(), 999, "content", "x")
	require.NoError(t, err)
	require.False(t, ok)
}
