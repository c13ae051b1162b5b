package blob

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuePath(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	t.Run("keeps safe characters", func(t *testing.T) {
		path := store.IssuePath("doc-1", "Annual_Report-2025.pdf")
		assert.Equal(t, "doc-1/Annual_Report-2025.pdf", path)
	})

	t.Run("replaces unsafe characters", func(t *testing.T) {
		path := store.IssuePath("doc-2", "q3 résumé (final).pdf")
		assert.Equal(t, "doc-2/q3_r_sum___final_.pdf", path)
	})

	t.Run("strips directory traversal", func(t *testing.T) {
		path := store.IssuePath("doc-3", "../../etc/passwd")
		assert.Equal(t, "doc-3/passwd", path)
	})
}

func TestSaveOpenDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	path := store.IssuePath("doc-1", "report.txt")

	n, err := store.Save(path, strings.NewReader("blob contents"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("blob contents")), n)

	rc, err := store.Open(path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "blob contents", string(data))

	require.NoError(t, store.Delete(path))

	_, err = store.Open(path)
	assert.Error(t, err)
}

func TestDeleteMissingBlobIsNoop(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete("doc-x/never-saved.txt"))
}
