package snapshot

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// forgeManifest replaces the manifest of the archive at path with m, keeping
// the accounts entry as is.
func forgeManifest(t *testing.T, path string, m *Manifest) {
	t.Helper()

	a, err := openArchive(path)
	require.NoError(t, err)
	_, err = a.manifest()
	require.NoError(t, err)
	_, err = a.expect(accountsEntry)
	require.NoError(t, err)
	body, err := io.ReadAll(a.tar)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	manifestJSON, err := json.Marshal(m)
	require.NoError(t, err)

	var out bytes.Buffer
	enc, err := zstd.NewWriter(&out)
	require.NoError(t, err)
	tw := tar.NewWriter(enc)
	require.NoError(t, writeEntry(tw, manifestEntry, manifestJSON, m.CreatedAt))
	require.NoError(t, writeEntry(tw, accountsEntry, body, m.CreatedAt))
	require.NoError(t, tw.Close())
	require.NoError(t, enc.Close())
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
}
