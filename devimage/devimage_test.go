package devimage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeImageDir(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DeveloperDiskImage.dmg"), []byte("dmg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DeveloperDiskImage.dmg.signature"), []byte("sig"), 0o644))
}

func TestResolve_PicksBestPrefixMatch(t *testing.T) {
	root := t.TempDir()
	makeImageDir(t, root, "12.0")
	makeImageDir(t, root, "13.0")
	makeImageDir(t, root, "13.1 (17A577)")

	r := NewResolver(root)
	img, err := r.Resolve("13.1.2")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "13.1 (17A577)"), img.Directory)
}

func TestResolve_FailsBelowMinimumScore(t *testing.T) {
	root := t.TempDir()
	makeImageDir(t, root, "9.0")

	r := NewResolver(root)
	_, err := r.Resolve("13.1")
	require.Error(t, err)
}

func TestResolve_TieBrokenByEnumerationOrder(t *testing.T) {
	root := t.TempDir()
	makeImageDir(t, root, "13.0")
	makeImageDir(t, root, "13.0 Alt")

	r := NewResolver(root)
	img, err := r.Resolve("13.0.1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "13.0"), img.Directory)
}

func TestResolve_RejectsDirectoryMissingSignature(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "13.0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DeveloperDiskImage.dmg"), []byte("dmg"), 0o644))

	r := NewResolver(root)
	_, err := r.Resolve("13.0")
	require.Error(t, err)
}
