package extract

import (
	"archive/tar"
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"barnacle/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip builds a zip archive at path holding files (name -> content).
func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

// writeTar builds a tar archive at path from headers, in order. Regular
// entries take their content from contents.
func writeTar(t *testing.T, path string, headers []*tar.Header, contents map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	tw := tar.NewWriter(f)
	for _, hdr := range headers {
		content := contents[hdr.Name]
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(content))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
}

func TestExtractTarHardlink(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "linked.tar")
	writeTar(t, archive, []*tar.Header{
		{Name: "a.txt", Typeflag: tar.TypeReg, Mode: 0o644},
		{Name: "sub/b.txt", Typeflag: tar.TypeLink, Linkname: "a.txt", Mode: 0o644},
	}, map[string]string{"a.txt": "payload"})

	dest := filepath.Join(tmp, "out")
	require.NoError(t, New().Extract(context.Background(), archive, dest))

	got, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	a, err := os.Stat(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	b, err := os.Stat(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(a, b), "linked, not copied")
}

func TestExtractTarHardlinkOutsideDest(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "secret.txt"), []byte("secret"), 0o644))
	archive := filepath.Join(tmp, "evil.tar")
	writeTar(t, archive, []*tar.Header{
		{Name: "b.txt", Typeflag: tar.TypeLink, Linkname: "../secret.txt", Mode: 0o644},
	}, nil)

	dest := filepath.Join(tmp, "out")
	err := New().Extract(context.Background(), archive, dest)
	assert.True(t, errs.HasCode(err, errs.CodeArchive))
	assert.NoFileExists(t, filepath.Join(dest, "b.txt"))
}

func TestExtractZip(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "graphics.zip")
	writeZip(t, archive, map[string]string{
		"Data Files/Textures/rock.dds": "rock",
		"readme.txt":                   "hello",
	})

	dest := filepath.Join(tmp, "out")
	require.NoError(t, New().Extract(context.Background(), archive, dest))

	got, err := os.ReadFile(filepath.Join(dest, "Data Files", "Textures", "rock.dds"))
	require.NoError(t, err)
	assert.Equal(t, "rock", string(got))

	got, err = os.ReadFile(filepath.Join(dest, "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "evil.zip")
	writeZip(t, archive, map[string]string{"../../escape.txt": "gotcha"})

	dest := filepath.Join(tmp, "nested", "out")
	err := New().Extract(context.Background(), archive, dest)
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeArchive))

	_, statErr := os.Stat(filepath.Join(tmp, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractCorruptArchive(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "broken.zip")
	require.NoError(t, os.WriteFile(archive, []byte("this is not a zip file"), 0o644))

	err := New().Extract(context.Background(), archive, filepath.Join(tmp, "out"))
	require.Error(t, err)
	assert.Equal(t, errs.KindIO, errs.KindOf(err))
}

func TestExtractMissingSource(t *testing.T) {
	tmp := t.TempDir()
	err := New().Extract(context.Background(), filepath.Join(tmp, "nope.zip"), filepath.Join(tmp, "out"))
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeArchive))
}

func TestExtractCopiesDirectorySource(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "loose")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "meshes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "meshes", "a.nif"), []byte("nif"), 0o444))
	require.NoError(t, os.Symlink("meshes/a.nif", filepath.Join(src, "alias.nif")))

	dest := filepath.Join(tmp, "out")
	require.NoError(t, New().Extract(context.Background(), src, dest))

	got, err := os.ReadFile(filepath.Join(dest, "meshes", "a.nif"))
	require.NoError(t, err)
	assert.Equal(t, "nif", string(got))

	link, err := os.Readlink(filepath.Join(dest, "alias.nif"))
	require.NoError(t, err)
	assert.Equal(t, "meshes/a.nif", link)
}

func TestSafeJoin(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"a/b.txt", true},
		{"./a", true},
		{"..", false},
		{"../x", false},
		{"a/../../x", false},
		{"a/../b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := safeJoin("/dest", tt.name)
			assert.Equal(t, tt.ok, err == nil)
		})
	}
}
