package bundle_test

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/Defacto2/bundle"
	"github.com/Defacto2/bundle/rezip"
	"github.com/Defacto2/helper"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// observed returns a logger that records the log entries.
func observed() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func TestMove(t *testing.T) {
	t.Parallel()
	log, logs := observed()
	work := t.TempDir()
	downloads := t.TempDir()
	src := filepath.Join(downloads, "bundle.zip")
	require.NoError(t, helper.Touch(src))

	x := bundle.Extractor{Dir: work, Log: log}
	got, err := x.Move(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "bundle.zip"), got)
	assert.FileExists(t, got)
	assert.NoFileExists(t, src)
	assert.Equal(t, 1, logs.FilterMessageSnippet("Moved bundle.zip").Len())

	// a file already in the working directory stays put
	again, err := x.Move(got)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, logs.FilterMessageSnippet("Moved").Len())

	_, err = x.Move(filepath.Join(downloads, "missing.zip"))
	require.Error(t, err)
}

func TestExtractBundle(t *testing.T) {
	t.Parallel()
	log, logs := observed()
	work := t.TempDir()
	src := mkZip(t, t.TempDir(), "bundle-2024.zip", map[string]string{
		"bundle-2024/10.0.0.1_master/dcos-mesos-master.service.gz": "log",
		"bundle-2024/summaryReport.txt":                            "report",
	})
	x := bundle.Extractor{Dir: work, Log: log}
	dir, err := x.ExtractBundle(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "bundle-2024"), dir)
	assert.FileExists(t, filepath.Join(dir, "summaryReport.txt"))
	assert.FileExists(t, filepath.Join(dir, "10.0.0.1_master", "dcos-mesos-master.service.gz"))
	assert.FileExists(t, filepath.Join(work, "bundle-2024.zip"))

	// a second run reuses the existing directory
	again, err := x.ExtractBundle(filepath.Join(work, "bundle-2024.zip"))
	require.NoError(t, err)
	assert.Equal(t, dir, again)
	assert.Equal(t, 1, logs.FilterMessageSnippet("already been extracted").Len())
}

func TestExtractDirectory(t *testing.T) {
	t.Parallel()
	dir := mkTree(t, map[string]string{"dcos_services.json": "{}"})
	got, err := bundle.Extractor{}.Extract(dir, bundle.ServiceDiag)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = bundle.Extractor{}.Extract(filepath.Join(dir, "missing.zip"), bundle.DCOSDiag)
	require.ErrorIs(t, err, bundle.ErrPath)
}

func TestExtractTypes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		archive func(t *testing.T, dir string) string
		typ     bundle.Type
		dir     string
		want    []string
	}{
		{
			"DC/OS diagnostics",
			func(t *testing.T, dir string) string {
				t.Helper()
				return mkZip(t, dir, "dcos.zip", map[string]string{
					"wrapper/10.0.0.1_master/dcos-mesos-master.service.gz": "log",
				})
			},
			bundle.DCOSDiag, "dcos",
			[]string{"10.0.0.1_master/dcos-mesos-master.service.gz"},
		},
		{
			"Service diagnostics",
			func(t *testing.T, dir string) string {
				t.Helper()
				return mkZip(t, dir, "service.zip", map[string]string{
					"wrapper/dcos_services.json": "{}",
				})
			},
			bundle.ServiceDiag, "service",
			[]string{"wrapper/dcos_services.json"},
		},
		{
			"Oneliner",
			func(t *testing.T, dir string) string {
				t.Helper()
				return mkTarGz(t, dir, "oneliner.tar.gz", map[string]string{
					"dcos-mesos-master.service.log": "log",
				})
			},
			bundle.DCOSOneliner, "oneliner",
			[]string{"dcos-mesos-master.service.log"},
		},
		{
			"Konvoy",
			func(t *testing.T, dir string) string {
				t.Helper()
				root := t.TempDir()
				nodes := filepath.Join(root, "bundles")
				require.NoError(t, os.Mkdir(nodes, 0o755))
				inner := mkTree(t, map[string]string{"kubelet.log": "log"})
				_, err := rezip.TarGzDir(inner, filepath.Join(nodes, "10.0.0.1.tar.gz"))
				require.NoError(t, err)
				dest := filepath.Join(dir, "konvoy.tgz")
				_, err = rezip.TarGzDir(root, dest)
				require.NoError(t, err)
				return dest
			},
			bundle.KonvoyDiag, "konvoy",
			[]string{"bundles/10.0.0.1.tar.gz", "bundles/10.0.0.1/kubelet.log"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			work := t.TempDir()
			src := tt.archive(t, t.TempDir())
			got, err := bundle.Extractor{Dir: work}.Extract(src, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(work, tt.dir), got)
			for _, name := range tt.want {
				assert.FileExists(t, filepath.Join(got, filepath.FromSlash(name)))
			}
		})
	}
}

func TestExtractUnknown(t *testing.T) {
	t.Parallel()
	src := mkZip(t, t.TempDir(), "x.zip", map[string]string{"a.txt": "a"})
	_, err := bundle.Extractor{Dir: t.TempDir()}.Extract(src, bundle.Unknown)
	require.ErrorIs(t, err, bundle.ErrUnknownType)
}

func TestUntar(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	src := mkTarGz(t, tmp, "bundle.tgz", map[string]string{
		"wrapper/a.txt":     "a",
		"wrapper/sub/b.txt": "b",
	})
	dst := filepath.Join(tmp, "bundle")
	require.NoError(t, bundle.Untar(src, dst))
	// unlike unzip, the wrapper directory is kept
	b, err := os.ReadFile(filepath.Join(dst, "wrapper", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))

	require.ErrorIs(t, bundle.Untar(src, ""), bundle.ErrDest)
	notgz := filepath.Join(tmp, "text.tgz")
	require.NoError(t, os.WriteFile(notgz, []byte("plain text"), 0o644))
	require.Error(t, bundle.Untar(notgz, filepath.Join(tmp, "text")))
}

// mkTarHeaders writes a gzip compressed tar archive holding the headers,
// regular file headers use their name as the content.
func mkTarHeaders(t *testing.T, name string, hdrs ...tar.Header) {
	t.Helper()
	f, err := os.Create(name)
	require.NoError(t, err)
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, hdr := range hdrs {
		var data []byte
		if hdr.Typeflag == tar.TypeReg {
			data = []byte(hdr.Name)
			hdr.Size = int64(len(data))
		}
		hdr.Mode = 0o644
		require.NoError(t, tw.WriteHeader(&hdr))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestUntarLinks(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	src := filepath.Join(tmp, "links.tgz")
	mkTarHeaders(t, src,
		tar.Header{Name: "logs/real.log", Typeflag: tar.TypeReg},
		tar.Header{Name: "logs/link.log", Typeflag: tar.TypeSymlink, Linkname: "real.log"},
		tar.Header{Name: "current.log", Typeflag: tar.TypeSymlink, Linkname: "logs/real.log"},
		tar.Header{Name: "hard.log", Typeflag: tar.TypeLink, Linkname: "logs/real.log"},
	)
	dst := filepath.Join(tmp, "links")
	require.NoError(t, bundle.Untar(src, dst))

	for _, name := range []string{"logs/link.log", "current.log"} {
		path := filepath.Join(dst, filepath.FromSlash(name))
		st, err := os.Lstat(path)
		require.NoError(t, err, name)
		assert.Equal(t, os.ModeSymlink, st.Mode().Type(), name)
		b, err := os.ReadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, "logs/real.log", string(b), name)
	}
	target, err := os.Readlink(filepath.Join(dst, "logs", "link.log"))
	require.NoError(t, err)
	assert.Equal(t, "real.log", target)

	st, err := os.Lstat(filepath.Join(dst, "hard.log"))
	require.NoError(t, err)
	assert.True(t, st.Mode().IsRegular())
	orig, err := os.Stat(filepath.Join(dst, "logs", "real.log"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(orig, st))
}

func TestUntarLinksEscape(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		hdr  tar.Header
	}{
		{"Relative symlink", tar.Header{Name: "logs/up.log", Typeflag: tar.TypeSymlink, Linkname: "../../etc/passwd"}},
		{"Absolute symlink", tar.Header{Name: "abs.log", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}},
		{"Hard link", tar.Header{Name: "hard.log", Typeflag: tar.TypeLink, Linkname: "../outside.log"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tmp := t.TempDir()
			src := filepath.Join(tmp, "escape.tgz")
			mkTarHeaders(t, src, tt.hdr)
			dst := filepath.Join(tmp, "escape")
			require.ErrorIs(t, bundle.Untar(src, dst), bundle.ErrLink)
			_, err := os.Lstat(filepath.Join(dst, filepath.FromSlash(tt.hdr.Name)))
			require.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}
