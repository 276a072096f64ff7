package rezip_test

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Defacto2/bundle/rezip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/nalgeon/be"
)

// tree creates a small bundle directory within a temporary directory.
func tree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"dcos_services.json":                         `{"services":[]}`,
		"10.0.0.1_master/dcos-mesos-master.service":  "mesos master log\n",
		"10.0.0.2_agent/dcos-mesos-slave.service":    "mesos agent log\n",
		"10.0.0.2_agent/opt/mesosphere/version.json": `{"version":"2.1.0"}`,
	}
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		be.Err(t, os.MkdirAll(filepath.Dir(path), 0o755), nil)
		be.Err(t, os.WriteFile(path, []byte(data), 0o644), nil)
	}
	return root
}

func TestCompressDir(t *testing.T) {
	t.Parallel()
	root := tree(t)
	dest := filepath.Join(t.TempDir(), "bundle.zip")
	size, err := rezip.CompressDir(root, dest)
	be.Err(t, err, nil)
	be.True(t, size > 0)
	be.Err(t, rezip.Test(dest), nil)

	r, err := zip.OpenReader(dest)
	be.Err(t, err, nil)
	defer r.Close()
	be.Equal(t, len(r.File), 4)
	names := map[string]bool{}
	for _, f := range r.File {
		names[f.Name] = true
	}
	be.True(t, names["10.0.0.1_master/dcos-mesos-master.service"])
	// confirm command fails when the file already exists
	size, err = rezip.CompressDir(root, dest)
	be.Err(t, err)
	be.Equal(t, size, int64(0))
}

func TestTarGzDir(t *testing.T) {
	t.Parallel()
	root := tree(t)
	dest := filepath.Join(t.TempDir(), "bundle.tar.gz")
	size, err := rezip.TarGzDir(root, dest)
	be.Err(t, err, nil)
	be.True(t, size > 0)

	f, err := os.Open(dest)
	be.Err(t, err, nil)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	be.Err(t, err, nil)
	tr := tar.NewReader(gz)
	n := 0
	for {
		_, err := tr.Next()
		if err == io.EOF {
			break
		}
		be.Err(t, err, nil)
		n++
	}
	be.Equal(t, n, 4)
	// a zip test of a tarball fails
	be.Err(t, rezip.Test(dest))
}

func TestGzip(t *testing.T) {
	t.Parallel()
	root := tree(t)
	src := filepath.Join(root, "dcos_services.json")
	dest := filepath.Join(t.TempDir(), "dcos_services.json.gz")
	size, err := rezip.Gzip(src, dest)
	be.Err(t, err, nil)
	be.Equal(t, size, int64(len(`{"services":[]}`)))

	f, err := os.Open(dest)
	be.Err(t, err, nil)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	be.Err(t, err, nil)
	b, err := io.ReadAll(gz)
	be.Err(t, err, nil)
	be.Equal(t, string(b), `{"services":[]}`)
	be.Equal(t, gz.Name, "dcos_services.json")
}

func TestTest(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	be.Err(t, rezip.Test(tmp))
	empty := filepath.Join(tmp, "empty.zip")
	be.Err(t, os.WriteFile(empty, nil, 0o644), nil)
	be.Err(t, rezip.Test(empty))
	text := filepath.Join(tmp, "text.zip")
	be.Err(t, os.WriteFile(text, []byte("not a zip file"), 0o644), nil)
	be.Err(t, rezip.Test(text))
	be.Err(t, rezip.Test(filepath.Join(tmp, "missing.zip")))
}
