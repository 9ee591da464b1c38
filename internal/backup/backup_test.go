package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aholstad/berth/internal/config"
)

type fakeVolumes map[string]string

func (f fakeVolumes) VolumePath(ctx context.Context, name string) (string, error) {
	dir, ok := f[name]
	if !ok {
		return "", fmt.Errorf("no such volume %s", name)
	}
	return dir, nil
}

type memUploader struct {
	key  string
	size int64
}

func (m *memUploader) Upload(ctx context.Context, key string, r io.Reader) error {
	n, err := io.Copy(io.Discard, r)
	m.key = key
	m.size = n
	return err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// readArchive returns the regular files in a tar.gz keyed by entry name.
func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	files := map[string]string{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files
		}
		if err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		files[hdr.Name] = string(data)
	}
}

func TestBackupRun(t *testing.T) {
	volDir := t.TempDir()
	writeFile(t, filepath.Join(volDir, "data.txt"), "hello")
	writeFile(t, filepath.Join(volDir, "sub", "nested.txt"), "nested")

	cfg := &config.Config{
		Name:     "home",
		Services: map[string]config.Service{"db": {Image: "postgres:16"}},
		Volumes:  map[string]config.Volume{"pgdata": {}},
	}
	b := New(cfg, fakeVolumes{"berth-home-pgdata": volDir})

	dir := t.TempDir()
	up := &memUploader{}
	target, size, err := b.Run(context.Background(), Options{Dir: dir, Uploader: up, Prefix: "offsite/home"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if size <= 0 {
		t.Errorf("size %d", size)
	}
	base := filepath.Base(target)
	if !strings.HasPrefix(base, "berth-home-") || !strings.HasSuffix(base, ".tar.gz") {
		t.Errorf("archive name %q", base)
	}

	files := readArchive(t, target)
	if !strings.Contains(files["berth.yaml"], "name: home") {
		t.Errorf("project file not archived: %q", files["berth.yaml"])
	}
	if files["volumes/pgdata/data.txt"] != "hello" {
		t.Errorf("volume file missing, archive has %v", keys(files))
	}
	if files["volumes/pgdata/sub/nested.txt"] != "nested" {
		t.Errorf("nested file missing, archive has %v", keys(files))
	}

	if up.key != "offsite/home/"+base {
		t.Errorf("uploaded key %q", up.key)
	}
	if up.size != size {
		t.Errorf("uploaded %d bytes of a %d byte archive", up.size, size)
	}
}

func TestBackupMissingVolume(t *testing.T) {
	cfg := &config.Config{
		Name:     "home",
		Services: map[string]config.Service{"db": {Image: "postgres:16"}},
		Volumes:  map[string]config.Volume{"pgdata": {}},
	}
	b := New(cfg, fakeVolumes{})

	dir := t.TempDir()
	if _, _, err := b.Run(context.Background(), Options{Dir: dir}); err == nil {
		t.Fatal("expected error for unresolvable volume")
	}
	// The partial archive must not be left behind.
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tar.gz"))
	if len(matches) != 0 {
		t.Errorf("leftover archives %v", matches)
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	stamps := []string{
		"20260101-010000", "20260102-010000", "20260103-010000",
		"20260104-010000", "20260105-010000",
	}
	for _, s := range stamps {
		writeFile(t, filepath.Join(dir, "berth-home-"+s+".tar.gz"), "x")
	}
	writeFile(t, filepath.Join(dir, "berth-other-20260101-010000.tar.gz"), "x")

	removed, err := Prune(dir, "home", 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("removed %v, expected the 3 oldest", removed)
	}

	left, _ := filepath.Glob(filepath.Join(dir, "*.tar.gz"))
	want := map[string]bool{
		"berth-home-20260104-010000.tar.gz":  true,
		"berth-home-20260105-010000.tar.gz":  true,
		"berth-other-20260101-010000.tar.gz": true,
	}
	if len(left) != len(want) {
		t.Fatalf("left %v", left)
	}
	for _, p := range left {
		if !want[filepath.Base(p)] {
			t.Errorf("unexpected survivor %s", p)
		}
	}

	// Fewer archives than keep is a no-op.
	removed, err = Prune(dir, "home", 10)
	if err != nil || removed != nil {
		t.Errorf("removed %v, err %v", removed, err)
	}
}

func keys(m map[string]string) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
