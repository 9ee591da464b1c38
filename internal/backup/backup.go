// Package backup archives a project's data: every named volume plus the
// normalized project file, in one timestamped tar.gz. Archives can be pruned
// by count and copied offsite.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/docker/docker/pkg/archive"

	"github.com/aholstad/berth/internal/config"
	"github.com/aholstad/berth/internal/docker"
)

// Engine resolves named volumes to their host mountpoints.
type Engine interface {
	VolumePath(ctx context.Context, name string) (string, error)
}

// Uploader copies a finished archive offsite. *S3Uploader implements it;
// tests substitute their own.
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader) error
}

// Options control where archives go and how many stay.
type Options struct {
	Dir      string   // target directory for archives
	Keep     int      // keep the newest Keep archives, <= 0 keeps all
	Uploader Uploader // optional offsite copy
	Prefix   string   // key prefix for uploaded archives
}

// Backup archives one project against one engine.
type Backup struct {
	cfg    *config.Config
	engine Engine
}

func New(cfg *config.Config, engine Engine) *Backup {
	return &Backup{cfg: cfg, engine: engine}
}

// Run writes one archive and returns its path and size. The archive contains
// the normalized project file as berth.yaml and each named volume's data
// under volumes/<name>/.
func (b *Backup) Run(ctx context.Context, opts Options) (string, int64, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return "", 0, fmt.Errorf("creating backup dir: %w", err)
	}

	stamp := time.Now().Format("20060102-150405")
	name := fmt.Sprintf("berth-%s-%s.tar.gz", b.cfg.Name, stamp)
	target := filepath.Join(opts.Dir, name)

	if err := b.write(ctx, target); err != nil {
		os.Remove(target)
		return "", 0, err
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", 0, err
	}

	if opts.Keep > 0 {
		if _, err := Prune(opts.Dir, b.cfg.Name, opts.Keep); err != nil {
			return target, info.Size(), err
		}
	}

	if opts.Uploader != nil {
		f, err := os.Open(target)
		if err != nil {
			return target, info.Size(), err
		}
		defer f.Close()
		key := path.Join(opts.Prefix, name)
		fmt.Printf("Uploading %s...\n", key)
		if err := opts.Uploader.Upload(ctx, key, f); err != nil {
			return target, info.Size(), fmt.Errorf("uploading %s: %w", name, err)
		}
	}

	return target, info.Size(), nil
}

func (b *Backup) write(ctx context.Context, target string) error {
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	rendered, err := b.cfg.Render()
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:    "berth.yaml",
		Mode:    0644,
		Size:    int64(len(rendered)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write(rendered); err != nil {
		return err
	}

	for _, volName := range b.cfg.VolumeNames() {
		v := b.cfg.Volumes[volName]
		runtimeName := docker.VolumeName(b.cfg.Name, volName, v.External)
		mountpoint, err := b.engine.VolumePath(ctx, runtimeName)
		if err != nil {
			return err
		}
		fmt.Printf("Archiving volume %s...\n", volName)
		if err := addTree(tw, path.Join("volumes", volName), mountpoint); err != nil {
			return fmt.Errorf("archiving volume %s: %w", volName, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Close()
}

// addTree streams a directory into the writer with every entry rebased under
// prefix. Reading the filesystem is left to the runtime's tar code, which
// knows about sparse files, hardlinks and xattrs.
func addTree(tw *tar.Writer, prefix, dir string) error {
	rd, err := archive.Tar(dir, archive.Uncompressed)
	if err != nil {
		return err
	}
	defer rd.Close()

	tr := tar.NewReader(rd)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		hdr.Name = path.Join(prefix, hdr.Name)
		if hdr.Typeflag == tar.TypeLink {
			hdr.Linkname = path.Join(prefix, hdr.Linkname)
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := io.Copy(tw, tr); err != nil {
			return err
		}
	}
}

// Prune removes old archives of a project, keeping the newest keep. The
// timestamp in the name sorts lexicographically, so no parsing is needed.
// It returns the removed paths.
func Prune(dir, project string, keep int) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("berth-%s-*.tar.gz", project)))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	if len(matches) <= keep {
		return nil, nil
	}

	var removed []string
	for _, old := range matches[keep:] {
		if err := os.Remove(old); err != nil {
			return removed, fmt.Errorf("pruning %s: %w", old, err)
		}
		removed = append(removed, old)
	}
	return removed, nil
}
