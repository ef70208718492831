package pages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrSourceOutsideDir rejects local sources that are absolute or climb out
// of SourceDir.
var ErrSourceOutsideDir = errors.New("file source is outside the source directory")

// DiskFiles copies file sources named in imported rows into per-page
// directories under Root. A source is an http(s) URL or a path, relative
// paths being resolved inside SourceDir.
type DiskFiles struct {
	Root      string
	SourceDir string
	MaxSize   int64
	Client    *http.Client
}

// NewDiskFiles returns a DiskFiles with an HTTP client bounded by fetchTimeout.
func NewDiskFiles(root, sourceDir string, maxSize int64, fetchTimeout time.Duration) *DiskFiles {
	return &DiskFiles{
		Root:      root,
		SourceDir: sourceDir,
		MaxSize:   maxSize,
		Client:    &http.Client{Timeout: fetchTimeout},
	}
}

// Attach stores every source for pageID and returns the stored file names in
// source order. Sources that fail are left out and reported in the returned
// error, so a partial list may come back together with a non-nil error.
func (d *DiskFiles) Attach(ctx context.Context, pageID uuid.UUID, sources []string) ([]string, error) {
	dir := filepath.Join(d.Root, pageID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file directory: %w", err)
	}

	var (
		stored []string
		errs   []error
	)
	for _, src := range sources {
		name, err := d.attachOne(ctx, dir, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
			continue
		}
		stored = append(stored, name)
	}
	return stored, errors.Join(errs...)
}

func (d *DiskFiles) attachOne(ctx context.Context, dir, src string) (string, error) {
	rc, base, err := d.open(ctx, src)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	name := sanitizeFileName(base)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	limit := d.MaxSize
	if limit <= 0 {
		limit = 1 << 40
	}
	n, err := io.Copy(tmp, io.LimitReader(rc, limit+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", err
	}
	if n > limit {
		return "", fmt.Errorf("file exceeds %d bytes", limit)
	}

	// Sources such as "download?id=7" carry no usable extension.
	mime, err := mimetype.DetectFile(tmp.Name())
	if err != nil {
		return "", err
	}
	if filepath.Ext(name) == "" {
		name += mime.Extension()
	}

	// Re-attaching an identical file keeps the stored one.
	if sameContent(filepath.Join(dir, name), tmp.Name()) {
		return name, nil
	}
	name = uniqueFileName(dir, name)
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return "", err
	}
	return name, nil
}

func (d *DiskFiles) open(ctx context.Context, src string) (io.ReadCloser, string, error) {
	if u, err := url.Parse(src); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, "", err
		}
		client := d.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, "", err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, "", fmt.Errorf("download failed: %s", resp.Status)
		}
		return resp.Body, path.Base(u.Path), nil
	}

	if !filepath.IsLocal(src) {
		return nil, "", fmt.Errorf("%w: %q", ErrSourceOutsideDir, src)
	}
	f, err := os.OpenInRoot(d.SourceDir, src)
	if err != nil {
		return nil, "", err
	}
	return f, filepath.Base(src), nil
}

// sameContent reports whether the files at a and b hold the same bytes.
func sameContent(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil || !ai.Mode().IsRegular() {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil || ai.Size() != bi.Size() {
		return false
	}
	ab, err := os.ReadFile(a)
	if err != nil {
		return false
	}
	bb, err := os.ReadFile(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func sanitizeFileName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := Slugify(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "file"
	}
	ext = nonSlugChars.ReplaceAllString(ext, "")
	if ext == "." {
		ext = ""
	}
	return base + ext
}

func uniqueFileName(dir, name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}
