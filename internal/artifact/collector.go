// Package artifact persists files produced by runs. Artifacts are copied out
// of a run's private working directory into the artifacts root under
// runs/{run_id}/{filename} and retrieved by that key.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/rscheiwe/open-skills/internal/model"
)

// ErrTooLarge is returned when a declared artifact exceeds the size limit.
var ErrTooLarge = errors.New("artifact exceeds size limit")

// ErrTooMany is returned when a run declares more artifacts than allowed.
var ErrTooMany = errors.New("too many artifacts declared")

const defaultContentType = "application/octet-stream"

// Collector copies declared artifact files into the artifacts root and
// computes their metadata.
type Collector struct {
	root         string
	maxSizeBytes int64
	maxPerRun    int
}

// NewCollector returns a Collector rooted at root. maxSizeBytes caps a single
// artifact and maxPerRun caps how many one run may declare; zero values mean
// no limit.
func NewCollector(root string, maxSizeBytes int64, maxPerRun int) *Collector {
	return &Collector{root: root, maxSizeBytes: maxSizeBytes, maxPerRun: maxPerRun}
}

// Collect copies the declared files out of workdir into the artifacts root.
// Paths are relative to workdir and must stay inside it after symlink
// resolution. Called only after the sandbox process has exited, so a
// concurrently running sibling never observes these files.
func (c *Collector) Collect(runID, workdir string, declared []string) ([]*model.Artifact, error) {
	if c.maxPerRun > 0 && len(declared) > c.maxPerRun {
		return nil, fmt.Errorf("%w: %d declared, limit %d", ErrTooMany, len(declared), c.maxPerRun)
	}
	if len(declared) == 0 {
		return nil, nil
	}

	// Resolve the workdir itself so symlinked scratch roots compare cleanly
	// against the resolved artifact paths below.
	realWork, err := filepath.EvalSymlinks(workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}

	seen := make(map[string]bool, len(declared))
	var artifacts []*model.Artifact
	for _, rel := range declared {
		src, err := resolveInside(realWork, rel)
		if err != nil {
			return nil, err
		}
		// Follow symlinks and re-check containment so a link inside the
		// workdir cannot pull in files from outside it.
		resolved, err := filepath.EvalSymlinks(src)
		if err != nil {
			return nil, fmt.Errorf("artifact %q: %w", rel, err)
		}
		if inner, rerr := filepath.Rel(realWork, resolved); rerr != nil || !filepath.IsLocal(inner) {
			return nil, fmt.Errorf("artifact path %q escapes the working directory", rel)
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return nil, fmt.Errorf("artifact %q: %w", rel, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("artifact %q is a directory", rel)
		}
		if c.maxSizeBytes > 0 && info.Size() > c.maxSizeBytes {
			return nil, fmt.Errorf("%w: %q is %d bytes, limit %d", ErrTooLarge, rel, info.Size(), c.maxSizeBytes)
		}

		filename := filepath.Base(src)
		if seen[filename] {
			return nil, fmt.Errorf("artifact filename %q declared twice", filename)
		}
		seen[filename] = true

		a, err := c.store(runID, filename, resolved, info.Size())
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// store copies src into the artifacts root, hashing while copying.
func (c *Collector) store(runID, filename, src string, size int64) (*model.Artifact, error) {
	destDir := filepath.Join(c.root, "runs", runID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open artifact %q: %w", filename, err)
	}
	defer in.Close()

	dest := filepath.Join(destDir, filename)
	out, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create artifact %q: %w", filename, err)
	}
	defer out.Close()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, hasher), in); err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("copy artifact %q: %w", filename, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("flush artifact %q: %w", filename, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = defaultContentType
	}

	return &model.Artifact{
		ID:          uuid.NewString(),
		RunID:       runID,
		Filename:    filename,
		Key:         path.Join("runs", runID, filename),
		SizeBytes:   size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		ContentType: contentType,
	}, nil
}

// Open returns the stored artifact content for (runID, filename). Reads are
// byte-identical across calls.
func (c *Collector) Open(runID, filename string) (io.ReadCloser, error) {
	p, err := resolveInside(filepath.Join(c.root, "runs", runID), filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open artifact %q: %w", filename, err)
	}
	return f, nil
}

// resolveInside joins rel onto dir, rejecting absolute paths and any path
// that escapes dir.
func resolveInside(dir, rel string) (string, error) {
	rel = filepath.FromSlash(rel)
	if filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("artifact path %q escapes the working directory", rel)
	}
	return filepath.Join(dir, rel), nil
}
