package extract

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/warboot/internal/archive"
	"github.com/danmuck/warboot/internal/observability"
	"github.com/rs/zerolog/log"
)

const copyBufferSize = 32 * 1024

// Extractor copies planned entries into a work directory. Per-entry failures
// are skipped and logged; only an unusable archive, rule or root is fatal.
type Extractor struct {
	Metrics *observability.Metrics
}

func (e Extractor) Extract(h *archive.Handle, rule Rule, wd *WorkDir) (Plan, error) {
	if h == nil || wd == nil {
		return Plan{}, fmt.Errorf("%w: missing archive or work directory", ErrExtraction)
	}
	if err := rule.Validate(); err != nil {
		return Plan{}, err
	}
	root := wd.Root()
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return Plan{}, fmt.Errorf("%w: work directory %s unusable: %v", ErrExtraction, root, err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	start := time.Now()
	plan := BuildPlan(h, rule, root)
	for _, skip := range plan.Skipped {
		log.Warn().Str("entry", skip.Entry).Err(skip.Err).Msg("skipping archive entry")
		e.Metrics.RecordEntry(rule.Name, false)
	}

	buf := make([]byte, copyBufferSize)
	staged := make([]Item, 0, len(plan.Items))
	for _, item := range plan.Items {
		dest := filepath.Join(root, filepath.FromSlash(item.Dest))
		var err error
		if item.Dir {
			err = mkdirWithin(root, dest)
		} else {
			err = copyEntry(h, item.Entry, root, dest, resolvedRoot, buf)
		}
		if err != nil {
			log.Warn().Str("entry", item.Entry).Err(err).Msg("skipping archive entry")
			plan.Skipped = append(plan.Skipped, skip(item.Entry, err))
			e.Metrics.RecordEntry(rule.Name, false)
			continue
		}
		staged = append(staged, item)
		e.Metrics.RecordEntry(rule.Name, true)
	}
	plan.Items = staged

	elapsed := time.Since(start)
	e.Metrics.ObserveExtraction(elapsed)
	log.Debug().
		Str("rule", rule.Name).
		Str("root", root).
		Int("staged", len(plan.Items)).
		Int("skipped", len(plan.Skipped)).
		Dur("duration", elapsed).
		Msg("archive extracted")
	return plan, nil
}

func copyEntry(h *archive.Handle, entry string, root string, dest string, resolvedRoot string, buf []byte) error {
	zf, ok := h.Entry(entry)
	if !ok {
		return fmt.Errorf("%w: %s", archive.ErrEntryNotFound, entry)
	}
	rc, err := h.OpenURI(h.URI(entry))
	if err != nil {
		return err
	}
	defer rc.Close()

	parent := filepath.Dir(dest)
	if err := mkdirWithin(root, parent); err != nil {
		return err
	}
	// a planted link anywhere on the way must not redirect the write
	resolvedParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return err
	}
	if !Within(resolvedParent, resolvedRoot) {
		return fmt.Errorf("%w: %s resolves to %s", ErrEscapesRoot, entry, resolvedParent)
	}
	if info, err := os.Lstat(dest); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: %s is a symlink", ErrEscapesRoot, dest)
	}

	mode := zf.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.CopyBuffer(out, rc, buf); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

// mkdirWithin creates dir below root one component at a time. An existing
// symlink on the way is refused instead of followed.
func mkdirWithin(root string, dir string) error {
	rel, err := filepath.Rel(root, dir)
	if err != nil || !Within(dir, root) {
		return fmt.Errorf("%w: %s", ErrEscapesRoot, dir)
	}
	if rel == "." {
		return nil
	}
	current := root
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		switch {
		case err == nil && info.Mode()&os.ModeSymlink != 0:
			return fmt.Errorf("%w: %s is a symlink", ErrEscapesRoot, current)
		case err == nil && !info.IsDir():
			return fmt.Errorf("%w: %s is not a directory", ErrExtraction, current)
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			if err := os.Mkdir(current, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
				return err
			}
		default:
			return err
		}
	}
	return nil
}
