package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/danmuck/warboot/internal/archive"
	"github.com/danmuck/warboot/internal/extract"
	"github.com/danmuck/warboot/internal/observability"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDirName = "warboot-cache"
	StampFile      = ".warboot-stamp.toml"
)

var (
	ErrCache       = errors.New("cache: unusable cache directory")
	ErrBadStamp    = errors.New("cache: unreadable stamp")
	ErrFingerprint = errors.New("cache: invalid fingerprint")
)

// Fingerprint is a cache key, not a content hash.
type Fingerprint string

func FingerprintOf(h *archive.Handle) Fingerprint {
	d := xxhash.New()
	d.WriteString(h.Path())
	d.WriteString("\x00")
	d.WriteString(strconv.FormatInt(h.Size(), 10))
	d.WriteString("\x00")
	d.WriteString(strconv.FormatInt(h.ModTime().UnixNano(), 10))
	return Fingerprint(fmt.Sprintf("%016x", d.Sum64()))
}

// Stamp marks a completely extracted fingerprint directory.
type Stamp struct {
	Fingerprint string    `toml:"fingerprint"`
	Archive     string    `toml:"archive"`
	Size        int64     `toml:"size"`
	ModTime     time.Time `toml:"mod_time"`
	Rule        string    `toml:"rule"`
	Modules     []string  `toml:"modules"`
	CreatedAt   time.Time `toml:"created_at"`
}

type Cache struct {
	dir     string
	metrics *observability.Metrics
}

// New opens (creating if needed) a cache rooted inside the temp area.
// An empty dir selects <temp>/warboot-cache.
func New(dir string, metrics *observability.Metrics) (*Cache, error) {
	tmp := extract.TempRoot()
	if dir == "" {
		dir = filepath.Join(tmp, DefaultDirName)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCache, err)
	}
	if !extract.Within(abs, tmp) || abs == tmp {
		return nil, fmt.Errorf("%w: %s: %w", ErrCache, abs, extract.ErrOutsideTemp)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCache, err)
	}
	return &Cache{dir: abs, metrics: metrics}, nil
}

func (c *Cache) Dir() string { return c.dir }

// Path is the directory of fp staged under rule. Each rule gets its own
// directory so a mode switch never reuses a tree staged for the other mode.
func (c *Cache) Path(fp Fingerprint, rule string) string {
	return filepath.Join(c.dir, string(fp)+"-"+rule)
}

// Lookup returns the reusable work directory of fp staged under rule. A
// directory without a stamp (interrupted extraction) is a miss, and so is
// one stamped for a different rule.
func (c *Cache) Lookup(fp Fingerprint, rule string) (*extract.WorkDir, bool, error) {
	if err := validKey(fp, rule); err != nil {
		return nil, false, err
	}
	stamp, err := c.ReadStamp(fp, rule)
	if errors.Is(err, fs.ErrNotExist) {
		c.metrics.RecordCacheLookup(false)
		return nil, false, nil
	}
	if err != nil {
		log.Warn().Str("fingerprint", string(fp)).Err(err).Msg("ignoring unreadable cache stamp")
		c.metrics.RecordCacheLookup(false)
		return nil, false, nil
	}
	if stamp.Fingerprint != string(fp) || stamp.Rule != rule {
		log.Debug().Str("fingerprint", string(fp)).Str("rule", rule).Str("stamp_rule", stamp.Rule).Msg("cache stamp does not match")
		c.metrics.RecordCacheLookup(false)
		return nil, false, nil
	}
	wd, err := extract.AdoptWorkDir(c.Path(fp, rule), extract.StateReused)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCache, err)
	}
	c.metrics.RecordCacheLookup(true)
	log.Debug().Str("fingerprint", string(fp)).Str("rule", rule).Str("root", wd.Root()).Msg("reusing cached work directory")
	return wd, true, nil
}

// Prepare creates the directory of fp and rule for a fresh extraction.
func (c *Cache) Prepare(fp Fingerprint, rule string) (*extract.WorkDir, error) {
	if err := validKey(fp, rule); err != nil {
		return nil, err
	}
	root := c.Path(fp, rule)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCache, err)
	}
	return extract.AdoptWorkDir(root, extract.StateFresh)
}

// Store stamps fp as completely extracted. The stamp is written last and
// renamed into place so a reader never sees a partial one.
func (c *Cache) Store(fp Fingerprint, h *archive.Handle, plan extract.Plan) error {
	if err := validKey(fp, plan.Rule); err != nil {
		return err
	}
	root := c.Path(fp, plan.Rule)
	modules := make([]string, 0)
	for _, m := range plan.Modules() {
		rel, err := filepath.Rel(root, m)
		if err != nil {
			return err
		}
		modules = append(modules, filepath.ToSlash(rel))
	}
	stamp := Stamp{
		Fingerprint: string(fp),
		Archive:     h.Path(),
		Size:        h.Size(),
		ModTime:     h.ModTime().UTC(),
		Rule:        plan.Rule,
		Modules:     modules,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := toml.Marshal(stamp)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(root, StampFile+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCache, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(root, StampFile))
}

func (c *Cache) ReadStamp(fp Fingerprint, rule string) (Stamp, error) {
	data, err := os.ReadFile(filepath.Join(c.Path(fp, rule), StampFile))
	if err != nil {
		return Stamp{}, err
	}
	var stamp Stamp
	if err := toml.Unmarshal(data, &stamp); err != nil {
		return Stamp{}, fmt.Errorf("%w: %v", ErrBadStamp, err)
	}
	return stamp, nil
}

// Rescan rebuilds the module list of a reused work directory from disk,
// filtering with the rule that populated it.
func Rescan(wd *extract.WorkDir, rule extract.Rule) ([]string, error) {
	var modules []string
	root := wd.Root()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rule.IsModule(filepath.ToSlash(rel)) {
			modules = append(modules, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rescan %s: %v", ErrCache, root, err)
	}
	return modules, nil
}

func validKey(fp Fingerprint, rule string) error {
	if fp == "" || filepath.Base(string(fp)) != string(fp) || fp == "." || fp == ".." {
		return fmt.Errorf("%w: %q", ErrFingerprint, fp)
	}
	if rule == "" || filepath.Base(rule) != rule || rule == "." || rule == ".." {
		return fmt.Errorf("%w: rule %q", ErrFingerprint, rule)
	}
	return nil
}
