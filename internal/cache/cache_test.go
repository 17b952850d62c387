package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/warboot/internal/archive"
	"github.com/danmuck/warboot/internal/extract"
	"github.com/danmuck/warboot/internal/testutil/testlog"
	"github.com/danmuck/warboot/internal/testutil/ziptest"
)

func writeArchive(t *testing.T, path string) {
	t.Helper()
	ziptest.Write(t, path, nil,
		ziptest.File("META-INF/lib/jruby-core.jar", "core"),
		ziptest.File("META-INF/lib/jruby-stdlib.jar", "stdlib"),
		ziptest.File("META-INF/main.rb", "puts 1"),
	)
}

func openHandle(t *testing.T, path string) *archive.Handle {
	t.Helper()
	h, err := archive.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

// populate runs the cached extraction path the launcher uses.
func populate(t *testing.T, c *Cache, h *archive.Handle, rule extract.Rule) (*extract.WorkDir, bool) {
	t.Helper()
	fp := FingerprintOf(h)
	wd, hit, err := c.Lookup(fp, rule.Name)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hit {
		return wd, true
	}
	wd, err = c.Prepare(fp, rule.Name)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	plan, err := extract.Extractor{}.Extract(h, rule, wd)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if err := c.Store(fp, h, plan); err != nil {
		t.Fatalf("store: %v", err)
	}
	return wd, false
}

func TestFingerprintStableAndSensitiveToModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.jar")
	writeArchive(t, path)

	first := FingerprintOf(openHandle(t, path))
	if again := FingerprintOf(openHandle(t, path)); again != first {
		t.Fatalf("fingerprint not stable: %s != %s", first, again)
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if changed := FingerprintOf(openHandle(t, path)); changed == first {
		t.Fatalf("fingerprint ignored modification time")
	}
}

func TestCachedExtractionIsIdempotent(t *testing.T) {
	testlog.Start(t)
	t.Setenv("TMPDIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "app.jar")
	writeArchive(t, path)
	h := openHandle(t, path)
	rule := extract.ScriptingRule("", "", []string{})

	c, err := New("", nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	first, hit := populate(t, c, h, rule)
	if hit {
		t.Fatalf("first run must miss")
	}

	// a second run must not rewrite anything it finds in place
	marker := first.Path("META-INF/lib/jruby-core.jar")
	if err := os.WriteFile(marker, []byte("touched"), 0o644); err != nil {
		t.Fatalf("touch: %v", err)
	}
	stampBefore, err := os.Stat(filepath.Join(first.Root(), StampFile))
	if err != nil {
		t.Fatalf("stat stamp: %v", err)
	}

	second, hit := populate(t, c, openHandle(t, path), rule)
	if !hit {
		t.Fatalf("second run must hit")
	}
	if second.Root() != first.Root() {
		t.Fatalf("expected same work dir, got %s and %s", first.Root(), second.Root())
	}
	if second.State() != extract.StateReused {
		t.Fatalf("unexpected state: %v", second.State())
	}
	data, _ := os.ReadFile(marker)
	if string(data) != "touched" {
		t.Fatalf("cached file was rewritten: %q", data)
	}
	stampAfter, _ := os.Stat(filepath.Join(second.Root(), StampFile))
	if !stampAfter.ModTime().Equal(stampBefore.ModTime()) {
		t.Fatalf("stamp was rewritten")
	}

	modules, err := Rescan(second, rule)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(modules) != 2 {
		t.Fatalf("unexpected rescanned modules: %v", modules)
	}
}

func TestFingerprintChangeForcesFreshDirectory(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "app.jar")
	writeArchive(t, path)
	rule := extract.ScriptingRule("", "", []string{})

	c, err := New("", nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	first, _ := populate(t, c, openHandle(t, path), rule)

	later := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	second, hit := populate(t, c, openHandle(t, path), rule)
	if hit {
		t.Fatalf("changed fingerprint must miss")
	}
	if second.Root() == first.Root() {
		t.Fatalf("expected a new work dir")
	}
	// stale fingerprints are left alone
	if _, err := os.Stat(first.Root()); err != nil {
		t.Fatalf("old cache dir removed: %v", err)
	}
}

func TestLookupIgnoresUnstampedDirectory(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	c, err := New("", nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if err := os.MkdirAll(c.Path("deadbeefdeadbeef", "scripting"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, hit, err := c.Lookup("deadbeefdeadbeef", "scripting"); err != nil || hit {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}
}

func TestStoreWritesReadableStamp(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "app.jar")
	writeArchive(t, path)
	h := openHandle(t, path)
	c, err := New("", nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	populate(t, c, h, extract.ScriptingRule("", "", []string{}))

	stamp, err := c.ReadStamp(FingerprintOf(h), "scripting")
	if err != nil {
		t.Fatalf("read stamp: %v", err)
	}
	if stamp.Archive != h.Path() || stamp.Rule != "scripting" {
		t.Fatalf("unexpected stamp: %+v", stamp)
	}
	if len(stamp.Modules) != 2 || stamp.Modules[0] != "META-INF/lib/jruby-core.jar" {
		t.Fatalf("unexpected stamp modules: %v", stamp.Modules)
	}
}

func TestNewRejectsDirOutsideTemp(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	if _, err := New("/var/lib/warboot", nil); !errors.Is(err, extract.ErrOutsideTemp) {
		t.Fatalf("expected ErrOutsideTemp, got %v", err)
	}
}

func TestInvalidFingerprint(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	c, err := New("", nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	for _, fp := range []Fingerprint{"", "..", "a/b"} {
		if _, _, err := c.Lookup(fp, "scripting"); !errors.Is(err, ErrFingerprint) {
			t.Fatalf("expected ErrFingerprint for %q, got %v", fp, err)
		}
	}
	if _, _, err := c.Lookup("deadbeefdeadbeef", "../server"); !errors.Is(err, ErrFingerprint) {
		t.Fatalf("expected ErrFingerprint for a path-like rule, got %v", err)
	}
}

func TestRuleChangeMissesAndKeepsTreesApart(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "app.war")
	ziptest.Write(t, path, nil,
		ziptest.File("META-INF/lib/jruby-core.jar", "core"),
		ziptest.File("META-INF/main.rb", "puts 1"),
		ziptest.File(extract.ServerPropertiesEntry, "mainclass = demo.Server\n"),
		ziptest.File("WEB-INF/webserver.jar", "server"),
	)
	c, err := New("", nil)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	scripting, _ := populate(t, c, openHandle(t, path), extract.ScriptingRule("", "", []string{}))
	server, hit := populate(t, c, openHandle(t, path), extract.ServerRule())
	if hit {
		t.Fatalf("server lookup must not reuse the scripting tree")
	}
	if server.Root() == scripting.Root() {
		t.Fatalf("both rules staged into %s", server.Root())
	}
	if _, err := os.Stat(server.Path(extract.ServerPropertiesEntry)); err != nil {
		t.Fatalf("server tree missing properties: %v", err)
	}

	// a stamp for another rule in the expected place is still a miss
	fp := FingerprintOf(openHandle(t, path))
	stamp, err := os.ReadFile(filepath.Join(scripting.Root(), StampFile))
	if err != nil {
		t.Fatalf("read stamp: %v", err)
	}
	if err := os.WriteFile(filepath.Join(server.Root(), StampFile), stamp, 0o644); err != nil {
		t.Fatalf("write stamp: %v", err)
	}
	if _, hit, err := c.Lookup(fp, "server"); err != nil || hit {
		t.Fatalf("expected miss for mismatched stamp rule, got hit=%v err=%v", hit, err)
	}
}
