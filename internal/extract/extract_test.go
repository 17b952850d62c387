package extract

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/danmuck/warboot/internal/archive"
	"github.com/danmuck/warboot/internal/testutil/testlog"
	"github.com/danmuck/warboot/internal/testutil/ziptest"
)

func openArchive(t *testing.T, entries ...ziptest.Entry) *archive.Handle {
	t.Helper()
	path := ziptest.Write(t, filepath.Join(t.TempDir(), "app.jar"), nil, entries...)
	h, err := archive.Open(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func newWorkDir(t *testing.T) *WorkDir {
	t.Helper()
	t.Setenv("TMPDIR", t.TempDir())
	wd, err := NewWorkDir("warboot-test")
	if err != nil {
		t.Fatalf("new work dir: %v", err)
	}
	return wd
}

func countFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return files
}

func TestScriptingRuleMatch(t *testing.T) {
	rule := ScriptingRule("", "", []string{})
	cases := map[string]bool{
		"META-INF/lib/jruby-core.jar":      true,
		"META-INF/lib/nested/dep.jar":      true,
		"META-INF/lib/":                    true,
		"META-INF/lib/readme.txt":          false,
		"META-INF/library.jar":             false,
		"WEB-INF/lib/other.jar":            false,
		"META-INF/MANIFEST.MF":             false,
		"META-INF/lib/jruby-stdlib.jar.sh": false,
	}
	for name, want := range cases {
		if got := rule.Match(name); got != want {
			t.Fatalf("Match(%q) = %v, want %v", name, got, want)
		}
	}
	if rule.IsModule("META-INF/lib/") {
		t.Fatalf("directory must not be a module")
	}
}

func TestScriptingRuleStagedResources(t *testing.T) {
	rule := ScriptingRule("", "", nil)
	if !rule.Match("bin/rails") || !rule.Match("META-INF/init.rb") || !rule.Match("META-INF/gems/specifications/x.gemspec") {
		t.Fatalf("expected default staged resources to match")
	}
	if rule.IsModule("bin/rails") {
		t.Fatalf("staged resource must not be a module")
	}
	if rule.Match("META-INF/init.rb.bak") {
		t.Fatalf("exact staged names must not match by prefix")
	}
}

func TestServerRuleMatchesExactPair(t *testing.T) {
	rule := ServerRule()
	if !rule.Match(ServerPropertiesEntry) || !rule.Match(ServerJarEntry) {
		t.Fatalf("expected server pair to match")
	}
	if rule.Match("WEB-INF/lib/app.jar") || rule.Match(ServerConfigEntry) {
		t.Fatalf("server rule must match nothing else")
	}
	if !rule.IsModule(ServerJarEntry) || rule.IsModule(ServerPropertiesEntry) {
		t.Fatalf("only the server jar is a module")
	}
}

func TestExtractStagesOnlyMatchingEntries(t *testing.T) {
	testlog.Start(t)
	h := openArchive(t,
		ziptest.Dir("META-INF/lib/"),
		ziptest.File("META-INF/lib/jruby-core.jar", "core"),
		ziptest.File("META-INF/lib/jruby-stdlib.jar", "stdlib"),
		ziptest.File("META-INF/lib/ext/openssl.jar", "openssl"),
		ziptest.File("META-INF/MANIFEST.MF", "Manifest-Version: 1.0"),
		ziptest.File("META-INF/lib/notes.txt", "ignored"),
		ziptest.File("app/models/user.rb", "class User; end"),
	)
	wd := newWorkDir(t)

	plan, err := Extractor{}.Extract(h, ScriptingRule("", "", []string{}), wd)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if plan.Files() != 3 {
		t.Fatalf("expected 3 staged files, got %d", plan.Files())
	}
	files := countFiles(t, wd.Root())
	if len(files) != 3 {
		t.Fatalf("expected exactly 3 files on disk, got %v", files)
	}
	modules := plan.Modules()
	if len(modules) != 3 || !strings.HasSuffix(modules[0], filepath.FromSlash("META-INF/lib/jruby-core.jar")) {
		t.Fatalf("unexpected modules: %v", modules)
	}
	data, err := os.ReadFile(modules[2])
	if err != nil || string(data) != "openssl" {
		t.Fatalf("unexpected module content %q: %v", data, err)
	}
	if info, err := os.Stat(wd.Path("META-INF/lib")); err != nil || !info.IsDir() {
		t.Fatalf("expected directory placeholder: %v", err)
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	testlog.Start(t)
	h := openArchive(t,
		ziptest.File("META-INF/lib/../../../../evil.jar", "evil"),
		ziptest.File("META-INF/lib/../../../escape.jar", "evil"),
		ziptest.File("META-INF/lib/good.jar", "good"),
	)
	wd := newWorkDir(t)

	plan, err := Extractor{}.Extract(h, ScriptingRule("", "", []string{}), wd)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(plan.Items) != 1 || plan.Items[0].Entry != "META-INF/lib/good.jar" {
		t.Fatalf("unexpected staged items: %+v", plan.Items)
	}
	if len(plan.Skipped) != 2 {
		t.Fatalf("expected 2 skipped entries, got %+v", plan.Skipped)
	}
	for _, s := range plan.Skipped {
		if !errors.Is(s.Err, ErrEscapesRoot) {
			t.Fatalf("expected ErrEscapesRoot, got %v", s.Err)
		}
	}
	for _, f := range countFiles(t, filepath.Dir(wd.Root())) {
		if strings.Contains(f, "evil") || strings.Contains(f, "escape") {
			t.Fatalf("escaping entry written: %s", f)
		}
	}
}

func TestResolveDestinationRejectsAbsolute(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"/etc/passwd", "..", "../x", "a/../../x", ""} {
		if _, err := resolveDestination(root, name); !errors.Is(err, ErrEscapesRoot) {
			t.Fatalf("expected ErrEscapesRoot for %q, got %v", name, err)
		}
	}
	dest, err := resolveDestination(root, "a/./b/../c.jar")
	if err != nil || dest != filepath.Join(root, "a", "c.jar") {
		t.Fatalf("unexpected dest %q: %v", dest, err)
	}
}

func TestExtractServerPair(t *testing.T) {
	h := openArchive(t,
		ziptest.File(ServerPropertiesEntry, "mainclass=demo.Server\n"),
		ziptest.File(ServerJarEntry, "jar"),
		ziptest.File(ServerConfigEntry, "<Configure/>"),
		ziptest.File("WEB-INF/lib/app.jar", "app"),
	)
	wd := newWorkDir(t)

	plan, err := Extractor{}.Extract(h, ServerRule(), wd)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	files := countFiles(t, wd.Root())
	if len(files) != 2 {
		t.Fatalf("expected only the server pair, got %v", files)
	}
	if mods := plan.Modules(); len(mods) != 1 || filepath.Base(mods[0]) != "webserver.jar" {
		t.Fatalf("unexpected modules: %v", mods)
	}
}

func TestExtractPreservesExecutableMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not preserved on windows")
	}
	h := openArchive(t, ziptest.Entry{Name: "bin/rails", Body: []byte("#!/usr/bin/env ruby\n"), Mode: 0o755})
	wd := newWorkDir(t)

	if _, err := (Extractor{}).Extract(h, ScriptingRule("", "", nil), wd); err != nil {
		t.Fatalf("extract: %v", err)
	}
	info, err := os.Stat(wd.Path("bin/rails"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("expected executable bit, got %v", info.Mode())
	}
}

func TestExtractRefusesPlantedSymlink(t *testing.T) {
	h := openArchive(t, ziptest.File("META-INF/lib/dep.jar", "dep"))
	wd := newWorkDir(t)
	outside := t.TempDir()
	if err := os.MkdirAll(wd.Path("META-INF"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(outside, wd.Path("META-INF/lib")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	plan, err := Extractor{}.Extract(h, ScriptingRule("", "", []string{}), wd)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(plan.Items) != 0 || len(plan.Skipped) != 1 {
		t.Fatalf("expected entry to be skipped: %+v", plan)
	}
	if _, err := os.Stat(filepath.Join(outside, "dep.jar")); !os.IsNotExist(err) {
		t.Fatalf("write escaped through symlink: %v", err)
	}
}

func TestExtractRefusesDirectoryUnderPlantedSymlink(t *testing.T) {
	h := openArchive(t,
		ziptest.Dir("META-INF/gems/specifications/"),
		ziptest.File("META-INF/gems/specifications/rack.gemspec", "spec"),
	)
	wd := newWorkDir(t)
	outside := t.TempDir()
	if err := os.MkdirAll(wd.Path("META-INF"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(outside, wd.Path("META-INF/gems")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	plan, err := Extractor{}.Extract(h, ScriptingRule("", "", nil), wd)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(plan.Items) != 0 || len(plan.Skipped) != 2 {
		t.Fatalf("expected both entries to be skipped: %+v", plan)
	}
	if _, err := os.Stat(filepath.Join(outside, "specifications")); !os.IsNotExist(err) {
		t.Fatalf("directory created through symlink: %v", err)
	}
}

func TestNewWorkDirInsideTemp(t *testing.T) {
	wd := newWorkDir(t)
	if !Within(wd.Root(), TempRoot()) {
		t.Fatalf("work dir %s outside temp %s", wd.Root(), TempRoot())
	}
	if wd.State() != StateFresh {
		t.Fatalf("unexpected state: %v", wd.State())
	}
	info, err := os.Stat(wd.Root())
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory: %v", err)
	}
}

func TestAdoptWorkDirOutsideTemp(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	elsewhere, err := os.MkdirTemp(filepath.Dir(os.Getenv("TMPDIR")), "elsewhere")
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	defer os.RemoveAll(elsewhere)
	if _, err := AdoptWorkDir(elsewhere, StateReused); !errors.Is(err, ErrOutsideTemp) {
		t.Fatalf("expected ErrOutsideTemp, got %v", err)
	}
}
