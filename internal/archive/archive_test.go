package archive

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/warboot/internal/testutil/testlog"
	"github.com/danmuck/warboot/internal/testutil/ziptest"
)

func TestLocateSelfExtractingArchive(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := ziptest.Write(t, filepath.Join(dir, "app"), []byte("#!launcher-stub\x00\x01\x02"),
		ziptest.File(DefaultMarker, "mode = \"scripting\"\n"),
		ziptest.File("META-INF/lib/jruby.jar", "jar"),
	)

	// a working directory unrelated to the archive must not matter
	oldWD, wdErr := os.Getwd()
	if wdErr != nil {
		t.Fatalf("getwd: %v", wdErr)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	h, err := Locator{Executable: func() (string, error) { return path, nil }}.Locate()
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	defer h.Close()

	want, _ := filepath.EvalSymlinks(path)
	if h.Path() != want {
		t.Fatalf("unexpected path: %q", h.Path())
	}
	data, err := h.ReadEntry("META-INF/lib/jruby.jar")
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if string(data) != "jar" {
		t.Fatalf("unexpected entry data: %q", data)
	}
}

func TestLocateFollowsSymlinkedExecutable(t *testing.T) {
	dir := t.TempDir()
	path := ziptest.Write(t, filepath.Join(dir, "real", "app.war"), nil, ziptest.File(DefaultMarker, ""))
	link := filepath.Join(dir, "app")
	if err := os.Symlink(path, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	h, err := Locator{Executable: func() (string, error) { return link, nil }}.Locate()
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	defer h.Close()
	want, _ := filepath.EvalSymlinks(path)
	if h.Path() != want {
		t.Fatalf("expected resolved path %q, got %q", want, h.Path())
	}
}

func TestLocateMissingMarker(t *testing.T) {
	path := ziptest.Write(t, filepath.Join(t.TempDir(), "plain.zip"), nil, ziptest.File("README", "x"))
	_, err := Locator{Executable: func() (string, error) { return path, nil }}.Locate()
	if !errors.Is(err, ErrLocate) {
		t.Fatalf("expected ErrLocate, got %v", err)
	}
}

func TestLocateUnpackedBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warboot")
	if err := os.WriteFile(path, []byte("not an archive"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Locator{Executable: func() (string, error) { return path, nil }}.Locate()
	if !errors.Is(err, ErrLocate) {
		t.Fatalf("expected ErrLocate, got %v", err)
	}
}

func TestLocateExecutableError(t *testing.T) {
	_, err := Locator{Executable: func() (string, error) { return "", errors.New("no /proc") }}.Locate()
	if !errors.Is(err, ErrLocate) {
		t.Fatalf("expected ErrLocate, got %v", err)
	}
}

func TestEntryURIRoundTrip(t *testing.T) {
	names := []string{
		"META-INF/lib/jruby-core.jar",
		"WEB-INF/web server.properties",
		"odd/100%/file!.txt",
		"unicode/café.rb",
	}
	for _, name := range names {
		uri := EntryURI("/tmp/app.war", name)
		if !strings.HasPrefix(uri, "jar:file:/tmp/app.war!/") {
			t.Fatalf("unexpected uri: %q", uri)
		}
		container, entry, err := ParseEntryURI(uri)
		if err != nil {
			t.Fatalf("parse %q: %v", uri, err)
		}
		if container != "/tmp/app.war" || entry != name {
			t.Fatalf("round trip mismatch: %q %q", container, entry)
		}
	}
}

func TestParseEntryURIMalformed(t *testing.T) {
	cases := []string{
		"file:/tmp/app.war!/x",
		"jar:file:/tmp/app.war",
		"jar:file:!/x",
		"jar:file:/tmp/app.war!/bad%zzescape",
		"jar:file:/tmp/app.war!/",
		"jar:file:/tmp/app.war!/nul%00byte",
		"jar:file:/tmp/app.war!/latin%E9",
	}
	for _, uri := range cases {
		if _, _, err := ParseEntryURI(uri); !errors.Is(err, ErrMalformedURI) {
			t.Fatalf("expected ErrMalformedURI for %q, got %v", uri, err)
		}
	}
}

func TestOpenURI(t *testing.T) {
	path := ziptest.Write(t, filepath.Join(t.TempDir(), "app.war"), nil, ziptest.File("WEB-INF/webserver.properties", "mainclass=demo.Server\n"))
	h, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	rc, err := h.OpenURI(h.URI("WEB-INF/webserver.properties"))
	if err != nil {
		t.Fatalf("open uri: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "mainclass=demo.Server\n" {
		t.Fatalf("unexpected data: %q", data)
	}

	if _, err := h.OpenURI(EntryURI("/elsewhere.war", "WEB-INF/webserver.properties")); !errors.Is(err, ErrForeignURI) {
		t.Fatalf("expected ErrForeignURI, got %v", err)
	}
	if _, err := h.OpenURI(h.URI("missing")); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}
