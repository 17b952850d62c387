// Package ziptest builds small archives for launcher tests.
package ziptest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Entry is one archive member. Names ending in "/" become directory entries.
type Entry struct {
	Name    string
	Body    []byte
	Mode    os.FileMode
	ModTime time.Time
}

// File is a convenience constructor for a regular entry.
func File(name string, body string) Entry {
	return Entry{Name: name, Body: []byte(body)}
}

// Dir is a convenience constructor for a directory entry.
func Dir(name string) Entry {
	return Entry{Name: name}
}

// Bytes renders entries into an in-memory zip.
func Bytes(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	writeZip(t, &buf, 0, entries)
	return buf.Bytes()
}

// Jar renders a module archive that provides the given class names.
func Jar(t *testing.T, classes ...string) []byte {
	t.Helper()
	entries := []Entry{File("META-INF/MANIFEST.MF", "Manifest-Version: 1.0\n")}
	for _, class := range classes {
		name := ""
		for _, r := range class {
			if r == '.' {
				name += "/"
				continue
			}
			name += string(r)
		}
		entries = append(entries, Entry{Name: name + ".class", Body: []byte{0xCA, 0xFE, 0xBA, 0xBE}})
	}
	return Bytes(t, entries...)
}

// Write creates an archive at path. A non-empty prefix is written ahead of
// the zip data, the way a launcher binary is prepended to a packaged archive.
func Write(t *testing.T, path string, prefix []byte, entries ...Entry) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir archive dir: %v", err)
	}
	var buf bytes.Buffer
	buf.Write(prefix)
	writeZip(t, &buf, int64(len(prefix)), entries)
	if err := os.WriteFile(path, buf.Bytes(), 0o755); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func writeZip(t *testing.T, buf *bytes.Buffer, offset int64, entries []Entry) {
	t.Helper()
	zw := zip.NewWriter(buf)
	zw.SetOffset(offset)
	for _, entry := range entries {
		header := &zip.FileHeader{Name: entry.Name, Method: zip.Deflate}
		if !entry.ModTime.IsZero() {
			header.Modified = entry.ModTime
		}
		mode := entry.Mode
		if mode == 0 {
			mode = 0o644
		}
		if len(entry.Name) > 0 && entry.Name[len(entry.Name)-1] == '/' {
			header.Method = zip.Store
			mode = os.ModeDir | 0o755
		}
		header.SetMode(mode)
		w, err := zw.CreateHeader(header)
		if err != nil {
			t.Fatalf("create entry %q: %v", entry.Name, err)
		}
		if header.Mode().IsDir() {
			continue
		}
		if _, err := w.Write(entry.Body); err != nil {
			t.Fatalf("write entry %q: %v", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
}
