package archive

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	Scheme       = "jar"
	uriPrefix    = Scheme + ":file:"
	uriSeparator = "!/"
)

// EntryURI formats "jar:file:<container>!/<entry>". Entry segments are
// percent-escaped, "!" included, so the last separator is unambiguous.
func EntryURI(container string, entry string) string {
	segments := strings.Split(entry, "/")
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(url.PathEscape(seg), "!", "%21")
	}
	return uriPrefix + container + uriSeparator + strings.Join(segments, "/")
}

// ParseEntryURI splits a nested URI into container path and entry name.
// Invalid escapes, invalid UTF-8 and NUL bytes are ErrMalformedURI.
func ParseEntryURI(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, uriPrefix) {
		return "", "", fmt.Errorf("%w: %q: missing %s prefix", ErrMalformedURI, uri, uriPrefix)
	}
	rest := uri[len(uriPrefix):]
	i := strings.LastIndex(rest, uriSeparator)
	if i <= 0 {
		return "", "", fmt.Errorf("%w: %q: missing %q separator", ErrMalformedURI, uri, uriSeparator)
	}
	container := rest[:i]
	entry, err := url.PathUnescape(rest[i+len(uriSeparator):])
	if err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrMalformedURI, uri, err)
	}
	if entry == "" {
		return "", "", fmt.Errorf("%w: %q: empty entry", ErrMalformedURI, uri)
	}
	if !utf8.ValidString(entry) || strings.ContainsRune(entry, 0) {
		return "", "", fmt.Errorf("%w: %q: illegal characters in entry name", ErrMalformedURI, uri)
	}
	return container, entry, nil
}
