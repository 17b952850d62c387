package archive

import "errors"

var (
	ErrLocate        = errors.New("archive: cannot locate running archive")
	ErrOpen          = errors.New("archive: cannot open archive")
	ErrEntryNotFound = errors.New("archive: entry not found")
	ErrMalformedURI  = errors.New("archive: malformed entry uri")
	ErrForeignURI    = errors.New("archive: entry uri names another container")
)
