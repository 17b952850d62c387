package extract

import "errors"

var (
	ErrExtraction    = errors.New("extract: extraction failed")
	ErrEscapesRoot   = errors.New("extract: destination escapes work directory")
	ErrOutsideTemp   = errors.New("extract: work directory outside temp area")
	ErrInvalidRule   = errors.New("extract: invalid selection rule")
	ErrWorkDirExists = errors.New("extract: work directory already exists")
)
