package assembler

import "errors"

var (
	// ErrEmptyCatalogue is returned when assembly yields zero usable pages.
	ErrEmptyCatalogue = errors.New("catalogue has no usable pages")
	// ErrUnsupportedInput is returned for inputs which are neither images nor PDFs.
	ErrUnsupportedInput = errors.New("input is neither an image nor a PDF")
)
