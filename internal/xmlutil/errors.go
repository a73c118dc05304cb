package xmlutil

import (
	"errors"
	"fmt"
)

// Domain errors for the xmlutil package.
var (
	// ErrEmptyDocument is returned when the input contains no XML content.
	ErrEmptyDocument = errors.New("xmlutil: empty document")

	// ErrNoRoot is returned when no root element could be recovered
	// by any parsing stage.
	ErrNoRoot = errors.New("xmlutil: no root element")
)

// ParseError describes a parse failure, including which stage produced it.
// It wraps the underlying decoder error so errors.Is/As still work.
type ParseError struct {
	// Stage is the parsing stage that failed: "strict", "lenient" or "partial".
	Stage string

	// Err is the underlying error from the XML decoder.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("xmlutil: %s parse failed: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
