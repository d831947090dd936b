// Package jsoncheck verifies that a payload is syntactically valid JSON.
//
// Validation is two-phase. The fast path walks the token stream and discards
// everything it reads, so arbitrarily large payloads are checked without being
// materialized. Only when the fast path rejects the input is it re-read with a
// full parse, solely to obtain a precise diagnostic for the caller.
package jsoncheck

import (
	"bufio"
	"errors"
	"io"
	"sync/atomic"

	gojson "github.com/goccy/go-json"
)

// ErrEmpty is returned when the input contains no JSON value at all.
var ErrEmpty = errors.New("empty payload")

// ErrTrailingContent is returned when a second top-level value follows the
// first. A payload is one JSON value, not a value stream.
var ErrTrailingContent = errors.New("unexpected content after top-level JSON value")

// Streaming checks that r contains exactly one well-formed JSON value.
// It retains no parsed content.
func Streaming(r io.Reader) error {
	dec := gojson.NewDecoder(bufio.NewReader(r))

	depth := 0
	values := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case gojson.Delim:
			switch t {
			case '{', '[':
				if depth == 0 && values > 0 {
					return ErrTrailingContent
				}
				depth++
			case '}', ']':
				depth--
				if depth == 0 {
					values++
				}
			}
		default:
			if depth == 0 {
				if values > 0 {
					return ErrTrailingContent
				}
				values++
			}
		}
	}
	if values == 0 {
		return ErrEmpty
	}

	return nil
}

// Diagnose fully parses r and returns the parser's error message.
// It is the slow path: the whole value is materialized in memory.
func Diagnose(r io.Reader) error {
	dec := gojson.NewDecoder(r)

	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	// The streaming check rejected the input but the full parse accepted it.
	// Trailing garbage after a valid value is the usual culprit.
	if _, err := dec.Token(); err != io.EOF {
		return ErrTrailingContent
	}

	return nil
}

// Validator runs the two-phase check and counts which phases ran,
// so tests can assert the slow path stays cold for valid payloads.
type Validator struct {
	streamed  atomic.Uint64
	diagnosed atomic.Uint64
}

// Validate checks the JSON blob behind rs, rewinding between phases.
// The returned error, if any, carries the diagnostic from the full parse.
func (v *Validator) Validate(rs io.ReadSeeker) error {
	v.streamed.Add(1)
	if err := Streaming(rs); err == nil {
		return nil
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return err
	}

	v.diagnosed.Add(1)
	if err := Diagnose(rs); err != nil {
		return err
	}

	// Both phases disagree; trust the fast path's rejection.
	return errors.New("malformed JSON payload")
}

// StreamedCount returns how many payloads went through the fast path.
func (v *Validator) StreamedCount() uint64 { return v.streamed.Load() }

// DiagnosedCount returns how many payloads needed the slow diagnostic parse.
func (v *Validator) DiagnosedCount() uint64 { return v.diagnosed.Load() }
