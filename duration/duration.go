// Package duration converts clock-style duration strings such as "2:11.0"
// or "1:02:11.0" into a number of seconds.
package duration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmpty         = errors.New("empty duration")
	ErrTooManyFields = errors.New("too many fields")
	ErrInvalidField  = errors.New("invalid field")
	ErrOutOfRange    = errors.New("out of range")
)

// maxDurationSeconds is the longest length a time.Duration can hold.
const maxDurationSeconds = float64(math.MaxInt64) / float64(time.Second)

// ParseError reports a duration string that could not be converted.
type ParseError struct {
	Input string
	Field string // offending field, if any
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parsing duration %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("parsing duration %q: %v %q", e.Input, e.Err, e.Field)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ToLength returns the number of seconds encoded by text, which must be one of
// SS.s, MM:SS.s or HH:MM:SS.s. Only the last field may carry a fraction.
func ToLength(text string) (float64, error) {
	if text == "" {
		return 0, &ParseError{Input: text, Err: ErrEmpty}
	}

	parts := strings.Split(text, ":")
	if len(parts) > 3 {
		return 0, &ParseError{Input: text, Err: ErrTooManyFields}
	}

	last := parts[len(parts)-1]
	if !isDecimal(last) {
		return 0, &ParseError{Input: text, Field: last, Err: ErrInvalidField}
	}
	seconds, err := strconv.ParseFloat(last, 64)
	if errors.Is(err, strconv.ErrRange) {
		return 0, &ParseError{Input: text, Field: last, Err: ErrOutOfRange}
	} else if err != nil {
		return 0, &ParseError{Input: text, Field: last, Err: ErrInvalidField}
	}

	// Remaining fields are minutes then hours, reading right to left.
	unit := 60.0
	for i := len(parts) - 2; i >= 0; i-- {
		if !isDigits(parts[i]) {
			return 0, &ParseError{Input: text, Field: parts[i], Err: ErrInvalidField}
		}
		n, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil {
			return 0, &ParseError{Input: text, Field: parts[i], Err: ErrInvalidField}
		}
		seconds += float64(n) * unit
		unit *= 60
	}
	if math.IsInf(seconds, 0) {
		return 0, &ParseError{Input: text, Err: ErrOutOfRange}
	}

	return seconds, nil
}

// ToDuration is ToLength expressed as a time.Duration. Lengths past roughly
// 292 years do not fit and fail with ErrOutOfRange.
func ToDuration(text string) (time.Duration, error) {
	s, err := ToLength(text)
	if err != nil {
		return 0, err
	}
	if s >= maxDurationSeconds {
		return 0, &ParseError{Input: text, Err: ErrOutOfRange}
	}
	return time.Duration(s * float64(time.Second)), nil
}

// Sum accumulates the lengths of a sequence of stints.
type Sum struct {
	Count   int
	Seconds float64
}

// Add adds seconds to the sum. The sum is left unchanged if the result would
// no longer be finite.
func (s *Sum) Add(seconds float64) error {
	total := s.Seconds + seconds
	if math.IsInf(total, 0) || math.IsNaN(total) {
		return ErrOutOfRange
	}
	s.Count++
	s.Seconds = total
	return nil
}

// Total sums the lengths of texts. It stops at the first entry that fails to
// parse or overflows the sum.
func Total(texts []string) (float64, error) {
	var sum Sum
	for i, text := range texts {
		s, err := ToLength(text)
		if err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
		if err := sum.Add(s); err != nil {
			return 0, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return sum.Seconds, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isDecimal accepts "5", "5.", "5.25" and ".25".
func isDecimal(s string) bool {
	whole, frac, found := strings.Cut(s, ".")
	if !found {
		return isDigits(whole)
	}
	switch {
	case whole == "" && frac == "":
		return false
	case whole == "":
		return isDigits(frac)
	case frac == "":
		return isDigits(whole)
	}
	return isDigits(whole) && isDigits(frac)
}
