// Structured error types for lookup and validation failures.
//
// Every lookup error carries the invalid identifier plus the full candidate
// set so the message can suggest the closest known name. Suggestion picks
// the candidate minimizing the symmetric difference of character sets; ties
// go to the earliest candidate.

package docdb

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoData is returned when a mutation is called without a row key or data.
var ErrNoData = errors.New("no row key or data provided")

// closestMatch returns the candidate whose character set differs least from
// name, or "" if candidates is empty.
func closestMatch(name string, candidates []string) string {
	best := ""
	bestScore := -1
	for _, c := range candidates {
		score := symmetricDiff(name, c)
		if bestScore < 0 || score < bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

// symmetricDiff counts runes present in exactly one of a and b.
func symmetricDiff(a, b string) int {
	inA := map[rune]bool{}
	for _, r := range a {
		inA[r] = true
	}
	inB := map[rune]bool{}
	for _, r := range b {
		inB[r] = true
	}
	n := 0
	for r := range inA {
		if !inB[r] {
			n++
		}
	}
	for r := range inB {
		if !inA[r] {
			n++
		}
	}
	return n
}

// suggestion formats the "Did you mean" suffix, or "" without candidates.
func suggestion(name string, candidates []string) string {
	m := closestMatch(name, candidates)
	if m == "" {
		return ""
	}
	return fmt.Sprintf(". Did you mean %q?", m)
}

// TableExistsError is returned when creating a table whose name is taken.
type TableExistsError struct {
	Table string
}

func (e *TableExistsError) Error() string {
	return fmt.Sprintf("table %q already exists", e.Table)
}

// NoSuchTableError is returned when an operation names an unknown table.
type NoSuchTableError struct {
	Table  string
	Tables []string
}

func (e *NoSuchTableError) Error() string {
	return fmt.Sprintf("no such table: %q%s", e.Table, suggestion(e.Table, e.Tables))
}

// NoSuchColumnError is returned when row data or a projection references a
// column the table does not declare.
type NoSuchColumnError struct {
	Column  string
	Columns []string
}

func (e *NoSuchColumnError) Error() string {
	return fmt.Sprintf("no such column: %q%s", e.Column, suggestion(e.Column, e.Columns))
}

// NoSuchKeyError is returned when a keyed operation names an unknown row.
type NoSuchKeyError struct {
	Key  string
	Keys []string
}

func (e *NoSuchKeyError) Error() string {
	return fmt.Sprintf("no such row: %q%s", e.Key, suggestion(e.Key, e.Keys))
}

// DuplicateKeyError is returned when inserting a row key that already exists.
type DuplicateKeyError struct {
	Table string
	Key   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("row %q already exists in table %q", e.Key, e.Table)
}

// UnknownDatatypeError is returned when a declared column datatype is not
// one of the supported primitives or a "LIST OF <primitive>" form.
type UnknownDatatypeError struct {
	Type  string
	Valid []string
}

func (e *UnknownDatatypeError) Error() string {
	return fmt.Sprintf("unknown datatype: %q (valid: %s)%s",
		e.Type, strings.Join(e.Valid, ", "), suggestion(e.Type, e.Valid))
}

// WrongDataTypeError is returned when type enforcement is enabled and a
// value does not match the column's declared datatype.
type WrongDataTypeError struct {
	Column string
	Want   Datatype
	Got    any
}

func (e *WrongDataTypeError) Error() string {
	return fmt.Sprintf("wrong data type for column %q: want %s, got %T", e.Column, e.Want, e.Got)
}
