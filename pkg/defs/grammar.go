package defs

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/mahina/pkg/core"
)

// Discovery output grammar (pcal -Z in definitions-only mode):
//
//	line      = date-field gap name-field
//	date-field = columns 1-10, e.g. "06/14/2023"
//	gap        = columns 11-12
//	name-field = column 13 to end of line, surrounding blanks ignored
//
// Only lines whose first column is a digit are candidates. Everything else is
// the tool's commentary and is skipped.
const (
	dateWidth   = 10
	nameColumn  = 12
	datePattern = `^\d{1,4}[/.\-]\d{1,2}[/.\-]\d{1,4}$`
)

var dateField = regexp.MustCompile(datePattern)

// ErrUnexpectedFormat reports a candidate line that does not follow the
// discovery grammar. It usually means the tool's output format drifted.
var ErrUnexpectedFormat = errors.New("unexpected discovery output format")

// LineError locates a grammar violation.
type LineError struct {
	Line   int
	Text   string
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

func (e *LineError) Unwrap() error { return ErrUnexpectedFormat }

// ParseLine parses one line of discovery output. ok is false for lines that
// are not candidates or that carry an empty name.
func ParseLine(line string) (def core.Definition, ok bool, err error) {
	line = strings.TrimRight(line, "\r")
	if line == "" || line[0] < '0' || line[0] > '9' {
		return core.Definition{}, false, nil
	}
	if len(line) < dateWidth {
		return core.Definition{}, false, fmt.Errorf("truncated date field: %w", ErrUnexpectedFormat)
	}

	date := strings.TrimSpace(line[:dateWidth])
	if !dateField.MatchString(date) {
		return core.Definition{}, false, fmt.Errorf("malformed date %q: %w", date, ErrUnexpectedFormat)
	}
	if len(line) <= nameColumn {
		return core.Definition{}, false, nil
	}
	name := strings.TrimSpace(line[nameColumn:])
	if name == "" {
		return core.Definition{}, false, nil
	}
	return core.Definition{Name: name, Date: date}, true, nil
}

// Parse extracts every definition from discovery output in scan order.
// Grammar violations are collected, not fatal, so one drifting line does not
// hide the rest.
func Parse(output string) ([]core.Definition, []error) {
	var (
		out  []core.Definition
		errs []error
	)
	for i, line := range strings.Split(output, "\n") {
		def, ok, err := ParseLine(line)
		if err != nil {
			errs = append(errs, &LineError{Line: i + 1, Text: line, Reason: err.Error()})
			continue
		}
		if ok {
			out = append(out, def)
		}
	}
	return out, errs
}
