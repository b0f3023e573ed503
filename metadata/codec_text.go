package metadata

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/timeutil"
)

// EncodeText renders a record in the human-readable "Key: value" form
// (spec.md §4.1's text form), one field per line, blank line terminated.
func EncodeText(r *Record) string {
	var b strings.Builder

	for _, it := range r.Items {
		fmt.Fprintf(&b, "%s: %s\n", it.Code, it.String())
	}

	if r.Reftime.Begin != nil || r.Reftime.End != nil {
		fmt.Fprintf(&b, "Reftime: %s\n", reftimeText(r.Reftime))
	}

	for _, n := range r.Notes {
		fmt.Fprintf(&b, "Note: [%s] %s\n", n.Time, n.Text)
	}

	fmt.Fprintf(&b, "Source: %s\n", r.Source.String())
	b.WriteString("\n")

	return b.String()
}

func reftimeText(iv timeutil.Interval) string {
	switch {
	case iv.Begin != nil && iv.End != nil:
		return fmt.Sprintf(">=%s,<=%s", iv.Begin.String(), iv.End.String())
	case iv.Begin != nil:
		return fmt.Sprintf(">=%s", iv.Begin.String())
	case iv.End != nil:
		return fmt.Sprintf("<=%s", iv.End.String())
	default:
		return ""
	}
}

// DecodeText parses one record out of r, stopping at the first blank line.
// Returns io.EOF if r is exhausted before any field is read.
func DecodeText(r io.Reader) (*Record, error) {
	rec := NewRecord()
	scanner := bufio.NewScanner(r)
	sawField := false

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if sawField {
				return rec, nil
			}
			continue
		}
		sawField = true

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, arkerrs.NewCodecError(nil, "malformed text line: "+line).WithStage("text-line")
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if err := applyTextField(rec, key, value); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, arkerrs.NewCodecError(err, "error scanning text record").WithStage("text-scan")
	}
	if !sawField {
		return nil, io.EOF
	}
	return rec, nil
}

func applyTextField(rec *Record, key, value string) error {
	switch strings.ToLower(key) {
	case "reftime":
		iv, err := parseReftimeText(value)
		if err != nil {
			return err
		}
		rec.Reftime = iv
		return nil
	case "note":
		t, text, ok := strings.Cut(strings.TrimPrefix(value, "["), "]")
		if !ok {
			rec.AddNote(Note{Text: value})
			return nil
		}
		rec.AddNote(Note{Time: t, Text: strings.TrimSpace(text)})
		return nil
	case "source":
		return nil // sources are reconstructed by the caller from segment placement, not parsed back from text
	}

	code, ok := typeCodeByName(key)
	if !ok {
		return nil // unknown field name: skip, matching the binary codec's unknown-type-code tolerance
	}
	parts := strings.Split(value, ",")
	if len(parts) == 0 {
		return arkerrs.NewCodecError(nil, "empty item value for "+key).WithStage("text-item")
	}
	rec.Set(NewItem(code, parts[0], parts[1:]...))
	return nil
}

func parseReftimeText(value string) (timeutil.Interval, error) {
	var iv timeutil.Interval
	for _, clause := range strings.Split(value, ",") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, ">="):
			t, err := parseTimeText(strings.TrimPrefix(clause, ">="))
			if err != nil {
				return iv, err
			}
			iv.Begin = &t
		case strings.HasPrefix(clause, "<="):
			t, err := parseTimeText(strings.TrimPrefix(clause, "<="))
			if err != nil {
				return iv, err
			}
			iv.End = &t
		}
	}
	return iv, nil
}

func parseTimeText(s string) (timeutil.Time, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	datePart, timePart, _ := strings.Cut(s, "T")
	var t timeutil.Time
	var err error
	dparts := strings.Split(datePart, "-")
	if len(dparts) != 3 {
		return t, arkerrs.NewCodecError(nil, "malformed reftime date: "+s).WithStage("text-reftime")
	}
	if t.Year, err = strconv.Atoi(dparts[0]); err != nil {
		return t, arkerrs.NewCodecError(err, "malformed reftime year").WithStage("text-reftime")
	}
	if t.Month, err = strconv.Atoi(dparts[1]); err != nil {
		return t, arkerrs.NewCodecError(err, "malformed reftime month").WithStage("text-reftime")
	}
	if t.Day, err = strconv.Atoi(dparts[2]); err != nil {
		return t, arkerrs.NewCodecError(err, "malformed reftime day").WithStage("text-reftime")
	}
	if timePart != "" {
		tparts := strings.Split(timePart, ":")
		if len(tparts) != 3 {
			return t, arkerrs.NewCodecError(nil, "malformed reftime time: "+s).WithStage("text-reftime")
		}
		if t.Hour, err = strconv.Atoi(tparts[0]); err != nil {
			return t, arkerrs.NewCodecError(err, "malformed reftime hour").WithStage("text-reftime")
		}
		if t.Minute, err = strconv.Atoi(tparts[1]); err != nil {
			return t, arkerrs.NewCodecError(err, "malformed reftime minute").WithStage("text-reftime")
		}
		if t.Second, err = strconv.Atoi(tparts[2]); err != nil {
			return t, arkerrs.NewCodecError(err, "malformed reftime second").WithStage("text-reftime")
		}
	}
	return t, nil
}
