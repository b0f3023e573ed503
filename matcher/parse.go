package matcher

import (
	"strconv"
	"strings"
	"time"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/timeutil"
)

// Parse builds a Matcher from the small text subset the engine needs from
// the matcher grammar (full grammar parsing is an external concern,
// spec.md §1): semicolon-separated "type:atom1 or atom2 or ..." clauses,
// where atoms for most types look like "Style,field1,field2" and reftime
// atoms look like "=YYYY-MM-DD", ">=YYYY-MM-DD[THH:MM:SS]", "<=...", or the
// relative forms ">=today - Nd" / "<=today + Nd".
func Parse(text string, aliases AliasTable) (*Matcher, error) {
	m := New()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}

	for _, clause := range strings.Split(text, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		typeName, body, ok := strings.Cut(clause, ":")
		if !ok {
			return nil, arkerrs.NewMatcherError(nil, "missing ':' in clause").WithText(clause)
		}
		typeName = strings.TrimSpace(typeName)
		body = strings.TrimSpace(body)

		if aliases != nil {
			expanded, err := aliases.expand(typeName, body)
			if err != nil {
				return nil, err
			}
			body = expanded
		}

		if strings.EqualFold(typeName, "reftime") {
			if err := parseReftimeClause(m, body); err != nil {
				return nil, err
			}
			continue
		}

		code, ok := typeCodeByName(typeName)
		if !ok {
			return nil, arkerrs.NewMatcherError(nil, "unknown type name '"+typeName+"'").WithText(clause)
		}

		var atoms []Atom
		for _, part := range strings.Split(body, " or ") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			fields := strings.Split(part, ",")
			style := strings.TrimSpace(fields[0])
			rest := make([]string, 0, len(fields)-1)
			for _, f := range fields[1:] {
				rest = append(rest, strings.TrimSpace(f))
			}
			atoms = append(atoms, NewAtom(style, rest...))
		}
		if len(atoms) == 0 {
			return nil, arkerrs.NewMatcherError(nil, "empty predicate for "+typeName).WithText(clause)
		}
		m.WithPredicate(code, atoms...)
	}

	return m, nil
}

func parseReftimeClause(m *Matcher, body string) error {
	for _, part := range strings.Split(body, " or ") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		iv, err := parseReftimeAtom(part)
		if err != nil {
			return err
		}
		m.WithReftime(iv, part)
	}
	return nil
}

func parseReftimeAtom(text string) (timeutil.Interval, error) {
	switch {
	case strings.HasPrefix(text, "="):
		t, err := parseReftimeTime(strings.TrimPrefix(text, "="))
		if err != nil {
			return timeutil.Interval{}, err
		}
		lo := t
		hi := t.AddOneDay()
		return timeutil.Interval{Begin: &lo, End: &hi}, nil
	case strings.HasPrefix(text, ">="):
		t, err := parseReftimeTime(strings.TrimPrefix(text, ">="))
		if err != nil {
			return timeutil.Interval{}, err
		}
		return timeutil.Interval{Begin: &t}, nil
	case strings.HasPrefix(text, "<="):
		t, err := parseReftimeTime(strings.TrimPrefix(text, "<="))
		if err != nil {
			return timeutil.Interval{}, err
		}
		return timeutil.Interval{End: &t}, nil
	}
	return timeutil.Interval{}, arkerrs.NewMatcherError(nil, "unrecognized reftime atom").WithText(text)
}

// parseReftimeTime accepts an absolute "YYYY-MM-DD[THH:MM:SS]" or a
// relative "today [+-] Nd" expression (days before/after the current UTC
// date at midnight), per spec.md §4.3's "relative forms".
func parseReftimeTime(text string) (timeutil.Time, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "today") || strings.HasPrefix(text, "now") {
		return parseRelativeTime(text)
	}

	text = strings.TrimSuffix(text, "Z")
	datePart, timePart, _ := strings.Cut(text, "T")
	dparts := strings.Split(datePart, "-")
	if len(dparts) != 3 {
		return timeutil.Time{}, arkerrs.NewMatcherError(nil, "malformed reftime date").WithText(text)
	}
	y, err := strconv.Atoi(dparts[0])
	if err != nil {
		return timeutil.Time{}, arkerrs.NewMatcherError(err, "malformed reftime year").WithText(text)
	}
	mo, err := strconv.Atoi(dparts[1])
	if err != nil {
		return timeutil.Time{}, arkerrs.NewMatcherError(err, "malformed reftime month").WithText(text)
	}
	d, err := strconv.Atoi(dparts[2])
	if err != nil {
		return timeutil.Time{}, arkerrs.NewMatcherError(err, "malformed reftime day").WithText(text)
	}
	t := timeutil.Time{Year: y, Month: mo, Day: d}

	if timePart != "" {
		tparts := strings.Split(timePart, ":")
		if len(tparts) != 3 {
			return timeutil.Time{}, arkerrs.NewMatcherError(nil, "malformed reftime time").WithText(text)
		}
		if t.Hour, err = strconv.Atoi(tparts[0]); err != nil {
			return timeutil.Time{}, arkerrs.NewMatcherError(err, "malformed reftime hour").WithText(text)
		}
		if t.Minute, err = strconv.Atoi(tparts[1]); err != nil {
			return timeutil.Time{}, arkerrs.NewMatcherError(err, "malformed reftime minute").WithText(text)
		}
		if t.Second, err = strconv.Atoi(tparts[2]); err != nil {
			return timeutil.Time{}, arkerrs.NewMatcherError(err, "malformed reftime second").WithText(text)
		}
	}
	return t, nil
}

func parseRelativeTime(text string) (timeutil.Time, error) {
	now := time.Now().UTC()
	base := timeutil.Time{Year: now.Year(), Month: int(now.Month()), Day: now.Day()}

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(text, "today"), "now"))
	if rest == "" {
		return base, nil
	}

	sign := 1
	switch {
	case strings.HasPrefix(rest, "-"):
		sign = -1
		rest = strings.TrimPrefix(rest, "-")
	case strings.HasPrefix(rest, "+"):
		rest = strings.TrimPrefix(rest, "+")
	default:
		return timeutil.Time{}, arkerrs.NewMatcherError(nil, "expected +/- after today/now").WithText(text)
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSuffix(rest, "d")
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return timeutil.Time{}, arkerrs.NewMatcherError(err, "malformed relative day offset").WithText(text)
	}

	days := sign * n
	t := base
	if days >= 0 {
		for i := 0; i < days; i++ {
			t = t.AddOneDay()
		}
	} else {
		for i := 0; i < -days; i++ {
			t = t.SubOneDay()
		}
	}
	return t, nil
}

func typeCodeByName(name string) (metadata.TypeCode, bool) {
	return metadata.TypeCodeByName(name)
}
