// Package config parses dataset configuration: key=value text (spec.md §6),
// one stanza per dataset. Grounded on the teacher's functional-options
// pattern (Epokhe-bitdb/core/db.go's core.Option/core.WithFsync) generalized
// into validated accessors over a parsed key=value map instead of call-site
// options, since dataset config is read from disk rather than constructed
// in code.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/arkimet/dsengine/arkerrs"
)

// Type is the dataset kind (spec.md §6).
type Type string

const (
	TypeOndisk2    Type = "ondisk2"
	TypeSimple     Type = "simple"
	TypeRemote     Type = "remote"
	TypeFile       Type = "file"
	TypeDiscard    Type = "discard"
	TypeError      Type = "error"
	TypeDuplicates Type = "duplicates"
)

// Step is the dataset's segment-naming step function (spec.md §4.7).
type Step string

const (
	StepYearly     Step = "yearly"
	StepMonthly    Step = "monthly"
	StepWeekly     Step = "weekly"
	StepDaily      Step = "daily"
	StepSinglefile Step = "singlefile"
)

// Replace is the duplicate-handling policy (spec.md §4.7).
type Replace string

const (
	ReplaceNo  Replace = ""
	ReplaceYes Replace = "yes"
	ReplaceUSN Replace = "USN"
)

// SegmentsLayout selects the on-disk segment kind family (spec.md §6's
// `segments` key): `default` lets format dictate concat vs lines, `dir`
// forces one-file-per-message directories.
type SegmentsLayout string

const (
	SegmentsDefault SegmentsLayout = "default"
	SegmentsDir     SegmentsLayout = "dir"
)

// Dataset is one parsed dataset configuration stanza.
type Dataset struct {
	Name        string
	Path        string
	Type        Type
	Format      string
	Step        Step
	Unique      []string
	Index       []string
	Segments    SegmentsLayout
	Replace     Replace
	ArchiveAge  int
	DeleteAge   int
	Restrict    []string
	Extra       map[string]string
}

// Parse reads a key=value stanza from r (spec.md §6's `config` file: one
// dataset per file, or a section within a merged config). Blank lines and
// lines starting with `#` are skipped. Unknown keys are preserved in Extra
// rather than rejected, since the original format is extensible per
// dataset type.
func Parse(r io.Reader) (*Dataset, error) {
	d := &Dataset{
		Segments: SegmentsDefault,
		Extra:    make(map[string]string),
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "[") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, arkerrs.NewConfigError(nil, "malformed config line: "+line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if err := d.apply(key, value); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, arkerrs.NewConfigError(err, "read config")
	}

	return d, d.validate()
}

func (d *Dataset) apply(key, value string) error {
	switch key {
	case "name":
		d.Name = value
	case "path":
		d.Path = value
	case "type":
		d.Type = Type(value)
	case "format":
		d.Format = value
	case "step":
		d.Step = Step(value)
	case "unique":
		d.Unique = splitCSV(value)
	case "index":
		d.Index = splitCSV(value)
	case "segments":
		d.Segments = SegmentsLayout(value)
	case "replace":
		d.Replace = Replace(value)
	case "archive age":
		n, err := strconv.Atoi(value)
		if err != nil {
			return arkerrs.NewConfigError(err, "invalid archive age").WithKey(key)
		}
		d.ArchiveAge = n
	case "delete age":
		n, err := strconv.Atoi(value)
		if err != nil {
			return arkerrs.NewConfigError(err, "invalid delete age").WithKey(key)
		}
		d.DeleteAge = n
	case "restrict":
		d.Restrict = splitCSV(value)
	default:
		d.Extra[key] = value
	}
	return nil
}

func splitCSV(value string) []string {
	var out []string
	for _, f := range strings.Split(value, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// validate rejects stanzas missing required keys or carrying unknown
// enumerated values, raising arkerrs.ConfigError per spec.md §7.
func (d *Dataset) validate() error {
	if d.Name == "" {
		return arkerrs.NewConfigError(nil, "missing required key").WithKey("name")
	}
	switch d.Type {
	case TypeOndisk2, TypeSimple, TypeRemote, TypeFile, TypeDiscard, TypeError, TypeDuplicates:
	case "":
		return arkerrs.NewConfigError(nil, "missing required key").WithKey("type")
	default:
		return arkerrs.NewConfigError(nil, fmt.Sprintf("unknown dataset type %q", d.Type)).WithKey("type")
	}

	// Only storage-backed dataset types require step/format/unique.
	if d.Type == TypeOndisk2 || d.Type == TypeSimple {
		switch d.Step {
		case StepYearly, StepMonthly, StepWeekly, StepDaily, StepSinglefile:
		case "":
			return arkerrs.NewConfigError(nil, "missing required key").WithKey("step")
		default:
			return arkerrs.NewConfigError(nil, fmt.Sprintf("unknown step %q", d.Step)).WithKey("step")
		}
		if len(d.Unique) == 0 {
			return arkerrs.NewConfigError(nil, "missing required key").WithKey("unique")
		}
		if d.Format == "" {
			return arkerrs.NewConfigError(nil, "missing required key").WithKey("format")
		}
	}

	switch d.Segments {
	case SegmentsDefault, SegmentsDir:
	default:
		return arkerrs.NewConfigError(nil, fmt.Sprintf("unknown segments layout %q", d.Segments)).WithKey("segments")
	}

	switch d.Replace {
	case ReplaceNo, ReplaceYes, ReplaceUSN:
	default:
		return arkerrs.NewConfigError(nil, fmt.Sprintf("unknown replace policy %q", d.Replace)).WithKey("replace")
	}

	return nil
}
