package metadata

import (
	"github.com/arkimet/dsengine/arkerrs"
	"gopkg.in/yaml.v3"
)

// structuredItem is the "i" (item) mapping form: type name, style, and
// scalar fields as a flat list, which round-trips more cheaply through
// generic serializers than the comma-joined text form.
type structuredItem struct {
	Type   string   `yaml:"t"`
	Style  string   `yaml:"s"`
	Fields []string `yaml:"f,omitempty"`
}

type structuredNote struct {
	Time string `yaml:"time,omitempty"`
	Text string `yaml:"text"`
}

type structuredReftime struct {
	Begin string `yaml:"begin,omitempty"`
	End   string `yaml:"end,omitempty"`
}

// structuredRecord is one YAML document per record: items under "i",
// notes under "n", plus reftime and source (spec.md §4.1's structured
// form).
type structuredRecord struct {
	Items   []structuredItem  `yaml:"i"`
	Reftime structuredReftime `yaml:"reftime,omitempty"`
	Notes   []structuredNote  `yaml:"n,omitempty"`
	Source  string            `yaml:"source"`
}

// EncodeStructured renders r as a single YAML document.
func EncodeStructured(r *Record) ([]byte, error) {
	sr := structuredRecord{Source: r.Source.String()}

	for _, it := range r.Items {
		fields := make([]string, 0, maxItemFields)
		for _, f := range it.Fields {
			if f == "" {
				break
			}
			fields = append(fields, f)
		}
		sr.Items = append(sr.Items, structuredItem{Type: it.Code.String(), Style: it.Style, Fields: fields})
	}

	if r.Reftime.Begin != nil {
		sr.Reftime.Begin = r.Reftime.Begin.String()
	}
	if r.Reftime.End != nil {
		sr.Reftime.End = r.Reftime.End.String()
	}

	for _, n := range r.Notes {
		sr.Notes = append(sr.Notes, structuredNote{Time: n.Time, Text: n.Text})
	}

	out, err := yaml.Marshal(&sr)
	if err != nil {
		return nil, arkerrs.NewCodecError(err, "failed to marshal structured record").WithStage("structured-encode")
	}
	return out, nil
}

// DecodeStructured parses one YAML document produced by EncodeStructured.
func DecodeStructured(data []byte) (*Record, error) {
	var sr structuredRecord
	if err := yaml.Unmarshal(data, &sr); err != nil {
		return nil, arkerrs.NewCodecError(err, "failed to unmarshal structured record").WithStage("structured-decode")
	}

	rec := NewRecord()
	for _, si := range sr.Items {
		code, ok := typeCodeByName(si.Type)
		if !ok {
			continue // unknown type name, same tolerance as the binary codec
		}
		rec.Set(NewItem(code, si.Style, si.Fields...))
	}

	for _, sn := range sr.Notes {
		rec.AddNote(Note{Time: sn.Time, Text: sn.Text})
	}

	if sr.Reftime.Begin != "" {
		t, err := parseTimeText(sr.Reftime.Begin)
		if err != nil {
			return nil, err
		}
		rec.Reftime.Begin = &t
	}
	if sr.Reftime.End != "" {
		t, err := parseTimeText(sr.Reftime.End)
		if err != nil {
			return nil, err
		}
		rec.Reftime.End = &t
	}

	return rec, nil
}
