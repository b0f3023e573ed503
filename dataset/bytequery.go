package dataset

import (
	"bytes"
	"io"
	"os/exec"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/matcher"
)

// ByteQueryMode selects how query_bytes assembles its output stream
// (spec.md §4.8).
type ByteQueryMode int

const (
	ByteQueryData ByteQueryMode = iota
	ByteQueryPostprocess
	ByteQueryRepMetadata
	ByteQueryRepSummary
)

// ByteQuery parameters one query_bytes call: Matcher selects records,
// which are emitted in query order with no sorter, and Command (with
// Args) names the external program for the postprocess/report modes.
type ByteQuery struct {
	Matcher *matcher.Matcher
	Mode    ByteQueryMode
	Command string
	Args    []string
}

// QueryBytes implements spec.md §4.8's query_bytes: Data mode streams raw
// message bytes concatenated in query order; Postprocess pipes the same
// stream through an external filter program; RepMetadata/RepSummary pipe
// a textual rendering of the matched metadata/summary through a report
// script instead of raw bytes.
func (r *Reader) QueryBytes(bq ByteQuery, out io.Writer) error {
	switch bq.Mode {
	case ByteQueryData:
		return r.QueryData(bq.Matcher, true, nil, func(res Result) bool {
			_, err := out.Write(res.Data)
			return err == nil
		})

	case ByteQueryPostprocess:
		return r.pipeThrough(bq, out, func(w io.Writer) error {
			return r.QueryData(bq.Matcher, true, nil, func(res Result) bool {
				_, err := w.Write(res.Data)
				return err == nil
			})
		})

	case ByteQueryRepMetadata:
		return r.pipeThrough(bq, out, func(w io.Writer) error {
			return r.QueryData(bq.Matcher, false, nil, func(res Result) bool {
				_, err := io.WriteString(w, res.Record.Source.String()+"\n")
				return err == nil
			})
		})

	case ByteQueryRepSummary:
		return r.pipeThrough(bq, out, func(w io.Writer) error {
			s, err := r.QuerySummary(bq.Matcher)
			if err != nil {
				return err
			}
			for _, e := range s.Entries() {
				for _, it := range e.Items {
					if _, err := io.WriteString(w, it.String()+"\n"); err != nil {
						return err
					}
				}
			}
			return nil
		})

	default:
		return arkerrs.NewConfigError(nil, "unknown byte query mode")
	}
}

// pipeThrough runs bq.Command, feeding it bytes produced by fill and
// copying its stdout to out. Grounded on the external-filter convention
// documented for postprocess/report scripts in spec.md §4.8 (the engine
// only names the program; scanning/reporting logic itself lives outside
// core scope).
func (r *Reader) pipeThrough(bq ByteQuery, out io.Writer, fill func(io.Writer) error) error {
	if bq.Command == "" {
		return arkerrs.NewConfigError(nil, "missing command for postprocess/report query").WithKey("command")
	}

	var input bytes.Buffer
	if err := fill(&input); err != nil {
		return err
	}

	cmd := exec.Command(bq.Command, bq.Args...)
	cmd.Stdin = &input
	cmd.Stdout = out

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return arkerrs.NewIoError(err, "run postprocess/report command: "+stderr.String())
	}
	return nil
}
