package summary

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/timeutil"
)

// Encode serializes s as an SU binary bundle (spec.md §4.1): one record per
// entry, each holding its grouping items plus a trailing count/size/reftime
// footer, all length-prefixed the way codec_binary.go frames record items.
func Encode(s *Summary) []byte {
	var buf bytes.Buffer
	entries := s.Entries()

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(entries)))
	buf.Write(countBuf[:])

	for _, e := range entries {
		writeItems(&buf, e.Items)
		writeStats(&buf, e.Stats)
	}
	return metadata.EncodeBundle(metadata.SigSummary, buf.Bytes())
}

// Decode parses an SU bundle payload back into a Summary.
func Decode(payload []byte) (*Summary, error) {
	r := bytes.NewReader(payload)
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, arkerrs.NewCodecError(err, "read summary entry count").WithStage("summary")
	}
	n := binary.BigEndian.Uint32(countBuf[:])

	s := New()
	for i := uint32(0); i < n; i++ {
		items, err := readItems(r)
		if err != nil {
			return nil, err
		}
		stats, err := readStats(r)
		if err != nil {
			return nil, err
		}
		s.AddStats(items, stats)
	}
	return s, nil
}

func writeItems(buf *bytes.Buffer, items []metadata.Item) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(items)))
	buf.Write(n[:])
	for _, it := range items {
		buf.WriteByte(byte(it.Code))
		writeString(buf, it.Style)
		for _, f := range it.Fields {
			writeString(buf, f)
		}
	}
}

func readItems(r *bytes.Reader) ([]metadata.Item, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, arkerrs.NewCodecError(err, "read item count").WithStage("summary")
	}
	count := binary.BigEndian.Uint16(n[:])

	items := make([]metadata.Item, 0, count)
	for i := uint16(0); i < count; i++ {
		code, err := r.ReadByte()
		if err != nil {
			return nil, arkerrs.NewCodecError(err, "read item code").WithStage("summary")
		}
		style, err := readString(r)
		if err != nil {
			return nil, err
		}
		var fields []string
		for j := 0; j < 4; j++ {
			f, err := readString(r)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		items = append(items, metadata.NewItem(metadata.TypeCode(code), style, fields...))
	}
	return items, nil
}

func writeStats(buf *bytes.Buffer, st Stats) {
	var nums [16]byte
	binary.BigEndian.PutUint64(nums[0:8], uint64(st.Count))
	binary.BigEndian.PutUint64(nums[8:16], uint64(st.Size))
	buf.Write(nums[:])
	writeOptTime(buf, st.Reftime.Begin)
	writeOptTime(buf, st.Reftime.End)
}

func readStats(r *bytes.Reader) (Stats, error) {
	var nums [16]byte
	if _, err := io.ReadFull(r, nums[:]); err != nil {
		return Stats{}, arkerrs.NewCodecError(err, "read summary stats").WithStage("summary")
	}
	st := Stats{
		Count: int64(binary.BigEndian.Uint64(nums[0:8])),
		Size:  int64(binary.BigEndian.Uint64(nums[8:16])),
	}
	begin, err := readOptTime(r)
	if err != nil {
		return Stats{}, err
	}
	end, err := readOptTime(r)
	if err != nil {
		return Stats{}, err
	}
	st.Reftime = timeutil.Interval{Begin: begin, End: end}
	return st, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n [2]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", arkerrs.NewCodecError(err, "read string length").WithStage("summary")
	}
	length := binary.BigEndian.Uint16(n[:])
	b := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return "", arkerrs.NewCodecError(err, "read string payload").WithStage("summary")
		}
	}
	return string(b), nil
}

// writeOptTime encodes t (or the zero time for nil) as 6 big-endian uint32
// fields plus a leading presence byte.
func writeOptTime(buf *bytes.Buffer, t *timeutil.Time) {
	if t == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	var fields [24]byte
	vals := []int{t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second}
	for i, v := range vals {
		binary.BigEndian.PutUint32(fields[i*4:i*4+4], uint32(v))
	}
	buf.Write(fields[:])
}

func readOptTime(r *bytes.Reader) (*timeutil.Time, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, arkerrs.NewCodecError(err, "read time presence").WithStage("summary")
	}
	if present == 0 {
		return nil, nil
	}
	var fields [24]byte
	if _, err := io.ReadFull(r, fields[:]); err != nil {
		return nil, arkerrs.NewCodecError(err, "read time fields").WithStage("summary")
	}
	t := timeutil.Time{
		Year:   int(binary.BigEndian.Uint32(fields[0:4])),
		Month:  int(binary.BigEndian.Uint32(fields[4:8])),
		Day:    int(binary.BigEndian.Uint32(fields[8:12])),
		Hour:   int(binary.BigEndian.Uint32(fields[12:16])),
		Minute: int(binary.BigEndian.Uint32(fields[16:20])),
		Second: int(binary.BigEndian.Uint32(fields[20:24])),
	}
	return &t, nil
}
