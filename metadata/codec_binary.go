package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/timeutil"
	"github.com/pierrec/lz4/v4"
)

// Signature identifies the kind of binary bundle (spec.md §4.1).
type Signature [2]byte

var (
	SigRecord  = Signature{'M', 'D'}
	SigDeleted = Signature{'!', 'D'}
	SigGroup   = Signature{'M', 'G'}
	SigSummary = Signature{'S', 'U'}
	SigMatcher = Signature{'M', 'S'}
)

// BundleVersion is the only version defined so far (spec.md §6).
const BundleVersion uint16 = 0

// element envelope type codes not already covered by TypeCode: reftime,
// source, and note reuse TypeReftime/TypeSource/TypeNote.
const envLenBytes = 2 // sersize: all element payloads fit a 16-bit length.

// EncodeBundle wraps payload in the 2+2+4 byte bundle header (spec.md §4.1):
// <2-byte signature><2-byte BE version><4-byte BE length><payload>.
func EncodeBundle(sig Signature, payload []byte) []byte {
	out := make([]byte, 0, 10+len(payload))
	out = append(out, sig[0], sig[1])
	var vbuf [2]byte
	binary.BigEndian.PutUint16(vbuf[:], BundleVersion)
	out = append(out, vbuf[:]...)
	var lbuf [4]byte
	binary.BigEndian.PutUint32(lbuf[:], uint32(len(payload)))
	out = append(out, lbuf[:]...)
	out = append(out, payload...)
	return out
}

// ReadBundleHeader reads and validates one bundle header from r, returning
// the signature and the exact-length payload reader.
func ReadBundleHeader(r io.Reader) (Signature, []byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return Signature{}, nil, io.EOF
		}
		return Signature{}, nil, arkerrs.NewCodecError(err, "short read on bundle header").WithStage("header")
	}

	sig := Signature{hdr[0], hdr[1]}
	switch sig {
	case SigRecord, SigDeleted, SigGroup, SigSummary, SigMatcher:
	default:
		return Signature{}, nil, arkerrs.NewCodecError(nil, fmt.Sprintf("bad bundle signature %q", sig)).WithStage("signature")
	}

	version := binary.BigEndian.Uint16(hdr[2:4])
	if version != BundleVersion {
		return Signature{}, nil, arkerrs.NewCodecError(nil, fmt.Sprintf("unknown bundle version %d", version)).WithStage("version")
	}

	length := binary.BigEndian.Uint32(hdr[4:8])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Signature{}, nil, arkerrs.NewCodecError(err, "short read on bundle payload").WithStage("payload")
	}

	return sig, payload, nil
}

// encodeElement writes one element envelope: 1-byte type code, a 2-byte
// big-endian length, then the payload (spec.md §4.1).
func encodeElement(buf *bytes.Buffer, code TypeCode, payload []byte) {
	buf.WriteByte(byte(code))
	var lbuf [envLenBytes]byte
	binary.BigEndian.PutUint16(lbuf[:], uint16(len(payload)))
	buf.Write(lbuf[:])
	buf.Write(payload)
}

// decodeElement reads one element envelope from r. err is io.EOF exactly
// when r is exhausted at an envelope boundary.
func decodeElement(r *bytes.Reader) (TypeCode, []byte, error) {
	codeByte, err := r.ReadByte()
	if err != nil {
		return 0, nil, io.EOF
	}
	code := TypeCode(codeByte)

	var lbuf [envLenBytes]byte
	if _, err := io.ReadFull(r, lbuf[:]); err != nil {
		return 0, nil, arkerrs.NewCodecError(err, "malformed element envelope: short length").WithStage("element-length")
	}
	length := binary.BigEndian.Uint16(lbuf[:])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, arkerrs.NewCodecError(err, "malformed element envelope: short payload").WithStage("element-payload")
	}

	return code, payload, nil
}

// EncodeRecord serializes r's items, reftime, source, and notes into the
// concatenation of element envelopes that forms an MD bundle's payload.
func EncodeRecord(r *Record) []byte {
	var buf bytes.Buffer

	for _, it := range r.Items {
		encodeElement(&buf, it.Code, encodeItemFields(it))
	}

	if r.Reftime.Begin != nil || r.Reftime.End != nil {
		encodeElement(&buf, TypeReftime, encodeReftime(r.Reftime))
	}

	encodeElement(&buf, TypeSource, encodeSource(r.Source))

	for _, n := range r.Notes {
		encodeElement(&buf, TypeNote, encodeNote(n))
	}

	return buf.Bytes()
}

// DecodeRecord is the inverse of EncodeRecord. Unknown type codes are
// skipped (recoverable per spec.md §4.1: "unknown items pass through on
// read if the bundle boundary is respected").
func DecodeRecord(payload []byte) (*Record, error) {
	r := NewRecord()
	br := bytes.NewReader(payload)

	for {
		code, elemPayload, err := decodeElement(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch code {
		case TypeReftime:
			iv, err := decodeReftime(elemPayload)
			if err != nil {
				return nil, err
			}
			r.Reftime = iv
		case TypeSource:
			src, err := decodeSource(elemPayload)
			if err != nil {
				return nil, err
			}
			r.Source = src
		case TypeNote:
			n, err := decodeNote(elemPayload)
			if err != nil {
				return nil, err
			}
			r.AddNote(n)
		default:
			if !code.Known() {
				// Recoverable: unknown type code, skip but keep nothing since
				// we cannot interpret style-specific fields safely.
				continue
			}
			it, err := decodeItemFields(code, elemPayload)
			if err != nil {
				return nil, err
			}
			r.Set(it)
		}
	}

	return r, nil
}

func encodeItemFields(it Item) []byte {
	var buf bytes.Buffer
	writeString(&buf, it.Style)
	for _, f := range it.Fields {
		writeString(&buf, f)
	}
	return buf.Bytes()
}

func decodeItemFields(code TypeCode, payload []byte) (Item, error) {
	r := bytes.NewReader(payload)
	style, err := readString(r)
	if err != nil {
		return Item{}, err
	}
	it := Item{Code: code, Style: style}
	for i := 0; i < maxItemFields; i++ {
		f, err := readString(r)
		if err != nil {
			return Item{}, err
		}
		it.Fields[i] = f
	}
	return it, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var lbuf [2]byte
	binary.BigEndian.PutUint16(lbuf[:], uint16(len(s)))
	buf.Write(lbuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lbuf [2]byte
	if _, err := io.ReadFull(r, lbuf[:]); err != nil {
		return "", arkerrs.NewCodecError(err, "malformed string field")
	}
	n := binary.BigEndian.Uint16(lbuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", arkerrs.NewCodecError(err, "malformed string field")
	}
	return string(buf), nil
}

func encodeReftime(iv timeutil.Interval) []byte {
	var buf bytes.Buffer
	writeOptTime(&buf, iv.Begin)
	writeOptTime(&buf, iv.End)
	return buf.Bytes()
}

func decodeReftime(payload []byte) (timeutil.Interval, error) {
	r := bytes.NewReader(payload)
	begin, err := readOptTime(r)
	if err != nil {
		return timeutil.Interval{}, err
	}
	end, err := readOptTime(r)
	if err != nil {
		return timeutil.Interval{}, err
	}
	return timeutil.Interval{Begin: begin, End: end}, nil
}

func writeOptTime(buf *bytes.Buffer, t *timeutil.Time) {
	if t == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	var ibuf [24]byte
	binary.BigEndian.PutUint32(ibuf[0:4], uint32(t.Year))
	binary.BigEndian.PutUint32(ibuf[4:8], uint32(t.Month))
	binary.BigEndian.PutUint32(ibuf[8:12], uint32(t.Day))
	binary.BigEndian.PutUint32(ibuf[12:16], uint32(t.Hour))
	binary.BigEndian.PutUint32(ibuf[16:20], uint32(t.Minute))
	binary.BigEndian.PutUint32(ibuf[20:24], uint32(t.Second))
	buf.Write(ibuf[:])
}

func readOptTime(r *bytes.Reader) (*timeutil.Time, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, arkerrs.NewCodecError(err, "malformed optional time")
	}
	if present == 0 {
		return nil, nil
	}
	var ibuf [24]byte
	if _, err := io.ReadFull(r, ibuf[:]); err != nil {
		return nil, arkerrs.NewCodecError(err, "malformed optional time")
	}
	t := &timeutil.Time{
		Year:   int(binary.BigEndian.Uint32(ibuf[0:4])),
		Month:  int(binary.BigEndian.Uint32(ibuf[4:8])),
		Day:    int(binary.BigEndian.Uint32(ibuf[8:12])),
		Hour:   int(binary.BigEndian.Uint32(ibuf[12:16])),
		Minute: int(binary.BigEndian.Uint32(ibuf[16:20])),
		Second: int(binary.BigEndian.Uint32(ibuf[20:24])),
	}
	return t, nil
}

func encodeSource(s Source) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(s.Kind))
	writeString(&buf, s.Format.String())
	writeString(&buf, s.Root)
	writeString(&buf, s.Relpath)
	var obuf [24]byte
	binary.BigEndian.PutUint64(obuf[0:8], uint64(s.Offset))
	binary.BigEndian.PutUint64(obuf[8:16], uint64(s.Size))
	binary.BigEndian.PutUint64(obuf[16:24], s.Checksum)
	buf.Write(obuf[:])
	writeString(&buf, s.URL)
	return buf.Bytes()
}

func decodeSource(payload []byte) (Source, error) {
	r := bytes.NewReader(payload)
	kindByte, err := r.ReadByte()
	if err != nil {
		return Source{}, arkerrs.NewCodecError(err, "malformed source")
	}

	formatStr, err := readString(r)
	if err != nil {
		return Source{}, err
	}
	format, _ := ParseDataFormat(formatStr)

	root, err := readString(r)
	if err != nil {
		return Source{}, err
	}
	relpath, err := readString(r)
	if err != nil {
		return Source{}, err
	}

	var obuf [24]byte
	if _, err := io.ReadFull(r, obuf[:]); err != nil {
		return Source{}, arkerrs.NewCodecError(err, "malformed source offset/size")
	}
	offset := int64(binary.BigEndian.Uint64(obuf[0:8]))
	size := int64(binary.BigEndian.Uint64(obuf[8:16]))
	checksum := binary.BigEndian.Uint64(obuf[16:24])

	url, err := readString(r)
	if err != nil {
		return Source{}, err
	}

	return Source{
		Kind: SourceKind(kindByte), Format: format,
		Root: root, Relpath: relpath, Offset: offset, Size: size, Checksum: checksum, URL: url,
	}, nil
}

func encodeNote(n Note) []byte {
	var buf bytes.Buffer
	writeString(&buf, n.Time)
	writeString(&buf, n.Text)
	return buf.Bytes()
}

func decodeNote(payload []byte) (Note, error) {
	r := bytes.NewReader(payload)
	t, err := readString(r)
	if err != nil {
		return Note{}, err
	}
	text, err := readString(r)
	if err != nil {
		return Note{}, err
	}
	return Note{Time: t, Text: text}, nil
}

// EncodeGroup compresses a concatenation of inner MD bundles with LZ4
// (standing in for the original's LZO framing, see DESIGN.md) and wraps
// the result as an MG bundle payload: <4-byte uncompressed size><compressed>.
func EncodeGroup(innerBundles []byte) []byte {
	var compressed bytes.Buffer
	var szbuf [4]byte
	binary.BigEndian.PutUint32(szbuf[:], uint32(len(innerBundles)))
	compressed.Write(szbuf[:])

	zw := lz4.NewWriter(&compressed)
	_, _ = zw.Write(innerBundles)
	_ = zw.Close()

	return EncodeBundle(SigGroup, compressed.Bytes())
}

// DecodeGroup decompresses an MG bundle payload back to the concatenation
// of inner MD bundles.
func DecodeGroup(payload []byte) ([]byte, error) {
	if len(payload) < 4 {
		return nil, arkerrs.NewCodecError(nil, "truncated group bundle").WithStage("group-header")
	}
	uncompressedSize := binary.BigEndian.Uint32(payload[0:4])

	zr := lz4.NewReader(bytes.NewReader(payload[4:]))
	out := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, arkerrs.NewCodecError(err, "corrupt group bundle payload").WithStage("group-payload")
	}
	return out, nil
}
