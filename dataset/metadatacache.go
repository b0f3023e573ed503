package dataset

import (
	"bytes"
	"io"

	"github.com/arkimet/dsengine/arkerrs"
	"github.com/arkimet/dsengine/metadata"
)

// ReadMetadataCache parses a segment's `.metadata` side-car file: a stream
// of MD (record) and !D (tombstone) bundles (spec.md §4.1, §4.6).
// Tombstoned bundles are skipped, mirroring the bundle codec's recoverable
// handling of unknown element type codes.
func ReadMetadataCache(data []byte) ([]*metadata.Record, error) {
	r := bytes.NewReader(data)
	var out []*metadata.Record
	for {
		sig, payload, err := metadata.ReadBundleHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch sig {
		case metadata.SigRecord:
			rec, err := metadata.DecodeRecord(payload)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		case metadata.SigDeleted:
			// tombstone: contributes nothing to the live set.
		default:
			return nil, arkerrs.NewCodecError(nil, "unexpected bundle in metadata cache").WithStage("metadata-cache")
		}
	}
	return out, nil
}

// WriteMetadataCache serializes records as a stream of MD bundles, the
// form rescans and repack write back to `<segment>.metadata`.
func WriteMetadataCache(records []*metadata.Record) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		buf.Write(metadata.EncodeBundle(metadata.SigRecord, metadata.EncodeRecord(r)))
	}
	return buf.Bytes()
}
