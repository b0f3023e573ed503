package segment

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/arkimet/dsengine/arkerrs"
)

// sealToTar bundles paths into a single .tar file next to the original
// segment, the sealed "tar" container variant of spec.md §4.4. Sealed
// segments are read-only: no Writer is offered for them (spec.md §3,
// invariant 7 — archived segments are read-only, and tar/zip are the
// archival containers).
func sealToTar(destPath string, paths []string) error {
	tmp := destPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return arkerrs.NewIoError(err, "create tar segment").WithPath(tmp)
	}
	tw := tar.NewWriter(f)
	for _, p := range paths {
		if err := addFileToTar(tw, p); err != nil {
			tw.Close()
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := tw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return arkerrs.NewIoError(err, "close tar writer").WithPath(tmp)
	}
	if err := f.Close(); err != nil {
		return arkerrs.NewIoError(err, "close tar segment file").WithPath(tmp)
	}
	return os.Rename(tmp, destPath)
}

func addFileToTar(tw *tar.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return arkerrs.NewIoError(err, "read file for tar seal").WithPath(path)
	}
	hdr := &tar.Header{Name: filepath.Base(path), Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		return arkerrs.NewIoError(err, "write tar header").WithPath(path)
	}
	_, err = tw.Write(data)
	return err
}

// sealToZip is Tar's zip equivalent.
func sealToZip(destPath string, paths []string) error {
	tmp := destPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return arkerrs.NewIoError(err, "create zip segment").WithPath(tmp)
	}
	zw := zip.NewWriter(f)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			zw.Close()
			f.Close()
			os.Remove(tmp)
			return arkerrs.NewIoError(err, "read file for zip seal").WithPath(p)
		}
		w, err := zw.Create(filepath.Base(p))
		if err != nil {
			zw.Close()
			f.Close()
			os.Remove(tmp)
			return arkerrs.NewIoError(err, "create zip entry").WithPath(p)
		}
		if _, err := w.Write(data); err != nil {
			zw.Close()
			f.Close()
			os.Remove(tmp)
			return arkerrs.NewIoError(err, "write zip entry").WithPath(p)
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return arkerrs.NewIoError(err, "close zip writer").WithPath(tmp)
	}
	if err := f.Close(); err != nil {
		return arkerrs.NewIoError(err, "close zip segment file").WithPath(tmp)
	}
	return os.Rename(tmp, destPath)
}

// SealedReader reads back messages from an already-sealed tar or zip
// segment, used by the reader to keep serving queries against archived
// datasets (spec.md §3's "archived segments are read-only" does not mean
// unreadable).
type SealedReader struct {
	relpath string
	files   map[string][]byte
	order   []string
}

func OpenTarReader(relpath, abspath string) (*SealedReader, error) {
	f, err := os.Open(abspath)
	if err != nil {
		return nil, arkerrs.NewIoError(err, "open tar segment").WithPath(abspath)
	}
	defer f.Close()

	sr := &SealedReader{relpath: relpath, files: make(map[string][]byte)}
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, arkerrs.NewSegmentError(err, "read tar entry").WithRelpath(relpath)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, arkerrs.NewSegmentError(err, "read tar entry body").WithRelpath(relpath)
		}
		sr.files[hdr.Name] = data
		sr.order = append(sr.order, hdr.Name)
	}
	return sr, nil
}

func OpenZipReader(relpath, abspath string) (*SealedReader, error) {
	zr, err := zip.OpenReader(abspath)
	if err != nil {
		return nil, arkerrs.NewIoError(err, "open zip segment").WithPath(abspath)
	}
	defer zr.Close()

	sr := &SealedReader{relpath: relpath, files: make(map[string][]byte)}
	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			return nil, arkerrs.NewSegmentError(err, "open zip entry").WithRelpath(relpath)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, arkerrs.NewSegmentError(err, "read zip entry").WithRelpath(relpath)
		}
		sr.files[zf.Name] = data
		sr.order = append(sr.order, zf.Name)
	}
	return sr, nil
}

func (r *SealedReader) ScanData(dest func(blob Blob) bool) error {
	for _, name := range r.order {
		blob := Blob{Relpath: filepath.Join(r.relpath, name), Size: int64(len(r.files[name]))}
		if !dest(blob) {
			return nil
		}
	}
	return nil
}

func (r *SealedReader) Read(blob Blob) ([]byte, error) {
	data, ok := r.files[filepath.Base(blob.Relpath)]
	if !ok {
		return nil, arkerrs.NewSegmentError(nil, "entry not found in sealed segment").WithRelpath(blob.Relpath)
	}
	return data, nil
}

func (r *SealedReader) Close() error { return nil }

// compressConcat rewrites a concat/lines segment as gzconcat: groups of
// groupSize bytes each independently gzip-compressed so random access can
// skip straight to a group (spec.md §4.4's gzconcat/gzlines "optional
// grouped random access via `.gz.idx`"). The index file is a flat list of
// big-endian uint64 pairs: (compressed group offset, uncompressed group
// start offset).
func compressConcat(abspath string, groupSize int) error {
	if groupSize <= 0 {
		groupSize = 1 << 20
	}
	raw, err := os.ReadFile(abspath)
	if err != nil {
		return arkerrs.NewIoError(err, "read segment for compress").WithPath(abspath)
	}

	gzPath := abspath + ".gz"
	idxPath := abspath + ".gz.idx"

	gf, err := os.Create(gzPath)
	if err != nil {
		return arkerrs.NewIoError(err, "create gz segment").WithPath(gzPath)
	}
	defer gf.Close()

	var idx bytes.Buffer
	var compressedOffset, uncompressedOffset int64

	for start := 0; start < len(raw); start += groupSize {
		end := start + groupSize
		if end > len(raw) {
			end = len(raw)
		}
		group := raw[start:end]

		var compressed bytes.Buffer
		zw := gzip.NewWriter(&compressed)
		if _, err := zw.Write(group); err != nil {
			return arkerrs.NewIoError(err, "compress group").WithPath(gzPath)
		}
		if err := zw.Close(); err != nil {
			return arkerrs.NewIoError(err, "close gzip writer").WithPath(gzPath)
		}

		var pair [16]byte
		binary.BigEndian.PutUint64(pair[0:8], uint64(compressedOffset))
		binary.BigEndian.PutUint64(pair[8:16], uint64(uncompressedOffset))
		idx.Write(pair[:])

		if _, err := gf.Write(compressed.Bytes()); err != nil {
			return arkerrs.NewIoError(err, "write gz segment").WithPath(gzPath)
		}
		compressedOffset += int64(compressed.Len())
		uncompressedOffset += int64(len(group))
	}

	if err := os.WriteFile(idxPath, idx.Bytes(), 0o644); err != nil {
		return arkerrs.NewIoError(err, "write gz index").WithPath(idxPath)
	}
	return nil
}
