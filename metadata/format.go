package metadata

import (
	"strings"

	"github.com/arkimet/dsengine/arkerrs"
)

// DataFormat enumerates the message formats the engine stores (spec.md §6).
// The scanners that turn bytes of these formats into metadata records are
// external collaborators (out of scope, spec.md §1); the engine only needs
// to name, parse, and route by format.
type DataFormat int

const (
	FormatInvalid DataFormat = iota
	FormatGRIB
	FormatBUFR
	FormatVM2
	FormatODIMH5
	FormatNetCDF
	FormatJPEG
)

var formatNames = [...]string{"", "grib", "bufr", "vm2", "odimh5", "nc", "jpeg"}

// String returns the canonical format name.
func (f DataFormat) String() string {
	if int(f) < 0 || int(f) >= len(formatNames) {
		return ""
	}
	return formatNames[f]
}

// ParseDataFormat accepts the historical aliases preserved from the original
// implementation (arki/defs.cc): grib1/grib2 -> grib, h5/hdf5/odim -> odimh5,
// netcdf -> nc, jpg -> jpeg.
func ParseDataFormat(s string) (DataFormat, error) {
	switch strings.ToLower(s) {
	case "grib", "grib1", "grib2":
		return FormatGRIB, nil
	case "bufr":
		return FormatBUFR, nil
	case "vm2":
		return FormatVM2, nil
	case "h5", "hdf5", "odim", "odimh5":
		return FormatODIMH5, nil
	case "nc", "netcdf":
		return FormatNetCDF, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	}
	return FormatInvalid, arkerrs.NewConfigError(nil, "unsupported format '"+s+"'").WithKey("format")
}
