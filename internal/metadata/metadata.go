// Package metadata extracts best-effort EXIF camera and GPS fields from
// image files (C7). This has no dedicated counterpart in the reference
// service layer — it supplements the distilled spec with data the original
// application's image entity already carries as columns, using the
// ecosystem's goexif parser since nothing in the teacher's stack touches
// EXIF.
package metadata

import (
	"os"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// Fields are the best-effort EXIF attributes surfaced to the durable store.
// Every field is optional; a failed parse yields a Fields with Parsed set
// to false and the rest at their zero values. Once the EXIF block decodes,
// Parsed is true even if some individual fields are missing.
type Fields struct {
	Parsed          bool    `json:"exif_parsed"`
	CameraMake      string  `json:"exif_make,omitempty"`
	CameraModel     string  `json:"exif_model,omitempty"`
	FNumber         float64 `json:"exif_f_number,omitempty"`
	ExposureTime    string  `json:"exif_exposure_time,omitempty"`
	ISOSpeed        int     `json:"exif_iso_speed,omitempty"`
	FocalLength     float64 `json:"exif_focal_length,omitempty"`
	ExposureBias    float64 `json:"exif_exposure_bias,omitempty"`
	MaxAperture     float64 `json:"exif_max_aperture,omitempty"`
	MeteringMode    string  `json:"exif_metering_mode,omitempty"`
	FlashMode       string  `json:"exif_flash_mode,omitempty"`
	FocalLength35mm int     `json:"exif_focal_length_35mm,omitempty"`
	Latitude        float64 `json:"exif_latitude,omitempty"`
	Longitude       float64 `json:"exif_longitude,omitempty"`
	HasGPS          bool    `json:"exif_has_gps,omitempty"`
}

// Extract opens path and reads whatever EXIF tags are present. Any error —
// missing EXIF segment, corrupt data, unsupported format — results in a
// zero-value, unparsed Fields rather than an error, since metadata is
// always optional relative to the embedding and thumbnail pipeline.
func Extract(path string) Fields {
	f, err := os.Open(path)
	if err != nil {
		return Fields{}
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return Fields{}
	}

	fields := Fields{Parsed: true}

	if v, err := x.Get(exif.Make); err == nil {
		fields.CameraMake, _ = v.StringVal()
	}
	if v, err := x.Get(exif.Model); err == nil {
		fields.CameraModel, _ = v.StringVal()
	}
	if v, err := x.Get(exif.FNumber); err == nil {
		fields.FNumber = ratioToFloat(v)
	}
	if v, err := x.Get(exif.ExposureTime); err == nil {
		fields.ExposureTime = v.String()
	}
	if v, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if iso, err := v.Int(0); err == nil {
			fields.ISOSpeed = iso
		}
	}
	if v, err := x.Get(exif.FocalLength); err == nil {
		fields.FocalLength = ratioToFloat(v)
	}
	if v, err := x.Get(exif.ExposureBiasValue); err == nil {
		fields.ExposureBias = ratioToFloat(v)
	}
	if v, err := x.Get(exif.MaxApertureValue); err == nil {
		fields.MaxAperture = ratioToFloat(v)
	}
	if v, err := x.Get(exif.MeteringMode); err == nil {
		fields.MeteringMode = v.String()
	}
	if v, err := x.Get(exif.Flash); err == nil {
		fields.FlashMode = v.String()
	}
	if v, err := x.Get(exif.FocalLengthIn35mmFilm); err == nil {
		if n, err := v.Int(0); err == nil {
			fields.FocalLength35mm = n
		}
	}

	if lat, lon, err := x.LatLong(); err == nil {
		fields.Latitude = lat
		fields.Longitude = lon
		fields.HasGPS = true
	}

	return fields
}

func ratioToFloat(tag *tiff.Tag) float64 {
	num, denom, err := tag.Rat2(0)
	if err != nil || denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
