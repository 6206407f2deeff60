// Package jpegquality estimates the quality setting a JPEG was encoded
// with by comparing its quantization tables against the IJG reference
// tables. The estimate is exact for libjpeg-style encoders and close
// enough everywhere else to decide whether re-encoding would degrade the
// image.
package jpegquality

import (
	"bytes"
	"errors"
	"io"
	"math"
)

var (
	ErrInvalidJPEG  = errors.New("invalid JPEG header")
	ErrWrongTable   = errors.New("wrong size for quantization table")
	ErrShortSegment = errors.New("short segment length")
	ErrShortDQT     = errors.New("section DQT is too short")
)

var errMissingDQT = errors.New("no DQT section found")

const (
	markerSOI = 0xffd8
	markerEOI = 0xffd9
	markerSOS = 0xffda
	markerDQT = 0xffdb
)

// IJG reference quantization tables in zig-zag order, the ones every
// libjpeg-derived encoder scales by quality.
var refTables = [2][64]int{
	{ // luminance
		16, 11, 12, 14, 12, 10, 16, 14,
		13, 14, 18, 17, 16, 19, 24, 40,
		26, 24, 22, 22, 24, 49, 35, 37,
		29, 40, 58, 51, 61, 60, 57, 51,
		56, 55, 64, 72, 92, 78, 64, 68,
		87, 69, 55, 56, 80, 109, 81, 87,
		95, 98, 103, 104, 103, 62, 77, 113,
		121, 112, 100, 120, 92, 101, 103, 99,
	},
	{ // chrominance
		17, 18, 18, 24, 21, 24, 47, 26,
		26, 47, 99, 66, 56, 66, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
	},
}

// Reader holds the estimated quality of one parsed JPEG stream.
type Reader struct {
	quality int
}

// Quality returns the estimated encoder quality setting, 1..100.
func (r *Reader) Quality() int {
	return r.quality
}

// New parses the JPEG from the stream and estimates its quality. The stream
// is rewound first, so the same reader can be parsed repeatedly.
func New(rs io.ReadSeeker) (*Reader, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	jr := &jpegReader{rs: rs}
	if jr.readMarker() != markerSOI {
		return nil, ErrInvalidJPEG
	}
	q, err := jr.readQuality()
	if err != nil {
		return nil, err
	}
	return &Reader{quality: q}, nil
}

// NewWithBytes is New over an in-memory JPEG.
func NewWithBytes(data []byte) (*Reader, error) {
	return New(bytes.NewReader(data))
}

type jpegReader struct {
	rs io.ReadSeeker
}

// readMarker reads the next two-byte marker, 0 on failure.
func (jr *jpegReader) readMarker() int {
	var buf [2]byte
	if _, err := io.ReadFull(jr.rs, buf[:]); err != nil {
		return 0
	}
	if buf[0] != 0xff {
		return 0
	}
	return int(buf[0])<<8 | int(buf[1])
}

// readLength reads a segment length (includes its own two bytes).
func (jr *jpegReader) readLength() (int, error) {
	var buf [2]byte
	if _, err := io.ReadFull(jr.rs, buf[:]); err != nil {
		return 0, err
	}
	length := int(buf[0])<<8 | int(buf[1])
	if length < 2 {
		return 0, ErrShortSegment
	}
	return length, nil
}

// readQuality walks the segments up to the scan collecting every DQT table
// and converts the accumulated scale back into the encoder quality setting.
func (jr *jpegReader) readQuality() (int, error) {
	var (
		scaleSum float64
		tables   int
	)

	for {
		marker := jr.readMarker()
		switch marker {
		case 0:
			return 0, ErrInvalidJPEG
		case markerEOI, markerSOS:
			if tables == 0 {
				return 0, errMissingDQT
			}
			return scaleToQuality(scaleSum / float64(tables)), nil
		}

		length, err := jr.readLength()
		if err != nil {
			return 0, err
		}
		payload := length - 2

		if marker != markerDQT {
			if _, err := jr.rs.Seek(int64(payload), io.SeekCurrent); err != nil {
				return 0, err
			}
			continue
		}

		data := make([]byte, payload)
		if _, err := io.ReadFull(jr.rs, data); err != nil {
			return 0, err
		}
		for len(data) > 0 {
			precision, id := int(data[0]>>4), int(data[0]&0x0f)
			if precision > 1 || id > 3 {
				return 0, ErrWrongTable
			}
			size := 64
			if precision == 1 {
				size = 128
			}
			if len(data) < 1+size {
				return 0, ErrShortDQT
			}
			if s, ok := tableScale(data[1:1+size], precision, id); ok {
				scaleSum += s
				tables++
			}
			data = data[1+size:]
		}
	}
}

// tableScale estimates the IJG scaling factor (percent) this table was
// produced with. Tables beyond luminance and chrominance have no reference
// to compare against and are skipped.
func tableScale(data []byte, precision, id int) (float64, bool) {
	if id > 1 {
		return 0, false
	}
	ref := refTables[id]

	var sum float64
	for i := range 64 {
		v := int(data[i])
		if precision == 1 {
			v = int(data[2*i])<<8 | int(data[2*i+1])
		}
		sum += 100 * float64(v) / float64(ref[i])
	}
	return sum / 64, true
}

// scaleToQuality inverts the IJG quality-to-scale mapping: scale is
// 5000/quality below quality 50 and 200-2*quality above.
func scaleToQuality(scale float64) int {
	var q float64
	if scale <= 100 {
		q = (200 - scale) / 2
	} else {
		q = 5000 / scale
	}
	return min(max(int(math.Round(q)), 1), 100)
}
