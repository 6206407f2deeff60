package images

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const defaultSVGSize = 1024 // fallback when the viewBox carries no size

// maxRasterDim is the maximum pixel dimension (width or height) allowed when
// rasterizing an SVG. This prevents OOM from malicious SVGs with enormous
// viewBox values (e.g. viewBox="0 0 100000 100000" would otherwise allocate
// ~37 GB for the RGBA buffer). 8192 is consistent with common GPU texture
// limits and very generous for ebook images.
var maxRasterDim = 8192

// RasterizeSVG rasterizes SVG to an RGBA image on a white background.
//
// Rules:
//   - if targetW == 0 && targetH == 0: use SVG viewBox dimensions
//   - if only one of targetW/targetH is > 0: scale by that dimension keeping aspect ratio
//   - if both targetW and targetH are > 0: fit into that box keeping aspect ratio
func RasterizeSVG(svgData []byte, targetW, targetH int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, err
	}

	intrW := int(math.Ceil(icon.ViewBox.W))
	intrH := int(math.Ceil(icon.ViewBox.H))
	if intrW <= 0 {
		intrW = defaultSVGSize
	}
	if intrH <= 0 {
		intrH = defaultSVGSize
	}

	w, h := intrW, intrH
	if targetW <= 0 && targetH <= 0 {
		// Keep intrinsic size.
	} else if targetW > 0 && targetH <= 0 {
		w = targetW
		h = int(math.Round(float64(w) * float64(intrH) / float64(intrW)))
	} else if targetH > 0 && targetW <= 0 {
		h = targetH
		w = int(math.Round(float64(h) * float64(intrW) / float64(intrH)))
	} else {
		scaleW := float64(targetW) / float64(intrW)
		scaleH := float64(targetH) / float64(intrH)
		scale := math.Min(scaleW, scaleH)
		w = int(math.Round(float64(intrW) * scale))
		h = int(math.Round(float64(intrH) * scale))
	}
	w = max(w, 1)
	h = max(h, 1)

	// Clamp to maxRasterDim preserving aspect ratio to prevent OOM.
	if w > maxRasterDim || h > maxRasterDim {
		s := min(float64(maxRasterDim)/float64(w), float64(maxRasterDim)/float64(h))
		w = max(int(math.Round(float64(w)*s)), 1)
		h = max(int(math.Round(float64(h)*s)), 1)
	}

	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)
	return dst, nil
}
