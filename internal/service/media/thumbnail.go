package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// maxPixels rejects images whose decoded size would be unreasonable
const maxPixels = 50_000_000

type thumbnail struct {
	data         []byte
	contentType  string
	ext          string
	sourceWidth  int
	sourceHeight int
}

// makeThumbnail decodes data and scales it to fit within bound x bound, keeping
// the aspect ratio. Images with transparency are encoded as PNG, others as JPEG.
func makeThumbnail(data []byte, bound int) (*thumbnail, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.New("image has no pixels")
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("image is %dx%d, too large to process", cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	w, h := fit(cfg.Width, cfg.Height, bound)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	out := &thumbnail{sourceWidth: cfg.Width, sourceHeight: cfg.Height}
	if dst.Opaque() {
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
			return nil, fmt.Errorf("encoding thumbnail: %w", err)
		}
		out.contentType, out.ext = "image/jpeg", ".jpg"
	} else {
		if err := png.Encode(&buf, dst); err != nil {
			return nil, fmt.Errorf("encoding thumbnail: %w", err)
		}
		out.contentType, out.ext = "image/png", ".png"
	}
	out.data = buf.Bytes()
	return out, nil
}

// fit scales (w, h) down so neither side exceeds bound. Smaller images keep their size.
func fit(w, h, bound int) (int, int) {
	if w <= bound && h <= bound {
		return w, h
	}
	if w >= h {
		nh := h * bound / w
		if nh < 1 {
			nh = 1
		}
		return bound, nh
	}
	nw := w * bound / h
	if nw < 1 {
		nw = 1
	}
	return nw, bound
}
