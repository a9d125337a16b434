// Package preprocess normalizes uploaded images ahead of text extraction:
// decode, bounded downscale, grayscale, local-contrast enhancement,
// edge-preserving smoothing and adaptive thresholding. The output is a
// binarized image.Gray suitable for an OCR engine.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"sort"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Config bounds the normalized image and tunes the filter stages.
type Config struct {
	// MaxWidth caps the working width; larger inputs are scaled down
	// preserving aspect ratio.
	MaxWidth int
	// TileSize is the neighborhood for local contrast stretching.
	TileSize int
	// ThresholdBlock is the (odd) window for adaptive mean thresholding.
	ThresholdBlock int
	// ThresholdC is subtracted from the local mean before binarizing.
	ThresholdC int
}

// DefaultConfig mirrors the tuning the recognition worker runs with.
func DefaultConfig() Config {
	return Config{
		MaxWidth:       1024,
		TileSize:       64,
		ThresholdBlock: 11,
		ThresholdC:     2,
	}
}

// Pipeline applies the fixed preprocessing stages in order.
type Pipeline struct {
	cfg Config
}

// New builds a pipeline, falling back to defaults for zero fields.
func New(cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = def.MaxWidth
	}
	if cfg.TileSize <= 0 {
		cfg.TileSize = def.TileSize
	}
	if cfg.ThresholdBlock <= 0 {
		cfg.ThresholdBlock = def.ThresholdBlock
	}
	if cfg.ThresholdBlock%2 == 0 {
		cfg.ThresholdBlock++
	}
	return &Pipeline{cfg: cfg}
}

// Run decodes raw image bytes and produces the normalized binary image.
// Decode failures (corrupt or unsupported input) are returned to the caller,
// which records them as a terminal job failure.
func (p *Pipeline) Run(data []byte) (*image.Gray, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if b := src.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}

	src = p.downscale(src)
	gray := toGray(src)
	gray = p.enhanceContrast(gray)
	gray = medianSmooth(gray)
	return p.adaptiveThreshold(gray), nil
}

func (p *Pipeline) downscale(src image.Image) image.Image {
	b := src.Bounds()
	if b.Dx() <= p.cfg.MaxWidth {
		return src
	}
	h := b.Dy() * p.cfg.MaxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, p.cfg.MaxWidth, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return dst
}

// enhanceContrast stretches intensities per tile so dark plates on bright
// scenes (and the reverse) both land on the full range.
func (p *Pipeline) enhanceContrast(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	tile := p.cfg.TileSize
	for ty := b.Min.Y; ty < b.Max.Y; ty += tile {
		for tx := b.Min.X; tx < b.Max.X; tx += tile {
			x1, y1 := tx+tile, ty+tile
			if x1 > b.Max.X {
				x1 = b.Max.X
			}
			if y1 > b.Max.Y {
				y1 = b.Max.Y
			}
			stretchTile(src, dst, image.Rect(tx, ty, x1, y1))
		}
	}
	return dst
}

func stretchTile(src, dst *image.Gray, r image.Rectangle) {
	lo, hi := uint8(255), uint8(0)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			v := src.GrayAt(x, y).Y
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				dst.SetGray(x, y, src.GrayAt(x, y))
			}
		}
		return
	}
	scale := 255.0 / float64(hi-lo)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			v := float64(src.GrayAt(x, y).Y-lo) * scale
			dst.SetGray(x, y, color.Gray{Y: uint8(v + 0.5)})
		}
	}
}

// medianSmooth removes speckle noise while keeping glyph edges crisp.
func medianSmooth(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	var window [9]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					xx, yy := x+dx, y+dy
					if xx < b.Min.X || xx >= b.Max.X || yy < b.Min.Y || yy >= b.Max.Y {
						continue
					}
					window[n] = int(src.GrayAt(xx, yy).Y)
					n++
				}
			}
			vals := window[:n]
			sort.Ints(vals)
			dst.SetGray(x, y, color.Gray{Y: uint8(vals[n/2])})
		}
	}
	return dst
}

// adaptiveThreshold binarizes against the local mean, computed over a
// ThresholdBlock window via a summed-area table.
func (p *Pipeline) adaptiveThreshold(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(b)

	integral := make([]int64, (w+1)*(h+1))
	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}

	half := p.cfg.ThresholdBlock / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := x-half, y-half
			x1, y1 := x+half+1, y+half+1
			if x0 < 0 {
				x0 = 0
			}
			if y0 < 0 {
				y0 = 0
			}
			if x1 > w {
				x1 = w
			}
			if y1 > h {
				y1 = h
			}
			area := int64((x1 - x0) * (y1 - y0))
			sum := integral[y1*stride+x1] - integral[y0*stride+x1] - integral[y1*stride+x0] + integral[y0*stride+x0]
			mean := sum / area
			v := int64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			if v > mean-int64(p.cfg.ThresholdC) {
				dst.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 255})
			} else {
				dst.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 0})
			}
		}
	}
	return dst
}
