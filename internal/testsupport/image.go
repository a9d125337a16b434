package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// PNG returns an encoded grayscale gradient of the given size, good enough
// to flow through the preprocessing pipeline.
func PNG(width, height int) []byte {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*13) % 256)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err) // cannot fail for an in-memory gray image
	}
	return buf.Bytes()
}
