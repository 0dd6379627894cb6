// Package imaging turns client image payloads into normalized model input tensors.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strings"

	// Registered raster formats
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/nfnt/resize"

	"github.com/tphakala/leafnet-go/internal/conf"
	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/logger"
)

// MaxSourcePixels bounds the decoded size of a source image.
const MaxSourcePixels = 64 * 1024 * 1024

// Options configures a Decoder.
type Options struct {
	Width           int    // target width in pixels
	Height          int    // target height in pixels
	Filter          string // resampling filter name, see ParseFilter
	ReencodeQuality int    // JPEG quality of the optional re-encode stage, 0 disables
}

// OptionsFromSettings maps imaging settings onto decoder options.
func OptionsFromSettings(s *conf.ImagingSettings) Options {
	return Options{
		Width:           s.Width,
		Height:          s.Height,
		Filter:          s.Filter,
		ReencodeQuality: s.ReencodeQuality,
	}
}

// Decoder converts base64 payloads into NHWC tensors of a fixed size.
// A Decoder is immutable and safe for concurrent use.
type Decoder struct {
	width   int
	height  int
	interp  resize.InterpolationFunction
	quality int
}

// NewDecoder validates opts and returns a Decoder.
func NewDecoder(opts Options) (*Decoder, error) {
	if opts.Width < 1 || opts.Height < 1 {
		return nil, errors.Newf("invalid target size %dx%d", opts.Width, opts.Height).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if opts.ReencodeQuality < 0 || opts.ReencodeQuality > 100 {
		return nil, errors.Newf("re-encode quality %d out of range 0-100", opts.ReencodeQuality).
			Category(errors.CategoryConfiguration).
			Build()
	}
	interp, err := ParseFilter(opts.Filter)
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryConfiguration).Build()
	}

	return &Decoder{
		width:   opts.Width,
		height:  opts.Height,
		interp:  interp,
		quality: opts.ReencodeQuality,
	}, nil
}

// Shape returns the shape of every tensor this decoder produces.
func (d *Decoder) Shape() Shape {
	return NewShape(d.height, d.width)
}

// ReencodeEnabled reports whether the lossy re-encode stage is active.
func (d *Decoder) ReencodeEnabled() bool {
	return d.quality > 0
}

// Decode turns a base64 payload into a tensor. An optional data URL prefix
// ("data:image/png;base64,") and embedded whitespace are accepted.
func (d *Decoder) Decode(payload string) (*Tensor, error) {
	raw, err := decodeBase64(payload)
	if err != nil {
		return nil, err
	}
	return d.DecodeBytes(raw)
}

// DecodeBytes turns encoded image bytes into a tensor.
func (d *Decoder) DecodeBytes(data []byte) (*Tensor, error) {
	if len(data) == 0 {
		return nil, errors.DecodeError(errors.NewStd("image payload is empty")).Build()
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, decodeFailure(err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, errors.DecodeError(fmt.Errorf("image has zero dimensions %dx%d", cfg.Width, cfg.Height)).Build()
	}
	if cfg.Width*cfg.Height > MaxSourcePixels {
		return nil, errors.DecodeError(fmt.Errorf("image of %dx%d pixels exceeds the size limit", cfg.Width, cfg.Height)).Build()
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, decodeFailure(err)
	}

	t, err := d.DecodeImage(img)
	if err != nil {
		return nil, err
	}
	GetLogger().Trace("decoded image",
		logger.String("format", format),
		logger.Int("source_width", cfg.Width),
		logger.Int("source_height", cfg.Height))
	return t, nil
}

// DecodeImage runs an already decoded image through resize, channel
// flattening, the optional re-encode stage and normalization.
func (d *Decoder) DecodeImage(img image.Image) (*Tensor, error) {
	if img == nil {
		return nil, errors.DecodeError(errors.NewStd("image is nil")).Build()
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.DecodeError(fmt.Errorf("image has zero dimensions %dx%d", b.Dx(), b.Dy())).Build()
	}

	resized := resize.Resize(uint(d.width), uint(d.height), toOpaqueRGBA(img), d.interp)

	if d.quality > 0 {
		var err error
		resized, err = reencodeJPEG(resized, d.quality)
		if err != nil {
			return nil, err
		}
	}

	return d.normalize(resized), nil
}

// normalize writes the image into an NHWC float tensor scaled by 1/255.
func (d *Decoder) normalize(img image.Image) *Tensor {
	shape := d.Shape()
	out := make([]float32, shape.Elements())
	b := img.Bounds()

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < d.height; y++ {
			row := rgba.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < d.width; x++ {
				src := row + x*4
				dst := (y*d.width + x) * Channels
				out[dst+0] = float32(rgba.Pix[src+0]) / 255.0
				out[dst+1] = float32(rgba.Pix[src+1]) / 255.0
				out[dst+2] = float32(rgba.Pix[src+2]) / 255.0
			}
		}
		return &Tensor{Data: out, Shape: shape}
	}

	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			r32, g32, b32, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			dst := (y*d.width + x) * Channels
			out[dst+0] = float32(r32>>8) / 255.0
			out[dst+1] = float32(g32>>8) / 255.0
			out[dst+2] = float32(b32>>8) / 255.0
		}
	}
	return &Tensor{Data: out, Shape: shape}
}

// toOpaqueRGBA discards alpha and expands grayscale, keeping the
// straight (non-premultiplied) color values of every pixel.
func toOpaqueRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.YCbCr, *image.Gray:
		// Always opaque; draw converts without touching alpha
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

func reencodeJPEG(img image.Image, quality int) (image.Image, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.DecodeError(fmt.Errorf("re-encode image: %w", err)).Build()
	}
	out, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, errors.DecodeError(fmt.Errorf("decode re-encoded image: %w", err)).Build()
	}
	return out, nil
}

// decodeBase64 accepts standard base64 with or without padding, and the
// URL-safe alphabet.
func decodeBase64(payload string) ([]byte, error) {
	s := strings.TrimSpace(payload)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
			return nil, errors.DecodeError(errors.NewStd("malformed data URL")).Build()
		}
		s = s[comma+1:]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	if s == "" {
		return nil, errors.DecodeError(errors.NewStd("image payload is empty")).Build()
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, errors.DecodeError(errors.NewStd("invalid base64 payload")).Build()
}

func decodeFailure(err error) error {
	if errors.Is(err, image.ErrFormat) {
		return errors.DecodeError(errors.NewStd("unsupported or unrecognized image format")).Build()
	}
	return errors.DecodeError(fmt.Errorf("cannot decode image: %w", err)).Build()
}
