// Package filter is the catalog of frame transforms a job can apply.
//
// Every transform is a pure function from one frame to a new frame of the
// same width and height. Transforms never modify their input, so the same
// frame may be handed to several workers and each transform can run on any
// goroutine without coordination.
package filter

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Transform maps one frame to one frame of identical dimensions.
type Transform func(img *image.NRGBA) *image.NRGBA

// Filter is one entry of the catalog: a stable name and its transform.
// The zero value is not a valid filter.
type Filter struct {
	name  string
	apply Transform
}

// New builds a filter that is not part of the catalog.
func New(name string, t Transform) Filter {
	return Filter{name: name, apply: t}
}

// Name returns the catalog name used by the HTTP surface.
func (f Filter) Name() string { return f.name }

// IsZero reports whether f is the zero Filter.
func (f Filter) IsZero() bool { return f.apply == nil }

// Apply runs the transform on a frame.
func (f Filter) Apply(img *image.NRGBA) *image.NRGBA {
	return f.apply(img)
}

// String implements fmt.Stringer.
func (f Filter) String() string { return f.name }

// The catalog. Order here is the order reported by Names.
var (
	Grayscale     = Filter{"grayscale", grayscale}
	Blur          = Filter{"blur", blur}
	Sepia         = Filter{"sepia", sepia}
	Brightness    = Filter{"brightness", brightness}
	Contrast      = Filter{"contrast", contrast}
	Saturation    = Filter{"saturation", saturation}
	WarmTone      = Filter{"warm_tone", warmTone}
	CoolTone      = Filter{"cool_tone", coolTone}
	EdgeDetection = Filter{"edge_detection", edgeDetection}
)

// Identity returns every frame unchanged. It is not part of the public
// catalog and cannot be selected by name; it re-encodes a video without
// modifying pixels.
var Identity = Filter{"identity", func(img *image.NRGBA) *image.NRGBA { return img }}

var catalog = []Filter{
	Grayscale,
	Blur,
	Sepia,
	Brightness,
	Contrast,
	Saturation,
	WarmTone,
	CoolTone,
	EdgeDetection,
}

var byName = func() map[string]Filter {
	m := make(map[string]Filter, len(catalog))
	for _, f := range catalog {
		m[f.name] = f
	}
	return m
}()

// Lookup returns the catalog filter with the given name.
func Lookup(name string) (Filter, bool) {
	f, ok := byName[name]
	return f, ok
}

// Names returns all catalog names in catalog order.
func Names() []string {
	names := make([]string, len(catalog))
	for i, f := range catalog {
		names[i] = f.name
	}
	return names
}

// All returns the catalog in order.
func All() []Filter {
	out := make([]Filter, len(catalog))
	copy(out, catalog)
	return out
}

// Blur sigma equivalent to a 15x15 Gaussian kernel with derived sigma.
const blurSigma = 2.6

// Edge thresholds on the L1 Sobel gradient magnitude.
const (
	edgeLow  = 100
	edgeHigh = 200
)

func grayscale(img *image.NRGBA) *image.NRGBA {
	return imaging.Grayscale(img)
}

func blur(img *image.NRGBA) *image.NRGBA {
	return imaging.Blur(img, blurSigma)
}

func sepia(img *image.NRGBA) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		return color.NRGBA{
			R: clamp(0.393*r + 0.769*g + 0.189*b),
			G: clamp(0.349*r + 0.686*g + 0.168*b),
			B: clamp(0.272*r + 0.534*g + 0.131*b),
			A: c.A,
		}
	})
}

// brightness scales the HSV value by 1.2. Scaling all channels by the same
// factor keeps hue and saturation unchanged until a channel clips.
func brightness(img *image.NRGBA) *image.NRGBA {
	return scaleChannels(img, 1.2, 1.2, 1.2)
}

// contrast is a pure gain of 1.3 with no offset.
func contrast(img *image.NRGBA) *image.NRGBA {
	return scaleChannels(img, 1.3, 1.3, 1.3)
}

// saturation scales the HSV saturation by 1.25, clipped at 1, keeping hue
// and value. With hue and value fixed each channel sits at a constant
// fraction of the way from max down to zero, so scaling saturation scales
// every channel's distance below max.
func saturation(img *image.NRGBA) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		hi := math.Max(r, math.Max(g, b))
		lo := math.Min(r, math.Min(g, b))
		if hi == lo {
			return c
		}
		k := math.Min(1.25, hi/(hi-lo))
		return color.NRGBA{
			R: clamp(hi - (hi-r)*k),
			G: clamp(hi - (hi-g)*k),
			B: clamp(hi - (hi-b)*k),
			A: c.A,
		}
	})
}

func warmTone(img *image.NRGBA) *image.NRGBA {
	return scaleChannels(img, 1.1, 1.05, 0.9)
}

func coolTone(img *image.NRGBA) *image.NRGBA {
	return scaleChannels(img, 0.9, 1.05, 1.15)
}

func scaleChannels(img *image.NRGBA, rf, gf, bf float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp(float64(c.R) * rf),
			G: clamp(float64(c.G) * gf),
			B: clamp(float64(c.B) * bf),
			A: c.A,
		}
	})
}

// edgeDetection produces a white-on-black Canny edge map: L1 Sobel
// gradients, non-maximum suppression across the gradient direction, then
// hysteresis. Gradients at or above edgeHigh seed edges; gradients at or
// above edgeLow are kept only when connected to a seed.
func edgeDetection(img *image.NRGBA) *image.NRGBA {
	gray := imaging.Grayscale(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w == 0 || h == 0 {
		return image.NewNRGBA(image.Rect(0, 0, w, h))
	}

	lum := func(x, y int) int {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return int(gray.Pix[gray.PixOffset(x, y)])
	}

	gx := make([]int, w*h)
	gy := make([]int, w*h)
	mag := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := lum(x+1, y-1) + 2*lum(x+1, y) + lum(x+1, y+1) -
				lum(x-1, y-1) - 2*lum(x-1, y) - lum(x-1, y+1)
			dy := lum(x-1, y+1) + 2*lum(x, y+1) + lum(x+1, y+1) -
				lum(x-1, y-1) - 2*lum(x, y-1) - lum(x+1, y-1)
			i := y*w + x
			gx[i], gy[i] = dx, dy
			mag[i] = abs(dx) + abs(dy)
		}
	}

	at := func(x, y int) int {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	// 0 none, 1 weak, 2 strong
	class := make([]uint8, w*h)
	var stack []int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m < edgeLow {
				continue
			}
			var a, b int
			ax, ay := abs(gx[i]), abs(gy[i])
			switch {
			case ay*5 <= ax*2: // within 22.5 degrees of horizontal gradient
				a, b = at(x-1, y), at(x+1, y)
			case ax*5 <= ay*2:
				a, b = at(x, y-1), at(x, y+1)
			case (gx[i] > 0) == (gy[i] > 0):
				a, b = at(x-1, y-1), at(x+1, y+1)
			default:
				a, b = at(x+1, y-1), at(x-1, y+1)
			}
			if m <= a || m < b {
				continue
			}
			if m >= edgeHigh {
				class[i] = 2
				stack = append(stack, i)
			} else {
				class[i] = 1
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				if n := ny*w + nx; class[n] == 1 {
					class[n] = 2
					stack = append(stack, n)
				}
			}
		}
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v uint8
			if class[y*w+x] == 2 {
				v = 255
			}
			i := out.PixOffset(x, y)
			out.Pix[i+0] = v
			out.Pix[i+1] = v
			out.Pix[i+2] = v
			out.Pix[i+3] = 255
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
