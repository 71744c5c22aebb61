package filter

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientFrame builds a deterministic colourful frame.
func gradientFrame(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 127 / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

func TestCatalogNames(t *testing.T) {
	assert.Equal(t, []string{
		"grayscale", "blur", "sepia", "brightness", "contrast",
		"saturation", "warm_tone", "cool_tone", "edge_detection",
	}, Names())
}

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		f, ok := Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, name, f.Name())
		assert.False(t, f.IsZero())
	}

	_, ok := Lookup("identity")
	assert.False(t, ok, "identity must not be selectable by name")

	_, ok = Lookup("vignette")
	assert.False(t, ok)
}

func TestTransformsPreserveGeometry(t *testing.T) {
	src := gradientFrame(33, 17)
	for _, f := range All() {
		t.Run(f.Name(), func(t *testing.T) {
			out := f.Apply(src)
			require.NotNil(t, out)
			assert.Equal(t, src.Bounds().Dx(), out.Bounds().Dx())
			assert.Equal(t, src.Bounds().Dy(), out.Bounds().Dy())
		})
	}
}

func TestTransformsDoNotMutateInput(t *testing.T) {
	src := gradientFrame(16, 16)
	before := make([]byte, len(src.Pix))
	copy(before, src.Pix)

	for _, f := range All() {
		f.Apply(src)
		require.Equal(t, before, src.Pix, "%s modified its input", f.Name())
	}
}

func TestTransformsAreDeterministic(t *testing.T) {
	src := gradientFrame(24, 12)
	for _, f := range All() {
		a := f.Apply(src)
		b := f.Apply(src)
		assert.Equal(t, a.Pix, b.Pix, f.Name())
	}
}

func TestGrayscaleProducesEqualChannels(t *testing.T) {
	out := Grayscale.Apply(gradientFrame(20, 20))
	for i := 0; i < len(out.Pix); i += 4 {
		r, g, b := out.Pix[i], out.Pix[i+1], out.Pix[i+2]
		if r != g || g != b {
			t.Fatalf("pixel %d not gray: %d,%d,%d", i/4, r, g, b)
		}
	}
}

func TestIdentityTwiceIsIdentical(t *testing.T) {
	src := gradientFrame(10, 10)
	once := Identity.Apply(src)
	twice := Identity.Apply(once)
	assert.Equal(t, src.Pix, twice.Pix)
}

func TestWarmAndCoolTone(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 100, G: 100, B: 100, A: 255})

	warm := WarmTone.Apply(src).NRGBAAt(0, 0)
	assert.Equal(t, color.NRGBA{R: 110, G: 105, B: 90, A: 255}, warm)

	cool := CoolTone.Apply(src).NRGBAAt(0, 0)
	assert.Equal(t, color.NRGBA{R: 90, G: 105, B: 115, A: 255}, cool)
}

func TestBrightnessClamps(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 250, G: 100, B: 0, A: 255})

	got := Brightness.Apply(src).NRGBAAt(0, 0)
	assert.Equal(t, color.NRGBA{R: 255, G: 120, B: 0, A: 255}, got)
}

func TestSepiaOnWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	got := Sepia.Apply(src).NRGBAAt(0, 0)
	assert.Equal(t, uint8(255), got.R)
	assert.Equal(t, uint8(255), got.G)
	assert.Equal(t, uint8(239), got.B) // 0.937 * 255
}

func TestEdgeDetectionFindsVerticalEdge(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := uint8(0)
			if x >= 4 {
				v = 255
			}
			src.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	out := EdgeDetection.Apply(src)
	assert.Equal(t, uint8(255), out.NRGBAAt(3, 4).R, "boundary should be an edge")
	assert.Equal(t, uint8(0), out.NRGBAAt(4, 4).R, "edge should be one pixel wide")
	assert.Equal(t, uint8(0), out.NRGBAAt(1, 4).R, "flat region should not be an edge")
	assert.Equal(t, uint8(0), out.NRGBAAt(7, 4).R, "flat region should not be an edge")
}

func TestEdgeDetectionHysteresis(t *testing.T) {
	// A strong step on the left half of the boundary and a weak one on the
	// right half. The weak part survives only through its connection.
	src := image.NewNRGBA(image.Rect(0, 0, 12, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 12; x++ {
			v := uint8(0)
			if y >= 4 {
				v = 255
				if x >= 6 {
					v = 40 // 4*40 = 160, between the thresholds
				}
			}
			src.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	out := EdgeDetection.Apply(src)
	assert.Equal(t, uint8(255), out.NRGBAAt(2, 3).R, "strong edge kept")
	assert.Equal(t, uint8(255), out.NRGBAAt(10, 3).R, "weak edge connected to a strong one kept")

	isolated := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := uint8(0)
			if y >= 4 {
				v = 40
			}
			isolated.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	out = EdgeDetection.Apply(isolated)
	for x := 0; x < 8; x++ {
		require.Equal(t, uint8(0), out.NRGBAAt(x, 3).R, "isolated weak edge dropped at x=%d", x)
	}
}

func TestContrastIsPureGain(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 100, G: 220, B: 0, A: 255})

	got := Contrast.Apply(src).NRGBAAt(0, 0)
	assert.Equal(t, color.NRGBA{R: 130, G: 255, B: 0, A: 255}, got)
}

func TestSaturationScalesHSV(t *testing.T) {
	tests := []struct {
		name string
		in   color.NRGBA
		want color.NRGBA
	}{
		{"scaled", color.NRGBA{R: 200, G: 100, B: 100, A: 255}, color.NRGBA{R: 200, G: 75, B: 75, A: 255}},
		{"clipped at full saturation", color.NRGBA{R: 200, G: 20, B: 20, A: 255}, color.NRGBA{R: 200, G: 0, B: 0, A: 255}},
		{"gray unchanged", color.NRGBA{R: 90, G: 90, B: 90, A: 255}, color.NRGBA{R: 90, G: 90, B: 90, A: 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
			src.SetNRGBA(0, 0, tt.in)
			assert.Equal(t, tt.want, Saturation.Apply(src).NRGBAAt(0, 0))
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{-5, 0},
		{0, 0},
		{127.4, 127},
		{127.6, 128},
		{300, 255},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clamp(tt.in), "clamp(%v)", tt.in)
	}
}
