package filters

import (
	"image/color"
	"math"
	"sync"
)

// CIE Lab conversions (sRGB, D65 white point).

const xn, yn, zn = 0.95047, 1.0, 1.08883

var (
	linearLUTOnce sync.Once
	linearLUT     [256]float64
)

func srgbToLinear(c uint8) float64 {
	linearLUTOnce.Do(func() {
		for i := range linearLUT {
			v := float64(i) / 255
			if v <= 0.04045 {
				linearLUT[i] = v / 12.92
			} else {
				linearLUT[i] = math.Pow((v+0.055)/1.055, 2.4)
			}
		}
	})
	return linearLUT[c]
}

func linearToSRGB(v float64) float64 {
	v = clamp01(v)
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

func labF(t float64) float64 {
	if t > 216.0/24389 {
		return math.Cbrt(t)
	}
	return (24389.0/27*t + 16) / 116
}

func labFInv(t float64) float64 {
	const d = 6.0 / 29
	if t > d {
		return t * t * t
	}
	return 3 * d * d * (t - 4.0/29)
}

func toLab(r, g, b uint8) (l, a, bb float64) {
	lr, lg, lb := srgbToLinear(r), srgbToLinear(g), srgbToLinear(b)
	x := 0.4124564*lr + 0.3575761*lg + 0.1804375*lb
	y := 0.2126729*lr + 0.7151522*lg + 0.0721750*lb
	z := 0.0193339*lr + 0.1191920*lg + 0.9503041*lb
	fx, fy, fz := labF(x/xn), labF(y/yn), labF(z/zn)
	return 116*fy - 16, 500 * (fx - fy), 200 * (fy - fz)
}

func fromLab(l, a, b float64) (uint8, uint8, uint8) {
	fy := (l + 16) / 116
	x, y, z := xn*labFInv(fy+a/500), yn*labFInv(fy), zn*labFInv(fy-b/200)
	r := 3.2404542*x - 1.5371385*y - 0.4985314*z
	g := -0.9692660*x + 1.8760108*y + 0.0415560*z
	bl := 0.0556434*x - 0.2040259*y + 1.0572252*z
	return to8(linearToSRGB(r)), to8(linearToSRGB(g)), to8(linearToSRGB(bl))
}

// labDistance is the CIE76 delta E between two colours.
func labDistance(c1, c2 color.NRGBA) float64 {
	l1, a1, b1 := toLab(c1.R, c1.G, c1.B)
	l2, a2, b2 := toLab(c2.R, c2.G, c2.B)
	return math.Sqrt((l1-l2)*(l1-l2) + (a1-a2)*(a1-a2) + (b1-b2)*(b1-b2))
}
