package debrismap

import "math"

// gradientMagnitude returns |d/drow| + |d/dcol| of a height*width row-major
// field, using central differences inside and one-sided differences on the
// borders. An axis of length 1 has a zero derivative.
func gradientMagnitude(f []float64, height, width int) []float64 {
	g := make([]float64, len(f))
	at := func(r, c int) float64 { return f[r*width+c] }
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			var dr, dc float64
			switch {
			case height == 1:
			case r == 0:
				dr = at(1, c) - at(0, c)
			case r == height-1:
				dr = at(r, c) - at(r-1, c)
			default:
				dr = (at(r+1, c) - at(r-1, c)) / 2
			}
			switch {
			case width == 1:
			case c == 0:
				dc = at(r, 1) - at(r, 0)
			case c == width-1:
				dc = at(r, c) - at(r, c-1)
			default:
				dc = (at(r, c+1) - at(r, c-1)) / 2
			}
			g[r*width+c] = math.Abs(dr) + math.Abs(dc)
		}
	}
	return g
}

// gaussianKernel is the normalised 1D kernel truncated at 4 sigma
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		k[i+radius] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// reflect maps an out of range index back into [0,n) by mirroring about the
// edges, the edge sample being repeated (d c b a | a b c d | d c b a)
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}

// gaussianFilter smooths a height*width field with a separable gaussian of
// the given sigma, reflecting at the borders
func gaussianFilter(f []float64, height, width int, sigma float64) []float64 {
	out := append([]float64(nil), f...)
	if sigma <= 0 {
		return out
	}
	k := gaussianKernel(sigma)
	radius := len(k) / 2
	tmp := make([]float64, len(f))
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			s := 0.0
			for i, w := range k {
				s += w * out[reflect(r+i-radius, height)*width+c]
			}
			tmp[r*width+c] = s
		}
	}
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			s := 0.0
			for i, w := range k {
				s += w * tmp[r*width+reflect(c+i-radius, width)]
			}
			out[r*width+c] = s
		}
	}
	return out
}
