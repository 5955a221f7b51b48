package mathx

import "math"

// permSeed fixes the lattice permutation. Changing it changes every
// obstacle field ever generated, so it is a constant, not a parameter.
const permSeed = 0x5eab0a7d

var perm = buildPerm(permSeed)

func buildPerm(seed uint64) [512]uint8 {
	var p [256]uint8
	for i := range p {
		p[i] = uint8(i)
	}
	state := seed
	for i := len(p) - 1; i > 0; i-- {
		state = mix64(state)
		j := int(state % uint64(i+1))
		p[i], p[j] = p[j], p[i]
	}
	var out [512]uint8
	for i := range out {
		out[i] = p[i&255]
	}
	return out
}

func fade(t float64) float64 { return t * t * t * (t*(t*6-15) + 10) }

func lerp(a, b, t float64) float64 { return a + t*(b-a) }

func grad2(h uint8, x, y float64) float64 {
	switch h & 7 {
	case 0:
		return x + y
	case 1:
		return -x + y
	case 2:
		return x - y
	case 3:
		return -x - y
	case 4:
		return x
	case 5:
		return -x
	case 6:
		return y
	default:
		return -y
	}
}

// Perlin2 returns 2D gradient noise in [-1, 1]. It is zero on every
// integer lattice point and deterministic across platforms.
func Perlin2(x, y float64) float64 {
	fx := math.Floor(x)
	fy := math.Floor(y)
	xi := int(int64(fx) & 255)
	yi := int(int64(fy) & 255)
	xf := x - fx
	yf := y - fy
	u := fade(xf)
	v := fade(yf)

	aa := perm[int(perm[xi])+yi]
	ab := perm[int(perm[xi])+yi+1]
	ba := perm[int(perm[xi+1])+yi]
	bb := perm[int(perm[xi+1])+yi+1]

	x1 := lerp(grad2(aa, xf, yf), grad2(ba, xf-1, yf), u)
	x2 := lerp(grad2(ab, xf, yf-1), grad2(bb, xf-1, yf-1), u)
	n := lerp(x1, x2, v)
	if n > 1 {
		return 1
	}
	if n < -1 {
		return -1
	}
	return n
}
