package vector

import "math"

// scalarCodec is an 8-bit per-dimension scalar quantizer. Each dimension is mapped
// linearly from [min, min+255·scale] onto a byte; values outside the trained range clamp.
type scalarCodec struct {
	min   []float32
	scale []float32
}

// rangeMargin widens the trained range on both sides so that vectors added after
// training rarely clamp.
const rangeMargin = 0.2

func trainScalarCodec(sample [][]float32, dim int) *scalarCodec {
	lo := make([]float32, dim)
	hi := make([]float32, dim)
	for j := range lo {
		lo[j] = float32(math.Inf(1))
		hi[j] = float32(math.Inf(-1))
	}
	for _, v := range sample {
		for j, x := range v {
			lo[j] = min(lo[j], x)
			hi[j] = max(hi[j], x)
		}
	}
	c := &scalarCodec{min: make([]float32, dim), scale: make([]float32, dim)}
	for j := range lo {
		span := hi[j] - lo[j]
		if span <= 0 {
			span = 1e-3
		}
		lo[j] -= span * rangeMargin
		span *= 1 + 2*rangeMargin
		c.min[j] = max(lo[j], -1)
		c.scale[j] = (min(lo[j]+span, 1) - c.min[j]) / 255
		if c.scale[j] <= 0 {
			c.scale[j] = 1e-5
		}
	}
	return c
}

func (c *scalarCodec) encode(v []float32) []byte {
	code := make([]byte, len(v))
	for j, x := range v {
		q := math.Round(float64((x - c.min[j]) / c.scale[j]))
		switch {
		case q < 0:
			q = 0
		case q > 255:
			q = 255
		}
		code[j] = byte(q)
	}
	return code
}

func (c *scalarCodec) decode(code []byte) []float32 {
	out := make([]float32, len(code))
	for j, b := range code {
		out[j] = c.min[j] + float32(b)*c.scale[j]
	}
	return out
}

// queryTable precomputes the terms of the asymmetric inner product between a full
// precision query and encoded vectors: ip = base + Σ weights[j]·code[j].
type queryTable struct {
	base    float64
	weights []float64
}

func (c *scalarCodec) table(query []float32) queryTable {
	t := queryTable{weights: make([]float64, len(query))}
	for j, q := range query {
		t.base += float64(q) * float64(c.min[j])
		t.weights[j] = float64(q) * float64(c.scale[j])
	}
	return t
}

func (t queryTable) score(code []byte) float64 {
	s := t.base
	for j, b := range code {
		s += t.weights[j] * float64(b)
	}
	return s
}
