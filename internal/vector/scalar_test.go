package vector

import (
	"math"
	"math/rand"
	"testing"
)

func TestScalarCodec_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sample := randomUnitVectors(200, 16, rng)
	c := trainScalarCodec(sample, 16)

	for _, v := range sample[:20] {
		got := c.decode(c.encode(v))
		for j := range v {
			if diff := math.Abs(float64(got[j] - v[j])); diff > float64(c.scale[j]) {
				t.Fatalf("dim %d: decoded %f, original %f (scale %f)", j, got[j], v[j], c.scale[j])
			}
		}
	}
}

func TestScalarCodec_ClampsOutOfRange(t *testing.T) {
	c := trainScalarCodec([][]float32{{0, 0}, {0.1, 0.1}}, 2)
	code := c.encode([]float32{-1, 1})
	if code[0] != 0 || code[1] != 255 {
		t.Errorf("out-of-range values should clamp, got %v", code)
	}
}

func TestScalarCodec_TableMatchesDecode(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sample := randomUnitVectors(100, 32, rng)
	c := trainScalarCodec(sample, 32)
	q := sample[5]
	for _, v := range sample[:10] {
		code := c.encode(v)
		want := InnerProduct(q, c.decode(code))
		got := c.table(q).score(code)
		if math.Abs(want-got) > 1e-4 {
			t.Errorf("table score %f, decoded score %f", got, want)
		}
	}
}
