package cpu

import (
	"math"
	"testing"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

func rawFrom(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r := tensor.MustNewRaw(shape, tensor.Float32, tensor.CPU)
	copy(r.AsFloat32(), data)
	return r
}

func TestAddBroadcast(t *testing.T) {
	c := New()
	a := rawFrom(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := rawFrom(t, []float32{10, 20, 30}, tensor.Shape{3})

	out := c.Add(a, b).AsFloat32()
	want := []float32{11, 22, 33, 14, 25, 36}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("Add broadcast = %v, want %v", out, want)
		}
	}
}

func TestAddShapeMismatchPanics(t *testing.T) {
	c := New()
	defer func() {
		if recover() == nil {
			t.Error("incompatible shapes did not panic")
		}
	}()
	c.Add(rawFrom(t, make([]float32, 6), tensor.Shape{2, 3}),
		rawFrom(t, make([]float32, 2), tensor.Shape{2}))
}

func TestMatMul(t *testing.T) {
	backend.Reset()
	defer backend.Reset()
	c := New()

	a := rawFrom(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := rawFrom(t, []float32{7, 8, 9, 10, 11, 12}, tensor.Shape{3, 2})
	out := c.MatMul(a, b).AsFloat32()
	want := []float32{58, 64, 139, 154}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("MatMul = %v, want %v", out, want)
		}
	}
}

func TestMatMulPrecisionModes(t *testing.T) {
	backend.Reset()
	defer backend.Reset()
	c := New()

	// 1.2345678 is not representable in 10 or 8 mantissa bits, so the
	// reduced modes must produce a different product.
	a := rawFrom(t, []float32{1.2345678}, tensor.Shape{1, 1})
	b := rawFrom(t, []float32{1.2345678}, tensor.Shape{1, 1})

	exact := c.MatMul(a, b).AsFloat32()[0]

	if err := backend.SetFloat32MatmulPrecision(backend.PrecisionHigh); err != nil {
		t.Fatal(err)
	}
	high := c.MatMul(a, b).AsFloat32()[0]

	if err := backend.SetFloat32MatmulPrecision(backend.PrecisionMedium); err != nil {
		t.Fatal(err)
	}
	medium := c.MatMul(a, b).AsFloat32()[0]

	if exact == high {
		t.Error("high precision mode did not round inputs")
	}
	if high == medium {
		t.Error("medium mode matches high mode")
	}
	wantHigh := tensor.RoundTF32(1.2345678)
	if high != wantHigh*wantHigh {
		t.Errorf("high mode product = %g, want %g", high, wantHigh*wantHigh)
	}
	wantMed := tensor.RoundBFloat16(1.2345678)
	if medium != wantMed*wantMed {
		t.Errorf("medium mode product = %g, want %g", medium, wantMed*wantMed)
	}
}

func TestMatMulDoesNotMutateOperands(t *testing.T) {
	backend.Reset()
	defer backend.Reset()
	if err := backend.SetFloat32MatmulPrecision(backend.PrecisionMedium); err != nil {
		t.Fatal(err)
	}
	c := New()
	a := rawFrom(t, []float32{1.2345678}, tensor.Shape{1, 1})
	b := rawFrom(t, []float32{2.7182818}, tensor.Shape{1, 1})
	c.MatMul(a, b)
	if a.AsFloat32()[0] != 1.2345678 || b.AsFloat32()[0] != 2.7182818 {
		t.Error("reduced-precision matmul rounded operands in place")
	}
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	c := New()
	x := rawFrom(t, []float32{1, 2, 3, -1, 0, 1}, tensor.Shape{2, 3})
	out := c.Softmax(x).AsFloat32()
	for r := 0; r < 2; r++ {
		var sum float32
		for i := 0; i < 3; i++ {
			sum += out[r*3+i]
		}
		if math.Abs(float64(sum-1)) > 1e-6 {
			t.Errorf("row %d sums to %g", r, sum)
		}
	}
	if !(out[2] > out[1] && out[1] > out[0]) {
		t.Error("softmax is not monotone in its input")
	}
}

func TestLayerNorm(t *testing.T) {
	c := New()
	x := rawFrom(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 4})
	gamma := rawFrom(t, []float32{1, 1, 1, 1}, tensor.Shape{4})
	beta := rawFrom(t, []float32{0, 0, 0, 0}, tensor.Shape{4})

	out := c.LayerNorm(x, gamma, beta, 1e-5).AsFloat32()
	var mean, sq float64
	for _, v := range out {
		mean += float64(v)
	}
	mean /= 4
	for _, v := range out {
		sq += (float64(v) - mean) * (float64(v) - mean)
	}
	if math.Abs(mean) > 1e-5 {
		t.Errorf("normalized mean = %g", mean)
	}
	if math.Abs(sq/4-1) > 1e-3 {
		t.Errorf("normalized variance = %g", sq/4)
	}
}

func TestEmbedding(t *testing.T) {
	c := New()
	weight := rawFrom(t, []float32{0, 0, 1, 1, 2, 2}, tensor.Shape{3, 2})
	idx := tensor.MustNewRaw(tensor.Shape{2, 2}, tensor.Int32, tensor.CPU)
	copy(idx.AsInt32(), []int32{2, 0, 1, 2})

	out := c.Embedding(weight, idx)
	if !out.Shape().Equal(tensor.Shape{2, 2, 2}) {
		t.Fatalf("Embedding shape = %v", out.Shape())
	}
	want := []float32{2, 2, 0, 0, 1, 1, 2, 2}
	got := out.AsFloat32()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Embedding = %v, want %v", got, want)
		}
	}
}

func TestCrossEntropyUniformLogits(t *testing.T) {
	c := New()
	logits := rawFrom(t, make([]float32, 2*5), tensor.Shape{2, 5})
	targets := tensor.MustNewRaw(tensor.Shape{2}, tensor.Int32, tensor.CPU)
	copy(targets.AsInt32(), []int32{0, 3})

	loss := c.CrossEntropy(logits, targets)
	if loss.DType() != tensor.Float32 {
		t.Errorf("loss dtype = %s", loss.DType())
	}
	want := math.Log(5)
	if got := float64(loss.AsFloat32()[0]); math.Abs(got-want) > 1e-6 {
		t.Errorf("uniform cross entropy = %g, want ln(5) = %g", got, want)
	}
}

func TestGelu(t *testing.T) {
	c := New()
	x := rawFrom(t, []float32{-10, 0, 10}, tensor.Shape{3})
	out := c.Gelu(x).AsFloat32()
	if math.Abs(float64(out[0])) > 1e-3 {
		t.Errorf("gelu(-10) = %g", out[0])
	}
	if out[1] != 0 {
		t.Errorf("gelu(0) = %g", out[1])
	}
	if math.Abs(float64(out[2]-10)) > 1e-3 {
		t.Errorf("gelu(10) = %g", out[2])
	}
}

func TestBufferReuseRecycles(t *testing.T) {
	c := New()
	c.EnableBufferReuse(true)

	c.BeginStep()
	a := rawFrom(t, []float32{1, 2, 3, 4}, tensor.Shape{4})
	first := c.MulScalar(a, 2)

	c.BeginStep()
	second := c.MulScalar(a, 3)

	if &first.Bytes()[0] != &second.Bytes()[0] {
		t.Error("second step did not reuse the recycled buffer")
	}
	want := []float32{3, 6, 9, 12}
	for i, v := range second.AsFloat32() {
		if v != want[i] {
			t.Fatalf("recycled result = %v, want %v", second.AsFloat32(), want)
		}
	}
}
