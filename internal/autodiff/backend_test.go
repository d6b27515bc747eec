package autodiff

import (
	"math"
	"math/rand"
	"testing"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend/cpu"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

func randomRaw(shape tensor.Shape, rng *rand.Rand) *tensor.RawTensor {
	r := tensor.MustNewRaw(shape, tensor.Float32, tensor.CPU)
	data := r.AsFloat32()
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return r
}

func int32Raw(shape tensor.Shape, values []int32) *tensor.RawTensor {
	r := tensor.MustNewRaw(shape, tensor.Int32, tensor.CPU)
	copy(r.AsInt32(), values)
	return r
}

// checkGrad compares the recorded gradient of param against central finite
// differences of loss. loss must re-evaluate the forward pass from the
// current parameter values.
func checkGrad(t *testing.T, param, grad *tensor.RawTensor, loss func() float32) {
	t.Helper()
	if grad == nil {
		t.Fatal("no gradient recorded")
	}
	const eps = 1e-2
	data := param.AsFloat32()
	gv := grad.AsFloat32()
	for i := range data {
		orig := data[i]
		data[i] = orig + eps
		up := loss()
		data[i] = orig - eps
		down := loss()
		data[i] = orig

		numeric := float64(up-down) / (2 * eps)
		analytic := float64(gv[i])
		tol := 1e-3 + 0.02*math.Abs(numeric)
		if math.Abs(numeric-analytic) > tol {
			t.Fatalf("grad[%d] = %g, numeric %g (tol %g)", i, analytic, numeric, tol)
		}
	}
}

func TestMatMulCrossEntropyGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	inner := cpu.New()
	ad := New(inner)

	x := randomRaw(tensor.Shape{3, 4}, rng)
	w := randomRaw(tensor.Shape{4, 5}, rng)
	targets := int32Raw(tensor.Shape{3}, []int32{0, 2, 4})

	ad.StartRecording()
	loss := ad.CrossEntropy(ad.MatMul(x, w), targets)
	ad.StopRecording()
	grads := ad.Backward(loss)

	eval := func() float32 {
		return inner.CrossEntropy(inner.MatMul(x, w), targets).AsFloat32()[0]
	}
	checkGrad(t, w, grads[w], eval)
	checkGrad(t, x, grads[x], eval)
}

func TestLayerNormGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	inner := cpu.New()
	ad := New(inner)

	x := randomRaw(tensor.Shape{3, 4}, rng)
	gamma := randomRaw(tensor.Shape{4}, rng)
	beta := randomRaw(tensor.Shape{4}, rng)
	targets := int32Raw(tensor.Shape{3}, []int32{1, 0, 3})

	ad.StartRecording()
	loss := ad.CrossEntropy(ad.LayerNorm(x, gamma, beta, 1e-5), targets)
	ad.StopRecording()
	grads := ad.Backward(loss)

	eval := func() float32 {
		return inner.CrossEntropy(inner.LayerNorm(x, gamma, beta, 1e-5), targets).AsFloat32()[0]
	}
	checkGrad(t, gamma, grads[gamma], eval)
	checkGrad(t, beta, grads[beta], eval)
	checkGrad(t, x, grads[x], eval)
}

func TestBroadcastAddGradientReduces(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	inner := cpu.New()
	ad := New(inner)

	x := randomRaw(tensor.Shape{3, 4}, rng)
	bias := randomRaw(tensor.Shape{4}, rng)
	targets := int32Raw(tensor.Shape{3}, []int32{0, 1, 2})

	ad.StartRecording()
	loss := ad.CrossEntropy(ad.Add(x, bias), targets)
	ad.StopRecording()
	grads := ad.Backward(loss)

	g := grads[bias]
	if g == nil {
		t.Fatal("no bias gradient")
	}
	if !g.Shape().Equal(tensor.Shape{4}) {
		t.Fatalf("bias gradient shape = %v, want [4]", g.Shape())
	}
	// The bias gradient is the column sum of the logits gradient.
	gx := grads[x].AsFloat32()
	gb := g.AsFloat32()
	for j := 0; j < 4; j++ {
		want := gx[j] + gx[4+j] + gx[8+j]
		if math.Abs(float64(gb[j]-want)) > 1e-6 {
			t.Errorf("bias grad[%d] = %g, want column sum %g", j, gb[j], want)
		}
	}
}

func TestEmbeddingGradientScatterAdd(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	inner := cpu.New()
	ad := New(inner)

	weight := randomRaw(tensor.Shape{5, 3}, rng)
	// Index 2 appears twice; its gradient row accumulates both.
	indices := int32Raw(tensor.Shape{4}, []int32{2, 0, 2, 4})
	targets := int32Raw(tensor.Shape{4}, []int32{0, 1, 2, 0})

	ad.StartRecording()
	out := ad.Embedding(weight, indices)
	loss := ad.CrossEntropy(ad.Reshape(out, tensor.Shape{4, 3}), targets)
	ad.StopRecording()
	grads := ad.Backward(loss)

	eval := func() float32 {
		o := inner.Embedding(weight, indices)
		return inner.CrossEntropy(inner.Reshape(o, tensor.Shape{4, 3}), targets).AsFloat32()[0]
	}
	checkGrad(t, weight, grads[weight], eval)

	gw := grads[weight].AsFloat32()
	for d := 0; d < 3; d++ {
		if gw[3*3+d] != 0 {
			t.Errorf("unused row 3 has gradient %g", gw[3*3+d])
		}
	}
}

func TestAttentionGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	inner := cpu.New()
	ad := New(inner)

	p := tensor.AttentionParams{
		Batch:    1,
		SeqLen:   3,
		NumHeads: 1,
		HeadDim:  4,
		Causal:   true,
		Scale:    0.5,
	}
	shape := tensor.Shape{3, 4}
	q := randomRaw(shape, rng)
	k := randomRaw(shape, rng)
	v := randomRaw(shape, rng)
	targets := int32Raw(tensor.Shape{3}, []int32{0, 1, 2})

	ad.StartRecording()
	loss := ad.CrossEntropy(ad.Attention(q, k, v, p), targets)
	ad.StopRecording()
	grads := ad.Backward(loss)

	eval := func() float32 {
		return inner.CrossEntropy(inner.Attention(q, k, v, p), targets).AsFloat32()[0]
	}
	checkGrad(t, q, grads[q], eval)
	checkGrad(t, k, grads[k], eval)
	checkGrad(t, v, grads[v], eval)
}

func TestGeluGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	inner := cpu.New()
	ad := New(inner)

	x := randomRaw(tensor.Shape{2, 3}, rng)
	targets := int32Raw(tensor.Shape{2}, []int32{0, 2})

	ad.StartRecording()
	loss := ad.CrossEntropy(ad.Gelu(x), targets)
	ad.StopRecording()
	grads := ad.Backward(loss)

	eval := func() float32 {
		return inner.CrossEntropy(inner.Gelu(x), targets).AsFloat32()[0]
	}
	checkGrad(t, x, grads[x], eval)
}

func TestResetTapeClearsState(t *testing.T) {
	inner := cpu.New()
	ad := New(inner)
	rng := rand.New(rand.NewSource(7))

	x := randomRaw(tensor.Shape{2, 2}, rng)
	targets := int32Raw(tensor.Shape{2}, []int32{0, 1})

	ad.StartRecording()
	loss := ad.CrossEntropy(x, targets)
	ad.StopRecording()
	if grads := ad.Backward(loss); grads[x] == nil {
		t.Fatal("no gradient before reset")
	}

	ad.ResetTape()
	if len(ad.Backward(loss)) > 1 {
		t.Error("tape not cleared by ResetTape")
	}
}
