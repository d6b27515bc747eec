package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/autodiff"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/backend/cpu"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/optim"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

func testConfig() Config {
	return Config{
		VocabSize: 32,
		BlockSize: 8,
		NumLayers: 2,
		NumHeads:  2,
		EmbedDim:  16,
		Seed:      42,
	}
}

func tokenBatch(t *testing.T, b tensor.Backend, batch, seqLen, vocab int) (*tensor.Tensor, *tensor.Tensor) {
	t.Helper()
	tokens := make([]int32, batch*seqLen)
	targets := make([]int32, batch*seqLen)
	for i := range tokens {
		tokens[i] = int32(i % vocab)
		targets[i] = int32((i + 1) % vocab)
	}
	in, err := tensor.FromInt32Slice(tokens, tensor.Shape{batch, seqLen}, b)
	require.NoError(t, err)
	tg, err := tensor.FromInt32Slice(targets, tensor.Shape{batch, seqLen}, b)
	require.NoError(t, err)
	return in, tg
}

func TestGPTForwardShapes(t *testing.T) {
	be := cpu.New()
	model, err := NewGPT(testConfig(), be)
	require.NoError(t, err)

	inputs, targets := tokenBatch(t, be, 2, 8, 32)
	logits, loss := model.Forward(inputs, targets, 0)

	assert.Equal(t, tensor.Shape{2, 8, 32}, logits.Shape())
	require.NotNil(t, loss)
	assert.Equal(t, tensor.Shape{1}, loss.Shape())
	assert.Equal(t, tensor.Float32, loss.DType())
	assert.False(t, loss.Item() != loss.Item(), "loss is NaN")
	assert.Greater(t, loss.Item(), float32(0))
}

func TestGPTForwardWithoutTargets(t *testing.T) {
	be := cpu.New()
	model, err := NewGPT(testConfig(), be)
	require.NoError(t, err)

	inputs, _ := tokenBatch(t, be, 1, 4, 32)
	logits, loss := model.Forward(inputs, nil, 0)

	assert.Equal(t, tensor.Shape{1, 4, 32}, logits.Shape())
	assert.Nil(t, loss)
}

func TestGPTInitIsDeterministic(t *testing.T) {
	m1, err := NewGPT(testConfig(), cpu.New())
	require.NoError(t, err)
	m2, err := NewGPT(testConfig(), cpu.New())
	require.NoError(t, err)

	p1, p2 := m1.Parameters(), m2.Parameters()
	require.Equal(t, len(p1), len(p2))
	for i := range p1 {
		assert.Equal(t, p1[i].Name, p2[i].Name)
		assert.Equal(t, p1[i].Tensor.Data(), p2[i].Tensor.Data(), "parameter %s differs", p1[i].Name)
	}
}

func TestGPTLossDecreasesUnderTraining(t *testing.T) {
	ad := autodiff.New(cpu.New())
	model, err := NewGPT(testConfig(), ad)
	require.NoError(t, err)

	var raws []*tensor.RawTensor
	for _, p := range model.Parameters() {
		raws = append(raws, p.Raw())
	}
	opt := optim.NewAdamW(raws, optim.AdamWConfig{LR: 1e-2, Fused: true}, ad)

	inputs, targets := tokenBatch(t, ad, 2, 8, 32)

	var first, last float32
	for step := 0; step < 10; step++ {
		ad.ResetTape()
		ad.StartRecording()
		_, loss := model.Forward(inputs, targets, 0)
		ad.StopRecording()
		opt.Step(ad.Backward(loss.Raw()))

		if step == 0 {
			first = loss.Item()
		}
		last = loss.Item()
	}
	assert.Less(t, last, first, "loss did not decrease: first %g, last %g", first, last)
}

func TestGPTSequenceTooLongPanics(t *testing.T) {
	be := cpu.New()
	model, err := NewGPT(testConfig(), be)
	require.NoError(t, err)

	inputs, _ := tokenBatch(t, be, 1, 9, 32)
	assert.Panics(t, func() {
		model.Forward(inputs, nil, 0)
	})
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.NumHeads = 3 // 16 % 3 != 0
	assert.Error(t, cfg.Validate())

	cfg = Config{}
	assert.Error(t, cfg.Validate())

	assert.NoError(t, testConfig().Validate())
}
