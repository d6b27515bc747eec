package nn

import (
	"fmt"
	"math/rand"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Config describes a GPT model.
type Config struct {
	VocabSize int   // Token vocabulary size.
	BlockSize int   // Maximum sequence length.
	NumLayers int   // Number of decoder blocks.
	NumHeads  int   // Attention heads per block.
	EmbedDim  int   // Embedding dimension.
	Seed      int64 // Weight initialization seed.
}

// Validate checks that all dimensions are set.
func (c Config) Validate() error {
	if c.VocabSize <= 0 || c.BlockSize <= 0 || c.NumLayers <= 0 ||
		c.NumHeads <= 0 || c.EmbedDim <= 0 {
		return fmt.Errorf("nn: incomplete model config %+v", c)
	}
	if c.EmbedDim%c.NumHeads != 0 {
		return fmt.Errorf("nn: embed dim %d not divisible by %d heads", c.EmbedDim, c.NumHeads)
	}
	return nil
}

// GPT is a decoder-only transformer language model.
type GPT struct {
	Config Config

	TokEmb *Embedding
	PosEmb *Embedding
	Blocks []*Block
	LNF    *LayerNorm
	LMHead *Linear

	backend tensor.Backend
}

// NewGPT builds a model with weights initialized from the config seed.
// Construction with the same config and backend kind is deterministic.
func NewGPT(cfg Config, b tensor.Backend) (*GPT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	m := &GPT{
		Config:  cfg,
		TokEmb:  NewEmbedding("tok_emb", cfg.VocabSize, cfg.EmbedDim, rng, b),
		PosEmb:  NewEmbedding("pos_emb", cfg.BlockSize, cfg.EmbedDim, rng, b),
		LNF:     NewLayerNorm("ln_f", cfg.EmbedDim, b),
		backend: b,
	}
	for i := 0; i < cfg.NumLayers; i++ {
		m.Blocks = append(m.Blocks, NewBlock(fmt.Sprintf("block%d", i), cfg.EmbedDim, cfg.NumHeads, rng, b))
	}
	m.LMHead = NewLinearNoBias("lm_head", cfg.EmbedDim, cfg.VocabSize, rng, b)
	return m, nil
}

// Backend returns the compute backend the model was built on.
func (m *GPT) Backend() tensor.Backend {
	return m.backend
}

// Forward runs the model on inputs of shape [batch, seqLen] (int32 token
// ids), with positional embeddings starting at startPos. When targets is
// non-nil it must match the input shape; the returned loss is the mean
// cross-entropy of next-token prediction, always float32. Without targets
// the loss is nil.
func (m *GPT) Forward(inputs, targets *tensor.Tensor, startPos int) (logits, loss *tensor.Tensor) {
	shape := inputs.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("nn: GPT inputs must be [batch, seqLen], got %v", shape))
	}
	batch, seqLen := shape[0], shape[1]
	if seqLen > m.Config.BlockSize {
		panic(fmt.Sprintf("nn: sequence length %d exceeds block size %d", seqLen, m.Config.BlockSize))
	}
	be := m.backend

	positions := make([]int32, seqLen)
	for i := range positions {
		positions[i] = int32(startPos + i)
	}
	posIdx, err := tensor.FromInt32Slice(positions, tensor.Shape{seqLen}, be)
	if err != nil {
		panic(err)
	}

	tok := m.TokEmb.Forward(inputs) // [batch, seqLen, embedDim]
	pos := m.PosEmb.Forward(posIdx) // [seqLen, embedDim]
	x := tok.Add(pos)               // positional broadcast over batch
	x = x.Reshape(batch*seqLen, m.Config.EmbedDim)

	for _, blk := range m.Blocks {
		x = blk.Forward(x, batch, seqLen)
	}
	x = m.LNF.Forward(x)

	flat := m.LMHead.Forward(x) // [batch*seqLen, vocab]
	logits = flat.Reshape(batch, seqLen, m.Config.VocabSize)

	if targets != nil {
		flatTargets := targets.Reshape(batch * seqLen)
		raw := be.CrossEntropy(flat.Raw(), flatTargets.Raw())
		loss = tensor.New(raw, be)
	}
	return logits, loss
}

// Parameters returns every trainable parameter in a stable order.
func (m *GPT) Parameters() []*Parameter {
	var params []*Parameter
	params = append(params, m.TokEmb.Parameters()...)
	params = append(params, m.PosEmb.Parameters()...)
	for _, blk := range m.Blocks {
		params = append(params, blk.Parameters()...)
	}
	params = append(params, m.LNF.Parameters()...)
	params = append(params, m.LMHead.Parameters()...)
	return params
}

// NumParameters returns the total trainable element count.
func (m *GPT) NumParameters() int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Raw().NumElements()
	}
	return total
}
