package tensor

// AttentionParams describes the head layout of a fused scaled-dot-product
// attention call. Q, K and V are passed as [batch*seqLen, numHeads*headDim]
// matrices; the params tell the kernel how to fold them back into heads.
type AttentionParams struct {
	Batch    int     // Number of sequences in the batch.
	SeqLen   int     // Sequence length.
	NumHeads int     // Number of attention heads.
	HeadDim  int     // Dimension per head.
	Causal   bool    // Autoregressive masking.
	Scale    float32 // Score scale, usually 1/sqrt(headDim).
}

// Backend defines the compute interface all device implementations satisfy.
//
// Backends execute asynchronously with respect to the host: kernels are
// dispatched through Submit and may still be in flight when an operation
// returns. Synchronize blocks until all outstanding work has completed;
// reading tensor data without synchronizing first is undefined.
//
// The op set is the one a transformer training step exercises. Attention,
// LayerNorm and CrossEntropy are fused kernels rather than compositions,
// mirroring how accelerator frameworks expose them.
type Backend interface {
	Name() string
	Device() Device

	// Element-wise binary operations with trailing-dimension broadcasting
	// of the second operand (see Shape.BroadcastsOver).
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations.
	MulScalar(x *RawTensor, s float32) *RawTensor
	AddScalar(x *RawTensor, s float32) *RawTensor

	// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) -> (M, N).
	// Honors the global float32 matmul precision mode and autocast.
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations.
	Transpose(t *RawTensor) *RawTensor
	Reshape(t *RawTensor, shape Shape) *RawTensor

	// Activations and normalization.
	Gelu(x *RawTensor) *RawTensor
	Softmax(x *RawTensor) *RawTensor
	LayerNorm(x, gamma, beta *RawTensor, eps float32) *RawTensor

	// Embedding looks up rows of weight [vocab, dim] by int32 indices.
	Embedding(weight, indices *RawTensor) *RawTensor

	// Attention computes fused scaled-dot-product attention. The kernel
	// (math, memory-efficient or flash) is selected from the global
	// backend flags at call time.
	Attention(q, k, v *RawTensor, p AttentionParams) *RawTensor

	// CrossEntropy computes mean negative log-likelihood over the batch.
	// logits: [batch, classes] float, targets: [batch] int32.
	// The result is always float32, also under autocast.
	CrossEntropy(logits, targets *RawTensor) *RawTensor

	// Submit dispatches a kernel to the device execution queue.
	Submit(label string, fn func())

	// Synchronize blocks until all submitted work has completed.
	Synchronize()
}
