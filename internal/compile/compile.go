// Package compile applies ahead-of-time execution transforms to a model.
//
// The reduce-overhead mode enables step-scoped buffer reuse on the compute
// backend: the first step records every allocation the step graph needs and
// later steps replay from the recycled pool, eliminating per-step allocation
// overhead. The first call is therefore slower than steady state, which is
// the expected warm-up signature of this mode.
package compile

import (
	"fmt"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/nn"
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// Mode selects the compilation strategy.
type Mode string

// Supported modes.
const (
	ModeDefault        Mode = "default"
	ModeReduceOverhead Mode = "reduce-overhead"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDefault, ModeReduceOverhead:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("compile: unknown mode %q", s)
	}
}

type bufferReuser interface {
	EnableBufferReuse(enabled bool)
	BeginStep()
}

type unwrapper interface {
	Inner() tensor.Backend
}

// findReuser walks backend decorators looking for buffer reuse support.
func findReuser(b tensor.Backend) bufferReuser {
	for b != nil {
		if r, ok := b.(bufferReuser); ok {
			return r
		}
		u, ok := b.(unwrapper)
		if !ok {
			return nil
		}
		b = u.Inner()
	}
	return nil
}

// Model wraps a GPT with a compilation mode.
type Model struct {
	inner  *nn.GPT
	mode   Mode
	reuser bufferReuser
}

// Compile wraps m according to mode. In default mode the wrapper is a
// passthrough.
func Compile(m *nn.GPT, mode Mode) *Model {
	c := &Model{inner: m, mode: mode}
	if mode == ModeReduceOverhead {
		if r := findReuser(m.Backend()); r != nil {
			r.EnableBufferReuse(true)
			c.reuser = r
		}
	}
	return c
}

// Mode returns the active compilation mode.
func (c *Model) Mode() Mode {
	return c.mode
}

// Forward runs the model. In reduce-overhead mode it first recycles the
// previous step's buffers; callers must have synchronized the backend since
// the last step.
func (c *Model) Forward(inputs, targets *tensor.Tensor, startPos int) (logits, loss *tensor.Tensor) {
	if c.reuser != nil {
		c.reuser.BeginStep()
	}
	return c.inner.Forward(inputs, targets, startPos)
}

// Parameters returns the underlying model's parameters.
func (c *Model) Parameters() []*nn.Parameter {
	return c.inner.Parameters()
}

// Inner returns the wrapped model.
func (c *Model) Inner() *nn.GPT {
	return c.inner
}
