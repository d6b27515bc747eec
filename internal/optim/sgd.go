package optim

import (
	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

// SGDConfig holds SGD hyperparameters.
type SGDConfig struct {
	LR       float32
	Momentum float32
}

// SGD implements stochastic gradient descent with optional momentum.
type SGD struct {
	cfg     SGDConfig
	backend tensor.Backend
	params  []*tensor.RawTensor
	vel     map[*tensor.RawTensor]*tensor.RawTensor
}

// NewSGD creates an SGD optimizer over params.
func NewSGD(params []*tensor.RawTensor, cfg SGDConfig, b tensor.Backend) *SGD {
	return &SGD{
		cfg:     cfg,
		backend: b,
		params:  params,
		vel:     map[*tensor.RawTensor]*tensor.RawTensor{},
	}
}

// Step applies one SGD update using the gradients in grads.
func (o *SGD) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, p := range o.params {
		g, ok := grads[p]
		if !ok {
			continue
		}
		param, grad := p, g
		if o.cfg.Momentum == 0 {
			o.backend.Submit("sgd", func() {
				pv, gv := param.AsFloat32(), grad.AsFloat32()
				for i, x := range gv {
					pv[i] -= o.cfg.LR * x
				}
			})
			continue
		}
		vel, ok := o.vel[p]
		if !ok {
			vel = newState(p)
			o.vel[p] = vel
		}
		o.backend.Submit("sgd_momentum", func() {
			pv, gv, vv := param.AsFloat32(), grad.AsFloat32(), vel.AsFloat32()
			for i, x := range gv {
				vv[i] = o.cfg.Momentum*vv[i] + x
				pv[i] -= o.cfg.LR * vv[i]
			}
		})
	}
}
