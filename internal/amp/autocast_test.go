package amp

import (
	"testing"

	"github.com/abdo-ashraf/Optimizing-GPU-Utilization-at-Training/internal/tensor"
)

func TestAutocastScopesAndRestores(t *testing.T) {
	if Enabled() {
		t.Fatal("autocast enabled before any scope")
	}
	Autocast(tensor.BFloat16, func() {
		if !Enabled() || DType() != tensor.BFloat16 {
			t.Error("autocast state not set inside scope")
		}
	})
	if Enabled() {
		t.Error("autocast still enabled after scope")
	}
}

func TestAutocastNests(t *testing.T) {
	Autocast(tensor.BFloat16, func() {
		Autocast(tensor.Float32, func() {
			if DType() != tensor.Float32 {
				t.Error("inner scope dtype not applied")
			}
		})
		if DType() != tensor.BFloat16 {
			t.Error("outer scope dtype not restored")
		}
	})
}

func TestAutocastRestoresOnPanic(t *testing.T) {
	func() {
		defer func() { _ = recover() }()
		Autocast(tensor.BFloat16, func() {
			panic("boom")
		})
	}()
	if Enabled() {
		t.Error("autocast left enabled after panic")
	}
}
