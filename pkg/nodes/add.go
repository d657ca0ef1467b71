package nodes

import (
	"context"
	"fmt"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
)

// Add joins two numeric inputs and emits their sum as a float.
type Add struct {
	sum *engine.Output
}

func (a *Add) Setup(m engine.Modifier) error {
	m.AddInput(domain.TypeAny, "a", false)
	m.AddInput(domain.TypeAny, "b", false)
	a.sum = m.AddOutput(domain.TypeFloat, "sum")
	return nil
}

func (a *Add) ProcessIO(_ context.Context, in engine.Inputs, _ *engine.Parameters) error {
	x, err := toFloat(in.Value("a"))
	if err != nil {
		return fmt.Errorf("input a: %w", err)
	}
	y, err := toFloat(in.Value("b"))
	if err != nil {
		return fmt.Errorf("input b: %w", err)
	}
	a.sum.Send(x + y)
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%v (%T) is not a number", v, v)
	}
}
