package engine

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/signal"
)

// IntRange is the value of a range<int> parameter.
type IntRange struct {
	Lo int `json:"lo" yaml:"lo" mapstructure:"lo"`
	Hi int `json:"hi" yaml:"hi" mapstructure:"hi"`
}

// FloatRange is the value of a range<float> parameter.
type FloatRange struct {
	Lo float64 `json:"lo" yaml:"lo" mapstructure:"lo"`
	Hi float64 `json:"hi" yaml:"hi" mapstructure:"hi"`
}

// Param is one named node parameter.
type Param struct {
	Name        string
	Type        string
	Description string
	Trigger     bool

	mu       sync.Mutex
	value    any
	dirty    bool
	onChange []func(*Param)
}

// Value returns the current value.
func (p *Param) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// OnChange registers fn to run on the worker goroutine after the value
// changed (or, for trigger parameters, after the trigger fired).
func (p *Param) OnChange(fn func(*Param)) *Param {
	p.mu.Lock()
	p.onChange = append(p.onChange, fn)
	p.mu.Unlock()
	return p
}

// takeDirty returns the pending callbacks and clears the dirty flag.
func (p *Param) takeDirty() []func(*Param) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty {
		return nil
	}
	p.dirty = false
	return slices.Clone(p.onChange)
}

// Parameters is the parameter set of one node.
type Parameters struct {
	mu     sync.RWMutex
	params map[string]*Param
	order  []string

	// Added fires when a parameter is declared.
	Added signal.Signal[*Param]
	// Changed fires after a value was set or a trigger fired.
	Changed signal.Signal[*Param]
}

// NewParameters creates an empty parameter set.
func NewParameters() *Parameters {
	return &Parameters{params: make(map[string]*Param)}
}

// Add declares a parameter. Declaring an existing name returns the existing
// parameter unchanged.
func (ps *Parameters) Add(name, typ string, def any) *Param {
	ps.mu.Lock()
	if p, ok := ps.params[name]; ok {
		ps.mu.Unlock()
		return p
	}
	p := &Param{Name: name, Type: typ, value: def, Trigger: typ == domain.TypeSignal}
	ps.params[name] = p
	ps.order = append(ps.order, name)
	ps.mu.Unlock()

	ps.Added.Emit(p)
	return p
}

func (ps *Parameters) AddInt(name string, def int) *Param {
	return ps.Add(name, domain.TypeInt, def)
}

func (ps *Parameters) AddFloat(name string, def float64) *Param {
	return ps.Add(name, domain.TypeFloat, def)
}

func (ps *Parameters) AddString(name, def string) *Param {
	return ps.Add(name, domain.TypeString, def)
}

func (ps *Parameters) AddBool(name string, def bool) *Param {
	return ps.Add(name, domain.TypeBool, def)
}

func (ps *Parameters) AddIntRange(name string, lo, hi int) *Param {
	return ps.Add(name, domain.TypeIntRange, IntRange{Lo: lo, Hi: hi})
}

func (ps *Parameters) AddFloatRange(name string, lo, hi float64) *Param {
	return ps.Add(name, domain.TypeFloatRange, FloatRange{Lo: lo, Hi: hi})
}

// AddTrigger declares a value-less parameter that fires its callbacks.
func (ps *Parameters) AddTrigger(name string) *Param {
	return ps.Add(name, domain.TypeSignal, nil)
}

// Param returns the named parameter.
func (ps *Parameters) Param(name string) (*Param, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.params[name]
	return p, ok
}

// Names returns the parameter names in declaration order.
func (ps *Parameters) Names() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return append([]string(nil), ps.order...)
}

// Get returns the value of name, nil when undeclared.
func (ps *Parameters) Get(name string) any {
	if p, ok := ps.Param(name); ok {
		return p.Value()
	}
	return nil
}

func (ps *Parameters) Int(name string) int {
	v, _ := ps.Get(name).(int)
	return v
}

func (ps *Parameters) Float(name string) float64 {
	v, _ := ps.Get(name).(float64)
	return v
}

func (ps *Parameters) String(name string) string {
	v, _ := ps.Get(name).(string)
	return v
}

func (ps *Parameters) Bool(name string) bool {
	v, _ := ps.Get(name).(bool)
	return v
}

// Set assigns value to name, converting it to the parameter's type.
// Setting a trigger parameter fires it.
func (ps *Parameters) Set(name string, value any) error {
	p, ok := ps.Param(name)
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	if p.Trigger {
		ps.Fire(name)
		return nil
	}

	converted, err := convert(p.Type, value)
	if err != nil {
		return fmt.Errorf("parameter %q: %w", name, err)
	}

	p.mu.Lock()
	p.value = converted
	p.dirty = true
	p.mu.Unlock()

	ps.Changed.Emit(p)
	return nil
}

// Fire marks a trigger parameter as fired.
func (ps *Parameters) Fire(name string) {
	p, ok := ps.Param(name)
	if !ok {
		return
	}
	p.mu.Lock()
	p.dirty = true
	p.mu.Unlock()
	ps.Changed.Emit(p)
}

// Apply sets every entry of values, stopping at the first failure.
func (ps *Parameters) Apply(values map[string]any) error {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := ps.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Values returns a copy of all non-trigger values.
func (ps *Parameters) Values() map[string]any {
	out := make(map[string]any)
	for _, name := range ps.Names() {
		p, _ := ps.Param(name)
		if p.Trigger {
			continue
		}
		out[name] = p.Value()
	}
	return out
}

// Decode copies the parameter values into a tagged struct.
func (ps *Parameters) Decode(out any) error {
	return decodeWeak(ps.Values(), out)
}

// pending collects the callbacks of every parameter changed since the last call.
func (ps *Parameters) pending() []func() {
	var calls []func()
	for _, name := range ps.Names() {
		p, _ := ps.Param(name)
		for _, fn := range p.takeDirty() {
			fn, p := fn, p
			calls = append(calls, func() { fn(p) })
		}
	}
	return calls
}

func decodeWeak(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func convert(typ string, value any) (any, error) {
	switch typ {
	case domain.TypeInt:
		var v int
		err := decodeWeak(value, &v)
		return v, err
	case domain.TypeFloat:
		var v float64
		err := decodeWeak(value, &v)
		return v, err
	case domain.TypeString:
		var v string
		err := decodeWeak(value, &v)
		return v, err
	case domain.TypeBool:
		var v bool
		err := decodeWeak(value, &v)
		return v, err
	case domain.TypeIntRange:
		var v IntRange
		err := decodeRange(value, &v)
		return v, err
	case domain.TypeFloatRange:
		var v FloatRange
		err := decodeRange(value, &v)
		return v, err
	default:
		return value, nil
	}
}

// decodeRange accepts a struct, a {lo, hi} map or a two-element list.
func decodeRange(value, out any) error {
	switch v := value.(type) {
	case IntRange, FloatRange:
		return decodeWeak(map[string]any{"lo": rangeField(v, 0), "hi": rangeField(v, 1)}, out)
	case []any:
		if len(v) != 2 {
			return fmt.Errorf("range needs two values, got %d", len(v))
		}
		return decodeWeak(map[string]any{"lo": v[0], "hi": v[1]}, out)
	case []int:
		if len(v) != 2 {
			return fmt.Errorf("range needs two values, got %d", len(v))
		}
		return decodeWeak(map[string]any{"lo": v[0], "hi": v[1]}, out)
	case []float64:
		if len(v) != 2 {
			return fmt.Errorf("range needs two values, got %d", len(v))
		}
		return decodeWeak(map[string]any{"lo": v[0], "hi": v[1]}, out)
	default:
		return decodeWeak(value, out)
	}
}

func rangeField(v any, i int) any {
	switch r := v.(type) {
	case IntRange:
		return []int{r.Lo, r.Hi}[i]
	case FloatRange:
		return []float64{r.Lo, r.Hi}[i]
	}
	return nil
}
