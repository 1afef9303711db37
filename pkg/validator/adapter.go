package validator

import (
	"github.com/autokernel/autokernel/pkg/bridge"
)

// bridgeModel adapts the concrete bridge registry to the Model
// interface.
type bridgeModel struct {
	b *bridge.Bridge
}

// Adapt wraps a bridge as a validator Model.
func Adapt(b *bridge.Bridge) Model {
	return bridgeModel{b: b}
}

func (m bridgeModel) Symbol(name string) (Sym, bool) {
	s, ok := m.b.Symbol(name)
	if !ok {
		return nil, false
	}
	return s, true
}

func (m bridgeModel) RecalculateAll() {
	m.b.RecalculateAll()
}

func (m bridgeModel) ChoiceSiblings(s Sym) []Sym {
	bs, ok := s.(*bridge.Symbol)
	if !ok {
		return nil
	}
	sibs := m.b.ChoiceSiblings(bs)
	out := make([]Sym, 0, len(sibs))
	for _, sib := range sibs {
		out = append(out, sib)
	}
	return out
}
