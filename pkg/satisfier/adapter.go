package satisfier

import (
	"github.com/autokernel/autokernel/pkg/bridge"
)

// bridgeModel adapts the concrete bridge registry to the Model
// interface.
type bridgeModel struct {
	b *bridge.Bridge
}

// Adapt wraps a bridge as a satisfier Model.
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
