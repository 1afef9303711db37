package bridge

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/autokernel/autokernel/pkg/expr"
	"github.com/autokernel/autokernel/pkg/kconfig"
)

// exprNode is the wire form of one expression node as serialized by the
// bridge's C side. Leaves carry symbol addresses as hex strings.
type exprNode struct {
	Type  string    `json:"type"`
	Left  *exprNode `json:"left"`
	Right *exprNode `json:"right"`
	LSym  string    `json:"lsym"`
	RSym  string    `json:"rsym"`
}

// decodeExpr parses an expression JSON buffer into an owned tree whose
// leaves are resolved through the bridge's handle table. A nil or
// "null" buffer decodes to a nil expression.
func (b *Bridge) decodeExpr(raw []byte) (*expr.Expr, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var node exprNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, kconfig.WrapError(kconfig.KindBridge, "could not decode expression", err)
	}
	return b.buildExpr(&node)
}

func (b *Bridge) buildExpr(n *exprNode) (*expr.Expr, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Type {
	case "or", "and":
		l, err := b.buildExpr(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := b.buildExpr(n.Right)
		if err != nil {
			return nil, err
		}
		if n.Type == "or" {
			return expr.Or(l, r), nil
		}
		return expr.And(l, r), nil
	case "not":
		l, err := b.buildExpr(n.Left)
		if err != nil {
			return nil, err
		}
		return expr.Not(l), nil
	case "symbol":
		s, err := b.leaf(n.LSym)
		if err != nil {
			return nil, err
		}
		return expr.Symbol(s), nil
	case "equal", "unequal", "lth", "leq", "gth", "geq", "range":
		l, err := b.leaf(n.LSym)
		if err != nil {
			return nil, err
		}
		r, err := b.leaf(n.RSym)
		if err != nil {
			return nil, err
		}
		return expr.Compare(cmpOp(n.Type), l, r), nil
	case "list":
		// Choice member lists are enumerated through the dedicated
		// choice entry point, not through expressions.
		return &expr.Expr{Op: expr.OpList}, nil
	}
	return nil, kconfig.NewErrorf(kconfig.KindBridge, "unknown expression node type %q", n.Type)
}

func cmpOp(t string) expr.Op {
	switch t {
	case "equal":
		return expr.OpEq
	case "unequal":
		return expr.OpNeq
	case "lth":
		return expr.OpLt
	case "leq":
		return expr.OpLe
	case "gth":
		return expr.OpGt
	case "geq":
		return expr.OpGe
	case "range":
		return expr.OpRange
	}
	return expr.OpEq
}

// leaf resolves a hex-rendered symbol address into its wrapper.
func (b *Bridge) leaf(addr string) (*Symbol, error) {
	h, err := parseHandle(addr)
	if err != nil {
		return nil, err
	}
	if s, ok := b.byHandle[h]; ok {
		return s, nil
	}
	// Value-carrying helper symbols (string/number literals in
	// comparisons) are not part of the named registry; wrap on demand.
	s := b.wrap(h)
	b.byHandle[h] = s
	return s, nil
}

func parseHandle(addr string) (SymbolHandle, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(addr, "0x"), 16, 64)
	if err != nil {
		return 0, kconfig.WrapError(kconfig.KindBridge, "invalid symbol address in expression", err).
			WithDetail("addr", addr)
	}
	return SymbolHandle(v), nil
}
