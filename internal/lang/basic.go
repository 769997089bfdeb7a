package lang

import (
	"fmt"
	"strings"

	"github.com/me/dxcompiler/pkg/ir"
)

// Neutral expression forms. Front-ends with richer expression languages keep
// their own trees; these cover literals, references, and simple applications,
// and are what the core's own tests are written against.
type (
	// Literal wraps a constant value.
	Literal struct{ Value ir.Value }

	// Reference reads a workflow value by path, e.g. ["add", "result"].
	Reference struct {
		Path []string
		Type ir.Type
		Kind RefKind
	}

	// Apply is a non-trivial application of an operator to arguments; it
	// never const-folds and always needs runtime evaluation.
	Apply struct {
		Op   string
		Args []Expr
		Type ir.Type
	}
)

func (Literal) ExprNode()   {}
func (Reference) ExprNode() {}
func (Apply) ExprNode()     {}

// BasicOracle evaluates the neutral expression forms.
type BasicOracle struct{}

var _ Oracle = (*BasicOracle)(nil)

func (BasicOracle) TryConstEval(expr Expr, want ir.Type) (ir.Value, bool, error) {
	lit, ok := expr.(Literal)
	if !ok {
		return nil, false, nil
	}
	v, err := ir.Coerce(lit.Value, want)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (o BasicOracle) FreeVariables(expr Expr, hint ir.Type, expandFieldAccess bool) []Ref {
	switch e := expr.(type) {
	case Literal:
		return nil
	case Reference:
		ref := Ref{Path: e.Path, Type: e.Type, Kind: e.Kind}
		if ref.Type == nil {
			ref.Type = hint
		}
		if !expandFieldAccess && len(ref.Path) > 1 {
			ref.Field = ref.Path[len(ref.Path)-1]
			ref.Path = ref.Path[:len(ref.Path)-1]
		}
		return []Ref{ref}
	case Apply:
		var refs []Ref
		for _, arg := range e.Args {
			refs = append(refs, o.FreeVariables(arg, hint, expandFieldAccess)...)
		}
		return refs
	default:
		return nil
	}
}

func (BasicOracle) IsTrivial(expr Expr) bool {
	switch expr.(type) {
	case Literal, Reference:
		return true
	default:
		return false
	}
}

func (o BasicOracle) Render(expr Expr) string {
	switch e := expr.(type) {
	case Literal:
		return ir.FormatValue(e.Value)
	case Reference:
		return strings.Join(e.Path, ".")
	case Apply:
		parts := make([]string, len(e.Args))
		for i, arg := range e.Args {
			parts[i] = o.Render(arg)
		}
		return fmt.Sprintf("%s(%s)", e.Op, strings.Join(parts, ", "))
	default:
		return ""
	}
}
