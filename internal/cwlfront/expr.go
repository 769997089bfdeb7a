package cwlfront

import (
	"regexp"
	"strings"

	"github.com/dop251/goja"
	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/pkg/ir"
)

// Expression forms the CWL front-end produces. The core only sees them
// through the Oracle.
type (
	// litExpr is a literal from the document.
	litExpr struct{ raw any }

	// refExpr is a reference to a workflow value: a workflow input, a
	// step/output pair, or a scatter variable.
	refExpr struct {
		path []string
		typ  ir.Type
		kind lang.RefKind
	}

	// scriptExpr is a CWL parameter reference or JavaScript expression,
	// e.g. "$(inputs.count * 2)" or "${ return inputs.x + 1; }".
	scriptExpr struct {
		src string
		typ ir.Type
	}
)

func (litExpr) ExprNode()    {}
func (refExpr) ExprNode()    {}
func (scriptExpr) ExprNode() {}

// inputRefPattern finds parameter references inside CWL expressions.
var inputRefPattern = regexp.MustCompile(`inputs\.([A-Za-z_][A-Za-z0-9_]*)`)

// Oracle evaluates CWL expressions with a JavaScript runtime. Expressions
// that reference no runtime context fold to constants at compile time.
type Oracle struct{}

var _ lang.Oracle = (*Oracle)(nil)

// TryConstEval folds literals directly and self-contained expressions through
// the JavaScript runtime. Anything touching inputs, self, or runtime stays
// for the executor.
func (o *Oracle) TryConstEval(expr lang.Expr, want ir.Type) (ir.Value, bool, error) {
	switch e := expr.(type) {
	case litExpr:
		v, err := valueFromAny(e.raw)
		if err != nil {
			return nil, false, err
		}
		coerced, err := ir.Coerce(v, want)
		if err != nil {
			return nil, false, err
		}
		return coerced, true, nil
	case refExpr:
		return nil, false, nil
	case scriptExpr:
		if usesRuntimeContext(e.src) {
			return nil, false, nil
		}
		raw, ok := evalScript(e.src)
		if !ok {
			return nil, false, nil
		}
		v, err := valueFromAny(raw)
		if err != nil {
			return nil, false, nil
		}
		coerced, err := ir.Coerce(v, want)
		if err != nil {
			return nil, false, err
		}
		return coerced, true, nil
	default:
		return nil, false, ir.Errorf(ir.Internal, "foreign expression %T", expr)
	}
}

// FreeVariables walks an expression's references. For scriptExpr the walk is
// textual: each distinct inputs.<name> is one reference, however often it
// occurs.
func (o *Oracle) FreeVariables(expr lang.Expr, hint ir.Type, expandFieldAccess bool) []lang.Ref {
	switch e := expr.(type) {
	case litExpr:
		return nil
	case refExpr:
		ref := lang.Ref{Path: e.path, Type: e.typ, Kind: e.kind}
		if ref.Type == nil {
			ref.Type = hint
		}
		if !expandFieldAccess && len(ref.Path) > 1 {
			ref.Field = ref.Path[len(ref.Path)-1]
			ref.Path = ref.Path[:len(ref.Path)-1]
		}
		return []lang.Ref{ref}
	case scriptExpr:
		seen := map[string]bool{}
		var refs []lang.Ref
		for _, m := range inputRefPattern.FindAllStringSubmatch(e.src, -1) {
			name := m[1]
			if seen[name] {
				continue
			}
			seen[name] = true
			refs = append(refs, lang.Ref{Path: []string{name}, Type: ir.TAny{}, Kind: lang.RefRequired})
		}
		return refs
	default:
		return nil
	}
}

// IsTrivial: literals and bare references are trivial; anything the runtime
// must evaluate is not.
func (o *Oracle) IsTrivial(expr lang.Expr) bool {
	switch e := expr.(type) {
	case litExpr:
		return true
	case refExpr:
		return true
	case scriptExpr:
		_, constant := evalIfPure(e.src)
		return constant
	default:
		return false
	}
}

// Render pretty-prints an expression for embedding and diagnostics.
func (o *Oracle) Render(expr lang.Expr) string {
	switch e := expr.(type) {
	case litExpr:
		return anyToString(e.raw)
	case refExpr:
		return strings.Join(e.path, "/")
	case scriptExpr:
		return e.src
	default:
		return ""
	}
}

func usesRuntimeContext(src string) bool {
	return strings.Contains(src, "inputs") ||
		strings.Contains(src, "self") ||
		strings.Contains(src, "runtime")
}

func evalIfPure(src string) (any, bool) {
	if usesRuntimeContext(src) {
		return nil, false
	}
	return evalScript(src)
}

// evalScript runs a CWL expression with an empty context. Both the $(...)
// parameter reference form and the ${...} code block form are supported.
func evalScript(src string) (any, bool) {
	src = strings.TrimSpace(src)
	var program string
	switch {
	case strings.HasPrefix(src, "$(") && strings.HasSuffix(src, ")"):
		program = src[2 : len(src)-1]
	case strings.HasPrefix(src, "${") && strings.HasSuffix(src, "}"):
		program = "(function(){" + src[2:len(src)-1] + "})()"
	case !strings.Contains(src, "$("):
		// A plain string with no expression marker is its own value.
		return src, true
	default:
		return nil, false
	}

	vm := goja.New()
	result, err := vm.RunString(program)
	if err != nil {
		return nil, false
	}
	return result.Export(), true
}
