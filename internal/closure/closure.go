// Package closure computes, for every block and workflow body, the set of
// values it reads from outside itself and the set it publishes, lifting
// output types through conditionals and scatters.
package closure

import (
	"github.com/me/dxcompiler/internal/blocks"
	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/internal/names"
	"github.com/me/dxcompiler/pkg/ir"
)

// Param is one input or output of a callee signature.
type Param struct {
	Name     string
	Type     ir.Type
	Optional bool
}

// Signature is the I/O surface of a callee, used to expand call outputs.
type Signature struct {
	Inputs  []Param
	Outputs []Param
}

// Options configures one analysis.
type Options struct {
	// Sigs maps callee names to their signatures.
	Sigs map[string]Signature
	// ComputedVars are names bound by an enclosing scatter: free here, but
	// supplied by the fragment executor rather than the caller.
	ComputedVars map[string]ir.Type
}

// Analyze fills a block's Inputs and Outputs.
func Analyze(b *blocks.Block, oracle lang.Oracle, opts Options) error {
	ins, outs, err := ForElements(b.Elements, oracle, opts)
	if err != nil {
		return err
	}
	b.Inputs = ins
	b.Outputs = outs
	return nil
}

// ForElements computes the closure of an element sequence. Outputs are
// computed first so references to them, forward or backward, are filtered
// from the inputs.
func ForElements(elems []lang.Element, oracle lang.Oracle, opts Options) ([]blocks.Input, []blocks.Output, error) {
	outs, err := outputsOf(elems, opts)
	if err != nil {
		return nil, nil, err
	}

	produced := make(map[string]bool, len(outs))
	for _, o := range outs {
		produced[o.Name] = true
	}

	refs, err := collectRefs(elems, oracle, opts, map[string]bool{})
	if err != nil {
		return nil, nil, err
	}

	ins, err := mergeRefs(refs, produced)
	if err != nil {
		return nil, nil, err
	}
	return ins, outs, nil
}

// outputsOf lists everything an element sequence publishes. Declarations
// publish their name; calls publish one output per callee output under
// alias.name; conditional bodies lift to optional; scatter bodies lift to
// arrays and drop the loop variable.
func outputsOf(elems []lang.Element, opts Options) ([]blocks.Output, error) {
	var outs []blocks.Output
	seen := make(map[string]ir.Type)

	add := func(name string, t ir.Type, expr lang.Expr) error {
		t = ir.Normalize(t)
		if prev, ok := seen[name]; ok {
			if !ir.TypesEqual(prev, t) {
				return ir.Errorf(ir.ClosureError, "output %q declared as both %s and %s", name, prev, t)
			}
			return nil
		}
		seen[name] = t
		outs = append(outs, blocks.Output{Name: name, Type: t, Expr: expr})
		return nil
	}

	for _, elem := range elems {
		switch e := elem.(type) {
		case lang.Decl:
			encoded, err := names.EncodeDotted(e.Name)
			if err != nil {
				return nil, err
			}
			if err := add(encoded, e.Type, e.Expr); err != nil {
				return nil, err
			}
		case lang.Call:
			sig, ok := opts.Sigs[e.Callee]
			if !ok {
				return nil, ir.Errorf(ir.Internal, "no signature for callee %q", e.Callee)
			}
			for _, out := range sig.Outputs {
				encoded, err := names.Encode(e.CallAlias(), out.Name)
				if err != nil {
					return nil, err
				}
				if err := add(encoded, out.Type, nil); err != nil {
					return nil, err
				}
			}
		case lang.Conditional:
			inner, err := outputsOf(e.Body, opts)
			if err != nil {
				return nil, err
			}
			for _, o := range inner {
				if err := add(o.Name, ir.EnsureOptional(o.Type), nil); err != nil {
					return nil, err
				}
			}
		case lang.Scatter:
			inner, err := outputsOf(e.Body, opts)
			if err != nil {
				return nil, err
			}
			loopVar, err := names.Encode(e.Var)
			if err != nil {
				return nil, err
			}
			for _, o := range inner {
				if o.Name == loopVar {
					continue
				}
				if err := add(o.Name, ir.TArray{Item: o.Type, NonEmpty: e.NonEmpty}, nil); err != nil {
					return nil, err
				}
			}
		}
	}
	return outs, nil
}

type ref struct {
	name string
	typ  ir.Type
	kind lang.RefKind
	pos  int
}

// collectRefs walks every expression in the sequence and returns the free
// references, skipping names bound inside the walk (scatter variables).
func collectRefs(elems []lang.Element, oracle lang.Oracle, opts Options, bound map[string]bool) ([]ref, error) {
	var refs []ref
	pos := 0

	addExpr := func(expr lang.Expr, hint ir.Type, expandField bool, bound map[string]bool) error {
		if expr == nil {
			return nil
		}
		for _, r := range oracle.FreeVariables(expr, hint, expandField) {
			if len(r.Path) == 0 {
				return ir.Errorf(ir.Internal, "free variable with empty path")
			}
			if bound[r.Path[0]] {
				continue
			}
			segs := r.Path
			if r.Field != "" && expandField {
				segs = append(append([]string{}, segs...), r.Field)
			}
			encoded, err := names.Encode(segs...)
			if err != nil {
				return err
			}
			kind := r.Kind
			if _, computed := opts.ComputedVars[r.Path[0]]; computed {
				kind = lang.RefComputed
			}
			refs = append(refs, ref{name: encoded, typ: ir.Normalize(r.Type), kind: kind, pos: pos})
			pos++
		}
		return nil
	}

	var walk func(elems []lang.Element, bound map[string]bool) error
	walk = func(elems []lang.Element, bound map[string]bool) error {
		for _, elem := range elems {
			switch e := elem.(type) {
			case lang.Decl:
				if err := addExpr(e.Expr, e.Type, true, bound); err != nil {
					return err
				}
			case lang.Call:
				sig := opts.Sigs[e.Callee]
				for _, in := range e.Inputs {
					if err := addExpr(in.Expr, calleeInputType(sig, in.Name), true, bound); err != nil {
						return err
					}
				}
			case lang.Conditional:
				if err := addExpr(e.Cond, ir.TBoolean{}, true, bound); err != nil {
					return err
				}
				if err := walk(e.Body, bound); err != nil {
					return err
				}
			case lang.Scatter:
				if err := addExpr(e.Collection, ir.TArray{Item: e.ItemType}, true, bound); err != nil {
					return err
				}
				inner := make(map[string]bool, len(bound)+1)
				for k := range bound {
					inner[k] = true
				}
				inner[e.Var] = true
				if err := walk(e.Body, inner); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(elems, bound); err != nil {
		return nil, err
	}
	return refs, nil
}

func calleeInputType(sig Signature, name string) ir.Type {
	for _, p := range sig.Inputs {
		if p.Name == name {
			return p.Type
		}
	}
	return ir.TAny{}
}

// mergeRefs folds repeated references into inputs: the effective kind is the
// minimum across occurrences, type conflicts are fatal, and references that
// shadow a value produced inside the sequence are dropped.
func mergeRefs(refs []ref, produced map[string]bool) ([]blocks.Input, error) {
	type merged struct {
		typ  ir.Type
		kind lang.RefKind
		pos  int
	}
	byName := make(map[string]*merged)
	var order []string

	for _, r := range refs {
		if produced[r.name] {
			continue
		}
		m, ok := byName[r.name]
		if !ok {
			byName[r.name] = &merged{typ: r.typ, kind: r.kind, pos: r.pos}
			order = append(order, r.name)
			continue
		}
		switch {
		case isAny(m.typ):
			// A hint-free reference defers to any typed one.
			m.typ = r.typ
		case isAny(r.typ):
		case !ir.TypesEqual(m.typ, r.typ) && !compatibleOptional(m.typ, r.typ):
			return nil, ir.Errorf(ir.ClosureError, "variable %q referenced as both %s and %s", r.name, m.typ, r.typ)
		case ir.IsOptional(m.typ) && !ir.IsOptional(r.typ):
			m.typ = r.typ
		}
		m.kind = lang.MinKind(m.kind, r.kind)
	}

	var ins []blocks.Input
	for _, name := range order {
		m := byName[name]
		ins = append(ins, inputFor(name, m.typ, m.kind))
	}
	return ins, nil
}

// compatibleOptional accepts T vs T? as the same variable: the optional view
// wins nothing, the stricter type stands.
func compatibleOptional(a, b ir.Type) bool {
	return ir.TypesEqual(ir.UnwrapOptional(a), ir.UnwrapOptional(b))
}

func isAny(t ir.Type) bool {
	_, ok := ir.Normalize(t).(ir.TAny)
	return ok
}

func inputFor(name string, t ir.Type, kind lang.RefKind) blocks.Input {
	switch {
	case kind == lang.RefOptional || ir.IsOptional(t):
		return blocks.OptionalInput{Name: name, Type: ir.EnsureOptional(t)}
	default:
		// Required and Computed both demand a value at launch; computed ones
		// are supplied by the fragment executor.
		return blocks.RequiredInput{Name: name, Type: t}
	}
}

// InputsFromDecls converts declared workflow inputs into block inputs:
// constant defaults stay static, non-folding defaults demote to optional with
// the expression kept for runtime evaluation.
func InputsFromDecls(decls []lang.Decl, oracle lang.Oracle) ([]blocks.Input, error) {
	var ins []blocks.Input
	for _, d := range decls {
		encoded, err := names.EncodeDotted(d.Name)
		if err != nil {
			return nil, err
		}
		t := ir.Normalize(d.Type)
		switch {
		case d.Expr == nil && ir.IsOptional(t):
			ins = append(ins, blocks.OptionalInput{Name: encoded, Type: t})
		case d.Expr == nil:
			ins = append(ins, blocks.RequiredInput{Name: encoded, Type: t})
		default:
			v, constant, err := oracle.TryConstEval(d.Expr, t)
			if err != nil {
				return nil, err
			}
			if constant {
				ins = append(ins, blocks.StaticDefaultInput{Name: encoded, Type: t, Default: v})
			} else {
				ins = append(ins, blocks.DynamicDefaultInput{Name: encoded, Type: ir.EnsureOptional(t), Expr: d.Expr})
			}
		}
	}
	return ins, nil
}

