// Package blocks partitions a workflow body into the coarsest units each
// executable as a single platform stage.
package blocks

import (
	"fmt"

	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/pkg/ir"
)

// Kind classifies how a block executes.
type Kind int

const (
	// ExpressionsOnly blocks contain no call; their declarations fold into
	// neighbouring fragments or the output applet.
	ExpressionsOnly Kind = iota
	// CallDirect is a single call whose inputs are all trivial; it becomes a
	// plain stage with no helper applet.
	CallDirect
	// CallWithSubexpressions is a single call with at least one non-trivial
	// input; a fragment evaluates the inputs and launches the call.
	CallWithSubexpressions
	// CallFragment is a call preceded by declarations in the same block.
	CallFragment
	// ConditionalOneCall is a conditional whose body is one simple call.
	ConditionalOneCall
	// ConditionalComplex is any other conditional containing calls.
	ConditionalComplex
	// ScatterOneCall is a scatter whose body is one simple call.
	ScatterOneCall
	// ScatterComplex is any other scatter containing calls.
	ScatterComplex
)

func (k Kind) String() string {
	switch k {
	case ExpressionsOnly:
		return "ExpressionsOnly"
	case CallDirect:
		return "CallDirect"
	case CallWithSubexpressions:
		return "CallWithSubexpressions"
	case CallFragment:
		return "CallFragment"
	case ConditionalOneCall:
		return "ConditionalOneCall"
	case ConditionalComplex:
		return "ConditionalComplex"
	case ScatterOneCall:
		return "ScatterOneCall"
	case ScatterComplex:
		return "ScatterComplex"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Input is one value a block reads from outside itself.
type Input interface {
	inputNode()
	InputName() string
	InputType() ir.Type
}

type (
	// RequiredInput must be supplied by the caller.
	RequiredInput struct {
		Name string
		Type ir.Type
	}
	// StaticDefaultInput has a constant default the caller may override.
	StaticDefaultInput struct {
		Name    string
		Type    ir.Type
		Default ir.Value
	}
	// DynamicDefaultInput has a default expression that did not const-fold;
	// the fragment evaluates it at runtime when the caller omits the value,
	// so the declared type is lifted to optional.
	DynamicDefaultInput struct {
		Name string
		Type ir.Type // already optional
		Expr lang.Expr
	}
	// OptionalInput may be omitted with no default.
	OptionalInput struct {
		Name string
		Type ir.Type
	}
)

func (RequiredInput) inputNode()       {}
func (StaticDefaultInput) inputNode()  {}
func (DynamicDefaultInput) inputNode() {}
func (OptionalInput) inputNode()       {}

func (i RequiredInput) InputName() string       { return i.Name }
func (i StaticDefaultInput) InputName() string  { return i.Name }
func (i DynamicDefaultInput) InputName() string { return i.Name }
func (i OptionalInput) InputName() string       { return i.Name }

func (i RequiredInput) InputType() ir.Type       { return i.Type }
func (i StaticDefaultInput) InputType() ir.Type  { return i.Type }
func (i DynamicDefaultInput) InputType() ir.Type { return i.Type }
func (i OptionalInput) InputType() ir.Type       { return i.Type }

// Output is one value a block publishes, with the expression defining it when
// one exists in source.
type Output struct {
	Name string
	Type ir.Type
	Expr lang.Expr
}

// Block is a maximal contiguous run of workflow elements executable as one
// stage. At most one element transitively contains a call and it is the last.
type Block struct {
	Elements []lang.Element
	Kind     Kind
	// Inputs and Outputs are filled by the closure analyzer.
	Inputs  []Input
	Outputs []Output
}

// Call returns the block's last element when it is a call, whatever the Kind.
// For CallDirect and CallWithSubexpressions blocks this is the single
// stage-addressable call.
func (b *Block) Call() (lang.Call, bool) {
	if len(b.Elements) == 0 {
		return lang.Call{}, false
	}
	call, ok := b.Elements[len(b.Elements)-1].(lang.Call)
	return call, ok
}

// Split walks the body left to right, sealing the open block after every
// element that contains a call, then drops empty blocks and classifies each
// survivor. The oracle decides expression triviality.
func Split(body []lang.Element, oracle lang.Oracle) ([]*Block, error) {
	var out []*Block
	var open []lang.Element

	seal := func() {
		if len(open) > 0 {
			out = append(out, &Block{Elements: open})
			open = nil
		}
	}

	for _, elem := range body {
		open = append(open, elem)
		if elem.ContainsCall() {
			seal()
		}
	}
	seal()

	for _, b := range out {
		kind, err := classify(b.Elements, oracle)
		if err != nil {
			return nil, err
		}
		b.Kind = kind
	}
	return out, nil
}

func classify(elems []lang.Element, oracle lang.Oracle) (Kind, error) {
	if err := checkShape(elems); err != nil {
		return 0, err
	}
	last := elems[len(elems)-1]
	if !last.ContainsCall() {
		return ExpressionsOnly, nil
	}

	single := len(elems) == 1
	switch e := last.(type) {
	case lang.Call:
		if !single {
			return CallFragment, nil
		}
		if callIsSimple(e, oracle) {
			return CallDirect, nil
		}
		return CallWithSubexpressions, nil
	case lang.Conditional:
		if single && bodyIsOneSimpleCall(e.Body, oracle) {
			return ConditionalOneCall, nil
		}
		return ConditionalComplex, nil
	case lang.Scatter:
		if single && bodyIsOneSimpleCall(e.Body, oracle) {
			return ScatterOneCall, nil
		}
		return ScatterComplex, nil
	default:
		return 0, ir.Errorf(ir.Internal, "element %T claims to contain a call", last)
	}
}

// checkShape enforces the builder invariant: only the last element of a block
// may contain a call.
func checkShape(elems []lang.Element) error {
	for i, elem := range elems {
		if elem.ContainsCall() && i != len(elems)-1 {
			return ir.Errorf(ir.BlockShapeError, "block element %d contains a call but is not last", i)
		}
	}
	return nil
}

func callIsSimple(call lang.Call, oracle lang.Oracle) bool {
	for _, in := range call.Inputs {
		if in.Expr != nil && !oracle.IsTrivial(in.Expr) {
			return false
		}
	}
	return true
}

func bodyIsOneSimpleCall(body []lang.Element, oracle lang.Oracle) bool {
	if len(body) != 1 {
		return false
	}
	call, ok := body[0].(lang.Call)
	return ok && callIsSimple(call, oracle)
}

// Calls returns every call nested anywhere in the block, in source order.
func (b *Block) Calls() []lang.Call {
	var calls []lang.Call
	var walk func(elems []lang.Element)
	walk = func(elems []lang.Element) {
		for _, elem := range elems {
			switch e := elem.(type) {
			case lang.Call:
				calls = append(calls, e)
			case lang.Conditional:
				walk(e.Body)
			case lang.Scatter:
				walk(e.Body)
			}
		}
	}
	walk(b.Elements)
	return calls
}
