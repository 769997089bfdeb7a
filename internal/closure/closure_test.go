package closure

import (
	"testing"

	"github.com/me/dxcompiler/internal/blocks"
	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/pkg/ir"
)

var oracle = lang.BasicOracle{}

var sigs = map[string]Signature{
	"add": {
		Inputs:  []Param{{Name: "a", Type: ir.TInt{}}, {Name: "b", Type: ir.TInt{}}},
		Outputs: []Param{{Name: "result", Type: ir.TInt{}}},
	},
	"mul": {
		Inputs:  []Param{{Name: "a", Type: ir.TInt{}}, {Name: "b", Type: ir.TInt{}}},
		Outputs: []Param{{Name: "result", Type: ir.TInt{}}},
	},
	"inc": {
		Inputs:  []Param{{Name: "x", Type: ir.TInt{}}},
		Outputs: []Param{{Name: "result", Type: ir.TInt{}}},
	},
	"sq": {
		Inputs:  []Param{{Name: "i", Type: ir.TInt{}}},
		Outputs: []Param{{Name: "result", Type: ir.TInt{}}},
	},
}

func intRef(path ...string) lang.Expr { return lang.Reference{Path: path, Type: ir.TInt{}} }

func intLit(v int64) lang.Expr { return lang.Literal{Value: ir.VInt{Value: v}} }

func plus(args ...lang.Expr) lang.Expr {
	return lang.Apply{Op: "add", Args: args, Type: ir.TInt{}}
}

func inputNames(ins []blocks.Input) []string {
	out := make([]string, len(ins))
	for i, in := range ins {
		out[i] = in.InputName()
	}
	return out
}

func outputType(outs []blocks.Output, name string) string {
	for _, o := range outs {
		if o.Name == name {
			return o.Type.String()
		}
	}
	return ""
}

// The S2 shape: a declaration feeding a call in the same block.
func TestForElements_FragmentClosure(t *testing.T) {
	elems := []lang.Element{
		lang.Decl{Name: "z", Type: ir.TInt{}, Expr: plus(intRef("add", "result"), intLit(1))},
		lang.Call{Callee: "mul", Inputs: []lang.CallInput{
			{Name: "a", Expr: intRef("z")},
			{Name: "b", Expr: intLit(5)},
		}},
	}
	ins, outs, err := ForElements(elems, oracle, Options{Sigs: sigs})
	if err != nil {
		t.Fatalf("ForElements: %v", err)
	}

	got := inputNames(ins)
	if len(got) != 1 || got[0] != "add___result" {
		t.Errorf("inputs = %v, want [add___result]", got)
	}
	if tt := outputType(outs, "z"); tt != "Int" {
		t.Errorf("output z type = %s", tt)
	}
	if tt := outputType(outs, "mul___result"); tt != "Int" {
		t.Errorf("output mul___result type = %s", tt)
	}
}

// Outputs lifted through a conditional become optional.
func TestForElements_ConditionalLift(t *testing.T) {
	elems := []lang.Element{
		lang.Conditional{
			Cond: lang.Reference{Path: []string{"flag"}, Type: ir.TBoolean{}},
			Body: []lang.Element{
				lang.Call{Callee: "inc", Inputs: []lang.CallInput{{Name: "x", Expr: intRef("x")}}},
			},
			HasCall: true,
		},
	}
	ins, outs, err := ForElements(elems, oracle, Options{Sigs: sigs})
	if err != nil {
		t.Fatalf("ForElements: %v", err)
	}
	if tt := outputType(outs, "inc___result"); tt != "Int?" {
		t.Errorf("lifted output type = %s, want Int?", tt)
	}
	got := inputNames(ins)
	if len(got) != 2 {
		t.Fatalf("inputs = %v", got)
	}
}

// Outputs lifted through a scatter become arrays carrying the collection's
// non-emptiness; the loop variable is dropped.
func TestForElements_ScatterLift(t *testing.T) {
	for _, nonEmpty := range []bool{true, false} {
		elems := []lang.Element{
			lang.Scatter{
				Var:        "i",
				ItemType:   ir.TInt{},
				Collection: lang.Reference{Path: []string{"xs"}, Type: ir.TArray{Item: ir.TInt{}, NonEmpty: nonEmpty}},
				NonEmpty:   nonEmpty,
				Body: []lang.Element{
					lang.Call{Callee: "sq", Inputs: []lang.CallInput{{Name: "i", Expr: intRef("i")}}},
				},
				HasCall: true,
			},
		}
		ins, outs, err := ForElements(elems, oracle, Options{Sigs: sigs})
		if err != nil {
			t.Fatalf("ForElements: %v", err)
		}
		want := "Array[Int]"
		if nonEmpty {
			want = "Array[Int]+"
		}
		if tt := outputType(outs, "sq___result"); tt != want {
			t.Errorf("nonEmpty=%t: lifted type = %s, want %s", nonEmpty, tt, want)
		}
		for _, name := range inputNames(ins) {
			if name == "i" {
				t.Error("scatter variable leaked into inputs")
			}
		}
	}
}

func TestForElements_TypeConflict(t *testing.T) {
	elems := []lang.Element{
		lang.Decl{Name: "a", Type: ir.TInt{}, Expr: plus(intRef("x"), intLit(1))},
		lang.Decl{Name: "b", Type: ir.TString{}, Expr: lang.Apply{
			Op:   "concat",
			Args: []lang.Expr{lang.Reference{Path: []string{"x"}, Type: ir.TString{}}},
			Type: ir.TString{},
		}},
	}
	_, _, err := ForElements(elems, oracle, Options{Sigs: sigs})
	if err == nil {
		t.Fatal("expected a closure error for conflicting reference types")
	}
	if ir.KindOf(err) != ir.ClosureError {
		t.Errorf("error kind = %s", ir.KindOf(err))
	}
}

// Inputs never shadow values produced inside the same element sequence, even
// by forward reference.
func TestForElements_ForwardReferenceFiltered(t *testing.T) {
	elems := []lang.Element{
		lang.Decl{Name: "a", Type: ir.TInt{}, Expr: plus(intRef("b"), intLit(1))},
		lang.Decl{Name: "b", Type: ir.TInt{}, Expr: intLit(2)},
	}
	ins, _, err := ForElements(elems, oracle, Options{Sigs: sigs})
	if err != nil {
		t.Fatalf("ForElements: %v", err)
	}
	if len(ins) != 0 {
		t.Errorf("inputs = %v, want none", inputNames(ins))
	}
}

func TestForElements_ComputedVars(t *testing.T) {
	elems := []lang.Element{
		lang.Call{Callee: "sq", Inputs: []lang.CallInput{{Name: "i", Expr: intRef("i")}}},
	}
	ins, _, err := ForElements(elems, oracle, Options{
		Sigs:         sigs,
		ComputedVars: map[string]ir.Type{"i": ir.TInt{}},
	})
	if err != nil {
		t.Fatalf("ForElements: %v", err)
	}
	if len(ins) != 1 {
		t.Fatalf("inputs = %v", inputNames(ins))
	}
	if _, ok := ins[0].(blocks.RequiredInput); !ok {
		t.Errorf("computed input should surface as required, got %T", ins[0])
	}
}

func TestInputsFromDecls(t *testing.T) {
	decls := []lang.Decl{
		{Name: "x", Type: ir.TInt{}},
		{Name: "y", Type: ir.TOptional{Inner: ir.TInt{}}},
		{Name: "n", Type: ir.TInt{}, Expr: intLit(3)},
		{Name: "d", Type: ir.TInt{}, Expr: plus(intRef("x"), intLit(1))},
	}
	ins, err := InputsFromDecls(decls, oracle)
	if err != nil {
		t.Fatalf("InputsFromDecls: %v", err)
	}
	if len(ins) != 4 {
		t.Fatalf("got %d inputs", len(ins))
	}
	if _, ok := ins[0].(blocks.RequiredInput); !ok {
		t.Errorf("x should be required, got %T", ins[0])
	}
	if _, ok := ins[1].(blocks.OptionalInput); !ok {
		t.Errorf("y should be optional, got %T", ins[1])
	}
	sd, ok := ins[2].(blocks.StaticDefaultInput)
	if !ok {
		t.Fatalf("n should carry a static default, got %T", ins[2])
	}
	if ir.FormatValue(sd.Default) != "3" {
		t.Errorf("n default = %s", ir.FormatValue(sd.Default))
	}
	dd, ok := ins[3].(blocks.DynamicDefaultInput)
	if !ok {
		t.Fatalf("d should carry a dynamic default, got %T", ins[3])
	}
	if dd.Type.String() != "Int?" {
		t.Errorf("dynamic default demotes to optional, got %s", dd.Type)
	}
}

func TestAnalyze_FillsBlock(t *testing.T) {
	b := &blocks.Block{
		Kind: blocks.CallWithSubexpressions,
		Elements: []lang.Element{
			lang.Call{Callee: "add", Inputs: []lang.CallInput{
				{Name: "a", Expr: plus(intRef("x"), intLit(1))},
				{Name: "b", Expr: intRef("y")},
			}},
		},
	}
	if err := Analyze(b, oracle, Options{Sigs: sigs}); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(b.Inputs) != 2 {
		t.Errorf("inputs = %v", inputNames(b.Inputs))
	}
	if len(b.Outputs) != 1 || b.Outputs[0].Name != "add___result" {
		t.Errorf("outputs = %v", b.Outputs)
	}
}
