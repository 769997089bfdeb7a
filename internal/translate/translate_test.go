package translate

import (
	"testing"

	"github.com/me/dxcompiler/internal/config"
	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/pkg/ir"
)

var oracle = lang.BasicOracle{}

func intTask(name string, inputs ...string) *lang.Task {
	task := &lang.Task{Name: name, ParamAttrs: map[string][]ir.ParamAttr{}}
	for _, in := range inputs {
		task.Inputs = append(task.Inputs, lang.Decl{Name: in, Type: ir.TInt{}})
	}
	task.Outputs = []lang.Decl{{Name: "result", Type: ir.TInt{}}}
	return task
}

func intRef(path ...string) lang.Expr { return lang.Reference{Path: path, Type: ir.TInt{}} }

func intLit(v int64) lang.Expr { return lang.Literal{Value: ir.VInt{Value: v}} }

func plus(args ...lang.Expr) lang.Expr {
	return lang.Apply{Op: "add", Args: args, Type: ir.TInt{}}
}

func testOpts() config.Options {
	opts := config.Default()
	opts.Project = "project-1"
	return opts
}

func translateModule(t *testing.T, mod *lang.Module, opts config.Options) *ir.Bundle {
	t.Helper()
	b, err := Apply(mod, oracle, opts, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return b
}

// The S1 shape: three direct calls in a locked workflow.
func linearModule(locked bool) *lang.Module {
	wf := &lang.Workflow{
		Name: "linear",
		Inputs: []lang.Decl{
			{Name: "x", Type: ir.TInt{}},
			{Name: "y", Type: ir.TInt{}},
		},
		Body: []lang.Element{
			lang.Call{Callee: "add", Inputs: []lang.CallInput{
				{Name: "a", Expr: intRef("x")},
				{Name: "b", Expr: intRef("y")},
			}},
			lang.Call{Callee: "mul", Inputs: []lang.CallInput{
				{Name: "a", Expr: intRef("add", "result")},
				{Name: "b", Expr: intLit(2)},
			}},
			lang.Call{Callee: "inc", Inputs: []lang.CallInput{
				{Name: "x", Expr: intRef("mul", "result")},
			}},
		},
		Outputs: []lang.Decl{
			{Name: "r", Type: ir.TInt{}, Expr: intRef("inc", "result")},
		},
		Locked: locked,
	}
	return &lang.Module{
		Name:     "linear",
		Language: "wdl",
		Tasks: map[string]*lang.Task{
			"add": intTask("add", "a", "b"),
			"mul": intTask("mul", "a", "b"),
			"inc": intTask("inc", "x"),
		},
		Workflows: map[string]*lang.Workflow{"linear": wf},
		Primary:   wf,
	}
}

func TestTranslate_LinearLocked(t *testing.T) {
	opts := testOpts()
	opts.Locked = true
	b := translateModule(t, linearModule(true), opts)

	wf, ok := b.Callables["linear"].(*ir.Workflow)
	if !ok {
		t.Fatalf("linear is %T", b.Callables["linear"])
	}
	if len(wf.Stages) != 3 {
		t.Fatalf("locked linear workflow should have 3 stages, got %d: %+v", len(wf.Stages), wf.Stages)
	}
	for _, st := range wf.Stages {
		if st.ID == "stage-common" || st.ID == "stage-outputs" {
			t.Errorf("no helper stages expected in locked mode, got %s", st.ID)
		}
	}
	for name := range b.Callables {
		if app, ok := b.Callables[name].(*ir.Application); ok {
			if _, frag := app.Kind.(ir.KindWfFragment); frag {
				t.Errorf("no fragments expected, got %s", name)
			}
		}
	}

	index := map[string]int{}
	for i, name := range b.Dependencies {
		index[name] = i
	}
	for _, task := range []string{"add", "mul", "inc"} {
		if index[task] >= index["linear"] {
			t.Errorf("%s must precede linear in %v", task, b.Dependencies)
		}
	}

	// The second stage links to the first stage's output and a constant.
	st := wf.Stages[1]
	if st.CalleeName != "mul" {
		t.Fatalf("stage 1 callee = %s", st.CalleeName)
	}
	link, ok := st.Inputs[0].(ir.LinkInput)
	if !ok || link.StageID != wf.Stages[0].ID || link.Param != "result" {
		t.Errorf("stage 1 input 0 = %#v", st.Inputs[0])
	}
	static, ok := st.Inputs[1].(ir.StaticInput)
	if !ok || ir.FormatValue(static.Value) != "2" {
		t.Errorf("stage 1 input 1 = %#v", st.Inputs[1])
	}

	// The workflow output links to the last evaluating stage.
	if len(wf.Outputs) != 1 {
		t.Fatalf("outputs = %+v", wf.Outputs)
	}
	outLink, ok := wf.Outputs[0].Input.(ir.LinkInput)
	if !ok || outLink.StageID != wf.Stages[2].ID {
		t.Errorf("workflow output source = %#v", wf.Outputs[0].Input)
	}
}

func TestTranslate_LinearUnlocked(t *testing.T) {
	b := translateModule(t, linearModule(false), testOpts())

	wf := b.Callables["linear"].(*ir.Workflow)
	if len(wf.Stages) != 5 {
		t.Fatalf("unlocked linear workflow should have common+3+outputs stages, got %d", len(wf.Stages))
	}
	if wf.Stages[0].ID != "stage-common" {
		t.Errorf("first stage = %s, want stage-common", wf.Stages[0].ID)
	}
	if wf.Stages[len(wf.Stages)-1].ID != "stage-outputs" {
		t.Errorf("last stage = %s, want stage-outputs", wf.Stages[len(wf.Stages)-1].ID)
	}
	if _, ok := b.Callables["linear_common"]; !ok {
		t.Error("missing common applet")
	}
	if _, ok := b.Callables["linear_outputs"]; !ok {
		t.Error("missing outputs applet")
	}
}

// The S2 shape: an expression feeding a call forces a fragment.
func TestTranslate_FragmentWithExpression(t *testing.T) {
	wf := &lang.Workflow{
		Name:   "fragwf",
		Inputs: []lang.Decl{{Name: "x", Type: ir.TInt{}}},
		Body: []lang.Element{
			lang.Call{Callee: "add", Inputs: []lang.CallInput{
				{Name: "a", Expr: intRef("x")},
				{Name: "b", Expr: intLit(1)},
			}},
			lang.Decl{Name: "z", Type: ir.TInt{}, Expr: plus(intRef("add", "result"), intLit(1))},
			lang.Call{Callee: "mul", Inputs: []lang.CallInput{
				{Name: "a", Expr: intRef("z")},
				{Name: "b", Expr: intLit(5)},
			}},
		},
		Outputs: []lang.Decl{{Name: "out", Type: ir.TInt{}, Expr: intRef("mul", "result")}},
		Locked:  true,
	}
	mod := &lang.Module{
		Name:     "fragwf",
		Language: "wdl",
		Tasks: map[string]*lang.Task{
			"add": intTask("add", "a", "b"),
			"mul": intTask("mul", "a", "b"),
		},
		Workflows: map[string]*lang.Workflow{"fragwf": wf},
		Primary:   wf,
	}
	opts := testOpts()
	opts.Locked = true
	b := translateModule(t, mod, opts)

	frag, ok := b.Callables["fragwf_frag_1"].(*ir.Application)
	if !ok {
		t.Fatalf("missing fragment applet; callables = %v", b.Dependencies)
	}
	kind := frag.Kind.(ir.KindWfFragment)
	if len(kind.CallNames) != 1 || kind.CallNames[0] != "mul" {
		t.Errorf("fragment callees = %v", kind.CallNames)
	}

	if len(frag.Inputs) != 1 || frag.Inputs[0].Name != "add___result" {
		t.Errorf("fragment closure inputs = %+v", frag.Inputs)
	}
	outNames := map[string]bool{}
	for _, p := range frag.Outputs {
		outNames[p.Name] = true
	}
	if !outNames["z"] || !outNames["mul___result"] {
		t.Errorf("fragment closure outputs = %+v", frag.Outputs)
	}

	// The fragment stage wires its input from the add stage.
	irwf := b.Callables["fragwf"].(*ir.Workflow)
	if len(irwf.Stages) != 2 {
		t.Fatalf("stages = %+v", irwf.Stages)
	}
	link, ok := irwf.Stages[1].Inputs[0].(ir.LinkInput)
	if !ok || link.StageID != irwf.Stages[0].ID {
		t.Errorf("fragment stage input = %#v", irwf.Stages[1].Inputs[0])
	}
}

// The S3 shape: a conditional around one call lifts the output to optional.
func TestTranslate_ConditionalOneCall(t *testing.T) {
	wf := &lang.Workflow{
		Name: "condwf",
		Inputs: []lang.Decl{
			{Name: "flag", Type: ir.TBoolean{}},
			{Name: "x", Type: ir.TInt{}},
		},
		Body: []lang.Element{
			lang.Conditional{
				Cond: lang.Reference{Path: []string{"flag"}, Type: ir.TBoolean{}},
				Body: []lang.Element{
					lang.Call{Callee: "inc", Inputs: []lang.CallInput{{Name: "x", Expr: intRef("x")}}},
				},
				HasCall: true,
			},
		},
		Outputs: []lang.Decl{{Name: "r", Type: ir.TOptional{Inner: ir.TInt{}}, Expr: intRef("inc", "result")}},
		Locked:  true,
	}
	mod := &lang.Module{
		Name:      "condwf",
		Language:  "wdl",
		Tasks:     map[string]*lang.Task{"inc": intTask("inc", "x")},
		Workflows: map[string]*lang.Workflow{"condwf": wf},
		Primary:   wf,
	}
	opts := testOpts()
	opts.Locked = true
	b := translateModule(t, mod, opts)

	frag := b.Callables["condwf_frag_0"].(*ir.Application)
	var lifted ir.Parameter
	for _, p := range frag.Outputs {
		if p.Name == "inc___result" {
			lifted = p
		}
	}
	if lifted.Name == "" {
		t.Fatalf("fragment outputs = %+v", frag.Outputs)
	}
	if lifted.Type.String() != "Int?" {
		t.Errorf("conditional output type = %s, want Int?", lifted.Type)
	}
}

// The S4 shape: a scatter over a non-empty array keeps the non-emptiness.
func TestTranslate_ScatterOneCall(t *testing.T) {
	wf := &lang.Workflow{
		Name: "scatwf",
		Inputs: []lang.Decl{
			{Name: "xs", Type: ir.TArray{Item: ir.TInt{}, NonEmpty: true}},
		},
		Body: []lang.Element{
			lang.Scatter{
				Var:        "i",
				ItemType:   ir.TInt{},
				Collection: lang.Reference{Path: []string{"xs"}, Type: ir.TArray{Item: ir.TInt{}, NonEmpty: true}},
				NonEmpty:   true,
				Body: []lang.Element{
					lang.Call{Callee: "sq", Inputs: []lang.CallInput{{Name: "i", Expr: intRef("i")}}},
				},
				HasCall: true,
			},
		},
		Outputs: []lang.Decl{{
			Name: "squares",
			Type: ir.TArray{Item: ir.TInt{}, NonEmpty: true},
			Expr: intRef("sq", "result"),
		}},
		Locked: true,
	}
	mod := &lang.Module{
		Name:      "scatwf",
		Language:  "wdl",
		Tasks:     map[string]*lang.Task{"sq": intTask("sq", "i")},
		Workflows: map[string]*lang.Workflow{"scatwf": wf},
		Primary:   wf,
	}
	opts := testOpts()
	opts.Locked = true
	opts.ScatterChunkSize = 500
	b := translateModule(t, mod, opts)

	frag := b.Callables["scatwf_frag_0"].(*ir.Application)
	kind := frag.Kind.(ir.KindWfFragment)
	if kind.ScatterVar != "i" {
		t.Errorf("scatterVar = %q", kind.ScatterVar)
	}
	if kind.ScatterChunkSize != 500 {
		t.Errorf("scatterChunkSize = %d", kind.ScatterChunkSize)
	}
	var lifted ir.Parameter
	for _, p := range frag.Outputs {
		if p.Name == "sq___result" {
			lifted = p
		}
	}
	if lifted.Type == nil || lifted.Type.String() != "Array[Int]+" {
		t.Errorf("scatter output type = %v, want Array[Int]+", lifted.Type)
	}
}

// Complex scatter bodies route through a generated locked sub-workflow.
func TestTranslate_ScatterComplexSubWorkflow(t *testing.T) {
	wf := &lang.Workflow{
		Name: "multi",
		Inputs: []lang.Decl{
			{Name: "xs", Type: ir.TArray{Item: ir.TInt{}}},
		},
		Body: []lang.Element{
			lang.Scatter{
				Var:        "i",
				ItemType:   ir.TInt{},
				Collection: lang.Reference{Path: []string{"xs"}, Type: ir.TArray{Item: ir.TInt{}}},
				Body: []lang.Element{
					lang.Call{Callee: "sq", Inputs: []lang.CallInput{{Name: "i", Expr: intRef("i")}}},
					lang.Call{Callee: "inc", Inputs: []lang.CallInput{{Name: "x", Expr: intRef("sq", "result")}}},
				},
				HasCall: true,
			},
		},
		Outputs: []lang.Decl{{
			Name: "rs",
			Type: ir.TArray{Item: ir.TInt{}},
			Expr: intRef("inc", "result"),
		}},
		Locked: true,
	}
	mod := &lang.Module{
		Name:     "multi",
		Language: "wdl",
		Tasks: map[string]*lang.Task{
			"sq":  intTask("sq", "i"),
			"inc": intTask("inc", "x"),
		},
		Workflows: map[string]*lang.Workflow{"multi": wf},
		Primary:   wf,
	}
	opts := testOpts()
	opts.Locked = true
	b := translateModule(t, mod, opts)

	sub, ok := b.Callables["multi_block_0"].(*ir.Workflow)
	if !ok {
		t.Fatalf("missing sub-workflow; callables = %v", b.Dependencies)
	}
	if !sub.Locked || sub.Level != ir.SubLevel {
		t.Errorf("sub-workflow must be locked and sub-level: %+v", sub)
	}

	frag := b.Callables["multi_frag_0"].(*ir.Application)
	kind := frag.Kind.(ir.KindWfFragment)
	if len(kind.CallNames) != 1 || kind.CallNames[0] != "multi_block_0" {
		t.Errorf("fragment callee = %v, want the sub-workflow", kind.CallNames)
	}

	index := map[string]int{}
	for i, name := range b.Dependencies {
		index[name] = i
	}
	if !(index["sq"] < index["multi_block_0"] && index["multi_block_0"] < index["multi_frag_0"] && index["multi_frag_0"] < index["multi"]) {
		t.Errorf("dependency order = %v", b.Dependencies)
	}
}

func TestTranslate_TaskDefaults(t *testing.T) {
	task := &lang.Task{
		Name: "align",
		Inputs: []lang.Decl{
			{Name: "threads", Type: ir.TInt{}, Expr: intLit(4)},
			{Name: "ref", Type: ir.TFile{}, Expr: lang.Literal{Value: ir.VFile{URI: "/home/user/ref.fa"}}},
			{Name: "extra", Type: ir.TString{}, Expr: lang.Apply{Op: "env", Type: ir.TString{}}},
		},
		ParamAttrs: map[string][]ir.ParamAttr{},
	}
	mod := &lang.Module{
		Name:      "align",
		Language:  "wdl",
		Tasks:     map[string]*lang.Task{"align": task},
		Workflows: map[string]*lang.Workflow{},
	}
	b := translateModule(t, mod, testOpts())
	app := b.Callables["align"].(*ir.Application)

	byName := map[string]ir.Parameter{}
	for _, p := range app.Inputs {
		byName[p.Name] = p
	}
	if byName["threads"].Default == nil {
		t.Error("constant default should be pinned")
	}
	if byName["ref"].Default != nil {
		t.Error("local path default must not be pinned")
	}
	if byName["extra"].Default != nil {
		t.Error("non-constant default must not be pinned")
	}
	if byName["extra"].Type.String() != "String?" {
		t.Errorf("runtime-evaluated default demotes to optional, got %s", byName["extra"].Type)
	}
}

func TestTranslate_InstanceSelection(t *testing.T) {
	mkTask := func(hints lang.RuntimeHints) *lang.Module {
		task := &lang.Task{Name: "t", Runtime: hints, ParamAttrs: map[string][]ir.ParamAttr{}}
		return &lang.Module{
			Name: "t", Language: "wdl",
			Tasks:     map[string]*lang.Task{"t": task},
			Workflows: map[string]*lang.Workflow{},
		}
	}

	tests := []struct {
		name  string
		hints lang.RuntimeHints
		opts  func(*config.Options)
		want  string
	}{
		{
			"none is default",
			lang.RuntimeHints{},
			nil,
			"ir.DefaultInstance",
		},
		{
			"pinned name is static",
			lang.RuntimeHints{InstanceName: lang.Literal{Value: ir.VString{Value: "mem2_ssd1_v2_x8"}}},
			nil,
			"ir.StaticInstance",
		},
		{
			"constant resources are static",
			lang.RuntimeHints{
				CPU:    intLit(4),
				Memory: lang.Literal{Value: ir.VString{Value: "8 GiB"}},
			},
			nil,
			"ir.StaticInstance",
		},
		{
			"non-constant resource is dynamic",
			lang.RuntimeHints{Memory: lang.Apply{Op: "size", Type: ir.TString{}}},
			nil,
			"ir.DynamicInstance",
		},
		{
			"dynamic selection overrides constants",
			lang.RuntimeHints{CPU: intLit(2)},
			func(o *config.Options) { o.InstanceTypeSelection = config.SelectDynamic },
			"ir.DynamicInstance",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOpts()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			b := translateModule(t, mkTask(tt.hints), opts)
			app := b.Callables["t"].(*ir.Application)
			got := typeName(app.Instance)
			if got != tt.want {
				t.Errorf("instance = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case ir.DefaultInstance:
		return "ir.DefaultInstance"
	case ir.StaticInstance:
		return "ir.StaticInstance"
	case ir.DynamicInstance:
		return "ir.DynamicInstance"
	default:
		return "unknown"
	}
}
