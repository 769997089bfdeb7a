package ir

import (
	"errors"
	"testing"
)

func app(name string, callees ...string) *Application {
	kind := ExecKind(KindApplet{})
	if len(callees) > 0 {
		kind = KindWfFragment{CallNames: callees}
	}
	return &Application{Name: name, Kind: kind}
}

func wf(name string, calleeNames ...string) *Workflow {
	w := &Workflow{Name: name, Level: TopLevel}
	for i, c := range calleeNames {
		w.Stages = append(w.Stages, Stage{ID: stageID(i), CalleeName: c})
	}
	return w
}

func stageID(i int) string {
	return string(rune('a' + i))
}

func TestNewBundle_DependencyOrder(t *testing.T) {
	callables := map[string]Callable{
		"add":    app("add"),
		"mul":    app("mul"),
		"inc":    app("inc"),
		"linear": wf("linear", "add", "mul", "inc"),
	}
	b, err := NewBundle(callables["linear"], callables, nil)
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}

	index := map[string]int{}
	for i, name := range b.Dependencies {
		index[name] = i
	}
	if len(index) != 4 {
		t.Fatalf("dependencies = %v", b.Dependencies)
	}
	for _, callee := range []string{"add", "mul", "inc"} {
		if index[callee] >= index["linear"] {
			t.Errorf("callee %s at %d not before linear at %d", callee, index[callee], index["linear"])
		}
	}
	if b.Dependencies[len(b.Dependencies)-1] != "linear" {
		t.Errorf("primary should come last, got %v", b.Dependencies)
	}
}

func TestNewBundle_TransitiveOrder(t *testing.T) {
	callables := map[string]Callable{
		"sq":    app("sq"),
		"frag":  app("frag", "sub"),
		"sub":   wf("sub", "sq"),
		"outer": wf("outer", "frag"),
	}
	b, err := NewBundle(callables["outer"], callables, nil)
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}
	index := map[string]int{}
	for i, name := range b.Dependencies {
		index[name] = i
	}
	for callable, callee := range map[string]string{"frag": "sub", "sub": "sq", "outer": "frag"} {
		if index[callee] >= index[callable] {
			t.Errorf("%s must come before %s: %v", callee, callable, b.Dependencies)
		}
	}
}

func TestNewBundle_Cycle(t *testing.T) {
	callables := map[string]Callable{
		"a": wf("a", "b"),
		"b": wf("b", "a"),
	}
	_, err := NewBundle(callables["a"], callables, nil)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != UnsupportedConstruct {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewBundle_PrimaryMustBeRegistered(t *testing.T) {
	orphan := wf("orphan")
	_, err := NewBundle(orphan, map[string]Callable{"other": app("other")}, nil)
	if err == nil {
		t.Fatal("expected error for unregistered primary")
	}
}

func TestNewBundle_MissingCallee(t *testing.T) {
	callables := map[string]Callable{
		"top": wf("top", "ghost"),
	}
	_, err := NewBundle(callables["top"], callables, nil)
	if err == nil {
		t.Fatal("expected error for missing callee")
	}
}
