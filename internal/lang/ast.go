package lang

import "github.com/me/dxcompiler/pkg/ir"

// Module is the typed AST for one parsed source document.
type Module struct {
	Name string
	// Language tag this module was parsed from.
	Language string
	// Version of the source language dialect.
	Version string
	// Tasks by name.
	Tasks map[string]*Task
	// Workflows by name; Primary is the entry point, when one exists.
	Workflows map[string]*Workflow
	Primary   *Workflow
	// Schemas (structs) declared or imported by the document.
	Schemas map[string]ir.TSchema
}

// Task is one typed task or tool.
type Task struct {
	Name    string
	Inputs  []Decl
	Outputs []Decl
	Runtime RuntimeHints
	// Source is the stand-alone document for this task alone, including every
	// schema it references.
	Source string
	// Attributes from the source's meta sections.
	Attributes []ir.CallableAttr
	// ParamAttrs from parameter_meta, keyed by input or output name.
	ParamAttrs map[string][]ir.ParamAttr
	// Native marks tasks that wrap an existing platform executable.
	Native *ir.KindNative
}

// RuntimeHints carries a task's resource and container demands as opaque
// expressions; the translator const-folds what it can.
type RuntimeHints struct {
	// InstanceName pins a platform instance name when set.
	InstanceName Expr
	CPU          Expr
	Memory       Expr
	Disk         Expr
	// Container is the image reference expression, nil for none.
	Container Expr
}

// Workflow is one typed workflow definition.
type Workflow struct {
	Name   string
	Inputs []Decl
	Body   []Element
	// Outputs are declarations with defining expressions.
	Outputs []Decl
	// Locked is true when inputs/outputs are declared explicitly.
	Locked bool
	Source string
	// Attributes from the source's meta sections.
	Attributes []ir.CallableAttr
}

// Element is one workflow body element. The parser annotates each element
// with whether it transitively contains a call.
type Element interface {
	elementNode()
	// ContainsCall reports whether this element or anything nested in it
	// performs a call.
	ContainsCall() bool
}

// Decl declares a typed name, optionally with a defining expression. A nil
// Expr on a workflow input means the caller must supply the value.
type Decl struct {
	Name string
	Type ir.Type
	Expr Expr
}

// CallInput binds one callee input at a call site.
type CallInput struct {
	Name string
	Expr Expr
}

// Call invokes a task or workflow. Alias defaults to the callee name.
type Call struct {
	Callee string
	Alias  string
	Inputs []CallInput
}

// Conditional guards a nested body with a boolean expression.
type Conditional struct {
	Cond    Expr
	Body    []Element
	HasCall bool
}

// Scatter runs a nested body once per item of a collection.
type Scatter struct {
	Var        string
	ItemType   ir.Type
	Collection Expr
	// NonEmpty is true when the collection type guarantees at least one item.
	NonEmpty bool
	Body     []Element
	HasCall  bool
}

func (Decl) elementNode()        {}
func (Call) elementNode()        {}
func (Conditional) elementNode() {}
func (Scatter) elementNode()     {}

func (Decl) ContainsCall() bool          { return false }
func (Call) ContainsCall() bool          { return true }
func (c Conditional) ContainsCall() bool { return c.HasCall }
func (s Scatter) ContainsCall() bool     { return s.HasCall }

// CallAlias returns the name call results are referenced under.
func (c Call) CallAlias() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Callee
}
