// Package cwlfront adapts CWL documents onto the compiler's front-end
// contract: YAML parsing into a typed AST plus a JavaScript-backed expression
// oracle.
package cwlfront

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/me/dxcompiler/internal/lang"
	"github.com/me/dxcompiler/pkg/cwl"
	"github.com/me/dxcompiler/pkg/ir"
	"gopkg.in/yaml.v3"
)

// FrontEnd implements lang.FrontEnd for CWL.
type FrontEnd struct {
	logger *slog.Logger
	oracle *Oracle
}

var _ lang.FrontEnd = (*FrontEnd)(nil)

// New creates a CWL front-end.
func New(logger *slog.Logger) *FrontEnd {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrontEnd{
		logger: logger.With("component", "cwl-front"),
		oracle: &Oracle{},
	}
}

// Oracle returns the expression oracle for this front-end.
func (f *FrontEnd) Oracle() lang.Oracle { return f.oracle }

// Parse converts a CWL document (bare tool, bare workflow, or packed $graph)
// into the typed AST.
func (f *FrontEnd) Parse(source []byte, name string) (*lang.Module, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, ir.WrapError(ir.ParseError, err, "YAML parse error")
	}
	doc := cwl.Document(raw)

	mod := &lang.Module{
		Name:      name,
		Language:  "cwl",
		Version:   doc.CWLVersion(),
		Tasks:     map[string]*lang.Task{},
		Workflows: map[string]*lang.Workflow{},
		Schemas:   map[string]ir.TSchema{},
	}

	var tools []*cwl.CommandLineTool
	var workflows []*cwl.Workflow

	collect := func(d cwl.Document) error {
		switch d.Class() {
		case "CommandLineTool", "ExpressionTool":
			tool, err := parseTool(d)
			if err != nil {
				return err
			}
			tools = append(tools, tool)
		case "Workflow":
			wf, err := parseWorkflow(d)
			if err != nil {
				return err
			}
			workflows = append(workflows, wf)
		default:
			return ir.Errorf(ir.ParseError, "unexpected class %q", d.Class())
		}
		return nil
	}

	if doc.IsGraph() {
		for i, entry := range doc.Graph() {
			if err := collect(entry); err != nil {
				return nil, ir.WrapError(ir.ParseError, err, "$graph[%d]", i)
			}
		}
	} else {
		if err := collect(doc); err != nil {
			return nil, err
		}
	}

	if len(workflows) > 1 {
		return nil, ir.Errorf(ir.UnsupportedConstruct, "document contains %d workflows; exactly one is supported", len(workflows))
	}

	for _, tool := range tools {
		task, err := f.toolToTask(tool)
		if err != nil {
			return nil, err
		}
		if _, dup := mod.Tasks[task.Name]; dup {
			return nil, ir.Errorf(ir.UnsupportedConstruct, "duplicate tool id %q", task.Name)
		}
		mod.Tasks[task.Name] = task
		f.collectSchemas(mod, tool)
	}

	if len(workflows) == 1 {
		wf, err := f.workflowToAST(workflows[0], mod, name)
		if err != nil {
			return nil, err
		}
		mod.Workflows[wf.Name] = wf
		mod.Primary = wf
	}
	return mod, nil
}

// collectSchemas registers record types a tool declares so they become the
// bundle's type aliases.
func (f *FrontEnd) collectSchemas(mod *lang.Module, tool *cwl.CommandLineTool) {
	register := func(t ir.Type) {
		if s, ok := ir.Normalize(t).(ir.TSchema); ok {
			mod.Schemas[s.Name] = s
		}
	}
	for _, in := range tool.Inputs {
		if t, err := typeFromCWL(in.Type); err == nil {
			register(t)
		}
	}
	for _, out := range tool.Outputs {
		if t, err := typeFromCWL(out.Type); err == nil {
			register(t)
		}
	}
}

// toolToTask lowers a parsed tool into the neutral task form.
func (f *FrontEnd) toolToTask(tool *cwl.CommandLineTool) (*lang.Task, error) {
	task := &lang.Task{
		Name:       tool.ID,
		ParamAttrs: map[string][]ir.ParamAttr{},
	}
	if tool.Label != "" {
		task.Attributes = append(task.Attributes, ir.TitleAttr{Text: tool.Label})
	}
	if tool.Doc != "" {
		task.Attributes = append(task.Attributes, ir.DescriptionAttr{Text: tool.Doc})
	}

	for _, name := range sortedKeys(tool.Inputs) {
		in := tool.Inputs[name]
		t, err := typeFromCWL(in.Type)
		if err != nil {
			return nil, ir.WrapError(ir.TypeError, err, "tool %s input %s", tool.ID, name)
		}
		d := lang.Decl{Name: name, Type: t}
		if in.Default != nil {
			d.Expr = exprFromRaw(in.Default, t)
		}
		task.Inputs = append(task.Inputs, d)
		if in.Label != "" {
			task.ParamAttrs[name] = append(task.ParamAttrs[name], ir.LabelAttr{Text: in.Label})
		}
		if in.Doc != "" {
			task.ParamAttrs[name] = append(task.ParamAttrs[name], ir.HelpAttr{Text: in.Doc})
		}
	}
	for _, name := range sortedKeys(tool.Outputs) {
		out := tool.Outputs[name]
		t, err := typeFromCWL(out.Type)
		if err != nil {
			return nil, ir.WrapError(ir.TypeError, err, "tool %s output %s", tool.ID, name)
		}
		task.Outputs = append(task.Outputs, lang.Decl{Name: name, Type: t})
	}

	if tool.DockerPull != "" {
		task.Runtime.Container = litExpr{raw: tool.DockerPull}
	} else if tool.DockerLoad != "" {
		task.Runtime.Container = litExpr{raw: tool.DockerLoad}
	}
	if tool.CoresMin != nil {
		task.Runtime.CPU = exprFromRaw(tool.CoresMin, ir.TFloat{})
	}
	if tool.RamMin != nil {
		task.Runtime.Memory = sizeExpr(tool.RamMin)
	}
	if tool.TmpdirMin != nil {
		task.Runtime.Disk = sizeExpr(tool.TmpdirMin)
	}

	src, err := yaml.Marshal(map[string]any(tool.Raw))
	if err != nil {
		return nil, ir.WrapError(ir.Internal, err, "re-serializing tool %s", tool.ID)
	}
	task.Source = string(src)
	return task, nil
}

// sizeExpr normalizes CWL's MiB-denominated resource numbers into the size
// hint form the translator parses.
func sizeExpr(v any) lang.Expr {
	switch n := v.(type) {
	case int:
		return litExpr{raw: fmt.Sprintf("%d MiB", n)}
	case int64:
		return litExpr{raw: fmt.Sprintf("%d MiB", n)}
	case float64:
		return litExpr{raw: fmt.Sprintf("%g MiB", n)}
	case string:
		return scriptExpr{src: n, typ: ir.TString{}}
	default:
		return litExpr{raw: v}
	}
}

// exprFromRaw wraps a YAML value as an expression: strings carrying $() or
// ${} markers become scripts, everything else is a literal.
func exprFromRaw(v any, hint ir.Type) lang.Expr {
	if s, ok := v.(string); ok {
		if strings.Contains(s, "$(") || strings.Contains(s, "${") {
			return scriptExpr{src: s, typ: hint}
		}
	}
	return litExpr{raw: v}
}

// workflowToAST lowers a parsed workflow into the typed AST: inputs become
// declarations, steps become calls (wrapped in scatter or conditional
// elements when the step asks for them), outputs become declarations with
// reference expressions.
func (f *FrontEnd) workflowToAST(wf *cwl.Workflow, mod *lang.Module, fallbackName string) (*lang.Workflow, error) {
	name := wf.ID
	if name == "" || name == "main" {
		name = fallbackName
	}
	out := &lang.Workflow{
		Name:   name,
		Locked: true,
		Source: rawSource(wf),
	}
	if wf.Doc != "" {
		out.Attributes = append(out.Attributes, ir.DescriptionAttr{Text: wf.Doc})
	}

	inputTypes := map[string]ir.Type{}
	for _, inName := range sortedKeys(wf.Inputs) {
		in := wf.Inputs[inName]
		t, err := typeFromCWL(in.Type)
		if err != nil {
			return nil, ir.WrapError(ir.TypeError, err, "workflow input %s", inName)
		}
		d := lang.Decl{Name: inName, Type: t}
		if in.Default != nil {
			d.Expr = exprFromRaw(in.Default, t)
		}
		out.Inputs = append(out.Inputs, d)
		inputTypes[inName] = t
	}

	order, err := stepOrder(wf)
	if err != nil {
		return nil, err
	}
	for _, stepID := range order {
		step := wf.Steps[stepID]
		elem, err := f.stepToElement(stepID, step, mod, inputTypes)
		if err != nil {
			return nil, err
		}
		out.Body = append(out.Body, elem)
	}

	for _, outName := range sortedKeys(wf.Outputs) {
		o := wf.Outputs[outName]
		t, err := typeFromCWL(o.Type)
		if err != nil {
			return nil, ir.WrapError(ir.TypeError, err, "workflow output %s", outName)
		}
		d := lang.Decl{Name: outName, Type: t}
		if o.OutputSource != "" {
			d.Expr = refExpr{path: strings.Split(o.OutputSource, "/"), typ: t}
		}
		out.Outputs = append(out.Outputs, d)
	}
	return out, nil
}

// stepToElement lowers one step. CWL's scatter and when become the AST's
// scatter and conditional wrappers around the call.
func (f *FrontEnd) stepToElement(stepID string, step cwl.Step, mod *lang.Module, inputTypes map[string]ir.Type) (lang.Element, error) {
	callee := strings.TrimPrefix(step.Run, "#")
	if callee == "" {
		return nil, ir.Errorf(ir.ParseError, "step %s has no run reference", stepID)
	}
	task, ok := mod.Tasks[callee]
	if !ok {
		return nil, ir.Errorf(ir.ParseError, "step %s runs unknown tool %q", stepID, callee)
	}

	calleeTypes := map[string]ir.Type{}
	for _, d := range task.Inputs {
		calleeTypes[d.Name] = d.Type
	}

	if len(step.Scatter) > 1 {
		return nil, ir.Errorf(ir.UnsupportedConstruct, "step %s scatters over %d inputs; one is supported", stepID, len(step.Scatter))
	}

	call := lang.Call{Callee: callee, Alias: stepID}
	var scatter *lang.Scatter

	for _, inName := range step.InOrder {
		si := step.In[inName]
		expr, err := stepInputExpr(stepID, inName, si, calleeTypes[inName], inputTypes)
		if err != nil {
			return nil, err
		}

		if len(step.Scatter) == 1 && step.Scatter[0] == inName {
			itemType := ir.Type(ir.TAny{})
			if t, ok := calleeTypes[inName]; ok {
				itemType = ir.UnwrapOptional(t)
			}
			loopVar := stepID + "_" + inName
			scatter = &lang.Scatter{
				Var:        loopVar,
				ItemType:   itemType,
				Collection: expr,
				HasCall:    true,
			}
			expr = refExpr{path: []string{loopVar}, typ: itemType, kind: lang.RefComputed}
		}
		call.Inputs = append(call.Inputs, lang.CallInput{Name: inName, Expr: expr})
	}

	var elem lang.Element = call
	if scatter != nil {
		scatter.Body = []lang.Element{call}
		elem = *scatter
	}
	if step.When != "" {
		elem = lang.Conditional{
			Cond:    scriptExpr{src: step.When, typ: ir.TBoolean{}},
			Body:    []lang.Element{elem},
			HasCall: true,
		}
	}
	return elem, nil
}

// stepInputExpr maps a step input binding to an expression: valueFrom wins,
// then the source reference, then the default literal.
func stepInputExpr(stepID, inName string, si cwl.StepInput, hint ir.Type, inputTypes map[string]ir.Type) (lang.Expr, error) {
	if hint == nil {
		hint = ir.TAny{}
	}
	if si.ValueFrom != "" {
		return scriptExpr{src: si.ValueFrom, typ: hint}, nil
	}
	if si.Source != "" {
		path := strings.Split(si.Source, "/")
		typ := hint
		if len(path) == 1 {
			if t, ok := inputTypes[path[0]]; ok {
				typ = t
			}
		}
		return refExpr{path: path, typ: typ}, nil
	}
	if si.Default != nil {
		return exprFromRaw(si.Default, hint), nil
	}
	return nil, ir.Errorf(ir.ParseError, "step %s input %s has no source, default, or valueFrom", stepID, inName)
}

func rawSource(wf *cwl.Workflow) string {
	src, err := yaml.Marshal(map[string]any(wf.Raw))
	if err != nil {
		return ""
	}
	return string(src)
}
