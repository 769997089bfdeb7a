package cwlfront

import (
	"sort"
	"strings"

	"github.com/me/dxcompiler/pkg/cwl"
	"github.com/me/dxcompiler/pkg/ir"
)

// parseTool converts a raw tool document into the typed form.
func parseTool(doc cwl.Document) (*cwl.CommandLineTool, error) {
	tool := &cwl.CommandLineTool{
		ID:         strings.TrimPrefix(doc.ID(), "#"),
		Class:      doc.Class(),
		CWLVersion: doc.CWLVersion(),
		Doc:        stringField(doc, "doc"),
		Label:      stringField(doc, "label"),
		Inputs:     map[string]cwl.ToolInputParam{},
		Outputs:    map[string]cwl.ToolOutputParam{},
		Raw:        doc,
	}
	if tool.ID == "" {
		return nil, ir.Errorf(ir.ParseError, "tool is missing an id")
	}

	inputs, _, err := paramMap(doc["inputs"])
	if err != nil {
		return nil, ir.WrapError(ir.ParseError, err, "tool %s inputs", tool.ID)
	}
	for name, val := range inputs {
		tool.Inputs[name] = parseToolInput(val)
	}

	outputs, _, err := paramMap(doc["outputs"])
	if err != nil {
		return nil, ir.WrapError(ir.ParseError, err, "tool %s outputs", tool.ID)
	}
	for name, val := range outputs {
		tool.Outputs[name] = cwl.ToolOutputParam{
			Type:  typeField(val),
			Doc:   stringField(val, "doc"),
			Label: stringField(val, "label"),
		}
	}

	if docker, ok := doc.Requirement("DockerRequirement"); ok {
		tool.DockerPull = stringField(docker, "dockerPull")
		tool.DockerLoad = stringField(docker, "dockerLoad")
	}
	if res, ok := doc.Requirement("ResourceRequirement"); ok {
		tool.CoresMin = res["coresMin"]
		tool.RamMin = res["ramMin"]
		tool.TmpdirMin = res["tmpdirMin"]
	}
	if net, ok := doc.Requirement("NetworkAccessRequirement"); ok {
		tool.NetworkAccess = boolField(net, "networkAccess")
	}
	return tool, nil
}

// parseToolInput handles both shorthand ("read1: File") and expanded form.
func parseToolInput(val map[string]any) cwl.ToolInputParam {
	return cwl.ToolInputParam{
		Type:    typeField(val),
		Doc:     stringField(val, "doc"),
		Label:   stringField(val, "label"),
		Default: val["default"],
	}
}

// parseWorkflow converts a raw workflow document into the typed form.
func parseWorkflow(doc cwl.Document) (*cwl.Workflow, error) {
	wf := &cwl.Workflow{
		ID:         strings.TrimPrefix(doc.ID(), "#"),
		Class:      doc.Class(),
		CWLVersion: doc.CWLVersion(),
		Doc:        stringField(doc, "doc"),
		Inputs:     map[string]cwl.InputParam{},
		Outputs:    map[string]cwl.OutputParam{},
		Steps:      map[string]cwl.Step{},
		Raw:        doc,
	}

	inputs, _, err := paramMap(doc["inputs"])
	if err != nil {
		return nil, ir.WrapError(ir.ParseError, err, "workflow inputs")
	}
	for name, val := range inputs {
		wf.Inputs[name] = cwl.InputParam{
			Type:    typeField(val),
			Doc:     stringField(val, "doc"),
			Default: val["default"],
		}
	}

	outputs, _, err := paramMap(doc["outputs"])
	if err != nil {
		return nil, ir.WrapError(ir.ParseError, err, "workflow outputs")
	}
	for name, val := range outputs {
		wf.Outputs[name] = cwl.OutputParam{
			Type:         typeField(val),
			OutputSource: stringField(val, "outputSource"),
			Doc:          stringField(val, "doc"),
		}
	}

	steps, order, err := paramMap(doc["steps"])
	if err != nil {
		return nil, ir.WrapError(ir.ParseError, err, "workflow steps")
	}
	wf.StepOrder = order
	for id, raw := range steps {
		step, err := parseStep(raw)
		if err != nil {
			return nil, ir.WrapError(ir.ParseError, err, "step %s", id)
		}
		wf.Steps[id] = step
	}
	return wf, nil
}

func parseStep(raw map[string]any) (cwl.Step, error) {
	step := cwl.Step{
		Run:  stringField(raw, "run"),
		In:   map[string]cwl.StepInput{},
		When: stringField(raw, "when"),
	}

	switch sc := raw["scatter"].(type) {
	case string:
		step.Scatter = []string{sc}
	case []any:
		for _, s := range sc {
			if str, ok := s.(string); ok {
				step.Scatter = append(step.Scatter, str)
			}
		}
	}

	ins, order, err := paramMap(raw["in"])
	if err != nil {
		return step, err
	}
	step.InOrder = order
	for name, val := range ins {
		si := cwl.StepInput{
			Source:    stringField(val, "source"),
			Default:   val["default"],
			ValueFrom: stringField(val, "valueFrom"),
		}
		// Shorthand: "read1: reads_r1".
		if short, ok := val[shorthandKey]; ok {
			si.Source, _ = short.(string)
		}
		step.In[name] = si
	}

	switch outs := raw["out"].(type) {
	case []any:
		for _, o := range outs {
			if s, ok := o.(string); ok {
				step.Out = append(step.Out, s)
			}
		}
	}
	return step, nil
}

// shorthandKey marks a scalar entry normalized by paramMap.
const shorthandKey = "___scalar"

// paramMap normalizes CWL's two parameter layouts, the map form and the list
// form with id fields, into one map plus a stable order. Scalar shorthand
// entries land under shorthandKey.
func paramMap(v any) (map[string]map[string]any, []string, error) {
	out := map[string]map[string]any{}
	var order []string
	switch pv := v.(type) {
	case nil:
		return out, nil, nil
	case map[string]any:
		names := make([]string, 0, len(pv))
		for name := range pv {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			entry := normalizeEntry(pv[name])
			out[name] = entry
			order = append(order, name)
		}
	case []any:
		for _, item := range pv {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, nil, ir.Errorf(ir.ParseError, "expected a map entry, got %T", item)
			}
			id, _ := m["id"].(string)
			if id == "" {
				return nil, nil, ir.Errorf(ir.ParseError, "list-form entry is missing an id")
			}
			id = strings.TrimPrefix(id, "#")
			if i := strings.LastIndex(id, "/"); i >= 0 {
				id = id[i+1:]
			}
			out[id] = m
			order = append(order, id)
		}
	default:
		return nil, nil, ir.Errorf(ir.ParseError, "expected a map or list, got %T", v)
	}
	return out, order, nil
}

// normalizeEntry expands shorthand scalars into the map form.
func normalizeEntry(v any) map[string]any {
	switch e := v.(type) {
	case map[string]any:
		return e
	case string:
		return map[string]any{"type": e, shorthandKey: e}
	default:
		return map[string]any{shorthandKey: e}
	}
}

// typeField extracts the type of a normalized entry; shorthand strings are
// their own type.
func typeField(m map[string]any) any {
	if t, ok := m["type"]; ok {
		return t
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
