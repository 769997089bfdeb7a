package plan

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"

	"github.com/me/dxcompiler/pkg/dx"
	"github.com/me/dxcompiler/pkg/ir"
)

// renderApplet produces the applet-new request for an application.
func renderApplet(app *ir.Application, folder string) (map[string]any, error) {
	inputSpec, err := renderIOSpec(app.Inputs)
	if err != nil {
		return nil, err
	}
	outputSpec, err := renderIOSpec(app.Outputs)
	if err != nil {
		return nil, err
	}

	runSpec := map[string]any{
		"interpreter": "bash",
		"code":        executorStub(app.Kind),
		"distribution": map[string]any{
			"name":    "Ubuntu",
			"release": "24.04",
		},
	}
	switch inst := app.Instance.(type) {
	case ir.StaticInstance:
		if inst.Name != "" {
			runSpec["systemRequirements"] = map[string]any{
				"main": map[string]any{"instanceType": inst.Name},
			}
		} else if inst.Request != nil {
			runSpec["systemRequirements"] = map[string]any{
				"main": map[string]any{
					"instanceType": selectInstanceName(*inst.Request),
				},
			}
		}
	case ir.DynamicInstance:
		runSpec["headJobOnDemand"] = true
	}

	details := map[string]any{}
	if app.Source.Text != "" {
		encoded, err := compressSource(app.Source.Text)
		if err != nil {
			return nil, err
		}
		details[dx.DetailsSource] = encoded
	}
	if img, ok := app.Container.(ir.PlatformFileImage); ok {
		details[dx.DetailsDockerImage] = map[string]any{ir.LinkKey: img.URI}
	}

	req := map[string]any{
		"name":       app.Name,
		"folder":     folder,
		"parents":    true,
		"dxapi":      "1.0.0",
		"inputSpec":  inputSpec,
		"outputSpec": outputSpec,
		"runSpec":    runSpec,
		"details":    details,
		"hidden":     isHelper(app.Kind),
	}
	if len(app.Tags) > 0 {
		req["tags"] = app.Tags
	}
	if access := renderAccess(app.Requirements); len(access) > 0 {
		req["access"] = access
	}
	applyAttributes(req, app.Attributes)
	if _, ok := app.Container.(ir.NetworkImage); ok {
		// Registry pulls need outbound network at runtime.
		req["access"] = mergeAccess(req["access"], map[string]any{"network": []any{"*"}})
	}
	return req, nil
}

// renderWorkflow produces the workflow-new request. Callee names resolve to
// platform ids through the results of already-planned callables; stage inputs
// are positional against the callee's input parameters.
func renderWorkflow(wf *ir.Workflow, folder string, resolve func(name string) (string, error), calleeInputs func(name string) ([]ir.Parameter, error)) (map[string]any, error) {
	stages := make([]any, 0, len(wf.Stages))
	for _, st := range wf.Stages {
		execID, err := resolve(st.CalleeName)
		if err != nil {
			return nil, err
		}
		params, err := calleeInputs(st.CalleeName)
		if err != nil {
			return nil, err
		}
		if len(params) < len(st.Inputs) {
			return nil, ir.Errorf(ir.Internal, "stage %s: %d inputs for %d callee parameters", st.ID, len(st.Inputs), len(params))
		}
		paramNames := make([]string, len(st.Inputs))
		for i := range st.Inputs {
			paramNames[i] = params[i].Name
		}
		input, err := renderStageInputs(st.Inputs, paramNames)
		if err != nil {
			return nil, err
		}
		stages = append(stages, map[string]any{
			"id":         st.ID,
			"name":       st.Description,
			"executable": execID,
			"folder":     folder,
			"input":      input,
		})
	}

	req := map[string]any{
		"name":    wf.Name,
		"folder":  folder,
		"parents": true,
		"stages":  stages,
		"details": map[string]any{},
	}
	if wf.Locked {
		inputs, err := renderWorkflowIO(wf.Inputs)
		if err != nil {
			return nil, err
		}
		outputs, err := renderWorkflowIO(wf.Outputs)
		if err != nil {
			return nil, err
		}
		req["inputs"] = inputs
		req["outputs"] = outputs
	}
	applyAttributes(req, wf.Attributes)
	return req, nil
}

// renderIOSpec lowers parameters to the platform's input/output spec. Native
// types take one entry; composite types take the hash entry plus the flat
// file-array companion.
func renderIOSpec(params []ir.Parameter) ([]any, error) {
	var spec []any
	for _, p := range params {
		t := ir.Normalize(p.Type)
		optional := ir.IsOptional(t)
		if ir.IsNative(t) {
			entry := map[string]any{
				"name":  p.Name,
				"class": nativeClass(ir.UnwrapOptional(t)),
			}
			if optional {
				entry["optional"] = true
			}
			if p.Default != nil {
				dv, err := ir.ValueToPlatform(p.Default)
				if err != nil {
					return nil, err
				}
				entry["default"] = dv
			}
			applyParamAttrs(entry, p.Attrs)
			spec = append(spec, entry)
			continue
		}
		hashEntry := map[string]any{
			"name":  p.Name,
			"class": "hash",
		}
		if optional {
			hashEntry["optional"] = true
		}
		applyParamAttrs(hashEntry, p.Attrs)
		spec = append(spec,
			hashEntry,
			map[string]any{
				"name":     p.Name + ir.FlatFilesSuffix,
				"class":    "array:file",
				"optional": true,
			},
		)
	}
	if spec == nil {
		spec = []any{}
	}
	return spec, nil
}

// nativeClass maps a native type to the platform parameter class.
func nativeClass(t ir.Type) string {
	switch tt := t.(type) {
	case ir.TBoolean:
		return "boolean"
	case ir.TInt:
		return "int"
	case ir.TFloat:
		return "float"
	case ir.TString:
		return "string"
	case ir.TFile:
		return "file"
	case ir.TDirectory:
		// Directories travel as URI strings.
		return "string"
	case ir.TArray:
		return "array:" + nativeClass(ir.UnwrapOptional(tt.Item))
	case ir.TOptional:
		return nativeClass(tt.Inner)
	default:
		return "hash"
	}
}

func renderWorkflowIO(ios []ir.WorkflowIO) ([]any, error) {
	var out []any
	for _, io := range ios {
		t := ir.Normalize(io.Param.Type)
		entry := map[string]any{
			"name":  io.Param.Name,
			"class": nativeClass(ir.UnwrapOptional(t)),
		}
		if !ir.IsNative(t) {
			entry["class"] = "hash"
		}
		if ir.IsOptional(t) {
			entry["optional"] = true
		}
		if io.Param.Default != nil {
			dv, err := ir.ValueToPlatform(io.Param.Default)
			if err != nil {
				return nil, err
			}
			entry["default"] = dv
		}
		if j, err := renderStageInput(io.Input); err != nil {
			return nil, err
		} else if j != nil {
			entry["outputSource"] = j
		}
		out = append(out, entry)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func renderStageInputs(inputs []ir.StageInput, paramNames []string) (map[string]any, error) {
	out := map[string]any{}
	for i, in := range inputs {
		j, err := renderStageInput(in)
		if err != nil {
			return nil, err
		}
		if j == nil {
			continue
		}
		out[paramNames[i]] = j
	}
	return out, nil
}

func renderStageInput(in ir.StageInput) (any, error) {
	switch si := in.(type) {
	case nil, ir.EmptyInput:
		return nil, nil
	case ir.StaticInput:
		return ir.ValueToPlatform(si.Value)
	case ir.LinkInput:
		return map[string]any{
			ir.LinkKey: map[string]any{"stage": si.StageID, "outputField": si.Param},
		}, nil
	case ir.WorkflowLink:
		return map[string]any{
			ir.LinkKey: map[string]any{"workflowInputField": si.Param},
		}, nil
	case ir.ArrayInput:
		items := make([]any, 0, len(si.Inputs))
		for _, inner := range si.Inputs {
			j, err := renderStageInput(inner)
			if err != nil {
				return nil, err
			}
			items = append(items, j)
		}
		return items, nil
	default:
		return nil, ir.Errorf(ir.Internal, "unrenderable stage input %T", in)
	}
}

func applyParamAttrs(entry map[string]any, attrs []ir.ParamAttr) {
	for _, a := range attrs {
		switch at := a.(type) {
		case ir.LabelAttr:
			entry["label"] = at.Text
		case ir.HelpAttr:
			entry["help"] = at.Text
		case ir.GroupAttr:
			entry["group"] = at.Name
		case ir.ChoicesAttr:
			var choices []any
			for _, v := range at.Values {
				if j, err := ir.ValueToPlatform(v); err == nil {
					choices = append(choices, j)
				}
			}
			entry["choices"] = choices
		case ir.SuggestionsAttr:
			var suggestions []any
			for _, v := range at.Values {
				if j, err := ir.ValueToPlatform(v); err == nil {
					suggestions = append(suggestions, j)
				}
			}
			entry["suggestions"] = suggestions
		case ir.PatternsAttr:
			entry["patterns"] = at.Globs
		}
	}
}

func applyAttributes(req map[string]any, attrs []ir.CallableAttr) {
	for _, a := range attrs {
		switch at := a.(type) {
		case ir.TitleAttr:
			req["title"] = at.Text
		case ir.SummaryAttr:
			req["summary"] = at.Text
		case ir.DescriptionAttr:
			req["description"] = at.Text
		case ir.PropertiesAttr:
			props, _ := req["properties"].(map[string]string)
			if props == nil {
				props = map[string]string{}
			}
			for k, v := range at.Entries {
				props[k] = v
			}
			req["properties"] = props
		}
	}
}

func renderAccess(reqs []ir.RuntimeRequirement) map[string]any {
	access := map[string]any{}
	for _, r := range reqs {
		switch rr := r.(type) {
		case ir.AccessNetwork:
			access["network"] = []any{"*"}
		case ir.AccessProject:
			access["project"] = rr.Level
		}
	}
	return access
}

func mergeAccess(existing any, extra map[string]any) map[string]any {
	merged, _ := existing.(map[string]any)
	if merged == nil {
		merged = map[string]any{}
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// executorStub is the bootstrap script the platform runs; it hands control to
// the task or fragment executor shipped with the runtime assets.
func executorStub(kind ir.ExecKind) string {
	switch kind.(type) {
	case ir.KindWfFragment, ir.KindWfCommonInputs, ir.KindWfOutputs, ir.KindWfCustomReorgOutputs:
		return "dx-download-all-inputs --except-all\nexec dxcompiler-fragment-executor \"$@\"\n"
	default:
		return "dx-download-all-inputs --except-all\nexec dxcompiler-task-executor \"$@\"\n"
	}
}

// isHelper hides compiler-generated applets from folder listings.
func isHelper(kind ir.ExecKind) bool {
	switch kind.(type) {
	case ir.KindApplet, ir.KindNative, ir.KindWorkflowCustomReorg:
		return false
	default:
		return true
	}
}

// selectInstanceName maps a resolved resource request onto the smallest
// matching instance of the platform's x-series.
func selectInstanceName(req ir.InstanceRequest) string {
	type shape struct {
		name   string
		cpu    float64
		memMB  int64
		diskGB int64
	}
	// Ascending by capacity.
	shapes := []shape{
		{"mem1_ssd1_v2_x2", 2, 3800, 32},
		{"mem1_ssd1_v2_x4", 4, 7800, 77},
		{"mem1_ssd1_v2_x8", 8, 15600, 156},
		{"mem2_ssd1_v2_x4", 4, 32000, 77},
		{"mem2_ssd1_v2_x8", 8, 64000, 156},
		{"mem3_ssd1_v2_x8", 8, 128000, 156},
		{"mem3_ssd1_v2_x16", 16, 256000, 312},
	}
	for _, s := range shapes {
		if s.cpu >= req.CPU && s.memMB >= req.MemoryMB && s.diskGB >= req.DiskGB {
			return s.name
		}
	}
	return shapes[len(shapes)-1].name
}

// compressSource gzips and base64-encodes a stand-alone source document.
func compressSource(text string) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(text)); err != nil {
		return "", fmt.Errorf("compress source: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress source: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
