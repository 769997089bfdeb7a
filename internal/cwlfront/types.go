package cwlfront

import (
	"fmt"
	"sort"
	"strings"

	"github.com/me/dxcompiler/pkg/ir"
)

// typeFromCWL maps a CWL type field onto the compiler's type model. The field
// may be a plain string ("File", "int?", "string[]"), a union list
// (["null", "int"]), or a structured type (array / record / enum).
func typeFromCWL(v any) (ir.Type, error) {
	switch t := v.(type) {
	case nil:
		return ir.TAny{}, nil
	case string:
		return typeFromString(t)
	case []any:
		return typeFromUnion(t)
	case map[string]any:
		return typeFromStructured(t)
	default:
		return nil, ir.Errorf(ir.TypeError, "unrecognized CWL type %T", v)
	}
}

func typeFromString(s string) (ir.Type, error) {
	if inner, ok := strings.CutSuffix(s, "?"); ok {
		t, err := typeFromString(inner)
		if err != nil {
			return nil, err
		}
		return ir.EnsureOptional(t), nil
	}
	if inner, ok := strings.CutSuffix(s, "[]"); ok {
		t, err := typeFromString(inner)
		if err != nil {
			return nil, err
		}
		return ir.TArray{Item: t}, nil
	}
	switch s {
	case "boolean":
		return ir.TBoolean{}, nil
	case "int", "long":
		return ir.TInt{}, nil
	case "float", "double":
		return ir.TFloat{}, nil
	case "string":
		return ir.TString{}, nil
	case "File":
		return ir.TFile{}, nil
	case "Directory":
		return ir.TDirectory{}, nil
	case "Any":
		return ir.TAny{}, nil
	case "null":
		return ir.TOptional{Inner: ir.TAny{}}, nil
	case "stdout", "stderr":
		return ir.TFile{}, nil
	default:
		return nil, ir.Errorf(ir.UnsupportedConstruct, "CWL type %q", s)
	}
}

// typeFromUnion lowers a union. ["null", T] is an optional T; wider unions
// become Multi.
func typeFromUnion(entries []any) (ir.Type, error) {
	nullable := false
	var members []ir.Type
	for _, entry := range entries {
		if s, ok := entry.(string); ok && s == "null" {
			nullable = true
			continue
		}
		t, err := typeFromCWL(entry)
		if err != nil {
			return nil, err
		}
		members = append(members, t)
	}
	var out ir.Type
	switch len(members) {
	case 0:
		out = ir.TAny{}
	case 1:
		out = members[0]
	default:
		out = ir.TMulti{Choices: members}
	}
	if nullable {
		out = ir.EnsureOptional(out)
	}
	return ir.Normalize(out), nil
}

func typeFromStructured(m map[string]any) (ir.Type, error) {
	kind, _ := m["type"].(string)
	switch kind {
	case "array":
		item, err := typeFromCWL(m["items"])
		if err != nil {
			return nil, err
		}
		return ir.TArray{Item: item}, nil
	case "record":
		name, _ := m["name"].(string)
		fields, err := recordFields(m["fields"])
		if err != nil {
			return nil, err
		}
		if name == "" {
			return ir.THash{}, nil
		}
		return ir.TSchema{Name: name, Fields: fields}, nil
	case "enum":
		symbols, _ := m["symbols"].([]any)
		out := ir.TEnum{}
		for _, s := range symbols {
			if str, ok := s.(string); ok {
				// Packed documents qualify symbols with the schema id.
				if i := strings.LastIndex(str, "/"); i >= 0 {
					str = str[i+1:]
				}
				out.Symbols = append(out.Symbols, str)
			}
		}
		return out, nil
	default:
		return nil, ir.Errorf(ir.UnsupportedConstruct, "structured CWL type %q", kind)
	}
}

func recordFields(v any) ([]ir.SchemaField, error) {
	var fields []ir.SchemaField
	switch fv := v.(type) {
	case []any:
		for _, entry := range fv {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["name"].(string)
			t, err := typeFromCWL(m["type"])
			if err != nil {
				return nil, err
			}
			fields = append(fields, ir.SchemaField{Name: name, Type: t})
		}
	case map[string]any:
		names := make([]string, 0, len(fv))
		for name := range fv {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t, err := fieldType(fv[name])
			if err != nil {
				return nil, err
			}
			fields = append(fields, ir.SchemaField{Name: name, Type: t})
		}
	}
	return fields, nil
}

func fieldType(v any) (ir.Type, error) {
	if m, ok := v.(map[string]any); ok {
		_, items := m["items"]
		_, fields := m["fields"]
		_, symbols := m["symbols"]
		if items || fields || symbols {
			return typeFromStructured(m)
		}
		if t, hasType := m["type"]; hasType {
			return typeFromCWL(t)
		}
	}
	return typeFromCWL(v)
}

// valueFromAny converts a YAML literal into a value, using CWL's File and
// Directory object forms.
func valueFromAny(v any) (ir.Value, error) {
	switch vv := v.(type) {
	case nil:
		return ir.VNull{}, nil
	case bool:
		return ir.VBoolean{Value: vv}, nil
	case int:
		return ir.VInt{Value: int64(vv)}, nil
	case int64:
		return ir.VInt{Value: vv}, nil
	case float64:
		if vv == float64(int64(vv)) {
			return ir.VInt{Value: int64(vv)}, nil
		}
		return ir.VFloat{Value: vv}, nil
	case string:
		return ir.VString{Value: vv}, nil
	case []any:
		items := make([]ir.Value, len(vv))
		for i, item := range vv {
			val, err := valueFromAny(item)
			if err != nil {
				return nil, err
			}
			items[i] = val
		}
		return ir.VArray{Items: items}, nil
	case map[string]any:
		switch class, _ := vv["class"].(string); class {
		case "File":
			return ir.VFile{URI: locationOf(vv), Basename: stringAt(vv, "basename")}, nil
		case "Directory":
			return ir.VFolder{URI: locationOf(vv), Basename: stringAt(vv, "basename")}, nil
		}
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]ir.HashField, 0, len(keys))
		for _, k := range keys {
			val, err := valueFromAny(vv[k])
			if err != nil {
				return nil, err
			}
			fields = append(fields, ir.HashField{Name: k, Value: val})
		}
		return ir.VHash{Fields: fields}, nil
	default:
		return nil, ir.Errorf(ir.TypeError, "unsupported literal %T", v)
	}
}

func locationOf(m map[string]any) string {
	if loc := stringAt(m, "location"); loc != "" {
		return loc
	}
	return stringAt(m, "path")
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// anyToString renders a scalar for error messages.
func anyToString(v any) string {
	return fmt.Sprintf("%v", v)
}
