package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Platform JSON dialect constants.
const (
	// LinkKey wraps a platform file id: {"$dnanexus_link": "file-xxxx"}.
	LinkKey = "$dnanexus_link"
	// ComplexKey wraps a composite value inside its single hash field.
	ComplexKey = "___"
	// FlatFilesSuffix names the companion input holding every file link found
	// inside a composite value.
	FlatFilesSuffix = "___dxfiles"
	// SchemaSep joins composite schema name components, e.g. Pair___(Int,File).
	SchemaSep = "___"
)

// PairSchema names and shapes the composite serialization of Pair(L, R).
func PairSchema(left, right Type) TSchema {
	return TSchema{
		Name: fmt.Sprintf("Pair%s(%s,%s)", SchemaSep, left, right),
		Fields: []SchemaField{
			{Name: "left", Type: left},
			{Name: "right", Type: right},
		},
	}
}

// MapSchema names and shapes the composite serialization of Map(K, V):
// parallel keys/values arrays, pairwise index defines the mapping.
func MapSchema(key, value Type) TSchema {
	return TSchema{
		Name: fmt.Sprintf("Map%s[%s,%s]", SchemaSep, key, value),
		Fields: []SchemaField{
			{Name: "keys", Type: TArray{Item: key}},
			{Name: "values", Type: TArray{Item: value}},
		},
	}
}

// ValueToPlatform converts a value to the platform's natural JSON form
// (maps, slices, primitives). File references to platform objects become
// {"$dnanexus_link": id}; other URIs stay strings.
func ValueToPlatform(v Value) (any, error) {
	switch vv := v.(type) {
	case VNull:
		return nil, nil
	case VBoolean:
		return vv.Value, nil
	case VInt:
		return vv.Value, nil
	case VFloat:
		return vv.Value, nil
	case VString:
		return vv.Value, nil
	case VFile:
		if id, ok := platformFileID(vv.URI); ok {
			return map[string]any{LinkKey: id}, nil
		}
		return vv.URI, nil
	case VFolder:
		return vv.URI, nil
	case VArchive:
		return vv.URI, nil
	case VListing:
		items := make([]any, len(vv.Items))
		for i, item := range vv.Items {
			j, err := ValueToPlatform(item)
			if err != nil {
				return nil, err
			}
			items[i] = j
		}
		return map[string]any{"basename": vv.Basename, "listing": items}, nil
	case VArray:
		items := make([]any, len(vv.Items))
		for i, item := range vv.Items {
			j, err := ValueToPlatform(item)
			if err != nil {
				return nil, err
			}
			items[i] = j
		}
		return items, nil
	case VHash:
		out := make(map[string]any, len(vv.Fields))
		for _, f := range vv.Fields {
			j, err := ValueToPlatform(f.Value)
			if err != nil {
				return nil, err
			}
			out[f.Name] = j
		}
		return out, nil
	default:
		return nil, Errorf(Internal, "unserializable value %T", v)
	}
}

// ValueFromPlatform converts platform JSON back into a value guided by the
// expected type.
func ValueFromPlatform(j any, t Type) (Value, error) {
	t = Normalize(t)
	if j == nil {
		if IsOptional(t) {
			return VNull{}, nil
		}
		return nil, Errorf(TypeError, "null does not fit non-optional %s", t)
	}
	if opt, ok := t.(TOptional); ok {
		return ValueFromPlatform(j, opt.Inner)
	}

	switch jj := j.(type) {
	case bool:
		return Coerce(VBoolean{Value: jj}, t)
	case float64:
		if jj == float64(int64(jj)) {
			if _, isInt := t.(TInt); isInt {
				return VInt{Value: int64(jj)}, nil
			}
		}
		return Coerce(VFloat{Value: jj}, t)
	case int:
		return Coerce(VInt{Value: int64(jj)}, t)
	case int64:
		return Coerce(VInt{Value: jj}, t)
	case string:
		return Coerce(VString{Value: jj}, t)
	case []any:
		items := make([]Value, len(jj))
		itemType := Type(TAny{})
		if arr, ok := t.(TArray); ok {
			itemType = arr.Item
		}
		for i, item := range jj {
			v, err := ValueFromPlatform(item, itemType)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return Coerce(VArray{Items: items}, t)
	case map[string]any:
		if id, ok := jj[LinkKey]; ok && len(jj) == 1 {
			uri, _ := id.(string)
			return Coerce(VFile{URI: uri}, t)
		}
		fields := make([]HashField, 0, len(jj))
		fieldType := func(name string) Type {
			if s, ok := t.(TSchema); ok {
				for _, f := range s.Fields {
					if f.Name == name {
						return f.Type
					}
				}
			}
			return TAny{}
		}
		for _, name := range sortedKeys(jj) {
			v, err := ValueFromPlatform(jj[name], fieldType(name))
			if err != nil {
				return nil, err
			}
			fields = append(fields, HashField{Name: name, Value: v})
		}
		return Coerce(VHash{Fields: fields}, t)
	default:
		return nil, Errorf(TypeError, "unexpected platform JSON %T", j)
	}
}

// EncodeParameterValue renders one logical parameter for the wire. Native
// types become a single field; composite types become the two-field encoding:
// the value wrapped under ComplexKey plus a flat array of every file link.
func EncodeParameterValue(name string, t Type, v Value) (map[string]any, error) {
	j, err := ValueToPlatform(v)
	if err != nil {
		return nil, err
	}
	if IsNative(Normalize(t)) {
		return map[string]any{name: j}, nil
	}
	return map[string]any{
		name:                    map[string]any{ComplexKey: j},
		name + FlatFilesSuffix:  CollectFileLinks(j),
	}, nil
}

// DecodeParameterValue reverses EncodeParameterValue for one parameter name.
func DecodeParameterValue(fields map[string]any, name string, t Type) (Value, error) {
	j, ok := fields[name]
	if !ok {
		if IsOptional(t) {
			return VNull{}, nil
		}
		return nil, Errorf(TypeError, "missing required field %q", name)
	}
	if !IsNative(Normalize(t)) {
		wrapper, ok := j.(map[string]any)
		if !ok {
			return nil, Errorf(TypeError, "field %q: composite value must be a hash", name)
		}
		inner, ok := wrapper[ComplexKey]
		if !ok {
			return nil, Errorf(TypeError, "field %q: composite value missing %q wrapper", name, ComplexKey)
		}
		j = inner
	}
	return ValueFromPlatform(j, t)
}

// CollectFileLinks walks platform JSON and returns every file link found, in
// a stable order. The platform uses the flat list to stage and close files.
func CollectFileLinks(j any) []any {
	var links []any
	var walk func(any)
	walk = func(node any) {
		switch n := node.(type) {
		case map[string]any:
			if _, ok := n[LinkKey]; ok && len(n) == 1 {
				links = append(links, n)
				return
			}
			for _, key := range sortedKeys(n) {
				walk(n[key])
			}
		case []any:
			for _, item := range n {
				walk(item)
			}
		}
	}
	walk(j)
	if links == nil {
		links = []any{}
	}
	return links
}

// platformFileID extracts a platform object id from a URI. Accepted forms:
// bare ids (file-xxxx), dx://project-xxxx:file-xxxx, and project:file pairs.
func platformFileID(uri string) (string, bool) {
	s := strings.TrimPrefix(uri, "dx://")
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if strings.HasPrefix(s, "file-") && !strings.ContainsAny(s, "/ ") {
		return s, true
	}
	return "", false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
