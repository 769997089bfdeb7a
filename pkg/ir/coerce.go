package ir

import (
	"math"
	"strings"
)

// Coerce fits a value to a type, applying the compiler's widening rules.
// Idempotent: coercing an already-coerced value is a no-op. Returns a
// TypeError when the value cannot fit.
func Coerce(v Value, t Type) (Value, error) {
	t = Normalize(t)
	switch tt := t.(type) {
	case TAny:
		return v, nil
	case TOptional:
		if _, ok := v.(VNull); ok {
			return v, nil
		}
		return Coerce(v, tt.Inner)
	case TMulti:
		for _, c := range tt.Choices {
			if out, err := Coerce(v, c); err == nil {
				return out, nil
			}
		}
		return nil, Errorf(TypeError, "value %s fits no member of %s", FormatValue(v), t)
	}

	switch vv := v.(type) {
	case VNull:
		return nil, Errorf(TypeError, "null does not fit non-optional %s", t)
	case VBoolean:
		if _, ok := t.(TBoolean); ok {
			return v, nil
		}
	case VInt:
		switch t.(type) {
		case TInt:
			return v, nil
		case TFloat:
			return VFloat{Value: float64(vv.Value)}, nil
		}
	case VFloat:
		switch t.(type) {
		case TFloat:
			return v, nil
		case TInt:
			if vv.Value == math.Trunc(vv.Value) && !math.IsInf(vv.Value, 0) {
				return VInt{Value: int64(vv.Value)}, nil
			}
			return nil, Errorf(TypeError, "float %g is not an exact integer", vv.Value)
		}
	case VString:
		switch t.(type) {
		case TString:
			return v, nil
		case TFile:
			return VFile{URI: vv.Value}, nil
		case TDirectory:
			return VFolder{URI: vv.Value}, nil
		case TEnum:
			for _, sym := range t.(TEnum).Symbols {
				if sym == vv.Value {
					return v, nil
				}
			}
			return nil, Errorf(TypeError, "%q is not a symbol of %s", vv.Value, t)
		}
	case VFile:
		switch t.(type) {
		case TFile:
			return v, nil
		case TString:
			if isSingleURI(vv.URI) {
				return VString{Value: vv.URI}, nil
			}
		}
	case VFolder:
		switch t.(type) {
		case TDirectory:
			return v, nil
		case TString:
			if isSingleURI(vv.URI) {
				return VString{Value: vv.URI}, nil
			}
		}
	case VArchive, VListing:
		if _, ok := t.(TDirectory); ok {
			return v, nil
		}
	case VArray:
		arr, ok := t.(TArray)
		if !ok {
			break
		}
		if arr.NonEmpty && len(vv.Items) == 0 {
			return nil, Errorf(TypeError, "empty array does not fit %s", t)
		}
		items := make([]Value, len(vv.Items))
		for i, item := range vv.Items {
			out, err := Coerce(item, arr.Item)
			if err != nil {
				return nil, Errorf(TypeError, "array item %d: %s", i, err.(*Error).Message)
			}
			items[i] = out
		}
		return VArray{Items: items}, nil
	case VHash:
		switch tt := t.(type) {
		case THash:
			return v, nil
		case TSchema:
			return coerceHashToSchema(vv, tt)
		}
	}
	return nil, Errorf(TypeError, "value %s does not fit %s", FormatValue(v), t)
}

// coerceHashToSchema fits a hash to a named schema: keys must be a subset of
// the schema fields, and every missing field must be optional.
func coerceHashToSchema(h VHash, s TSchema) (Value, error) {
	fields := make(map[string]Type, len(s.Fields))
	for _, f := range s.Fields {
		fields[f.Name] = f.Type
	}
	for _, f := range h.Fields {
		if _, ok := fields[f.Name]; !ok {
			return nil, Errorf(TypeError, "field %q is not part of schema %s", f.Name, s.Name)
		}
	}
	var out []HashField
	for _, sf := range s.Fields {
		v, present := h.Get(sf.Name)
		if !present {
			if !IsOptional(sf.Type) {
				return nil, Errorf(TypeError, "schema %s requires field %q", s.Name, sf.Name)
			}
			continue
		}
		cv, err := Coerce(v, sf.Type)
		if err != nil {
			return nil, Errorf(TypeError, "schema %s field %q: %s", s.Name, sf.Name, err.(*Error).Message)
		}
		out = append(out, HashField{Name: sf.Name, Value: cv})
	}
	return VHash{Fields: out}, nil
}

// isSingleURI reports whether s looks like one URI or path with no embedded
// whitespace, so the reverse File → String coercion stays unambiguous.
func isSingleURI(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t\n")
}
