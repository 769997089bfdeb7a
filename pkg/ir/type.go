// Package ir defines the language-neutral intermediate representation the
// compiler lowers source documents into: types, values, parameters,
// applications, workflows, and bundles.
package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Type is the language-neutral type model. Implementations form a closed set;
// matching sites switch over the concrete types.
type Type interface {
	typeNode()
	String() string
}

type (
	// TBoolean, TInt, TFloat, TString, TFile, TDirectory are the primitive types.
	TBoolean   struct{}
	TInt       struct{}
	TFloat     struct{}
	TString    struct{}
	TFile      struct{}
	TDirectory struct{}

	// TAny matches every value.
	TAny struct{}

	// THash is an anonymous schema: string keys, arbitrary values.
	THash struct{}

	// TArray is a homogeneous array. NonEmpty arrays reject empty values.
	TArray struct {
		Item     Type
		NonEmpty bool
	}

	// TOptional wraps a type that may be Null. Never nests.
	TOptional struct {
		Inner Type
	}

	// TMulti is a union of distinct non-optional member types.
	TMulti struct {
		Choices []Type
	}

	// TSchema is a named record with ordered fields.
	TSchema struct {
		Name   string
		Fields []SchemaField
	}

	// TEnum is a closed set of string symbols.
	TEnum struct {
		Symbols []string
	}
)

// SchemaField is one named, typed field of a TSchema.
type SchemaField struct {
	Name string
	Type Type
}

func (TBoolean) typeNode()   {}
func (TInt) typeNode()       {}
func (TFloat) typeNode()     {}
func (TString) typeNode()    {}
func (TFile) typeNode()      {}
func (TDirectory) typeNode() {}
func (TAny) typeNode()       {}
func (THash) typeNode()      {}
func (TArray) typeNode()     {}
func (TOptional) typeNode()  {}
func (TMulti) typeNode()     {}
func (TSchema) typeNode()    {}
func (TEnum) typeNode()      {}

func (TBoolean) String() string   { return "Boolean" }
func (TInt) String() string       { return "Int" }
func (TFloat) String() string     { return "Float" }
func (TString) String() string    { return "String" }
func (TFile) String() string      { return "File" }
func (TDirectory) String() string { return "Directory" }
func (TAny) String() string       { return "Any" }
func (THash) String() string      { return "Hash" }

func (t TArray) String() string {
	if t.NonEmpty {
		return fmt.Sprintf("Array[%s]+", t.Item)
	}
	return fmt.Sprintf("Array[%s]", t.Item)
}

func (t TOptional) String() string { return t.Inner.String() + "?" }

func (t TMulti) String() string {
	parts := make([]string, len(t.Choices))
	for i, c := range t.Choices {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, "|") + ")"
}

func (t TSchema) String() string { return t.Name }

func (t TEnum) String() string { return "Enum{" + strings.Join(t.Symbols, ",") + "}" }

// Normalize returns the canonical form of a type. It collapses nested
// optionals, normalizes array and multi members, deduplicates multi choices,
// and downgrades NonEmpty when the item type admits null items. Idempotent.
func Normalize(t Type) Type {
	switch tt := t.(type) {
	case TOptional:
		inner := Normalize(tt.Inner)
		if opt, ok := inner.(TOptional); ok {
			return TOptional{Inner: opt.Inner}
		}
		return TOptional{Inner: inner}
	case TArray:
		item := Normalize(tt.Item)
		nonEmpty := tt.NonEmpty
		if IsOptional(item) {
			nonEmpty = false
		}
		return TArray{Item: item, NonEmpty: nonEmpty}
	case TMulti:
		seen := make(map[string]bool, len(tt.Choices))
		var choices []Type
		for _, c := range tt.Choices {
			c = Normalize(c)
			if opt, ok := c.(TOptional); ok {
				c = opt.Inner
			}
			key := c.String()
			if !seen[key] {
				seen[key] = true
				choices = append(choices, c)
			}
		}
		if len(choices) == 1 {
			return choices[0]
		}
		return TMulti{Choices: choices}
	case TSchema:
		fields := make([]SchemaField, len(tt.Fields))
		for i, f := range tt.Fields {
			fields[i] = SchemaField{Name: f.Name, Type: Normalize(f.Type)}
		}
		return TSchema{Name: tt.Name, Fields: fields}
	default:
		return t
	}
}

// IsOptional reports whether a value of type t may be Null.
func IsOptional(t Type) bool {
	switch tt := t.(type) {
	case TOptional, TAny:
		return true
	case TMulti:
		for _, c := range tt.Choices {
			if IsOptional(c) {
				return true
			}
		}
	}
	return false
}

// EnsureOptional wraps t in TOptional unless it already admits null.
// Idempotent; never produces a double wrapper.
func EnsureOptional(t Type) Type {
	switch t.(type) {
	case TOptional, TAny:
		return t
	default:
		return TOptional{Inner: t}
	}
}

// UnwrapOptional strips a single optional layer, if present.
func UnwrapOptional(t Type) Type {
	if opt, ok := t.(TOptional); ok {
		return opt.Inner
	}
	return t
}

// IsNative reports whether t maps to a single platform parameter without the
// composite two-field encoding: primitives, File/Directory, arrays of native
// items, and optionals of native inner types.
func IsNative(t Type) bool {
	switch tt := t.(type) {
	case TBoolean, TInt, TFloat, TString, TFile, TDirectory:
		return true
	case TArray:
		return IsNative(tt.Item)
	case TOptional:
		return IsNative(tt.Inner)
	default:
		return false
	}
}

// TypesEqual compares two types structurally. Schemas compare by name and
// field set regardless of field ordering.
func TypesEqual(a, b Type) bool {
	a, b = Normalize(a), Normalize(b)
	switch at := a.(type) {
	case TArray:
		bt, ok := b.(TArray)
		return ok && at.NonEmpty == bt.NonEmpty && TypesEqual(at.Item, bt.Item)
	case TOptional:
		bt, ok := b.(TOptional)
		return ok && TypesEqual(at.Inner, bt.Inner)
	case TMulti:
		bt, ok := b.(TMulti)
		if !ok || len(at.Choices) != len(bt.Choices) {
			return false
		}
		return sortedTypeKey(at.Choices) == sortedTypeKey(bt.Choices)
	case TSchema:
		bt, ok := b.(TSchema)
		if !ok || at.Name != bt.Name || len(at.Fields) != len(bt.Fields) {
			return false
		}
		fields := make(map[string]Type, len(at.Fields))
		for _, f := range at.Fields {
			fields[f.Name] = f.Type
		}
		for _, f := range bt.Fields {
			other, ok := fields[f.Name]
			if !ok || !TypesEqual(other, f.Type) {
				return false
			}
		}
		return true
	case TEnum:
		bt, ok := b.(TEnum)
		if !ok || len(at.Symbols) != len(bt.Symbols) {
			return false
		}
		for i := range at.Symbols {
			if at.Symbols[i] != bt.Symbols[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func sortedTypeKey(types []Type) string {
	keys := make([]string, len(types))
	for i, t := range types {
		keys[i] = t.String()
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}
