// Package lang is the contract between source-language front-ends and the
// compiler core: a typed workflow AST, an expression oracle, and a registry
// keyed by language tag. The core never inspects expression internals beyond
// the Oracle interface.
package lang

import (
	"fmt"
	"sort"
	"sync"

	"github.com/me/dxcompiler/pkg/ir"
)

// Expr is an opaque expression tree produced by a front-end. The core only
// passes it back to the same front-end's Oracle.
type Expr interface {
	ExprNode()
}

// RefKind orders free-variable bindings. When the same identifier is
// referenced under several kinds the minimum wins.
type RefKind int

const (
	// RefRequired: the caller must supply a value.
	RefRequired RefKind = iota
	// RefOptional: the expression tolerates a missing value.
	RefOptional
	// RefComputed: bound inside the block, e.g. a scatter variable.
	RefComputed
)

func (k RefKind) String() string {
	switch k {
	case RefRequired:
		return "required"
	case RefOptional:
		return "optional"
	case RefComputed:
		return "computed"
	default:
		return fmt.Sprintf("RefKind(%d)", int(k))
	}
}

// MinKind returns the effective kind when one identifier appears under two.
func MinKind(a, b RefKind) RefKind {
	if a < b {
		return a
	}
	return b
}

// Ref is one free variable of an expression.
type Ref struct {
	// Path is the identifier path: ["x"] or ["stage", "out"].
	Path []string
	// Field is a trailing field access kept separate when the walker is told
	// not to expand it into the path.
	Field string
	Type  ir.Type
	Kind  RefKind
}

// Oracle is the small window the front-end opens into its expressions.
type Oracle interface {
	// TryConstEval folds expr into a constant of the wanted type. The second
	// result is false when the expression is not constant; err reports hard
	// failures such as a constant that cannot coerce.
	TryConstEval(expr Expr, want ir.Type) (ir.Value, bool, error)

	// FreeVariables lists the identifiers expr reads. expandFieldAccess
	// controls whether a trailing field access joins the returned path (call
	// outputs) or is dropped (struct field reads).
	FreeVariables(expr Expr, hint ir.Type, expandFieldAccess bool) []Ref

	// IsTrivial reports whether expr is a literal, a bare identifier, a
	// literal collection of literals, or a single field read on a call result.
	IsTrivial(expr Expr) bool

	// Render pretty-prints expr for embedding in generated sources and logs.
	Render(expr Expr) string
}

// FrontEnd parses one source language into the typed AST and exposes its
// expression oracle.
type FrontEnd interface {
	// Parse converts source text into a module. Failures are ParseError or
	// TypeError; the core forwards them unchanged.
	Parse(source []byte, name string) (*Module, error)
	Oracle() Oracle
}

var (
	registryMu sync.RWMutex
	registry   = map[string]FrontEnd{}
)

// Register installs a front-end for a language tag, replacing any previous
// registration.
func Register(tag string, fe FrontEnd) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = fe
}

// Lookup finds the front-end for a language tag.
func Lookup(tag string) (FrontEnd, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fe, ok := registry[tag]
	if !ok {
		return nil, ir.Errorf(ir.ConfigurationError, "no front-end registered for language %q (have %v)", tag, Tags())
	}
	return fe, nil
}

// Tags lists registered language tags, sorted.
func Tags() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
