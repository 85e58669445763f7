package refgraph

import (
	"fmt"

	"github.com/panbanda/excise/pkg/parser"
)

// Span is a half-open byte range [Start, End) into a file's source text.
type Span struct {
	Start int `json:"start" toon:"start"`
	End   int `json:"end" toon:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// StrictlyInside reports whether s lies strictly inside outer, excluding
// equal boundaries on either side.
func (s Span) StrictlyInside(outer Span) bool {
	return outer.Start < s.Start && outer.End > s.End
}

// Symbol is the identity of one method-like declaration. Symbols are
// compared by pointer: two call sites bind to the same declaration only if
// they resolve to the same *Symbol, regardless of names.
//
// A Symbol is immutable once its unit is loaded. Per-run facts such as its
// dense ID or a dispatch pin live in the ResolutionContext, so one unit can
// take part in any number of builds.
type Symbol struct {
	Name      string `json:"name" toon:"name"`
	Kind      string `json:"kind" toon:"kind"`
	Type      string `json:"type,omitempty" toon:"type"`
	Namespace string `json:"namespace,omitempty" toon:"namespace"`
	Package   string `json:"package,omitempty" toon:"package"`
	Module    string `json:"module" toon:"module"`
	Path      string `json:"path" toon:"path"`
	Line      int    `json:"line" toon:"line"`

	Span     Span `json:"span" toon:"span"`
	NameSpan Span `json:"name_span" toon:"name_span"`

	Params    int  `json:"params" toon:"params"`
	MinParams int  `json:"min_params" toon:"min_params"`
	Variadic  bool `json:"variadic,omitempty" toon:"variadic"`
	Extension bool `json:"extension,omitempty" toon:"extension"`
	Private   bool `json:"private,omitempty" toon:"private"`

	// Pinned holds the reason the declaration itself says it is never
	// reported unused (entry point, override, interface member...). Reasons
	// that depend on other units come from ResolutionContext.PinReason.
	Pinned string `json:"pinned,omitempty" toon:"pinned"`

	Language parser.Language `json:"language" toon:"language"`
}

// String returns a readable label such as "Acme.Billing.Invoice.Total/2".
func (s *Symbol) String() string {
	if s == nil {
		return "<nil>"
	}
	owner := s.Type
	if owner == "" {
		owner = s.Package
	}
	if owner == "" {
		return fmt.Sprintf("%s/%d", s.Name, s.Params)
	}
	return fmt.Sprintf("%s.%s/%d", owner, s.Name, s.Params)
}

// Accepts reports whether a call with n arguments can bind to the symbol.
func (s *Symbol) Accepts(n int, spread bool) bool {
	if spread {
		return s.Variadic && n-1 == s.MinParams
	}
	if n < s.MinParams {
		return false
	}
	return s.Variadic || n <= s.Params
}

// ReceiverKind classifies what a call is invoked on.
type ReceiverKind int

const (
	// RecvNone is an unqualified call: Foo().
	RecvNone ReceiverKind = iota
	// RecvSelf is a call on the current instance: this.Foo().
	RecvSelf
	// RecvBase is a call on the base type: base.Foo(), super.foo().
	RecvBase
	// RecvTyped is a call on an expression whose type is known from a
	// declaration or constructor: new Foo().Bar(), x.Bar() with Foo x.
	RecvTyped
	// RecvName is a call on a bare identifier with no known local type.
	// It may name a type or a package.
	RecvName
	// RecvExpr is a call on any other expression.
	RecvExpr
)

// String returns the receiver kind name.
func (k ReceiverKind) String() string {
	switch k {
	case RecvNone:
		return "none"
	case RecvSelf:
		return "self"
	case RecvBase:
		return "base"
	case RecvTyped:
		return "typed"
	case RecvName:
		return "name"
	default:
		return "expr"
	}
}

// CallSite is one invocation expression in a translation unit.
type CallSite struct {
	Module   string          `json:"module" toon:"module"`
	Path     string          `json:"path" toon:"path"`
	Language parser.Language `json:"language" toon:"language"`
	Span     Span            `json:"span" toon:"span"`
	Line     int             `json:"line" toon:"line"`

	Name   string `json:"name" toon:"name"`
	Args   int    `json:"args" toon:"args"`
	Spread bool   `json:"spread,omitempty" toon:"spread"`

	Receiver     string       `json:"receiver,omitempty" toon:"receiver"`
	ReceiverKind ReceiverKind `json:"receiver_kind" toon:"receiver_kind"`
	ReceiverType string       `json:"receiver_type,omitempty" toon:"receiver_type"`

	// Scope is the qualified name of the innermost enclosing type.
	Scope     string `json:"scope,omitempty" toon:"scope"`
	Namespace string `json:"namespace,omitempty" toon:"namespace"`

	// Caller is the enclosing declaration, nil for calls outside any method
	// (field initializers, top-level statements).
	Caller *Symbol `json:"-" toon:"-"`
}

// Edge records that Call resolved to Target.
type Edge struct {
	Target *Symbol
	Call   CallSite
}

// TypeDecl is a named type seen in a unit. Partial declarations of the same
// type in several files share a Key.
type TypeDecl struct {
	Key       string
	Name      string
	Bases     []string
	Interface bool
}

// TranslationUnit is one parsed source file within a named module.
// It is immutable once loaded.
type TranslationUnit struct {
	Module      string
	Path        string
	Language    parser.Language
	Source      []byte
	Fingerprint string

	Declarations []*Symbol
	Calls        []CallSite
	Types        []TypeDecl
	Package      string

	// ValueRefs are identifiers that may name a method used as a value
	// (delegate, method group, method reference, function value).
	ValueRefs []string
}
