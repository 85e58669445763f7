package refgraph

import (
	"slices"
	"sort"
	"strings"

	"github.com/panbanda/excise/pkg/parser"
)

// typeInfo merges every declaration of a type key, so partial types spread
// over several files and modules behave as one type.
type typeInfo struct {
	key       string
	name      string
	bases     []string
	iface     bool
	languages map[parser.Language]bool
}

// ResolutionContext is the read-only symbol table for one analysis run. It
// spans every unit of every module and is shared by all resolver workers.
type ResolutionContext struct {
	units   []*TranslationUnit
	calls   [][]CallSite
	symbols []*Symbol
	ids     map[*Symbol]uint32
	pins    map[*Symbol]string

	byName        map[string][]*Symbol
	types         map[string]*typeInfo
	typesBySimple map[string][]string
	goPackages    map[string]bool
	valueRefs     map[string]bool
}

type contextOptions struct {
	valueRefs bool
}

// ContextOption configures NewResolutionContext.
type ContextOption func(*contextOptions)

// WithValueReferences pins declarations whose simple name appears as a bare
// identifier outside a call (delegates, method groups, function values).
// Matching is by name only, so a method sharing its name with a variable
// that is read somewhere is never reported.
func WithValueReferences() ContextOption {
	return func(o *contextOptions) {
		o.valueRefs = true
	}
}

// WithoutValueReferences turns value-reference pinning back off.
func WithoutValueReferences() ContextOption {
	return func(o *contextOptions) {
		o.valueRefs = false
	}
}

// NewResolutionContext indexes units. Units are ordered by path and module,
// declarations and call sites by offset, and every declaration gets a dense
// ID in that order. Neither the units slice nor the units are modified.
func NewResolutionContext(units []*TranslationUnit, opts ...ContextOption) *ResolutionContext {
	var o contextOptions
	for _, opt := range opts {
		opt(&o)
	}

	sorted := make([]*TranslationUnit, 0, len(units))
	for _, u := range units {
		if u != nil {
			sorted = append(sorted, u)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Module < sorted[j].Module
	})

	rc := &ResolutionContext{
		units:         sorted,
		byName:        make(map[string][]*Symbol),
		types:         make(map[string]*typeInfo),
		typesBySimple: make(map[string][]string),
		goPackages:    make(map[string]bool),
		valueRefs:     make(map[string]bool),
		calls:         make([][]CallSite, len(sorted)),
		ids:           make(map[*Symbol]uint32),
		pins:          make(map[*Symbol]string),
	}

	for i, u := range sorted {
		decls := slices.Clone(u.Declarations)
		sort.SliceStable(decls, func(i, j int) bool {
			return decls[i].Span.Start < decls[j].Span.Start
		})
		calls := slices.Clone(u.Calls)
		sort.SliceStable(calls, func(i, j int) bool {
			return calls[i].Span.Start < calls[j].Span.Start
		})
		rc.calls[i] = calls

		for _, sym := range decls {
			if _, dup := rc.ids[sym]; dup {
				continue
			}
			rc.ids[sym] = uint32(len(rc.symbols))
			rc.symbols = append(rc.symbols, sym)
			rc.byName[sym.Name] = append(rc.byName[sym.Name], sym)
			if sym.Type != "" {
				rc.addType(sym.Type, lastSegment(sym.Type), nil, false, sym.Language)
			}
		}
		for _, td := range u.Types {
			rc.addType(td.Key, td.Name, td.Bases, td.Interface, u.Language)
		}
		if u.Language == parser.LangGo && u.Package != "" {
			rc.goPackages[u.Package] = true
		}
		if o.valueRefs {
			for _, ref := range u.ValueRefs {
				rc.valueRefs[ref] = true
			}
		}
	}

	rc.pinDispatch()
	if o.valueRefs {
		for _, sym := range rc.symbols {
			if rc.PinReason(sym) == "" && rc.valueRefs[sym.Name] {
				rc.pins[sym] = "referenced by name"
			}
		}
	}
	return rc
}

func (rc *ResolutionContext) addType(key, name string, bases []string, iface bool, lang parser.Language) {
	ti, ok := rc.types[key]
	if !ok {
		ti = &typeInfo{key: key, name: name, languages: make(map[parser.Language]bool)}
		rc.types[key] = ti
		rc.typesBySimple[name] = append(rc.typesBySimple[name], key)
	}
	ti.languages[lang] = true
	ti.iface = ti.iface || iface
	for _, b := range bases {
		if !containsString(ti.bases, b) {
			ti.bases = append(ti.bases, b)
		}
	}
}

// pinDispatch pins methods that implement or override a same-named member of
// a declared base type. Calls through the base reach them at run time.
func (rc *ResolutionContext) pinDispatch() {
	for _, sym := range rc.symbols {
		if sym.Pinned != "" || sym.Type == "" {
			continue
		}
		for _, base := range rc.Ancestors(sym.Type) {
			if rc.hasCompatibleMember(base, sym) {
				rc.pins[sym] = "implements " + base + "." + sym.Name
				break
			}
		}
	}
}

func (rc *ResolutionContext) hasCompatibleMember(typeKey string, sym *Symbol) bool {
	for _, other := range rc.byName[sym.Name] {
		if other != sym && other.Type == typeKey && other.Params == sym.Params {
			return true
		}
	}
	return false
}

// Units returns the units in resolution order.
func (rc *ResolutionContext) Units() []*TranslationUnit {
	return rc.units
}

// Symbols returns every declaration, indexed by ID.
func (rc *ResolutionContext) Symbols() []*Symbol {
	return rc.symbols
}

// ID returns the dense ID of sym in this context. ok is false for a symbol
// that belongs to none of the context's units.
func (rc *ResolutionContext) ID(sym *Symbol) (id uint32, ok bool) {
	id, ok = rc.ids[sym]
	return id, ok
}

// PinReason returns why sym is never reported unused in this context, or ""
// when it is reportable.
func (rc *ResolutionContext) PinReason(sym *Symbol) string {
	if sym.Pinned != "" {
		return sym.Pinned
	}
	return rc.pins[sym]
}

// Calls returns the call sites of the i-th unit of Units, ordered by offset.
func (rc *ResolutionContext) Calls(i int) []CallSite {
	return rc.calls[i]
}

// Symbol returns the declaration with the given ID, or nil.
func (rc *ResolutionContext) Symbol(id uint32) *Symbol {
	if int(id) >= len(rc.symbols) {
		return nil
	}
	return rc.symbols[id]
}

// Named returns every declaration with the given simple name.
func (rc *ResolutionContext) Named(name string) []*Symbol {
	return rc.byName[name]
}

// IsType reports whether key is a declared type.
func (rc *ResolutionContext) IsType(key string) bool {
	_, ok := rc.types[key]
	return ok
}

// TypesNamed returns the keys of every declared type with a simple name.
func (rc *ResolutionContext) TypesNamed(name string) []string {
	return rc.typesBySimple[name]
}

// IsGoPackage reports whether name is the package name of any Go unit.
func (rc *ResolutionContext) IsGoPackage(name string) bool {
	return rc.goPackages[name]
}

// Bases returns the keys of the direct base types of key. Base names are
// matched by simple name, so a base may map to several keys.
func (rc *ResolutionContext) Bases(key string) []string {
	ti, ok := rc.types[key]
	if !ok {
		return nil
	}
	var keys []string
	for _, b := range ti.bases {
		for _, k := range rc.typesBySimple[simpleTypeName(b)] {
			if k != key && !containsString(keys, k) {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Ancestors returns every transitive base of key in breadth-first order.
func (rc *ResolutionContext) Ancestors(key string) []string {
	seen := map[string]bool{key: true}
	var out []string
	queue := []string{key}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, b := range rc.Bases(cur) {
			if seen[b] {
				continue
			}
			seen[b] = true
			out = append(out, b)
			queue = append(queue, b)
		}
	}
	return out
}

// Outer returns the enclosing type keys of a nested type key, innermost first.
func (rc *ResolutionContext) Outer(key string) []string {
	var out []string
	for i := strings.LastIndex(key, "."); i > 0; i = strings.LastIndex(key[:i], ".") {
		if prefix := key[:i]; rc.IsType(prefix) {
			out = append(out, prefix)
		}
	}
	return out
}

func lastSegment(key string) string {
	return key[strings.LastIndex(key, ".")+1:]
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
