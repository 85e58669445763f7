package refgraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/panbanda/excise/pkg/parser"
)

// ErrUnresolved is returned when no declaration matches a call site.
var ErrUnresolved = errors.New("unresolved call site")

// AmbiguousCallError is returned when several declarations match a call site
// and the resolver cannot choose between them.
type AmbiguousCallError struct {
	Call       CallSite
	Candidates []*Symbol
}

func (e *AmbiguousCallError) Error() string {
	names := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		names = append(names, c.String())
	}
	return fmt.Sprintf("ambiguous call to %s at %s:%d: %s",
		e.Call.Name, e.Call.Path, e.Call.Line, strings.Join(names, ", "))
}

// Resolver binds a call site to the declaration it invokes.
// Implementations must be safe for concurrent use with a shared context.
type Resolver interface {
	Resolve(rc *ResolutionContext, call CallSite) (*Symbol, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(rc *ResolutionContext, call CallSite) (*Symbol, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(rc *ResolutionContext, call CallSite) (*Symbol, error) {
	return f(rc, call)
}

// SyntaxResolver resolves calls from syntax alone: callee name, argument
// count, receiver shape and the declared type hierarchy. It never consults
// a compiler's semantic model.
type SyntaxResolver struct{}

// NewSyntaxResolver returns the default resolver.
func NewSyntaxResolver() *SyntaxResolver {
	return &SyntaxResolver{}
}

// Resolve implements Resolver.
func (r *SyntaxResolver) Resolve(rc *ResolutionContext, call CallSite) (*Symbol, error) {
	named := rc.Named(call.Name)
	if len(named) == 0 {
		return nil, ErrUnresolved
	}

	var candidates []*Symbol
	if call.Language == parser.LangGo {
		candidates = r.resolveGo(rc, call, named)
	} else {
		candidates = r.resolveMember(rc, call, named)
	}

	switch len(candidates) {
	case 0:
		return nil, ErrUnresolved
	case 1:
		return candidates[0], nil
	default:
		return nil, &AmbiguousCallError{Call: call, Candidates: candidates}
	}
}

func (r *SyntaxResolver) resolveMember(rc *ResolutionContext, call CallSite, named []*Symbol) []*Symbol {
	accepting := visible(call, sameLanguage(call, arity(call, named)))

	switch call.ReceiverKind {
	case RecvNone:
		if hit := firstTier(accepting, enclosingTiers(rc, call.Scope)); hit != nil {
			return hit
		}
		return accepting
	case RecvSelf:
		return firstTier(accepting, hierarchyTiers(rc, call.Scope))
	case RecvBase:
		tiers := hierarchyTiers(rc, call.Scope)
		if len(tiers) > 0 {
			tiers = tiers[1:]
		}
		return firstTier(accepting, tiers)
	case RecvTyped:
		keys := rc.TypesNamed(call.ReceiverType)
		if len(keys) == 0 {
			// a library type: only extension methods can be ours
			return extensions(call, named)
		}
		return r.onTypes(rc, call, named, accepting, keys)
	case RecvName:
		if keys := rc.TypesNamed(call.ReceiverType); len(keys) > 0 {
			return r.onTypes(rc, call, named, accepting, keys)
		}
	}
	members := make([]*Symbol, 0, len(accepting))
	for _, s := range accepting {
		if s.Type != "" {
			members = append(members, s)
		}
	}
	if len(members) > 0 {
		return members
	}
	return extensions(call, named)
}

// onTypes restricts candidates to the members of the given types and their
// ancestors, nearest first, falling back to extension methods.
func (r *SyntaxResolver) onTypes(rc *ResolutionContext, call CallSite, named, accepting []*Symbol, keys []string) []*Symbol {
	var tiers [][]string
	level := keys
	seen := make(map[string]bool)
	for len(level) > 0 {
		var tier, next []string
		for _, k := range level {
			if seen[k] {
				continue
			}
			seen[k] = true
			tier = append(tier, k)
			next = append(next, rc.Bases(k)...)
		}
		if len(tier) > 0 {
			tiers = append(tiers, tier)
		}
		level = next
	}
	if hit := firstTier(accepting, tiers); hit != nil {
		return hit
	}
	return extensions(call, named)
}

func (r *SyntaxResolver) resolveGo(rc *ResolutionContext, call CallSite, named []*Symbol) []*Symbol {
	accepting := sameLanguage(call, arity(call, named))
	var out []*Symbol

	switch call.ReceiverKind {
	case RecvNone:
		for _, s := range accepting {
			if s.Type == "" && s.Namespace == call.Namespace {
				out = append(out, s)
			}
		}
		return out
	case RecvTyped:
		for _, s := range accepting {
			if s.Type != "" && lastSegment(s.Type) == call.ReceiverType {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	case RecvName:
		if rc.IsGoPackage(call.ReceiverType) {
			for _, s := range accepting {
				if s.Type == "" && s.Package == call.ReceiverType {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	// interface values, embedded fields and chained calls: any method will do
	for _, s := range accepting {
		if s.Type != "" {
			out = append(out, s)
		}
	}
	return out
}

func arity(call CallSite, syms []*Symbol) []*Symbol {
	out := make([]*Symbol, 0, len(syms))
	for _, s := range syms {
		if s.Accepts(call.Args, call.Spread) {
			out = append(out, s)
		}
	}
	return out
}

func sameLanguage(call CallSite, syms []*Symbol) []*Symbol {
	out := syms[:0:0]
	for _, s := range syms {
		if s.Language == call.Language {
			out = append(out, s)
		}
	}
	return out
}

// visible drops private members of types the call is not nested in.
func visible(call CallSite, syms []*Symbol) []*Symbol {
	out := syms[:0:0]
	for _, s := range syms {
		if s.Private && !withinType(call.Scope, s.Type) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func withinType(scope, typ string) bool {
	return scope == typ || strings.HasPrefix(scope, typ+".")
}

// extensions returns C# extension methods callable as receiver.Name(args).
func extensions(call CallSite, named []*Symbol) []*Symbol {
	var out []*Symbol
	for _, s := range named {
		if s.Extension && s.Language == call.Language && s.Accepts(call.Args+1, call.Spread) {
			out = append(out, s)
		}
	}
	return out
}

// hierarchyTiers returns [scope], then each level of its ancestors.
func hierarchyTiers(rc *ResolutionContext, scope string) [][]string {
	if scope == "" {
		return nil
	}
	tiers := [][]string{{scope}}
	seen := map[string]bool{scope: true}
	level := []string{scope}
	for len(level) > 0 {
		var next []string
		for _, k := range level {
			for _, b := range rc.Bases(k) {
				if !seen[b] {
					seen[b] = true
					next = append(next, b)
				}
			}
		}
		if len(next) > 0 {
			tiers = append(tiers, next)
		}
		level = next
	}
	return tiers
}

// enclosingTiers is the lookup order of an unqualified call: the enclosing
// type and its ancestors, then each outer type and its ancestors.
func enclosingTiers(rc *ResolutionContext, scope string) [][]string {
	if scope == "" {
		return nil
	}
	tiers := hierarchyTiers(rc, scope)
	for _, outer := range rc.Outer(scope) {
		tiers = append(tiers, hierarchyTiers(rc, outer)...)
	}
	return tiers
}

func firstTier(syms []*Symbol, tiers [][]string) []*Symbol {
	for _, tier := range tiers {
		var hit []*Symbol
		for _, s := range syms {
			if containsString(tier, s.Type) {
				hit = append(hit, s)
			}
		}
		if len(hit) > 0 {
			return hit
		}
	}
	return nil
}
