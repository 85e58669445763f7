// Package refgraph builds a cross-file, cross-module reference graph of
// method-like declarations and their call sites, and reports the
// declarations nothing calls.
package refgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/panbanda/excise/internal/fileproc"
	"github.com/sourcegraph/conc/pool"
)

// ErrResolverFault wraps errors and panics raised by a resolver.
var ErrResolverFault = errors.New("resolver fault")

// Builder turns translation units into a Graph.
type Builder struct {
	resolver     Resolver
	logger       *slog.Logger
	workers      int
	conservative bool
	contextOpts  []ContextOption
}

// Option is a functional option for configuring Builder.
type Option func(*Builder)

// WithResolver replaces the default SyntaxResolver.
func WithResolver(r Resolver) Option {
	return func(b *Builder) {
		b.resolver = r
	}
}

// WithLogger sets the logger for dropped call sites and build summaries.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithWorkers caps resolution concurrency. <= 0 means 2x NumCPU.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		b.workers = n
	}
}

// WithConservative treats every candidate of an ambiguous call as used.
func WithConservative(on bool) Option {
	return func(b *Builder) {
		b.conservative = on
	}
}

// WithContextOptions forwards options to NewResolutionContext.
func WithContextOptions(opts ...ContextOption) Option {
	return func(b *Builder) {
		b.contextOpts = append(b.contextOpts, opts...)
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		resolver: NewSyntaxResolver(),
		logger:   slog.New(slog.DiscardHandler),
		workers:  fileproc.DefaultWorkers(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.workers <= 0 {
		b.workers = fileproc.DefaultWorkers()
	}
	return b
}

// outcome is the resolution result of one call site.
type outcome struct {
	target *Symbol
	err    error
}

// Build resolves every call site of every unit against one shared context
// and returns the reference graph. Resolution failures never abort the build;
// only cancellation of ctx does.
func (b *Builder) Build(ctx context.Context, units []*TranslationUnit) (*Graph, error) {
	rc := NewResolutionContext(units, b.contextOpts...)
	ordered := rc.Units()

	// Workers write only their own slot; the reduce below reads in unit order.
	results := make([][]outcome, len(ordered))
	p := pool.New().WithMaxGoroutines(b.workers).WithContext(ctx)
	for i := range ordered {
		calls := rc.Calls(i)
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out := make([]outcome, len(calls))
			for j := range calls {
				target, err := b.resolve(rc, calls[j])
				out[j] = outcome{target: target, err: err}
			}
			results[i] = out
			return nil
		})
	}
	waitErr := p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build cancelled: %w", err)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("build failed: %w", waitErr)
	}

	g := newGraph(rc, b.conservative)
	for i := range ordered {
		for j, call := range rc.Calls(i) {
			b.reduce(g, call, results[i][j])
		}
	}
	g.seal()
	g.stats.Units = len(ordered)
	g.stats.Declarations = len(rc.Symbols())
	for _, sym := range rc.Symbols() {
		if rc.PinReason(sym) != "" {
			g.stats.Pinned++
		}
	}

	b.logger.Info("reference graph built",
		"units", g.stats.Units,
		"declarations", g.stats.Declarations,
		"call_sites", g.stats.CallSites,
		"resolved", g.stats.Resolved,
		"unresolved", g.stats.Unresolved,
		"ambiguous", g.stats.Ambiguous,
		"faults", g.stats.Faults)
	return g, nil
}

// resolve calls the resolver, turning panics and foreign symbols into
// ErrResolverFault.
func (b *Builder) resolve(rc *ResolutionContext, call CallSite) (target *Symbol, err error) {
	defer func() {
		if r := recover(); r != nil {
			target, err = nil, fmt.Errorf("%w: panic: %v", ErrResolverFault, r)
		}
	}()

	target, err = b.resolver.Resolve(rc, call)
	if err != nil {
		return nil, err
	}
	if _, ok := rc.ID(target); !ok {
		return nil, fmt.Errorf("%w: symbol %v is not part of the resolution context", ErrResolverFault, target)
	}
	return target, nil
}

func (b *Builder) reduce(g *Graph, call CallSite, o outcome) {
	g.stats.CallSites++
	if o.err == nil {
		g.addEdge(Edge{Target: o.target, Call: call})
		g.stats.Resolved++
		return
	}

	var ambiguous *AmbiguousCallError
	switch {
	case errors.Is(o.err, ErrUnresolved):
		g.stats.Unresolved++
	case errors.As(o.err, &ambiguous):
		g.stats.Ambiguous++
		for _, c := range ambiguous.Candidates {
			if id, ok := g.rc.ID(c); ok {
				g.possible.Add(id)
			}
		}
	default:
		g.stats.Faults++
	}
	b.logger.Debug("call site dropped",
		"path", call.Path,
		"line", call.Line,
		"callee", call.Name,
		"error", o.err)
}
