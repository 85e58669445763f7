package refgraph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/panbanda/excise/internal/digest"
	"github.com/panbanda/excise/pkg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseUnit(t *testing.T, module, path, src string) *TranslationUnit {
	t.Helper()
	psr := parser.New()
	defer psr.Close()
	unit, err := ParseUnit(context.Background(), psr, module, path, []byte(src))
	require.NoError(t, err)
	return unit
}

func build(t *testing.T, units []*TranslationUnit, opts ...Option) *Graph {
	t.Helper()
	g, err := NewBuilder(opts...).Build(context.Background(), units)
	require.NoError(t, err)
	return g
}

func names(syms []*Symbol) []string {
	out := make([]string, 0, len(syms))
	for _, s := range syms {
		out = append(out, s.Name)
	}
	return out
}

func findSymbol(t *testing.T, g *Graph, name string, params int) *Symbol {
	t.Helper()
	for _, s := range g.Symbols() {
		if s.Name == name && s.Params == params {
			return s
		}
	}
	t.Fatalf("symbol %s/%d not found", name, params)
	return nil
}

func TestBuild_SingleClass(t *testing.T) {
	src := "public class C{public void A(){B();}public void B(){}}"
	g := build(t, []*TranslationUnit{parseUnit(t, "app", "C.cs", src)})

	assert.Equal(t, []string{"A"}, names(g.Unused()))

	a := findSymbol(t, g, "A", 0)
	b := findSymbol(t, g, "B", 0)
	assert.Equal(t, Span{Start: 15, End: 36}, a.Span)
	assert.Equal(t, "C", a.Type)
	assert.False(t, g.IsUsed(a))
	assert.True(t, g.IsUsed(b))

	callers := g.Callers(b)
	require.Len(t, callers, 1)
	assert.Same(t, a, callers[0].Caller)
	assert.Equal(t, "C.cs", callers[0].Path)
	assert.Empty(t, g.Callers(a))
}

func TestBuild_CrossModule(t *testing.T) {
	lib := parseUnit(t, "lib", "lib/Util.cs", `
namespace Lib
{
    public class Util
    {
        public static int Twice(int x) { return x * 2; }
        public static int Thrice(int x) { return x * 3; }
    }
}`)
	app := parseUnit(t, "app", "app/Program.cs", `
namespace App
{
    public class Program
    {
        public static void Main()
        {
            Lib.Util.Twice(2);
        }
    }
}`)

	g := build(t, []*TranslationUnit{app, lib})

	assert.Equal(t, []string{"Thrice"}, names(g.Unused()))

	twice := findSymbol(t, g, "Twice", 1)
	assert.Equal(t, "lib", twice.Module)
	assert.Equal(t, "Lib.Util", twice.Type)
	callers := g.Callers(twice)
	require.Len(t, callers, 1)
	assert.Equal(t, "app", callers[0].Module)

	main := findSymbol(t, g, "Main", 0)
	assert.Equal(t, "entry point", main.Pinned)
}

func TestBuild_OverloadsByArity(t *testing.T) {
	src := `
class K
{
    void F(int a) { }
    void F(int a, int b) { }
    void G() { F(1); }
}`
	g := build(t, []*TranslationUnit{parseUnit(t, "m", "K.cs", src)})

	f1 := findSymbol(t, g, "F", 1)
	f2 := findSymbol(t, g, "F", 2)
	assert.NotSame(t, f1, f2)
	assert.True(t, g.IsUsed(f1))
	assert.False(t, g.IsUsed(f2))
	assert.ElementsMatch(t, []string{"F", "G"}, names(g.Unused()))
}

func TestBuild_OptionalAndParamsArguments(t *testing.T) {
	src := `
class O
{
    void Opt(int a, int b = 2) { }
    void Many(params int[] xs) { }
    void Run() { Opt(1); Many(1, 2, 3); }
}`
	g := build(t, []*TranslationUnit{parseUnit(t, "m", "O.cs", src)})

	opt := findSymbol(t, g, "Opt", 2)
	assert.Equal(t, 1, opt.MinParams)
	many := findSymbol(t, g, "Many", 1)
	assert.True(t, many.Variadic)
	assert.Equal(t, []string{"Run"}, names(g.Unused()))
}

func TestBuild_PartialClassAcrossFiles(t *testing.T) {
	a := parseUnit(t, "m", "P.a.cs", `public partial class P { public void X() { Y(); } }`)
	b := parseUnit(t, "m", "P.b.cs", `public partial class P { public void Y() { } public void Z() { } }`)

	g := build(t, []*TranslationUnit{a, b})

	assert.Equal(t, []string{"X", "Z"}, names(g.Unused()))
	assert.True(t, g.IsUsed(findSymbol(t, g, "Y", 0)))
}

func TestBuild_Java(t *testing.T) {
	src := `
package acme;

class J {
    void a() { b(); }
    void b() { }
    void c() { }
    @Override
    public String toString() { return ""; }
    public static void main(String[] args) { new J().a(); }
}`
	g := build(t, []*TranslationUnit{parseUnit(t, "m", "acme/J.java", src)})

	assert.Equal(t, []string{"c"}, names(g.Unused()))
	assert.Equal(t, "override", findSymbol(t, g, "toString", 0).Pinned)
	assert.Equal(t, "acme.J", findSymbol(t, g, "a", 0).Type)
}

func TestBuild_Go(t *testing.T) {
	src := `package p

type T struct{}

func helper() {}

func used() {}

func (t *T) M() { used() }

func init() {
	var t T
	t.M()
}
`
	g := build(t, []*TranslationUnit{parseUnit(t, "m", "p/p.go", src)})

	assert.Equal(t, []string{"helper"}, names(g.Unused()))
	assert.Equal(t, "entry point", findSymbol(t, g, "init", 0).Pinned)
}

func TestBuild_ResolverPanicDoesNotAbort(t *testing.T) {
	src := "public class C{public void A(){B();}public void B(){}}"
	boom := ResolverFunc(func(*ResolutionContext, CallSite) (*Symbol, error) {
		panic("boom")
	})

	g := build(t, []*TranslationUnit{parseUnit(t, "m", "C.cs", src)}, WithResolver(boom))

	assert.Equal(t, 1, g.Stats().Faults)
	assert.Equal(t, 0, g.Stats().Resolved)
	assert.Equal(t, []string{"A", "B"}, names(g.Unused()))
}

func TestBuild_ForeignSymbolIsFault(t *testing.T) {
	src := "public class C{public void A(){B();}public void B(){}}"
	stranger := &Symbol{Name: "B"}
	r := ResolverFunc(func(*ResolutionContext, CallSite) (*Symbol, error) {
		return stranger, nil
	})

	g := build(t, []*TranslationUnit{parseUnit(t, "m", "C.cs", src)}, WithResolver(r))

	assert.Equal(t, 1, g.Stats().Faults)
	assert.Nil(t, g.Callers(stranger))
}

func TestBuild_AmbiguousCall(t *testing.T) {
	src := `
class A { public void Run() { } }
class B { public void Run() { } }
class Host
{
    object Get() { return null; }
    void Go() { Get().Run(); }
}`
	unit := func() []*TranslationUnit {
		return []*TranslationUnit{parseUnit(t, "m", "amb.cs", src)}
	}

	strict := build(t, unit())
	assert.Equal(t, 1, strict.Stats().Ambiguous)
	assert.ElementsMatch(t, []string{"Run", "Run", "Go"}, names(strict.Unused()))

	conservative := build(t, unit(), WithConservative(true))
	assert.Equal(t, []string{"Go"}, names(conservative.Unused()))
}

func TestBuild_ValueReferencePins(t *testing.T) {
	src := `
class V
{
    void Go() { System.Action a = Target; a(); }
    void Target() { }
}`
	g := build(t, []*TranslationUnit{parseUnit(t, "m", "V.cs", src)},
		WithContextOptions(WithValueReferences()))
	target := findSymbol(t, g, "Target", 0)
	assert.Equal(t, "referenced by name", g.PinReason(target))
	assert.Empty(t, target.Pinned, "context pins stay out of the symbol")
	assert.Equal(t, []string{"Go"}, names(g.Unused()))

	g = build(t, []*TranslationUnit{parseUnit(t, "m", "V.cs", src)})
	assert.Equal(t, []string{"Go", "Target"}, names(g.Unused()))

	g = build(t, []*TranslationUnit{parseUnit(t, "m", "V.cs", src)},
		WithContextOptions(WithValueReferences(), WithoutValueReferences()))
	assert.Equal(t, []string{"Go", "Target"}, names(g.Unused()))
}

func TestBuild_FieldSharingMethodName(t *testing.T) {
	reads := `
class Person {
    private String name;
    Person(String n) { this.name = n; }
    String name() { return name; }
    void unusedHelper() { }
}`
	g := build(t, []*TranslationUnit{parseUnit(t, "m", "Person.java", reads)})
	name := findSymbol(t, g, "name", 0)
	assert.Empty(t, g.Callers(name))
	assert.Empty(t, g.PinReason(name))
	assert.Equal(t, []string{"name", "unusedHelper"}, names(g.Unused()))

	// A bare read of the field is indistinguishable from a method reference.
	g = build(t, []*TranslationUnit{parseUnit(t, "m", "Person.java", reads)},
		WithContextOptions(WithValueReferences()))
	assert.Equal(t, []string{"unusedHelper"}, names(g.Unused()))

	declaresOnly := `
class Person {
    private String name;
    Person(String name, String n) { this.name = n; }
    String name() { return this.name; }
    void unusedHelper() { String name = "x"; }
}`
	g = build(t, []*TranslationUnit{parseUnit(t, "m", "Person.java", declaresOnly)},
		WithContextOptions(WithValueReferences()))
	assert.Equal(t, []string{"name", "unusedHelper"}, names(g.Unused()))
}

func TestBuild_InterfaceDispatch(t *testing.T) {
	src := `
interface IShape { double Area(); }
class Square : IShape
{
    public double Area() { return 1; }
    public double Side() { return 1; }
}`
	g := build(t, []*TranslationUnit{parseUnit(t, "m", "shape.cs", src)})

	assert.Equal(t, "interface member", findSymbol(t, g, "Area", 0).Pinned)
	var impl *Symbol
	for _, s := range g.Symbols() {
		if s.Name == "Area" && s.Type == "Square" {
			impl = s
		}
	}
	require.NotNil(t, impl)
	assert.Equal(t, "implements IShape.Area", g.PinReason(impl))
	assert.Empty(t, impl.Pinned)
	assert.Equal(t, []string{"Side"}, names(g.Unused()))
}

func TestUnusedTransitive(t *testing.T) {
	src := `
class T
{
    public static void Main() { A(); }
    static void A() { }
    static void B() { C(); }
    static void C() { B(); }
    static void D() { D(); }
}`
	g := build(t, []*TranslationUnit{parseUnit(t, "m", "T.cs", src)})

	assert.Empty(t, g.Unused())
	assert.Equal(t, []string{"B", "C", "D"}, names(g.UnusedTransitive()))
}

func TestBuild_Deterministic(t *testing.T) {
	sources := map[string]string{
		"a/One.cs":   "class One { void A() { } void B() { } }",
		"b/Two.cs":   "class Two { void C() { new One().A(); } }",
		"c/Three.cs": "class Three { void D() { } }",
	}
	paths := make([]string, 0, len(sources))
	for p := range sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	forward := make([]*TranslationUnit, 0, len(paths))
	for _, p := range paths {
		forward = append(forward, parseUnit(t, "m", p, sources[p]))
	}
	backward := make([]*TranslationUnit, 0, len(paths))
	for i := len(paths) - 1; i >= 0; i-- {
		backward = append(backward, parseUnit(t, "m", paths[i], sources[paths[i]]))
	}

	g1 := build(t, forward, WithWorkers(1))
	g2 := build(t, backward, WithWorkers(8))

	assert.Equal(t, []string{"B", "C", "D"}, names(g1.Unused()))
	assert.Equal(t, names(g1.Unused()), names(g2.Unused()))
	for i, s := range g1.Symbols() {
		id, ok := g1.Context().ID(s)
		require.True(t, ok)
		assert.Equal(t, uint32(i), id)
		assert.Equal(t, s.Path, g2.Symbols()[i].Path)
		assert.Equal(t, s.Span, g2.Symbols()[i].Span)
	}
}

func TestBuild_UnitsSharedBetweenBuilds(t *testing.T) {
	a := parseUnit(t, "m", "a/A.cs", "class A { public void X() { } }")
	b := parseUnit(t, "m", "b/B.cs", "class B { void Run() { new A().X(); } }")
	z := parseUnit(t, "m", "0/Z.cs", "class Z { void Y() { } void W() { Y(); } }")

	decls := slices.Clone(a.Declarations)
	calls := slices.Clone(z.Calls)

	g1 := build(t, []*TranslationUnit{a, b})
	x := findSymbol(t, g1, "X", 0)
	require.Len(t, g1.Callers(x), 1)
	require.True(t, g1.IsUsed(x))

	g2 := build(t, []*TranslationUnit{z, a})
	assert.Same(t, x, findSymbol(t, g2, "X", 0))
	assert.False(t, g2.IsUsed(x))
	assert.ElementsMatch(t, []string{"W", "X"}, names(g2.Unused()))

	assert.Len(t, g1.Callers(x), 1, "a later build must not disturb an earlier graph")
	assert.True(t, g1.IsUsed(x))
	assert.Equal(t, []string{"Run"}, names(g1.Unused()))

	id1, ok := g1.Context().ID(x)
	require.True(t, ok)
	id2, ok := g2.Context().ID(x)
	require.True(t, ok)
	assert.Equal(t, uint32(0), id1)
	assert.Equal(t, uint32(2), id2)

	assert.Equal(t, decls, a.Declarations)
	assert.Equal(t, calls, z.Calls)
	assert.Nil(t, g1.Callers(findSymbol(t, g2, "Y", 0)), "symbols of other builds are foreign")
}

func TestBuild_ConcurrentBuildsOverSharedUnits(t *testing.T) {
	units := []*TranslationUnit{
		parseUnit(t, "m", "C.cs", "public class C{public void A(){B();}public void B(){}}"),
		parseUnit(t, "m", "D.cs", "class D : I { public void Run() { } } interface I { void Run(); }"),
	}

	var wg sync.WaitGroup
	graphs := make([]*Graph, 8)
	for i := range graphs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := NewBuilder(WithContextOptions(WithValueReferences())).Build(context.Background(), units)
			if err == nil {
				graphs[i] = g
			}
		}()
	}
	wg.Wait()

	for _, g := range graphs {
		require.NotNil(t, g)
		assert.Equal(t, []string{"A"}, names(g.Unused()))
	}
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder().Build(ctx, []*TranslationUnit{
		parseUnit(t, "m", "C.cs", "class C { void A() { } }"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoadUnits(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "Good.cs")
	big := filepath.Join(dir, "Big.cs")
	require.NoError(t, os.WriteFile(good, []byte("class G { void M() { } }"), 0o644))
	require.NoError(t, os.WriteFile(big, []byte("class B { void M() { } void N() { } }"), 0o644))

	units, errs := LoadUnits(context.Background(), []SourceFile{
		{Path: good, Module: "m1"},
		{Path: big, Module: "m1"},
		{Path: filepath.Join(dir, "missing.cs"), Module: "m1"},
	}, LoadOptions{MaxFileSize: 30})

	require.Len(t, units, 1)
	assert.Equal(t, good, units[0].Path)
	assert.Equal(t, "m1", units[0].Module)
	assert.Equal(t, digest.Bytes([]byte("class G { void M() { } }")), units[0].Fingerprint)
	require.Len(t, units[0].Declarations, 1)

	require.NotNil(t, errs)
	assert.Len(t, errs.Errors, 2)
	assert.True(t, errors.Is(errs, ErrFileTooLarge))
}

func TestParseUnit_Unsupported(t *testing.T) {
	psr := parser.New()
	defer psr.Close()
	_, err := ParseUnit(context.Background(), psr, "m", "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, parser.ErrUnsupportedLanguage)
}
