package parser

import (
	"context"
	"errors"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
)

func TestNew(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("New() returned nil")
	}
	if p.parser == nil {
		t.Error("parser field is nil")
	}
	p.Close()
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want Language
	}{
		{"Program.cs", LangCSharp},
		{"src/App/Widget.CS", LangCSharp},
		{"Main.java", LangJava},
		{"main.go", LangGo},
		{"pkg/parser/parser.go", LangGo},

		{"App.csproj", LangUnknown},
		{"script.py", LangUnknown},
		{"README.md", LangUnknown},
		{"Makefile", LangUnknown},
		{"", LangUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := DetectLanguage(tt.path); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want Language
	}{
		{"csharp", LangCSharp},
		{"C#", LangCSharp},
		{" cs ", LangCSharp},
		{"Java", LangJava},
		{"go", LangGo},
		{"golang", LangGo},
		{"rust", LangUnknown},
		{"", LangUnknown},
	}

	for _, tt := range tests {
		if got := ParseLanguage(tt.in); got != tt.want {
			t.Errorf("ParseLanguage(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGetTreeSitterLanguage(t *testing.T) {
	for _, lang := range Languages {
		tsLang, err := GetTreeSitterLanguage(lang)
		if err != nil {
			t.Errorf("GetTreeSitterLanguage(%v) error: %v", lang, err)
		}
		if tsLang == nil {
			t.Errorf("GetTreeSitterLanguage(%v) returned nil", lang)
		}
		if DialectFor(lang) == nil {
			t.Errorf("DialectFor(%v) returned nil", lang)
		}
	}

	_, err := GetTreeSitterLanguage(LangUnknown)
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("GetTreeSitterLanguage(unknown) error = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		lang     Language
		source   string
		rootType string
	}{
		{"csharp", LangCSharp, "public class C { public void A() { } }", "compilation_unit"},
		{"java", LangJava, "class J { void a() { } }", "program"},
		{"go", LangGo, "package main\n\nfunc main() {}\n", "source_file"},
	}

	p := New()
	defer p.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Parse(context.Background(), []byte(tt.source), tt.lang, "test")
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			defer result.Close()

			if result.Language != tt.lang {
				t.Errorf("Language = %v, want %v", result.Language, tt.lang)
			}
			if result.Path != "test" {
				t.Errorf("Path = %q, want %q", result.Path, "test")
			}
			if got := result.Root().Type(); got != tt.rootType {
				t.Errorf("root type = %q, want %q", got, tt.rootType)
			}
			if result.HasErrors() {
				t.Error("HasErrors() = true for valid source")
			}
		})
	}
}

func TestParseUnsupported(t *testing.T) {
	p := New()
	defer p.Close()

	_, err := p.Parse(context.Background(), []byte("x = 1"), LangUnknown, "x.py")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("Parse() error = %v, want ErrUnsupportedLanguage", err)
	}
}

func TestHasErrors(t *testing.T) {
	p := New()
	defer p.Close()

	result, err := p.Parse(context.Background(), []byte("public class C { public void A( { }"), LangCSharp, "broken.cs")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	defer result.Close()

	if !result.HasErrors() {
		t.Error("HasErrors() = false for broken source")
	}
}

func TestParserReuseAcrossLanguages(t *testing.T) {
	p := New()
	defer p.Close()

	for _, tt := range []struct {
		lang   Language
		source string
	}{
		{LangGo, "package a\n"},
		{LangCSharp, "class C { }"},
		{LangGo, "package b\n"},
	} {
		result, err := p.Parse(context.Background(), []byte(tt.source), tt.lang, "")
		if err != nil {
			t.Fatalf("Parse(%v) error: %v", tt.lang, err)
		}
		if result.HasErrors() {
			t.Errorf("Parse(%v) produced errors", tt.lang)
		}
		result.Close()
	}
}

func TestWalkNamed(t *testing.T) {
	p := New()
	defer p.Close()

	source := []byte("public class C { public void A() { B(); } public void B() { } }")
	result, err := p.Parse(context.Background(), source, LangCSharp, "c.cs")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	defer result.Close()

	var methods []string
	WalkNamed(result.Root(), source, func(node *sitter.Node, src []byte) bool {
		if !node.IsNamed() {
			t.Errorf("visited anonymous node %q", node.Type())
		}
		if node.Type() == "method_declaration" {
			methods = append(methods, GetNodeText(node.ChildByFieldName("name"), src))
		}
		return true
	})

	if len(methods) != 2 || methods[0] != "A" || methods[1] != "B" {
		t.Errorf("methods = %v, want [A B]", methods)
	}
}

func TestWalkNamedSkipsChildren(t *testing.T) {
	p := New()
	defer p.Close()

	source := []byte("class J { void a() { b(); } void b() { } }")
	result, err := p.Parse(context.Background(), source, LangJava, "J.java")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	defer result.Close()

	calls := 0
	methods := 0
	WalkNamed(result.Root(), source, func(node *sitter.Node, _ []byte) bool {
		switch node.Type() {
		case "method_invocation":
			calls++
		case "method_declaration":
			methods++
			return false
		}
		return true
	})

	if methods != 2 {
		t.Errorf("methods = %d, want 2", methods)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 when method bodies are skipped", calls)
	}

	WalkNamed(nil, source, func(*sitter.Node, []byte) bool {
		t.Error("visitor called for nil node")
		return true
	})
}

func TestGetNodeText(t *testing.T) {
	p := New()
	defer p.Close()

	source := []byte("package main\n\nfunc hello() {}\n")
	result, err := p.Parse(context.Background(), source, LangGo, "main.go")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	defer result.Close()

	var fn *sitter.Node
	WalkNamed(result.Root(), source, func(node *sitter.Node, _ []byte) bool {
		if node.Type() == "function_declaration" {
			fn = node
			return false
		}
		return true
	})
	if fn == nil {
		t.Fatal("function_declaration not found")
	}

	if got := GetNodeText(fn.ChildByFieldName("name"), source); got != "hello" {
		t.Errorf("GetNodeText(name) = %q, want %q", got, "hello")
	}
	if got := Line(fn); got != 3 {
		t.Errorf("Line() = %d, want 3", got)
	}
	if got := GetNodeText(nil, source); got != "" {
		t.Errorf("GetNodeText(nil) = %q, want empty", got)
	}
	if got := GetNodeText(fn, source[:5]); got != "" {
		t.Errorf("GetNodeText(out of bounds) = %q, want empty", got)
	}
}

func TestDialects(t *testing.T) {
	tests := []struct {
		lang    Language
		method  string
		comment string
		other   string
	}{
		{LangCSharp, "method_declaration", "comment", "constructor_declaration"},
		{LangJava, "method_declaration", "block_comment", "constructor_declaration"},
		{LangGo, "function_declaration", "comment", "type_declaration"},
		{LangGo, "method_declaration", "comment", "var_declaration"},
	}

	for _, tt := range tests {
		d := DialectFor(tt.lang)
		if d == nil {
			t.Fatalf("DialectFor(%v) = nil", tt.lang)
		}
		if d.Language != tt.lang {
			t.Errorf("dialect language = %v, want %v", d.Language, tt.lang)
		}
		if !d.IsMethod(tt.method) {
			t.Errorf("%v: IsMethod(%q) = false", tt.lang, tt.method)
		}
		if d.IsMethod(tt.other) {
			t.Errorf("%v: IsMethod(%q) = true", tt.lang, tt.other)
		}
		if !d.IsComment(tt.comment) {
			t.Errorf("%v: IsComment(%q) = false", tt.lang, tt.comment)
		}
	}

	if DialectFor(LangUnknown) != nil {
		t.Error("DialectFor(unknown) should be nil")
	}
}
