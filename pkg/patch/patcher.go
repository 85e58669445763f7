// Package patch removes method declarations from source text, located by the
// byte span of something strictly inside them (usually the name).
package patch

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/panbanda/excise/pkg/parser"
	sitter "github.com/smacker/go-tree-sitter"
)

// Span is a half-open byte range [Start, End) into a file's current text.
type Span struct {
	Start int `json:"start" toon:"start"`
	End   int `json:"end" toon:"end"`

	// Name is the expected declaration name. Empty disables the check.
	Name string `json:"name,omitempty" toon:"name"`
}

// Removal describes one removed declaration. Start and End cover every byte
// taken out, including doc comments and line padding.
type Removal struct {
	Name  string `json:"name" toon:"name"`
	Kind  string `json:"kind" toon:"kind"`
	Start int    `json:"start" toon:"start"`
	End   int    `json:"end" toon:"end"`
	Line  int    `json:"line" toon:"line"`
}

// Result is the outcome of one removal attempt. Removed is nil when the text
// was left unchanged.
type Result struct {
	Text    []byte
	Removed *Removal
}

// Patcher removes declarations. It owns a parser and is not safe for
// concurrent use.
type Patcher struct {
	psr    *parser.Parser
	logger *slog.Logger
	path   string
}

// PatcherOption configures a Patcher.
type PatcherOption func(*Patcher)

// WithPatcherLogger sets the logger used for span mismatches.
func WithPatcherLogger(l *slog.Logger) PatcherOption {
	return func(p *Patcher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPath labels errors and log records with a file path.
func WithPath(path string) PatcherOption {
	return func(p *Patcher) {
		p.path = path
	}
}

// NewPatcher creates a Patcher. Call Close when done.
func NewPatcher(opts ...PatcherOption) *Patcher {
	p := &Patcher{
		psr:    parser.New(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close releases the parser.
func (p *Patcher) Close() {
	p.psr.Close()
}

func (p *Patcher) parse(ctx context.Context, src []byte, lang parser.Language) (*parser.ParseResult, error) {
	result, err := p.psr.Parse(ctx, src, lang, p.path)
	if err != nil {
		return nil, &ParseError{Path: p.path, Err: err}
	}
	if result.HasErrors() {
		result.Close()
		return nil, &ParseError{Path: p.path, Reason: "source contains syntax errors"}
	}
	return result, nil
}

// RemoveDeclarationAt removes the method-like declaration that is the
// innermost node strictly enclosing span. If that node is anything else, or
// its name differs from span.Name, the original text is returned with a
// *SpanMismatchError. Unparsable input, or a removal that would leave the
// text unparsable, yields the original text and a *ParseError.
func (p *Patcher) RemoveDeclarationAt(ctx context.Context, src []byte, lang parser.Language, span Span) (Result, error) {
	unchanged := Result{Text: src}

	d := parser.DialectFor(lang)
	if d == nil {
		return unchanged, &ParseError{Path: p.path, Err: parser.ErrUnsupportedLanguage}
	}

	tree, err := p.parse(ctx, src, lang)
	if err != nil {
		return unchanged, err
	}
	defer tree.Close()

	node := buildIndex(tree.Root(), src).innermost(span)
	if node == nil || !d.IsMethod(node.Type()) || !nameMatches(node, src, span.Name) {
		mismatch := &SpanMismatchError{Path: p.path, Span: span}
		if node != nil {
			mismatch.Kind = node.Type()
			mismatch.Name = parser.GetNodeText(node.ChildByFieldName("name"), src)
		}
		p.logger.Warn("unexpected node kind at span",
			"path", p.path,
			"start", span.Start,
			"end", span.End,
			"kind", mismatch.Kind,
			"name", mismatch.Name,
			"want", span.Name)
		return unchanged, mismatch
	}

	start, end := removalRange(node, src, d)
	out := make([]byte, 0, len(src)-(end-start))
	out = append(out, src[:start]...)
	out = append(out, src[end:]...)

	check, err := p.parse(ctx, out, lang)
	if err != nil {
		return unchanged, &ParseError{Path: p.path, Reason: "removal would leave syntax errors"}
	}
	check.Close()

	return Result{
		Text: out,
		Removed: &Removal{
			Name:  parser.GetNodeText(node.ChildByFieldName("name"), src),
			Kind:  node.Type(),
			Start: start,
			End:   end,
			Line:  parser.Line(node),
		},
	}, nil
}

func nameMatches(node *sitter.Node, src []byte, want string) bool {
	if want == "" {
		return true
	}
	return parser.GetNodeText(node.ChildByFieldName("name"), src) == want
}

// removalRange widens the declaration's byte range to the doc comments
// directly above it and, when it sits on lines of its own, to those whole
// lines.
func removalRange(node *sitter.Node, src []byte, d *parser.Dialect) (int, int) {
	start, end := int(node.StartByte()), int(node.EndByte())

	for prev := node.PrevSibling(); prev != nil && d.IsComment(prev.Type()); prev = prev.PrevSibling() {
		gap := src[prev.EndByte():start]
		if len(bytes.TrimSpace(gap)) != 0 || bytes.Count(gap, []byte("\n")) > 1 {
			break
		}
		if !onOwnLine(src, int(prev.StartByte())) {
			break
		}
		start = int(prev.StartByte())
	}

	lineStart := bytes.LastIndexByte(src[:start], '\n') + 1
	lineEnd := len(src)
	if i := bytes.IndexByte(src[end:], '\n'); i >= 0 {
		lineEnd = end + i
	}
	if !isBlank(src[lineStart:start]) || !isBlank(src[end:lineEnd]) {
		// shares a line with other code: take trailing padding only
		if start > 0 && isHorizontalSpace(src[start-1]) {
			for end < len(src) && isHorizontalSpace(src[end]) {
				end++
			}
		}
		return start, end
	}

	start = lineStart
	end = lineEnd
	if end < len(src) {
		end++ // newline
	}

	prevStart, prevText := previousLine(src, start)
	nextText := nextLine(src, end)
	switch {
	case nextText != nil && isBlank(nextText) && (start == 0 || isBlank(prevText) || bytes.HasSuffix(bytes.TrimSpace(prevText), []byte("{"))):
		end += len(nextText)
		if end < len(src) {
			end++
		}
	case start > 0 && isBlank(prevText) && (end == len(src) || bytes.HasPrefix(bytes.TrimSpace(nextText), []byte("}"))):
		start = prevStart
	}
	return start, end
}

// previousLine returns the start offset and text (without newline) of the
// line ending just before offset, which must be a line start.
func previousLine(src []byte, offset int) (int, []byte) {
	if offset == 0 {
		return 0, nil
	}
	s := bytes.LastIndexByte(src[:offset-1], '\n') + 1
	return s, src[s : offset-1]
}

// nextLine returns the text (without newline) of the line starting at
// offset, or nil at end of input.
func nextLine(src []byte, offset int) []byte {
	if offset >= len(src) {
		return nil
	}
	if i := bytes.IndexByte(src[offset:], '\n'); i >= 0 {
		return src[offset : offset+i]
	}
	return src[offset:]
}

func onOwnLine(src []byte, offset int) bool {
	lineStart := bytes.LastIndexByte(src[:offset], '\n') + 1
	return isBlank(src[lineStart:offset])
}

func isBlank(b []byte) bool {
	for _, c := range b {
		if !isHorizontalSpace(c) && c != '\r' {
			return false
		}
	}
	return true
}

func isHorizontalSpace(c byte) bool {
	return c == ' ' || c == '\t'
}
