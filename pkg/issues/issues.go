// Package issues reads ReSharper InspectCode XML reports into Issue records.
package issues

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// DefaultCategoryPrefix marks ReSharper's unused-member inspections.
const DefaultCategoryPrefix = "UnusedMember."

// ErrMalformedReport is matched by every MalformedReportError.
var ErrMalformedReport = errors.New("malformed report")

// MalformedReportError describes a report record that cannot be ingested.
type MalformedReportError struct {
	// Index is the zero-based position of the Issue record in the report,
	// or -1 when the document itself is unreadable.
	Index     int
	Attribute string
	Value     string
	Reason    string
	Err       error
}

func (e *MalformedReportError) Error() string {
	var b strings.Builder
	b.WriteString("malformed report")
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": issue #%d", e.Index)
	}
	if e.Attribute != "" {
		fmt.Fprintf(&b, ": attribute %s=%q", e.Attribute, e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *MalformedReportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMalformedReport.
func (e *MalformedReportError) Is(target error) bool {
	return target == ErrMalformedReport
}

// Issue is one inspection result. Start and End are zero-based byte offsets
// into the unmodified text of File, with Start < End.
type Issue struct {
	Category string `json:"category" toon:"category"`
	File     string `json:"file" toon:"file"`
	Start    int    `json:"start" toon:"start"`
	End      int    `json:"end" toon:"end"`
	Line     int    `json:"line" toon:"line"`
	Message  string `json:"message,omitempty" toon:"message"`
	Project  string `json:"project,omitempty" toon:"project"`
	Severity string `json:"severity,omitempty" toon:"severity"`
}

var quotedName = regexp.MustCompile(`'([^']+)'`)

// SymbolName returns the member name quoted in the message, as in
// "Method 'Foo' is never used", or "" when there is none.
func (i Issue) SymbolName() string {
	m := quotedName.FindStringSubmatch(i.Message)
	if m == nil {
		return ""
	}
	name := m[1]
	// "Method 'Outer.Foo' ..." names the member by its last segment
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		name = name[dot+1:]
	}
	return name
}

// Option configures Parse.
type Option func(*options)

type options struct {
	onMalformed func(*MalformedReportError)
}

// WithSkipMalformed makes Parse skip malformed records instead of failing.
// fn, if non-nil, receives each skipped record's error.
func WithSkipMalformed(fn func(*MalformedReportError)) Option {
	return func(o *options) {
		if fn == nil {
			fn = func(*MalformedReportError) {}
		}
		o.onMalformed = fn
	}
}

// ParseString parses a report held in memory.
func ParseString(report, basePath string, opts ...Option) ([]Issue, error) {
	return Parse(strings.NewReader(report), basePath, opts...)
}

// Parse reads Report/Issues/<group>/Issue records in report order. File
// attributes are resolved against basePath. Categories are not filtered.
func Parse(r io.Reader, basePath string, opts ...Option) ([]Issue, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dec := xml.NewDecoder(skipBOM(r))
	dec.CharsetReader = charsetReader

	var (
		stack      []string
		projects   []string
		issues     []Issue
		severities = make(map[string]string)
		index      int
		sawRoot    bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MalformedReportError{Index: -1, Reason: "invalid XML", Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if len(stack) == 0 {
				if name != "Report" {
					return nil, &MalformedReportError{Index: -1, Reason: fmt.Sprintf("root element is <%s>, want <Report>", name)}
				}
				sawRoot = true
			}
			stack = append(stack, name)
			projects = append(projects, attr(t, "Name"))

			switch {
			case name == "IssueType" && under(stack, "IssueTypes"):
				if id := attr(t, "Id"); id != "" {
					severities[id] = attr(t, "Severity")
				}
			case name == "Issue" && under(stack, "Issues"):
				issue, merr := decodeIssue(t, index, basePath)
				index++
				if merr != nil {
					if o.onMalformed == nil {
						return nil, merr
					}
					o.onMalformed(merr)
					continue
				}
				issue.Project = nearestGroup(stack, projects)
				issues = append(issues, issue)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
				projects = projects[:len(projects)-1]
			}
		}
	}

	if !sawRoot {
		return nil, &MalformedReportError{Index: -1, Reason: "empty document"}
	}

	for i := range issues {
		issues[i].Severity = severities[issues[i].Category]
	}
	return issues, nil
}

// under reports whether the element on top of stack sits below Report/parent.
func under(stack []string, parent string) bool {
	return len(stack) >= 3 && stack[0] == "Report" && stack[1] == parent
}

// nearestGroup returns the Name of the closest enclosing group element.
func nearestGroup(stack, names []string) string {
	for i := len(stack) - 2; i >= 2; i-- {
		if names[i] != "" {
			return names[i]
		}
	}
	return ""
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func lookup(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func decodeIssue(el xml.StartElement, index int, basePath string) (Issue, *MalformedReportError) {
	missing := func(name string) *MalformedReportError {
		return &MalformedReportError{Index: index, Attribute: name, Reason: "required attribute missing"}
	}

	category, ok := lookup(el, "TypeId")
	if !ok || category == "" {
		return Issue{}, missing("TypeId")
	}
	file, ok := lookup(el, "File")
	if !ok || file == "" {
		return Issue{}, missing("File")
	}
	offset, ok := lookup(el, "Offset")
	if !ok {
		return Issue{}, missing("Offset")
	}
	lineText, ok := lookup(el, "Line")
	if !ok {
		return Issue{}, missing("Line")
	}

	start, end, merr := parseOffset(offset)
	if merr != nil {
		merr.Index = index
		return Issue{}, merr
	}
	line, err := strconv.Atoi(strings.TrimSpace(lineText))
	if err != nil {
		return Issue{}, &MalformedReportError{Index: index, Attribute: "Line", Value: lineText, Reason: "not an integer", Err: err}
	}

	message, _ := lookup(el, "Message")
	return Issue{
		Category: category,
		File:     resolvePath(basePath, file),
		Start:    start,
		End:      end,
		Line:     line,
		Message:  message,
	}, nil
}

// parseOffset splits "<start>-<end>" into two integers with 0 <= start < end.
func parseOffset(v string) (int, int, *MalformedReportError) {
	bad := func(reason string, err error) *MalformedReportError {
		return &MalformedReportError{Attribute: "Offset", Value: v, Reason: reason, Err: err}
	}

	parts := strings.Split(v, "-")
	if len(parts) != 2 {
		return 0, 0, bad("want <start>-<end>", nil)
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, bad("start is not an integer", err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, bad("end is not an integer", err)
	}
	if start < 0 || start >= end {
		return 0, 0, bad("want 0 <= start < end", nil)
	}
	return start, end, nil
}

// resolvePath joins a report path onto basePath. Reports written on Windows
// use backslashes regardless of the reading platform.
func resolvePath(basePath, file string) string {
	file = filepath.FromSlash(strings.ReplaceAll(file, `\`, "/"))
	if filepath.IsAbs(file) || basePath == "" {
		return filepath.Clean(file)
	}
	return filepath.Join(basePath, file)
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	return br
}

// charsetReader decodes reports saved in a legacy code page, which InspectCode
// does when the system default encoding is not UTF-8.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
