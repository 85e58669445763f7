package refgraph

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/panbanda/excise/pkg/parser"
	sitter "github.com/smacker/go-tree-sitter"
)

// typeScope is an open type declaration during the walk.
type typeScope struct {
	key    string
	fields map[string]string
	bases  []string
	iface  bool
}

// extractor performs the single AST walk that enumerates a unit's
// declarations, call sites and value references.
type extractor struct {
	unit *TranslationUnit
	d    *parser.Dialect
	src  []byte

	ns     string
	types  []typeScope
	caller *Symbol
	locals map[string]string

	// start offsets of identifier nodes that name a declaration or a callee
	consumed map[uint32]bool
	refs     map[string]bool
}

func newExtractor(unit *TranslationUnit, d *parser.Dialect) *extractor {
	e := &extractor{
		unit:     unit,
		d:        d,
		src:      unit.Source,
		consumed: make(map[uint32]bool),
		refs:     make(map[string]bool),
	}
	if d.Language == parser.LangGo {
		e.ns = unit.Module + ":" + filepath.ToSlash(filepath.Dir(unit.Path))
	}
	return e
}

// run walks root and returns the sorted value references of the unit.
func (e *extractor) run(root *sitter.Node) []string {
	e.walk(root)
	e.collectValueRefs(root)

	refs := make([]string, 0, len(e.refs))
	for name := range e.refs {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

func (e *extractor) text(n *sitter.Node) string {
	return parser.GetNodeText(n, e.src)
}

func spanOf(n *sitter.Node) Span {
	return Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func (e *extractor) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	kind := n.Type()
	switch {
	case e.d.Namespaces[kind]:
		e.enterNamespace(n, kind)
		return
	case e.d.Types[kind]:
		e.enterType(n, kind)
		return
	case e.d.Methods[kind]:
		e.enterMethod(n, kind)
		return
	case e.d.Calls[kind]:
		e.addCall(n)
	default:
		if e.locals != nil {
			e.trackLocals(n, kind)
		}
	}
	e.walkChildren(n)
}

func (e *extractor) walkChildren(n *sitter.Node) {
	for i := range int(n.NamedChildCount()) {
		e.walk(n.NamedChild(i))
	}
}

func (e *extractor) enterNamespace(n *sitter.Node, kind string) {
	switch e.d.Language {
	case parser.LangCSharp:
		prev := e.ns
		e.ns = joinName(prev, e.text(n.ChildByFieldName("name")))
		e.walkChildren(n)
		// a file-scoped namespace covers the rest of the file
		if kind == "namespace_declaration" {
			e.ns = prev
		}
	case parser.LangJava:
		for i := range int(n.NamedChildCount()) {
			c := n.NamedChild(i)
			if c.Type() == "scoped_identifier" || c.Type() == "identifier" {
				e.ns = e.text(c)
				e.unit.Package = e.ns
			}
		}
	case parser.LangGo:
		if id := firstNamedOfType(n, "package_identifier"); id != nil {
			e.unit.Package = e.text(id)
		}
	}
}

func (e *extractor) enterType(n *sitter.Node, kind string) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		e.walkChildren(n)
		return
	}
	e.consumed[nameNode.StartByte()] = true

	name := e.text(nameNode)
	key := joinName(e.ns, name)
	if len(e.types) > 0 {
		key = e.types[len(e.types)-1].key + "." + name
	}

	scope := typeScope{
		key:    key,
		fields: e.collectFields(n),
		bases:  e.baseTypes(n),
		iface:  e.d.Interfaces[kind],
	}
	e.unit.Types = append(e.unit.Types, TypeDecl{
		Key:       key,
		Name:      name,
		Bases:     scope.bases,
		Interface: scope.iface,
	})

	savedCaller, savedLocals := e.caller, e.locals
	e.caller, e.locals = nil, nil
	e.types = append(e.types, scope)

	e.walkChildren(n)

	e.types = e.types[:len(e.types)-1]
	e.caller, e.locals = savedCaller, savedLocals
}

func (e *extractor) currentType() *typeScope {
	if len(e.types) == 0 {
		return nil
	}
	return &e.types[len(e.types)-1]
}

func (e *extractor) enterMethod(n *sitter.Node, kind string) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		e.walkChildren(n)
		return
	}
	e.consumed[nameNode.StartByte()] = true

	sym := &Symbol{
		Name:      e.text(nameNode),
		Kind:      kind,
		Namespace: e.ns,
		Package:   e.unit.Package,
		Module:    e.unit.Module,
		Path:      e.unit.Path,
		Line:      parser.Line(n),
		Span:      spanOf(n),
		NameSpan:  spanOf(nameNode),
		Language:  e.unit.Language,
	}
	top := e.currentType()
	if top != nil {
		sym.Type = top.key
	}

	locals := make(map[string]string)
	if e.d.Language == parser.LangGo && kind == "method_declaration" {
		if recvName, recvType := e.goReceiver(n); recvType != "" {
			sym.Type = joinName(e.ns, recvType)
			if recvName != "" {
				locals[recvName] = recvType
			}
		}
	}
	e.countParams(n, sym, locals)

	mods := e.modifiers(n)
	sym.Private = mods["private"]
	sym.Pinned = e.pinReason(n, sym, mods, top)

	e.unit.Declarations = append(e.unit.Declarations, sym)

	savedCaller, savedLocals := e.caller, e.locals
	e.caller, e.locals = sym, locals
	e.walkChildren(n)
	e.caller, e.locals = savedCaller, savedLocals
}

// goReceiver returns the receiver variable and its base type name.
func (e *extractor) goReceiver(n *sitter.Node) (name, typ string) {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return "", ""
	}
	decl := firstNamedOfType(recv, "parameter_declaration")
	if decl == nil {
		return "", ""
	}
	if id := decl.ChildByFieldName("name"); id != nil {
		name = e.text(id)
	}
	return name, simpleTypeName(e.text(decl.ChildByFieldName("type")))
}

func (e *extractor) countParams(n *sitter.Node, sym *Symbol, locals map[string]string) {
	list := n.ChildByFieldName("parameters")
	if list == nil {
		return
	}
	for i := range int(list.NamedChildCount()) {
		p := list.NamedChild(i)
		switch p.Type() {
		case "parameter", "parameter_array":
			// C#
			decl := stripAttributes(e.text(p))
			variadic := p.Type() == "parameter_array" || hasLeadingWord(decl, "params")
			optional := firstNamedOfType(p, "equals_value_clause") != nil || strings.Contains(decl, "=")
			if sym.Params == 0 && hasLeadingWord(decl, "this") {
				sym.Extension = true
			}
			sym.Params++
			switch {
			case variadic:
				sym.Variadic = true
			case !optional:
				sym.MinParams++
			}
			e.recordLocal(locals, p.ChildByFieldName("name"), p.ChildByFieldName("type"))
		case "formal_parameter":
			sym.Params++
			sym.MinParams++
			e.recordLocal(locals, p.ChildByFieldName("name"), p.ChildByFieldName("type"))
		case "spread_parameter", "variadic_parameter_declaration":
			sym.Params++
			sym.Variadic = true
		case "parameter_declaration":
			// Go: "a, b int" declares two parameters
			names := 0
			typ := p.ChildByFieldName("type")
			for j := range int(p.NamedChildCount()) {
				c := p.NamedChild(j)
				if c.Type() == "identifier" {
					names++
					e.recordLocal(locals, c, typ)
				}
			}
			if names == 0 {
				names = 1
			}
			sym.Params += names
			sym.MinParams += names
		}
	}
}

func (e *extractor) recordLocal(locals map[string]string, name, typ *sitter.Node) {
	if name == nil || typ == nil {
		return
	}
	if t := simpleTypeName(e.text(typ)); t != "" {
		locals[e.text(name)] = t
	}
}

// csharpModifierKeywords are the C# modifiers that may appear as anonymous
// tokens depending on the grammar version.
var csharpModifierKeywords = map[string]bool{
	"public": true, "private": true, "protected": true, "internal": true,
	"static": true, "virtual": true, "override": true, "abstract": true,
	"sealed": true, "extern": true, "partial": true, "async": true,
	"new": true, "unsafe": true, "readonly": true,
}

// modifiers collects lower-cased modifier keywords plus "@Name" entries for
// attributes and annotations.
func (e *extractor) modifiers(n *sitter.Node) map[string]bool {
	mods := make(map[string]bool)
	for i := range int(n.ChildCount()) {
		c := n.Child(i)
		switch c.Type() {
		case "modifier":
			for _, w := range strings.Fields(e.text(c)) {
				mods[strings.ToLower(w)] = true
			}
		case "modifiers":
			// Java
			for j := range int(c.ChildCount()) {
				m := c.Child(j)
				switch m.Type() {
				case "marker_annotation", "annotation":
					mods["@"+simpleTypeName(e.text(m.ChildByFieldName("name")))] = true
				default:
					mods[strings.ToLower(e.text(m))] = true
				}
			}
		case "attribute_list":
			for j := range int(c.NamedChildCount()) {
				a := c.NamedChild(j)
				if a.Type() != "attribute" {
					continue
				}
				name := simpleTypeName(e.text(a.ChildByFieldName("name")))
				mods["@"+strings.TrimSuffix(name, "Attribute")] = true
			}
		default:
			if !c.IsNamed() && csharpModifierKeywords[c.Type()] {
				mods[c.Type()] = true
			}
		}
	}
	return mods
}

// neutralAnnotations never make a declaration reachable by reflection.
var neutralAnnotations = map[string]bool{
	"@Obsolete": true, "@Deprecated": true, "@SuppressWarnings": true,
	"@MethodImpl": true, "@DebuggerStepThrough": true, "@DebuggerHidden": true,
	"@Pure": true, "@SafeVarargs": true,
}

var testAnnotations = map[string]bool{
	"@Test": true, "@TestMethod": true, "@DataTestMethod": true, "@TestCase": true,
	"@TestCaseSource": true, "@Fact": true, "@Theory": true, "@SetUp": true,
	"@TearDown": true, "@OneTimeSetUp": true, "@OneTimeTearDown": true,
	"@TestInitialize": true, "@TestCleanup": true, "@ParameterizedTest": true,
	"@BeforeEach": true, "@AfterEach": true, "@BeforeAll": true, "@AfterAll": true,
	"@Before": true, "@After": true, "@Benchmark": true,
}

// wellKnown lists members commonly invoked through framework interfaces
// outside the analyzed sources.
var wellKnown = map[parser.Language]map[string]bool{
	parser.LangCSharp: {
		"Dispose": true, "DisposeAsync": true, "GetEnumerator": true, "Equals": true,
		"GetHashCode": true, "ToString": true, "CompareTo": true, "Clone": true,
		"MoveNext": true, "Reset": true, "OnNext": true, "OnError": true, "OnCompleted": true,
	},
	parser.LangJava: {
		"equals": true, "hashCode": true, "toString": true, "compareTo": true,
		"compare": true, "run": true, "call": true, "close": true, "iterator": true,
		"accept": true, "apply": true, "test": true, "get": true, "clone": true,
	},
	parser.LangGo: {
		"String": true, "GoString": true, "Error": true, "Format": true, "Unwrap": true,
		"Is": true, "As": true, "MarshalJSON": true, "UnmarshalJSON": true,
		"MarshalText": true, "UnmarshalText": true, "MarshalYAML": true,
		"UnmarshalYAML": true, "MarshalBinary": true, "UnmarshalBinary": true,
		"ServeHTTP": true, "Read": true, "Write": true, "Close": true, "Len": true,
		"Less": true, "Swap": true, "Scan": true, "Value": true,
	},
}

var goTestFunc = regexp.MustCompile(`^(Test|Benchmark|Example|Fuzz)([A-Z_]|$)`)

func (e *extractor) pinReason(n *sitter.Node, sym *Symbol, mods map[string]bool, top *typeScope) string {
	if top != nil && top.iface {
		return "interface member"
	}
	switch {
	case mods["override"], mods["@Override"]:
		return "override"
	case mods["abstract"]:
		return "abstract"
	case mods["extern"], mods["native"]:
		return "extern"
	}
	if n.ChildByFieldName("body") == nil && sym.Language != parser.LangGo {
		return "declaration without body"
	}
	for m := range mods {
		if testAnnotations[m] {
			return "test"
		}
	}
	annotated := make([]string, 0)
	for m := range mods {
		if strings.HasPrefix(m, "@") && !neutralAnnotations[m] {
			annotated = append(annotated, m)
		}
	}
	if len(annotated) > 0 {
		sort.Strings(annotated)
		return "annotated " + annotated[0]
	}

	switch sym.Language {
	case parser.LangCSharp:
		if sym.Name == "Main" && mods["static"] {
			return "entry point"
		}
	case parser.LangJava:
		if sym.Name == "main" && mods["static"] {
			return "entry point"
		}
	case parser.LangGo:
		if sym.Kind == "function_declaration" {
			if sym.Name == "init" || (sym.Name == "main" && sym.Package == "main") {
				return "entry point"
			}
			if strings.HasSuffix(sym.Path, "_test.go") && goTestFunc.MatchString(sym.Name) {
				return "test"
			}
		}
	}

	if wellKnown[sym.Language][sym.Name] {
		if sym.Language == parser.LangGo && sym.Kind == "method_declaration" {
			return "well-known interface method"
		}
		if top != nil && len(top.bases) > 0 {
			return "well-known interface method"
		}
	}
	return ""
}

// collectFields maps field and property names of a type body to their types.
func (e *extractor) collectFields(n *sitter.Node) map[string]string {
	fields := make(map[string]string)
	body := n.ChildByFieldName("body")
	if body == nil {
		body = firstNamedOfType(n, "declaration_list", "class_body", "interface_body")
	}
	if body == nil {
		return fields
	}
	for i := range int(body.NamedChildCount()) {
		c := body.NamedChild(i)
		switch c.Type() {
		case "field_declaration":
			decl := c
			if vd := firstNamedOfType(c, "variable_declaration"); vd != nil {
				decl = vd
			}
			typ, names, _ := e.declaredVars(decl)
			for _, name := range names {
				if typ != "" {
					fields[name] = typ
				}
			}
		case "property_declaration":
			name := c.ChildByFieldName("name")
			typ := c.ChildByFieldName("type")
			if name != nil && typ != nil {
				fields[e.text(name)] = simpleTypeName(e.text(typ))
			}
		}
	}
	return fields
}

// baseTypes returns the simple names listed in a type's base clause.
func (e *extractor) baseTypes(n *sitter.Node) []string {
	var bases []string
	for i := range int(n.NamedChildCount()) {
		c := n.NamedChild(i)
		switch c.Type() {
		case "base_list", "superclass", "super_interfaces", "extends_interfaces":
			parser.WalkNamed(c, e.src, func(id *sitter.Node, _ []byte) bool {
				switch id.Type() {
				case "identifier", "type_identifier":
					bases = append(bases, e.text(id))
					return false
				case "type_argument_list", "type_arguments", "argument_list":
					return false
				}
				return true
			})
		}
	}
	return bases
}

// declaredVars reads a variable declaration and returns the declared type,
// the declarator names and their initializers (nil when absent).
func (e *extractor) declaredVars(n *sitter.Node) (string, []string, []*sitter.Node) {
	typ := simpleTypeName(e.text(n.ChildByFieldName("type")))
	var names []string
	var inits []*sitter.Node
	for i := range int(n.NamedChildCount()) {
		c := n.NamedChild(i)
		if c.Type() != "variable_declarator" {
			continue
		}
		nameNode := c.ChildByFieldName("name")
		if nameNode == nil {
			nameNode = firstNamedOfType(c, "identifier")
		}
		if nameNode == nil {
			continue
		}
		names = append(names, e.text(nameNode))
		inits = append(inits, e.initializer(c, nameNode))
	}
	return typ, names, inits
}

func (e *extractor) initializer(declarator, name *sitter.Node) *sitter.Node {
	if v := declarator.ChildByFieldName("value"); v != nil {
		return v
	}
	if eq := firstNamedOfType(declarator, "equals_value_clause"); eq != nil && eq.NamedChildCount() > 0 {
		return eq.NamedChild(0)
	}
	count := int(declarator.NamedChildCount())
	if count > 1 {
		last := declarator.NamedChild(count - 1)
		if last.StartByte() != name.StartByte() && last.Type() != "bracketed_argument_list" {
			return last
		}
	}
	return nil
}

// trackLocals records local variable types inside a method body.
func (e *extractor) trackLocals(n *sitter.Node, kind string) {
	switch kind {
	case "variable_declaration", "local_variable_declaration":
		typ, names, inits := e.declaredVars(n)
		for i, name := range names {
			t := typ
			if t == "" || t == "var" {
				t = e.constructedType(inits[i])
			}
			if t != "" && t != "var" {
				e.locals[name] = t
			}
		}
	case "short_var_declaration":
		left := n.ChildByFieldName("left")
		right := n.ChildByFieldName("right")
		if left == nil || right == nil {
			return
		}
		for i := range int(min(left.NamedChildCount(), right.NamedChildCount())) {
			id := left.NamedChild(i)
			if id.Type() != "identifier" {
				continue
			}
			if t := e.constructedType(right.NamedChild(i)); t != "" {
				e.locals[e.text(id)] = t
			}
		}
	case "var_spec":
		typ := n.ChildByFieldName("type")
		if typ == nil {
			return
		}
		for i := range int(n.NamedChildCount()) {
			c := n.NamedChild(i)
			if c.Type() == "identifier" {
				e.recordLocal(e.locals, c, typ)
			}
		}
	}
}

// constructedType returns T for `new T(...)`, `T{...}` and `&T{...}`.
func (e *extractor) constructedType(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "object_creation_expression", "composite_literal":
		return simpleTypeName(e.text(n.ChildByFieldName("type")))
	case "unary_expression":
		return e.constructedType(n.ChildByFieldName("operand"))
	case "parenthesized_expression":
		if n.NamedChildCount() > 0 {
			return e.constructedType(n.NamedChild(0))
		}
	}
	return ""
}

func (e *extractor) addCall(n *sitter.Node) {
	var nameNode, recv, args *sitter.Node
	hasRecv := false

	switch e.d.Language {
	case parser.LangCSharp:
		nameNode, recv, hasRecv = e.csharpCallee(n.ChildByFieldName("function"))
		args = n.ChildByFieldName("arguments")
	case parser.LangJava:
		nameNode = n.ChildByFieldName("name")
		recv = n.ChildByFieldName("object")
		hasRecv = recv != nil
		args = n.ChildByFieldName("arguments")
	case parser.LangGo:
		fn := n.ChildByFieldName("function")
		switch {
		case fn == nil:
		case fn.Type() == "identifier":
			nameNode = fn
		case fn.Type() == "selector_expression":
			nameNode = fn.ChildByFieldName("field")
			recv = fn.ChildByFieldName("operand")
			hasRecv = true
		}
		args = n.ChildByFieldName("arguments")
	}
	if nameNode == nil {
		return
	}
	e.consumed[nameNode.StartByte()] = true

	call := CallSite{
		Module:    e.unit.Module,
		Path:      e.unit.Path,
		Language:  e.unit.Language,
		Span:      spanOf(n),
		Line:      parser.Line(n),
		Name:      e.text(nameNode),
		Namespace: e.ns,
		Caller:    e.caller,
	}
	if top := e.currentType(); top != nil {
		call.Scope = top.key
	}
	call.Args, call.Spread = e.countArgs(args)

	if hasRecv {
		call.ReceiverKind, call.ReceiverType = e.classifyReceiver(recv)
		call.Receiver = e.text(recv)
	}
	e.unit.Calls = append(e.unit.Calls, call)
}

// csharpCallee splits an invocation's function expression into the callee
// name node and the receiver expression.
func (e *extractor) csharpCallee(fn *sitter.Node) (name, recv *sitter.Node, hasRecv bool) {
	if fn == nil {
		return nil, nil, false
	}
	switch fn.Type() {
	case "identifier":
		return fn, nil, false
	case "generic_name":
		return firstNamedOfType(fn, "identifier"), nil, false
	case "member_access_expression":
		return memberName(fn.ChildByFieldName("name")), fn.ChildByFieldName("expression"), true
	case "member_binding_expression":
		// a?.B(): the receiver is the condition of the enclosing conditional access
		for p := fn.Parent(); p != nil; p = p.Parent() {
			if p.Type() == "conditional_access_expression" {
				cond := p.ChildByFieldName("condition")
				if cond == nil && p.NamedChildCount() > 0 {
					cond = p.NamedChild(0)
				}
				return memberName(fn.ChildByFieldName("name")), cond, true
			}
		}
		return memberName(fn.ChildByFieldName("name")), nil, true
	}
	return nil, nil, false
}

func memberName(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "generic_name" {
		return firstNamedOfType(n, "identifier")
	}
	return n
}

func (e *extractor) countArgs(args *sitter.Node) (int, bool) {
	if args == nil {
		return 0, false
	}
	count := 0
	spread := false
	for i := range int(args.NamedChildCount()) {
		c := args.NamedChild(i)
		if e.d.IsComment(c.Type()) {
			continue
		}
		count++
		if c.Type() == "variadic_argument" {
			spread = true
		}
	}
	return count, spread
}

var dottedName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// classifyReceiver determines what kind of expression a call is made on and,
// when it can be read from declarations, the receiver's type.
func (e *extractor) classifyReceiver(recv *sitter.Node) (ReceiverKind, string) {
	if recv == nil {
		return RecvExpr, ""
	}
	kind := recv.Type()
	switch {
	case e.d.Self[kind]:
		return RecvSelf, ""
	case e.d.Base[kind]:
		return RecvBase, ""
	}

	switch kind {
	case "object_creation_expression", "composite_literal", "unary_expression":
		if t := e.constructedType(recv); t != "" {
			return RecvTyped, t
		}
	case "parenthesized_expression":
		if recv.NamedChildCount() > 0 {
			return e.classifyReceiver(recv.NamedChild(0))
		}
	case "predefined_type":
		return RecvTyped, e.text(recv)
	case "identifier":
		name := e.text(recv)
		if t, ok := e.locals[name]; ok {
			return RecvTyped, t
		}
		if t := e.fieldType(name); t != "" {
			return RecvTyped, t
		}
		return RecvName, name
	case "member_access_expression", "field_access":
		obj := recv.ChildByFieldName("expression")
		field := recv.ChildByFieldName("name")
		if kind == "field_access" {
			obj = recv.ChildByFieldName("object")
			field = recv.ChildByFieldName("field")
		}
		if obj != nil && field != nil && e.d.Self[obj.Type()] {
			if t := e.fieldType(e.text(field)); t != "" {
				return RecvTyped, t
			}
		}
		if text := e.text(recv); dottedName.MatchString(text) {
			// Namespace.Type.Method(): keep the last segment as a type name
			return RecvName, text[strings.LastIndex(text, ".")+1:]
		}
	case "scoped_identifier", "qualified_name":
		text := e.text(recv)
		return RecvName, text[strings.LastIndex(text, ".")+1:]
	}
	return RecvExpr, ""
}

func (e *extractor) fieldType(name string) string {
	for i := len(e.types) - 1; i >= 0; i-- {
		if t, ok := e.types[i].fields[name]; ok {
			return t
		}
	}
	return ""
}

// valueRefKinds are identifier kinds that may name a method used as a value:
// delegates, method groups, method references, function values.
var valueRefKinds = map[string]bool{
	"identifier":       true,
	"field_identifier": true,
}

// declaringKinds are nodes whose "name" children introduce a variable,
// parameter, field or type rather than read one.
var declaringKinds = map[string]bool{
	"variable_declarator":               true,
	"parameter":                         true,
	"formal_parameter":                  true,
	"spread_parameter":                  true,
	"catch_declaration":                 true,
	"catch_formal_parameter":            true,
	"property_declaration":              true,
	"enum_member_declaration":           true,
	"enum_constant":                     true,
	"parameter_declaration":             true,
	"variadic_parameter_declaration":    true,
	"field_declaration":                 true,
	"var_spec":                          true,
	"const_spec":                        true,
	"type_spec":                         true,
	"type_parameter_declaration":        true,
	"record_component":                  true,
	"enhanced_for_statement":            true,
	"type_parameter":                    true,
	"interface_declaration":             true,
	"class_declaration":                 true,
	"struct_declaration":                true,
	"record_declaration":                true,
	"enum_declaration":                  true,
	"namespace_declaration":             true,
	"file_scoped_namespace_declaration": true,
}

func (e *extractor) collectValueRefs(root *sitter.Node) {
	parser.WalkNamed(root, e.src, func(n *sitter.Node, _ []byte) bool {
		e.consumeDeclaringNames(n)
		if valueRefKinds[n.Type()] && !e.consumed[n.StartByte()] {
			e.refs[e.text(n)] = true
		}
		return true
	})
}

// consumeDeclaringNames marks the identifiers n declares, plus this.x field
// accesses, so they never count as value references. Parents are visited
// before their children, so marks land before the identifiers are seen.
func (e *extractor) consumeDeclaringNames(n *sitter.Node) {
	switch kind := n.Type(); {
	case declaringKinds[kind]:
		for i := range int(n.ChildCount()) {
			if n.FieldNameForChild(i) == "name" {
				e.consumed[n.Child(i).StartByte()] = true
			}
		}
	case kind == "field_access":
		obj, field := n.ChildByFieldName("object"), n.ChildByFieldName("field")
		if obj != nil && field != nil && e.d.Self[obj.Type()] {
			e.consumed[field.StartByte()] = true
		}
	case kind == "short_var_declaration" || kind == "range_clause" || kind == "foreach_statement":
		left := n.ChildByFieldName("left")
		if left == nil {
			return
		}
		if left.NamedChildCount() == 0 {
			e.consumed[left.StartByte()] = true
		}
		for i := range int(left.NamedChildCount()) {
			e.consumed[left.NamedChild(i).StartByte()] = true
		}
	}
}

func firstNamedOfType(n *sitter.Node, kinds ...string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := range int(n.NamedChildCount()) {
		c := n.NamedChild(i)
		for _, k := range kinds {
			if c.Type() == k {
				return c
			}
		}
	}
	return nil
}

func joinName(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "." + name
	}
}

// simpleTypeName reduces a type expression to its bare name:
// "*pkg.Server" -> "Server", "List<Foo>" -> "List", "Acme.Foo?" -> "Foo".
func simpleTypeName(t string) string {
	t = strings.TrimSpace(t)
	t = strings.TrimLeft(t, "*&[]")
	if i := strings.IndexAny(t, "<[("); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimRight(t, "?*& ")
	if i := strings.LastIndex(t, "::"); i >= 0 {
		t = t[i+2:]
	}
	if i := strings.LastIndex(t, "."); i >= 0 {
		t = t[i+1:]
	}
	return t
}

// stripAttributes removes leading "[...]" attribute sections from a C#
// parameter's source text.
func stripAttributes(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "[") {
		depth := 0
		end := -1
		for i, r := range s {
			if r == '[' {
				depth++
			} else if r == ']' {
				depth--
				if depth == 0 {
					end = i
					break
				}
			}
		}
		if end < 0 {
			return s
		}
		s = strings.TrimSpace(s[end+1:])
	}
	return s
}

func hasLeadingWord(s, word string) bool {
	fields := strings.Fields(s)
	for _, f := range fields {
		if f == word {
			return true
		}
		if !csharpModifierKeywords[f] && f != "ref" && f != "out" && f != "in" && f != "scoped" {
			return false
		}
	}
	return false
}
