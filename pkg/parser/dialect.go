package parser

// Dialect describes the tree-sitter node vocabulary of one language:
// which nodes declare methods, which invoke them, and which open a type
// or namespace scope.
type Dialect struct {
	Language Language

	// Methods are the removable, method-like declaration kinds.
	Methods map[string]bool

	// Calls are invocation expression kinds.
	Calls map[string]bool

	// Types are kinds that open a named type scope.
	Types map[string]bool

	// Interfaces is the subset of Types whose members are abstract.
	Interfaces map[string]bool

	// Namespaces are kinds that open a named namespace or package scope.
	Namespaces map[string]bool

	// Comments are comment node kinds.
	Comments map[string]bool

	// Self holds receiver node kinds that mean "the current instance".
	Self map[string]bool

	// Base holds receiver node kinds that mean "the base type".
	Base map[string]bool
}

func set(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

var dialects = map[Language]*Dialect{
	LangCSharp: {
		Language: LangCSharp,
		Methods:  set("method_declaration"),
		Calls:    set("invocation_expression"),
		Types: set("class_declaration", "struct_declaration", "interface_declaration",
			"record_declaration", "record_struct_declaration"),
		Interfaces: set("interface_declaration"),
		Namespaces: set("namespace_declaration", "file_scoped_namespace_declaration"),
		Comments:   set("comment"),
		Self:       set("this_expression", "this"),
		Base:       set("base_expression", "base"),
	},
	LangJava: {
		Language: LangJava,
		Methods:  set("method_declaration"),
		Calls:    set("method_invocation"),
		Types: set("class_declaration", "interface_declaration", "enum_declaration",
			"record_declaration"),
		Interfaces: set("interface_declaration"),
		Namespaces: set("package_declaration"),
		Comments:   set("line_comment", "block_comment", "comment"),
		Self:       set("this"),
		Base:       set("super"),
	},
	LangGo: {
		Language:   LangGo,
		Methods:    set("function_declaration", "method_declaration"),
		Calls:      set("call_expression"),
		Types:      set(),
		Interfaces: set(),
		Namespaces: set("package_clause"),
		Comments:   set("comment"),
		Self:       set(),
		Base:       set(),
	},
}

// DialectFor returns the dialect for lang, or nil if unsupported.
func DialectFor(lang Language) *Dialect {
	return dialects[lang]
}

// IsMethod reports whether kind is a removable method-like declaration.
func (d *Dialect) IsMethod(kind string) bool {
	return d.Methods[kind]
}

// IsComment reports whether kind is a comment node.
func (d *Dialect) IsComment(kind string) bool {
	return d.Comments[kind]
}
