// Package analysis provides the built-in passes: tree-sitter syntax
// highlighting, symbol extraction with naming hints, text and JavaScript
// inspections, and todo-marker detection.
package analysis

import (
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"go.lsp.dev/uri"
)

// langEntry pairs a compiled grammar with the highlight query for it. Both
// are immutable after setup and shared by every pass instance; parsers are
// created per call because tree-sitter parsers are not thread-safe.
type langEntry struct {
	language *tree_sitter.Language
	query    *tree_sitter.Query
}

var (
	langOnce  sync.Once
	langTable map[string]*langEntry
)

func registerLang(ptr unsafe.Pointer, queryStr string, exts ...string) {
	language := tree_sitter.NewLanguage(ptr)
	query, _ := tree_sitter.NewQuery(language, queryStr)
	// The tree-sitter Go binding can return a typed nil error; trust the
	// query pointer instead.
	if query == nil {
		return
	}
	entry := &langEntry{language: language, query: query}
	for _, ext := range exts {
		langTable[ext] = entry
	}
}

func setupLanguages() {
	langTable = make(map[string]*langEntry)

	registerLang(tree_sitter_javascript.Language(), `
        (function_declaration name: (identifier) @function.name) @function
        (generator_function_declaration name: (identifier) @function.name) @function
        (variable_declarator
            name: (identifier) @function.name
            value: [(arrow_function) (function_expression) (generator_function)]) @function
        (variable_declarator name: (identifier) @variable.name) @variable
        (method_definition name: (property_identifier) @method.name) @method
        (class_declaration name: (identifier) @class.name) @class
        (import_statement source: (string) @import.source) @import
        (comment) @comment
        (string) @string
        (number) @number
    `, ".js", ".jsx")

	registerLang(tree_sitter_typescript.LanguageTypescript(), `
        (function_declaration name: (identifier) @function.name) @function
        (method_definition name: (property_identifier) @method.name) @method
        (class_declaration name: (type_identifier) @class.name) @class
        (interface_declaration name: (type_identifier) @interface.name) @interface
        (type_alias_declaration name: (type_identifier) @type.name) @type
        (enum_declaration name: (identifier) @enum.name) @enum
        (import_statement source: (string) @import.source) @import
        (comment) @comment
        (string) @string
        (number) @number
    `, ".ts", ".tsx")

	registerLang(tree_sitter_go.Language(), `
        (function_declaration name: (identifier) @function.name) @function
        (method_declaration name: (field_identifier) @method.name) @method
        (type_declaration (type_spec name: (type_identifier) @type.name)) @type
        (import_spec path: (interpreted_string_literal) @import.path) @import
        (comment) @comment
        (interpreted_string_literal) @string
        (raw_string_literal) @string
        (int_literal) @number
        (float_literal) @number
    `, ".go")

	registerLang(tree_sitter_python.Language(), `
        (class_definition
            body: (block
                (function_definition name: (identifier) @method.name))) @method
        (function_definition name: (identifier) @function.name) @function
        (class_definition name: (identifier) @class.name) @class
        (import_statement) @import
        (import_from_statement) @import
        (comment) @comment
        (string) @string
        (integer) @number
        (float) @number
    `, ".py")

	registerLang(tree_sitter_rust.Language(), `
        (function_item name: (identifier) @function.name) @function
        (struct_item name: (type_identifier) @struct.name) @struct
        (enum_item name: (type_identifier) @enum.name) @enum
        (trait_item name: (type_identifier) @interface.name) @interface
        (type_item name: (type_identifier) @type.name) @type
        (mod_item name: (identifier) @module.name) @module
        (use_declaration) @import
        (line_comment) @comment
        (block_comment) @comment
        (string_literal) @string
        (integer_literal) @number
        (float_literal) @number
    `, ".rs")

	registerLang(tree_sitter_cpp.Language(), `
        (function_definition declarator: (function_declarator declarator: (identifier) @function.name)) @function
        (class_specifier name: (type_identifier) @class.name) @class
        (struct_specifier name: (type_identifier) @struct.name) @struct
        (enum_specifier name: (type_identifier) @enum.name) @enum
        (preproc_include) @import
        (comment) @comment
        (string_literal) @string
        (number_literal) @number
    `, ".cpp", ".cc", ".cxx", ".c", ".h", ".hpp")

	registerLang(tree_sitter_java.Language(), `
        (method_declaration name: (identifier) @method.name) @method
        (constructor_declaration name: (identifier) @constructor.name) @constructor
        (class_declaration name: (identifier) @class.name) @class
        (interface_declaration name: (identifier) @interface.name) @interface
        (enum_declaration name: (identifier) @enum.name) @enum
        (import_declaration) @import
        (line_comment) @comment
        (block_comment) @comment
        (string_literal) @string
        (decimal_integer_literal) @number
    `, ".java")

	registerLang(tree_sitter_csharp.Language(), `
        (method_declaration name: (identifier) @method.name) @method
        (constructor_declaration name: (identifier) @constructor.name) @constructor
        (class_declaration name: (identifier) @class.name) @class
        (interface_declaration name: (identifier) @interface.name) @interface
        (struct_declaration name: (identifier) @struct.name) @struct
        (enum_declaration name: (identifier) @enum.name) @enum
        (property_declaration name: (identifier) @property.name) @property
        (using_directive) @import
        (comment) @comment
        (string_literal) @string
        (integer_literal) @number
    `, ".cs")

	registerLang(tree_sitter_zig.Language(), `
        (function_declaration (identifier) @function.name) @function
        (variable_declaration
          (identifier) @struct.name
          (struct_declaration) @struct)
        (comment) @comment
        (string) @string
        (integer) @number
    `, ".zig")

	registerLang(tree_sitter_php.LanguagePHP(), `
        (class_declaration name: (name) @class.name) @class
        (interface_declaration name: (name) @interface.name) @interface
        (trait_declaration name: (name) @trait.name) @trait
        (enum_declaration name: (name) @enum.name) @enum
        (function_definition name: (name) @function.name) @function
        (method_declaration name: (name) @method.name) @method
        (namespace_use_declaration) @import
        (comment) @comment
        (string) @string
        (integer) @number
    `, ".php", ".phtml")
}

// languageFor returns the grammar entry for a document URI, or nil when the
// extension is not a supported language.
func languageFor(u uri.URI) *langEntry {
	langOnce.Do(setupLanguages)
	ext := strings.ToLower(filepath.Ext(u.Filename()))
	return langTable[ext]
}

// SupportedExtensions lists the file extensions the syntax pass understands.
func SupportedExtensions() []string {
	langOnce.Do(setupLanguages)
	exts := make([]string, 0, len(langTable))
	for ext := range langTable {
		exts = append(exts, ext)
	}
	return exts
}
