package parser

import (
	"path/filepath"
	"strings"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Language represents the programming language for parser selection
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageTSX        Language = "tsx"
	LanguageJava       Language = "java"
	LanguagePHP        Language = "php"
)

// languageProfile describes which node kinds carry structure for a grammar
type languageProfile struct {
	grammar func() unsafe.Pointer

	classKinds    map[string]bool // declarations that open a class scope
	methodKinds   map[string]bool // members with a body inside a class scope
	functionKinds map[string]bool // standalone declarations outside a class scope
	// containerKinds are walked for nested declarations; everything else is opaque
	containerKinds map[string]bool
	// fieldFunctions: class fields whose value is a function count as methods
	fieldFunctions map[string]bool
	// variableFunctions: top-level declarators bound to a function or class expression
	variableFunctions bool
}

func set(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

var ecmaContainers = set(
	"program", "export_statement", "lexical_declaration", "variable_declaration",
	"class_body", "ambient_declaration", "internal_module", "module", "statement_block",
)

var profiles = map[Language]*languageProfile{
	LanguageJavaScript: {
		grammar:           tree_sitter_javascript.Language,
		classKinds:        set("class_declaration", "class"),
		methodKinds:       set("method_definition"),
		functionKinds:     set("function_declaration", "generator_function_declaration"),
		containerKinds:    ecmaContainers,
		fieldFunctions:    set("field_definition"),
		variableFunctions: true,
	},
	LanguageTypeScript: {
		grammar:           tree_sitter_typescript.LanguageTypescript,
		classKinds:        set("class_declaration", "abstract_class_declaration", "class"),
		methodKinds:       set("method_definition"),
		functionKinds:     set("function_declaration", "generator_function_declaration"),
		containerKinds:    ecmaContainers,
		fieldFunctions:    set("public_field_definition", "field_definition"),
		variableFunctions: true,
	},
	LanguageTSX: {
		grammar:           tree_sitter_typescript.LanguageTSX,
		classKinds:        set("class_declaration", "abstract_class_declaration", "class"),
		methodKinds:       set("method_definition"),
		functionKinds:     set("function_declaration", "generator_function_declaration"),
		containerKinds:    ecmaContainers,
		fieldFunctions:    set("public_field_definition", "field_definition"),
		variableFunctions: true,
	},
	LanguageJava: {
		grammar:        tree_sitter_java.Language,
		classKinds:     set("class_declaration", "enum_declaration", "record_declaration"),
		methodKinds:    set("method_declaration", "constructor_declaration"),
		functionKinds:  set(),
		containerKinds: set("program", "class_body", "enum_body", "enum_body_declarations"),
	},
	LanguagePHP: {
		grammar:        tree_sitter_php.LanguagePHP,
		classKinds:     set("class_declaration"),
		methodKinds:    set("method_declaration"),
		functionKinds:  set("function_definition"),
		containerKinds: set("program", "namespace_definition", "compound_statement", "declaration_list"),
	},
}

var extensionLanguages = map[string]Language{
	".js":   LanguageJavaScript,
	".jsx":  LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".cjs":  LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".mts":  LanguageTypeScript,
	".cts":  LanguageTypeScript,
	".tsx":  LanguageTSX,
	".java": LanguageJava,
	".php":  LanguagePHP,
}

// LanguageForPath picks the grammar by file extension
func LanguageForPath(path string) (Language, bool) {
	lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// SupportedExtensions lists every extension with a grammar
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionLanguages))
	for ext := range extensionLanguages {
		exts = append(exts, ext)
	}
	return exts
}

// newTreeSitterParser creates a parser for lang; callers must Close it
func newTreeSitterParser(lang Language) (*tree_sitter.Parser, *languageProfile, error) {
	profile, ok := profiles[lang]
	if !ok {
		return nil, nil, errUnsupported
	}
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(tree_sitter.NewLanguage(profile.grammar())); err != nil {
		parser.Close()
		return nil, nil, err
	}
	return parser, profile, nil
}
