package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

type walker struct {
	content  []byte
	profile  *languageProfile
	lookback int
	out      *FileStructure
}

var functionValueKinds = map[string]bool{
	"arrow_function":      true,
	"function_expression": true,
	"function":            true,
	"generator_function":  true,
}

func (w *walker) text(node *tree_sitter.Node) string {
	if node == nil {
		return ""
	}
	return node.Utf8Text(w.content)
}

func (w *walker) visit(node *tree_sitter.Node, classIdx int) {
	if node == nil {
		return
	}
	kind := node.Kind()

	switch {
	case w.profile.classKinds[kind]:
		w.addClass(node, node, "")
		return
	case classIdx >= 0 && w.profile.methodKinds[kind]:
		w.addMethod(node, classIdx)
		return
	case classIdx >= 0 && w.profile.fieldFunctions[kind]:
		w.addFieldFunction(node, classIdx)
		return
	case classIdx < 0 && w.profile.functionKinds[kind]:
		w.addFunction(node, node, w.text(node.ChildByFieldName("name")), node)
		return
	case classIdx < 0 && w.profile.variableFunctions && kind == "variable_declarator":
		w.addDeclarator(node)
		return
	}

	if !w.profile.containerKinds[kind] && kind != "ERROR" {
		return
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		w.visit(node.NamedChild(i), classIdx)
	}
}

// addClass records a class; span is the node whose range and doc block belong
// to the class (the enclosing declaration for class expressions)
func (w *walker) addClass(node, span *tree_sitter.Node, name string) {
	if name == "" {
		name = w.text(node.ChildByFieldName("name"))
	}
	if name == "" {
		return
	}

	info := ClassInfo{
		Name:       name,
		Superclass: w.superclass(node),
		StartByte:  int(span.StartByte()),
		EndByte:    int(span.EndByte()),
		StartLine:  int(span.StartPosition().Row) + 1,
		EndLine:    int(span.EndPosition().Row) + 1,
	}
	if doc, start, ok := findDocComment(w.content, info.StartByte, w.lookback); ok {
		info.DocComment = doc
		info.DocStartByte = start
	} else {
		info.DocStartByte = info.StartByte
	}

	w.out.Classes = append(w.out.Classes, info)
	idx := len(w.out.Classes) - 1

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		w.visit(body.NamedChild(i), idx)
	}
}

func (w *walker) superclass(node *tree_sitter.Node) string {
	var raw string
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "class_heritage":
			// JS: (class_heritage expr); TS: (class_heritage (extends_clause value: expr))
			for j := uint(0); j < child.NamedChildCount(); j++ {
				h := child.NamedChild(j)
				if h.Kind() == "extends_clause" {
					if v := h.ChildByFieldName("value"); v != nil {
						raw = w.text(v)
					} else if h.NamedChildCount() > 0 {
						raw = w.text(h.NamedChild(0))
					}
					break
				}
				if h.Kind() != "implements_clause" && raw == "" {
					raw = w.text(h)
				}
			}
		case "superclass", "base_clause":
			if child.NamedChildCount() > 0 {
				raw = w.text(child.NamedChild(0))
			}
		}
		if raw != "" {
			break
		}
	}
	if i := strings.IndexByte(raw, '<'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

func (w *walker) addMethod(node *tree_sitter.Node, classIdx int) {
	nameNode := node.ChildByFieldName("name")
	name := w.text(nameNode)
	body := node.ChildByFieldName("body")
	if name == "" || body == nil {
		// abstract members and overload signatures have no body
		return
	}

	fn := w.newFunction(node, name, classIdx)
	fn.Params = w.text(node.ChildByFieldName("parameters"))
	fn.BodyStartByte = int(body.StartByte())
	fn.BodyEndByte = int(body.EndByte())
	w.applyModifiers(&fn, node)
	if nameNode.Kind() == "private_property_identifier" || strings.HasPrefix(name, "_") {
		fn.IsPrivate = true
	}
	w.out.Functions = append(w.out.Functions, fn)
}

// addFieldFunction handles class fields bound to a function: handle = () => {}
func (w *walker) addFieldFunction(node *tree_sitter.Node, classIdx int) {
	nameNode := node.ChildByFieldName("property")
	if nameNode == nil {
		nameNode = node.ChildByFieldName("name")
	}
	value := node.ChildByFieldName("value")
	if nameNode == nil || value == nil || !functionValueKinds[value.Kind()] {
		return
	}
	name := w.text(nameNode)

	fn := w.newFunction(node, name, classIdx)
	fn.Params = w.params(value)
	if body := value.ChildByFieldName("body"); body != nil {
		fn.BodyStartByte = int(body.StartByte())
		fn.BodyEndByte = int(body.EndByte())
	}
	w.applyModifiers(&fn, node)
	w.applyModifiers(&fn, value)
	if nameNode.Kind() == "private_property_identifier" || strings.HasPrefix(name, "_") {
		fn.IsPrivate = true
	}
	w.out.Functions = append(w.out.Functions, fn)
}

// addFunction records a standalone function; span covers the declaration
// including any const/export wrapper, fnNode is the function itself
func (w *walker) addFunction(span *tree_sitter.Node, fnNode *tree_sitter.Node, name string, modifiersFrom *tree_sitter.Node) {
	if name == "" {
		return
	}
	body := fnNode.ChildByFieldName("body")
	if body == nil {
		return
	}
	fn := w.newFunction(span, name, -1)
	fn.Params = w.params(fnNode)
	fn.BodyStartByte = int(body.StartByte())
	fn.BodyEndByte = int(body.EndByte())
	w.applyModifiers(&fn, modifiersFrom)
	if strings.HasPrefix(name, "_") {
		fn.IsPrivate = true
	}
	w.out.Functions = append(w.out.Functions, fn)
}

// addDeclarator handles const f = () => {} and const C = class {}
func (w *walker) addDeclarator(node *tree_sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	value := node.ChildByFieldName("value")
	if nameNode == nil || value == nil || nameNode.Kind() != "identifier" {
		return
	}

	span := node
	if parent := node.Parent(); parent != nil && parent.NamedChildCount() == 1 {
		span = parent
	}

	switch {
	case functionValueKinds[value.Kind()]:
		w.addFunction(span, value, w.text(nameNode), value)
	case w.profile.classKinds[value.Kind()]:
		w.addClass(value, span, w.text(nameNode))
	}
}

func (w *walker) newFunction(span *tree_sitter.Node, name string, classIdx int) FunctionInfo {
	fn := FunctionInfo{
		Name:      name,
		StartByte: int(span.StartByte()),
		EndByte:   int(span.EndByte()),
		StartLine: int(span.StartPosition().Row) + 1,
		EndLine:   int(span.EndPosition().Row) + 1,
		classIdx:  classIdx,
	}
	if classIdx >= 0 {
		fn.Class = w.out.Classes[classIdx].Name
	}

	if doc, start, ok := findDocComment(w.content, fn.StartByte, w.lookback); ok {
		fn.DocComment = doc
		fn.DocStartByte = start
		fn.DocStartLine = lineAt(w.content, start)
	} else {
		fn.DocStartByte = fn.StartByte
		fn.DocStartLine = fn.StartLine
	}
	return fn
}

func (w *walker) params(fnNode *tree_sitter.Node) string {
	if p := fnNode.ChildByFieldName("parameters"); p != nil {
		return w.text(p)
	}
	// single-parameter arrow functions: x => x * 2
	if p := fnNode.ChildByFieldName("parameter"); p != nil {
		return "(" + w.text(p) + ")"
	}
	return "()"
}

// applyModifiers reads static/async/private markers from the direct children of
// node, descending into Java's modifiers wrapper
func (w *walker) applyModifiers(fn *FunctionInfo, node *tree_sitter.Node) {
	if node == nil {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "static", "static_modifier":
			fn.IsStatic = true
		case "async":
			fn.IsAsync = true
		case "private":
			fn.IsPrivate = true
		case "accessibility_modifier", "visibility_modifier":
			if strings.TrimSpace(w.text(child)) == "private" {
				fn.IsPrivate = true
			}
		case "modifiers":
			w.applyModifiers(fn, child)
		}
	}
}

func lineAt(content []byte, offset int) int {
	line := 1
	for _, b := range content[:offset] {
		if b == '\n' {
			line++
		}
	}
	return line
}
