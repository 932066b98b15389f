package evals

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SyntaxError locates the first structural problem found in a candidate.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s (line %d, column %d)", e.Message, e.Line, e.Column)
}

// maxErrorDepth bounds recursion on pathological trees.
const maxErrorDepth = 1000

// CheckSyntax parses source with the Python grammar without executing it.
// It returns a *SyntaxError describing the first ERROR or MISSING node, or
// a plain error if the parser itself failed.
func CheckSyntax(ctx context.Context, source string) error {
	if serr := invalidEncoding(source); serr != nil {
		return serr
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	content := []byte(source)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}
	if serr := firstSyntaxError(root, content, 0); serr != nil {
		return serr
	}
	// HasError was set but no node carries the flag itself.
	return &SyntaxError{Line: 1, Column: 0, Message: "invalid syntax"}
}

// firstSyntaxError walks the tree in document order and reports the
// earliest ERROR or MISSING node.
func firstSyntaxError(node *sitter.Node, content []byte, depth int) *SyntaxError {
	if depth > maxErrorDepth {
		return nil
	}

	if node.IsMissing() {
		p := node.StartPoint()
		return &SyntaxError{
			Line:    int(p.Row) + 1,
			Column:  int(p.Column),
			Message: fmt.Sprintf("missing %q", node.Type()),
		}
	}

	if node.IsError() {
		// Prefer a more specific descendant when there is one.
		for i := 0; i < int(node.ChildCount()); i++ {
			if serr := firstSyntaxError(node.Child(i), content, depth+1); serr != nil {
				return serr
			}
		}
		p := node.StartPoint()
		return &SyntaxError{
			Line:    int(p.Row) + 1,
			Column:  int(p.Column),
			Message: unexpected(node, content),
		}
	}

	if !node.HasError() {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if serr := firstSyntaxError(node.Child(i), content, depth+1); serr != nil {
			return serr
		}
	}
	return nil
}

func unexpected(node *sitter.Node, content []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if end > uint32(len(content)) {
		end = uint32(len(content))
	}
	if end <= start {
		return "invalid syntax"
	}

	text := string(content[start:end])
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "invalid syntax"
	}
	if r := []rune(text); len(r) > 40 {
		text = string(r[:37]) + "..."
	}
	return fmt.Sprintf("unexpected %q", text)
}

// invalidEncoding reports the first byte that is not valid UTF-8. The
// grammar tolerates such bytes but the interpreter refuses the whole file.
func invalidEncoding(source string) *SyntaxError {
	if utf8.ValidString(source) {
		return nil
	}
	line, lineStart := 1, 0
	for i := 0; i < len(source); {
		r, size := utf8.DecodeRuneInString(source[i:])
		if r == utf8.RuneError && size == 1 {
			return &SyntaxError{
				Line:    line,
				Column:  i - lineStart,
				Message: fmt.Sprintf("invalid UTF-8 byte 0x%02x", source[i]),
			}
		}
		if r == '\n' {
			line++
			lineStart = i + size
		}
		i += size
	}
	return nil
}
