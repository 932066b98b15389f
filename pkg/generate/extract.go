package generate

import (
	"regexp"
	"strings"
)

var codeBlockPattern = regexp.MustCompile("```([\\w+-]*)[^\\n]*\\n([\\s\\S]*?)```")

type codeBlock struct {
	Language string
	Code     string
}

func extractCodeBlocks(text string) []codeBlock {
	matches := codeBlockPattern.FindAllStringSubmatch(text, -1)

	blocks := make([]codeBlock, len(matches))
	for i, match := range matches {
		blocks[i] = codeBlock{
			Language: strings.ToLower(match[1]),
			Code:     match[2],
		}
	}
	return blocks
}

// ExtractCode returns the first python (or untagged) fenced block in text.
// Text without such a block is returned unchanged.
func ExtractCode(text string) string {
	for _, block := range extractCodeBlocks(text) {
		switch block.Language {
		case "", "python", "py", "python3":
			return strings.TrimRight(block.Code, "\n")
		}
	}
	return text
}
