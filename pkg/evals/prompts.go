package evals

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoPrompts is returned when a prompt source has no usable lines.
var ErrNoPrompts = errors.New("no prompts")

// LoadPrompts reads one prompt per line from path.
func LoadPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	defer f.Close()

	prompts, err := ReadPrompts(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prompts, nil
}

// ReadPrompts trims every line, drops blank ones and keeps the rest in order.
func ReadPrompts(r io.Reader) ([]string, error) {
	var prompts []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan prompts: %w", err)
	}
	if len(prompts) == 0 {
		return nil, ErrNoPrompts
	}
	return prompts, nil
}
