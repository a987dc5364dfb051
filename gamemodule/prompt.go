package gamemodule

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter asks the operator a question, offering def as the answer taken
// on an empty reply
type Prompter interface {
	Prompt(question, def string) (string, error)
}

// LinePrompter prompts on a writer and reads one line per answer
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter returns a prompter reading from in and writing to out
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

// Prompt writes "question [def]: " and returns the trimmed reply
func (p *LinePrompter) Prompt(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	if line = strings.TrimSpace(line); line == "" {
		return def, nil
	}
	return line, nil
}

// ask resolves a value from an explicit option, the current value and an
// optional prompt, in that order of precedence
func ask(opts ConfigureOptions, explicit, current, question string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if opts.Ask && opts.Prompter != nil {
		return opts.Prompter.Prompt(question, current)
	}
	return current, nil
}

// yes reports whether s reads as an affirmative answer
func yes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1":
		return true
	}
	return false
}
