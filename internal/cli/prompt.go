package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints label and returns the trimmed answer, or def when the answer
// is empty or input has ended.
func (p *prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if line = strings.TrimSpace(line); line == "" {
		return def, nil
	}
	return line, nil
}

// choose repeats the question until the answer is one of choices.
func (p *prompter) choose(label string, choices []string, def string) (string, error) {
	question := fmt.Sprintf("%s (%s)", label, strings.Join(choices, "/"))
	for attempt := 0; attempt < 3; attempt++ {
		answer, err := p.ask(question, def)
		if err != nil {
			return "", err
		}
		answer = strings.ToLower(answer)
		if slices.Contains(choices, answer) {
			return answer, nil
		}
		fmt.Fprintf(p.out, "Choose one of: %s\n", strings.Join(choices, ", "))
	}
	return "", fmt.Errorf("%s: no valid choice given", strings.ToLower(label))
}
