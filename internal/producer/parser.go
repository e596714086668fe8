package producer

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/issue"
)

// Parser turns a producer's raw text response into structured output.
type Parser interface {
	Parse(raw string) (Output, error)
}

// ErrEmptyResponse is returned when there is nothing to parse.
var ErrEmptyResponse = errors.New("producer: empty response")

var (
	artifactBlock = regexp.MustCompile(`(?ms)^###\s*ARTIFACT:\s*([^|\n]+?)\s*\|\s*([^\n]+?)\s*\n(.*?)^###\s*END ARTIFACT\s*$`)
	issuesHeader  = regexp.MustCompile(`(?m)^###\s*ISSUES\s*$`)
	issueLine     = regexp.MustCompile(`^\s*[-*]\s*\[([A-Za-z]+)\]\s*([A-Za-z_ -]+?)\s*:\s*(.+?)(?:\s+--\s+(.*))?\s*$`)
	descLine      = regexp.MustCompile(`(?m)^>\s*(.*)$`)
)

// MarkdownParser reads responses laid out as
//
//	### ARTIFACT: <type> | <name>
//	> optional one line description
//	<content>
//	### END ARTIFACT
//	### ISSUES
//	- [severity] type: title -- description
//
// Lines it cannot interpret are ignored; unknown types and severities are errors.
type MarkdownParser struct{}

// Parse implements Parser.
func (MarkdownParser) Parse(raw string) (Output, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return Output{}, ErrEmptyResponse
	}
	var out Output
	for _, m := range artifactBlock.FindAllStringSubmatch(text, -1) {
		t, err := artifact.ParseType(m[1])
		if err != nil {
			return Output{}, fmt.Errorf("producer: %w", err)
		}
		body := m[3]
		draft := Draft{Type: t, Name: strings.TrimSpace(m[2])}
		if loc := descLine.FindStringSubmatchIndex(body); loc != nil && loc[0] == 0 {
			draft.Description = strings.TrimSpace(body[loc[2]:loc[3]])
			body = strings.TrimPrefix(body[loc[1]:], "\n")
		}
		draft.Content = strings.TrimRight(body, "\n") + "\n"
		out.Artifacts = append(out.Artifacts, draft)
	}
	if loc := issuesHeader.FindStringIndex(text); loc != nil {
		section := artifactBlock.ReplaceAllString(text[loc[1]:], "")
		for _, line := range strings.Split(section, "\n") {
			m := issueLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			severity, err := issue.SeverityFrom(m[1])
			if err != nil {
				return Output{}, fmt.Errorf("producer: %w", err)
			}
			typ, err := issue.TypeFrom(m[2])
			if err != nil {
				return Output{}, fmt.Errorf("producer: %w", err)
			}
			out.Issues = append(out.Issues, issue.Draft{
				Type:        typ,
				Severity:    severity,
				Title:       strings.TrimSpace(m[3]),
				Description: strings.TrimSpace(m[4]),
			})
		}
	}
	return out, nil
}

// JSONParser reads {"artifacts": [...], "issues": [...]} responses.
type JSONParser struct{}

type jsonResponse struct {
	Artifacts []Draft `json:"artifacts"`
	Issues    []struct {
		Type        string `json:"type"`
		Severity    string `json:"severity"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"issues"`
}

// Parse implements Parser.
func (JSONParser) Parse(raw string) (Output, error) {
	if strings.TrimSpace(raw) == "" {
		return Output{}, ErrEmptyResponse
	}
	var resp jsonResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Output{}, fmt.Errorf("producer: decode json response: %w", err)
	}
	out := Output{Artifacts: resp.Artifacts}
	for idx, is := range resp.Issues {
		severity, err := issue.SeverityFrom(is.Severity)
		if err != nil {
			return Output{}, fmt.Errorf("producer: issues[%d]: %w", idx, err)
		}
		typ, err := issue.TypeFrom(is.Type)
		if err != nil {
			return Output{}, fmt.Errorf("producer: issues[%d]: %w", idx, err)
		}
		out.Issues = append(out.Issues, issue.Draft{Type: typ, Severity: severity, Title: is.Title, Description: is.Description})
	}
	return out, nil
}

// ParserFor picks a parser by format name.
func ParserFor(format string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "markdown":
		return MarkdownParser{}, nil
	case "json":
		return JSONParser{}, nil
	default:
		return nil, fmt.Errorf("producer: unknown output format %q", format)
	}
}
