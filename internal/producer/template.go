package producer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
)

const documentTemplate = `# {{ .Title }}

Feature: {{ .Feature.Name }} ({{ .Feature.Priority }} priority)
Stage: {{ .Stage }}
Author: {{ .Author }}
Attempt: {{ .Attempt }}

## Brief

{{ .Feature.Description }}

## Handoff

{{ .Instructions }}
{{- if .Inputs }}

## Inputs
{{ range .Inputs }}
- {{ .Type | label }}: {{ .Name }} (v{{ .Version }})
{{- end }}
{{- end }}
{{- if .PriorIssues }}

## Addressed findings
{{ range .PriorIssues }}
- [{{ .Severity }}] {{ .Title }}
{{- end }}
{{- end }}
`

var docTmpl = template.Must(template.New("document").Funcs(template.FuncMap{
	"label": func(t artifact.Type) string { return t.Label() },
}).Parse(documentTemplate))

// TemplateProducer renders one deterministic document per output type of
// its role. It never raises issues, which makes it the offline default.
type TemplateProducer struct {
	role role.Role
}

// NewTemplateProducer binds a template producer to r.
func NewTemplateProducer(r role.Role) *TemplateProducer {
	return &TemplateProducer{role: r}
}

// Produce implements Producer.
func (p *TemplateProducer) Produce(ctx context.Context, sc StageContext) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	author := p.role.Title
	if author == "" {
		author = p.role.ID
	}
	var out Output
	for _, t := range p.role.Outputs {
		var buf bytes.Buffer
		data := map[string]any{
			"Title":        fmt.Sprintf("%s: %s", t.Label(), sc.Feature.Name),
			"Feature":      sc.Feature,
			"Stage":        sc.Stage.Name,
			"Author":       author,
			"Attempt":      sc.Attempt,
			"Instructions": strings.TrimSpace(sc.Handoff.Instructions),
			"Inputs":       sc.Inputs,
			"PriorIssues":  sc.PriorIssues,
		}
		if err := docTmpl.Execute(&buf, data); err != nil {
			return Output{}, fmt.Errorf("producer: render %s for %s: %w", t, p.role.ID, err)
		}
		out.Artifacts = append(out.Artifacts, Draft{
			Type:        t,
			Name:        DraftName(sc.Feature, t),
			Description: fmt.Sprintf("%s prepared by %s", t.Label(), author),
			Content:     buf.String(),
		})
	}
	return out, nil
}

// DraftName is the conventional artifact name for a feature's document of
// type t. The short feature id keeps identities of same-named features apart.
func DraftName(f FeatureBrief, t artifact.Type) string {
	short := f.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s - %s [%s]", f.Name, t.Label(), short)
}
