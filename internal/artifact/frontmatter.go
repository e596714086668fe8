package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("artifact: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("artifact: malformed frontmatter")
)

const (
	fenceOpen  = "---\n"
	fenceClose = "\n---\n"
	timeLayout = time.RFC3339Nano
)

// ParseDocument decodes a durable artifact record. The body after the
// closing fence is returned byte-for-byte as the artifact content.
func ParseDocument(content []byte) (Artifact, error) {
	if !bytes.HasPrefix(content, []byte(fenceOpen)) {
		return Artifact{}, ErrMissingFrontMatter
	}
	rest := content[len(fenceOpen):]
	idx := bytes.Index(rest, []byte(fenceClose))
	if idx < 0 {
		return Artifact{}, ErrMalformedFrontMatter
	}
	var envelope cdmEnvelope
	if err := yaml.Unmarshal(rest[:idx], &envelope); err != nil {
		return Artifact{}, fmt.Errorf("artifact: parse frontmatter: %w", err)
	}
	a, err := envelope.toArtifact()
	if err != nil {
		return Artifact{}, err
	}
	a.Content = string(rest[idx+len(fenceClose):])
	return a, nil
}

// WriteDocument renders metadata and content with YAML fences.
func WriteDocument(a Artifact) ([]byte, error) {
	if a.ID == "" {
		return nil, fmt.Errorf("artifact: record missing id")
	}
	envelope := cdmEnvelope{}
	envelope.fromArtifact(a)
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(fenceOpen)
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString(fenceClose)
	buf.WriteString(a.Content)
	return buf.Bytes(), nil
}

type cdmEnvelope struct {
	CDM cdmMetadata `yaml:"cdm"`
}

type cdmMetadata struct {
	ID           string `yaml:"id"`
	Type         string `yaml:"type"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description,omitempty"`
	Version      int    `yaml:"version"`
	Status       string `yaml:"status"`
	ReviewStatus string `yaml:"review_status,omitempty"`
	CreatedBy    string `yaml:"created_by"`
	Stage        string `yaml:"stage,omitempty"`
	Feature      string `yaml:"feature,omitempty"`
	FilePath     string `yaml:"file_path,omitempty"`
	Created      string `yaml:"created_at"`
	Updated      string `yaml:"updated_at"`
}

func (e cdmEnvelope) toArtifact() (Artifact, error) {
	m := e.CDM
	if m.ID == "" || m.Type == "" || m.Name == "" || m.Version < 1 {
		return Artifact{}, ErrMalformedFrontMatter
	}
	created, err := parseTime(m.Created)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: parse created_at: %w", err)
	}
	updated, err := parseTime(m.Updated)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: parse updated_at: %w", err)
	}
	return Artifact{
		ID:           m.ID,
		Type:         Type(m.Type),
		Name:         m.Name,
		Description:  m.Description,
		Version:      m.Version,
		Status:       Status(m.Status),
		ReviewStatus: ReviewStatus(m.ReviewStatus),
		CreatedBy:    m.CreatedBy,
		Stage:        m.Stage,
		FeatureID:    m.Feature,
		FilePath:     m.FilePath,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

func (e *cdmEnvelope) fromArtifact(a Artifact) {
	e.CDM = cdmMetadata{
		ID:           a.ID,
		Type:         string(a.Type),
		Name:         a.Name,
		Description:  a.Description,
		Version:      a.Version,
		Status:       string(a.Status),
		ReviewStatus: string(a.ReviewStatus),
		CreatedBy:    a.CreatedBy,
		Stage:        a.Stage,
		Feature:      a.FeatureID,
		FilePath:     a.FilePath,
		Created:      a.CreatedAt.UTC().Format(timeLayout),
		Updated:      a.UpdatedAt.UTC().Format(timeLayout),
	}
}

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("artifact: empty timestamp")
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
