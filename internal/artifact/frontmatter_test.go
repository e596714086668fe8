package artifact

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDocumentRoundTrip(t *testing.T) {
	created := time.Date(2025, 2, 3, 4, 5, 6, 789, time.UTC)
	want := Artifact{
		ID:           "abc",
		Type:         TypeAPISpec,
		Name:         "Orders API",
		Description:  "line one\n---\nline two",
		Content:      "\n# Orders\n\n---\nnot a fence inside the body\n",
		Version:      4,
		Status:       StatusInReview,
		ReviewStatus: ReviewPending,
		CreatedBy:    "system_architect",
		Stage:        "architecture_design",
		FeatureID:    "f-9",
		FilePath:     "artifacts/abc.md",
		CreatedAt:    created,
		UpdatedAt:    created.Add(2 * time.Hour),
	}
	data, err := WriteDocument(want)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ParseDocument(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDocumentErrors(t *testing.T) {
	cases := map[string]struct {
		input string
		want  error
	}{
		"missing fence":  {input: "hello", want: ErrMissingFrontMatter},
		"unterminated":   {input: "---\ncdm:\n  id: x\n", want: ErrMalformedFrontMatter},
		"missing fields": {input: "---\ncdm:\n  id: x\n---\nbody", want: ErrMalformedFrontMatter},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseDocument([]byte(tc.input)); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestWriteDocumentRequiresID(t *testing.T) {
	if _, err := WriteDocument(Artifact{Type: TypeAPISpec, Name: "x"}); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func TestStatusOrder(t *testing.T) {
	statuses := Statuses()
	for i := 1; i < len(statuses); i++ {
		if statuses[i-1].Rank() >= statuses[i].Rank() {
			t.Fatalf("expected strictly increasing rank at %s", statuses[i])
		}
	}
	if Status("unknown").Rank() >= StatusDraft.Rank() {
		t.Fatalf("unknown status should rank below draft")
	}
}

func TestParseType(t *testing.T) {
	got, err := ParseType(" Architecture-Doc ")
	if err != nil || got != TypeArchitectureDoc {
		t.Fatalf("expected architecture_doc, got %q %v", got, err)
	}
	if _, err := ParseType("poem"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
