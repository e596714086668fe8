package logbook

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journey.log")
	book, err := New(afero.NewOsFs(), path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := book.Append(LevelInfo, fmt.Sprintf("entry-%d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestDirFactoryFormatsEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	open := DirFactory(fs, "/features", WithClock(func() time.Time { return fixed }))
	book, err := open("f-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if book.Path() != filepath.Join("/features", "f-1", FileName) {
		t.Fatalf("unexpected path %s", book.Path())
	}
	if err := book.Append(LevelWarn, "stage testing\nretrying"); err != nil {
		t.Fatalf("warn: %v", err)
	}
	lines, _ := book.Tail(10)
	want := "2026-03-01T09:30:00Z WARN  stage testing retrying"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("lines = %q, want [%q]", lines, want)
	}
	if _, err := open(" "); err == nil {
		t.Fatalf("expected error for empty feature id")
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	if err := book.Append(LevelInfo, "ignored"); err != nil {
		t.Fatalf("nil append: %v", err)
	}
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("nil tail = %v %d", lines, total)
	}
}
