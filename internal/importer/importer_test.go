package importer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSelectMode(t *testing.T) {
	if SelectMode(true, true) != ModeCopy {
		t.Error("expected copy for a seeding torrent")
	}
	if SelectMode(true, false) != ModeMove {
		t.Error("expected move for a non-seeding torrent")
	}
	if SelectMode(false, false) != ModeMove {
		t.Error("expected move for a catalog download")
	}
}

func TestImportMoveVerifiesAndRemovesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.m4b")
	if err := os.WriteFile(src, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "library", "book.m4b")

	if err := Import(Request{SourcePath: src, DestinationPath: dst, Mode: ModeMove}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("expected source removed after move")
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("expected destination present: %v", err)
	}
}

func TestImportCopyKeepsSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.m4b")
	if err := os.WriteFile(src, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "library", "book.m4b")

	if err := Import(Request{SourcePath: src, DestinationPath: dst, Mode: ModeCopy}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("expected source to remain after copy")
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("expected destination present: %v", err)
	}
}

func TestResolveDestinationSanitizesTemplatePlaceholders(t *testing.T) {
	got := ResolveDestination("/library", "{author}/{title}.{ext}", "Some/Author", "A Title", "cat-1", ".m4b")
	want := filepath.Join("/library", "Some-Author/A Title.m4b")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
