package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSourcePackaged(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "model.dduf")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := ResolveSource(p)
	if src.Kind != SourcePackaged || src.Path != p {
		t.Fatalf("unexpected source: %+v", src)
	}
}

func TestResolveSourcePackagedCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "model.DDUF")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if src := ResolveSource(p); src.Kind != SourcePackaged {
		t.Fatalf("expected packaged for uppercase extension, got %+v", src)
	}
}

func TestResolveSourceMissingArchiveFallsThrough(t *testing.T) {
	// The extension alone is not enough; the file must exist.
	p := filepath.Join(t.TempDir(), "missing.dduf")
	if src := ResolveSource(p); src.Kind != SourceRemote {
		t.Fatalf("expected remote identifier for missing archive, got %+v", src)
	}
}

func TestResolveSourceDirectoryNamedLikeArchive(t *testing.T) {
	// A directory with the archive extension is not a regular file.
	dir := t.TempDir()
	p := filepath.Join(dir, "model.dduf")
	if err := os.Mkdir(p, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if src := ResolveSource(p); src.Kind != SourceDirectory {
		t.Fatalf("expected directory, got %+v", src)
	}
}

func TestResolveSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	if src := ResolveSource(dir); src.Kind != SourceDirectory || src.Path != dir {
		t.Fatalf("unexpected source: %+v", src)
	}
}

func TestResolveSourceRemote(t *testing.T) {
	if src := ResolveSource("stabilityai/sd-turbo"); src.Kind != SourceRemote {
		t.Fatalf("expected remote identifier, got %+v", src)
	}
}
