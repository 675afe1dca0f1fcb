package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDigestMatchesReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := Digest(path)
	if err != nil {
		t.Fatal(err)
	}
	fromReader, err := DigestReader(strings.NewReader("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if fromFile != fromReader {
		t.Fatalf("digest mismatch: %s vs %s", fromFile, fromReader)
	}
	if len(fromFile) != 64 {
		t.Fatalf("expected 32-byte hex digest, got %q", fromFile)
	}
}

func TestSaveStream(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "uploads", "job.mp3")

	n, digest, err := SaveStream(strings.NewReader("audio-bytes"), dst, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len("audio-bytes")) {
		t.Fatalf("unexpected size %d", n)
	}
	want, _ := DigestReader(strings.NewReader("audio-bytes"))
	if digest != want {
		t.Fatalf("unexpected digest %s", digest)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "audio-bytes" {
		t.Fatalf("unexpected content %q (%v)", got, err)
	}
}

func TestSaveStreamRejectsOversize(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "big.wav")
	_, _, err := SaveStream(strings.NewReader("0123456789"), dst, 4)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial file to be removed, stat err %v", statErr)
	}
}

func TestAtomicWriteReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")
	if err := AtomicWrite(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("content mismatch: %q", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, got %v", err)
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/data/uploads", "/data/uploads/a.mp3", true},
		{"/data/uploads", "/data/uploads/sub/a.mp3", true},
		{"/data/uploads", "/data/uploads", false},
		{"/data/uploads", "/data/other/a.mp3", false},
		{"/data/uploads", "/data/uploads/../secret", false},
		{"", "/a", false},
	}
	for _, tt := range tests {
		if got := Within(tt.dir, tt.path); got != tt.want {
			t.Errorf("Within(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
