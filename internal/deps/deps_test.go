package deps

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckResolvesExecutables(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "FFmpeg", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := Check(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present || results[0].Detail != "" {
		t.Fatalf("unexpected result for present binary: %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" || results[1].Path != "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[1].Location() != "clearly-not-present-binary" {
		t.Fatalf("unexpected location for missing binary: %s", results[1].Location())
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected result for empty command: %#v", results[2])
	}
}

func TestCheckUsesLookPath(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(name string) (string, error) {
		if name == "uvx" {
			return "/opt/bin/uvx", nil
		}
		return "", errors.New("not found")
	}

	results := Check([]Requirement{{Name: "uvx", Command: "uvx"}, {Name: "nvidia-smi", Command: "nvidia-smi", Optional: true}})
	if results[0].Location() != "/opt/bin/uvx" {
		t.Fatalf("expected resolved path, got %#v", results[0])
	}
	if results[1].Available {
		t.Fatalf("expected nvidia-smi to be unavailable, got %#v", results[1])
	}
	if missing := MissingRequired(results); len(missing) != 0 {
		t.Fatalf("optional dependency must not be reported missing: %#v", missing)
	}
}

func TestMissingRequiredSkipsOptional(t *testing.T) {
	statuses := []Status{
		{Name: "ffmpeg", Available: true},
		{Name: "uvx", Available: false},
		{Name: "nvidia-smi", Available: false, Optional: true},
	}
	missing := MissingRequired(statuses)
	if len(missing) != 1 || missing[0].Name != "uvx" {
		t.Fatalf("unexpected missing set: %#v", missing)
	}
}
