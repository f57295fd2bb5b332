package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedCatalog(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := c.Render("errors.wrong_turn", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(s, "turn") {
		t.Fatalf("unexpected message: %q", s)
	}
	s, err = c.Render("game.started", map[string]string{"Color": "white"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(s, "white") {
		t.Fatalf("template data not applied: %q", s)
	}
}

func TestMissingKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("errors.no_such_key", nil); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if got := c.MustRender("errors.no_such_key", nil); got == "" {
		t.Fatalf("MustRender should fall back")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := "errors:\n  wrong_turn: \"hold on, not yet\"\n"
	if err := os.WriteFile(filepath.Join(dir, "local.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := c.Render("errors.wrong_turn", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if s != "hold on, not yet" {
		t.Fatalf("override not applied: %q", s)
	}
}

func TestDuplicateOverrideKeys(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("errors:\n  wrong_turn: \"x\"\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
