package sourceconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmptyPathReturnsEmptyRegistry(t *testing.T) {
	reg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if len(reg.Sources) != 0 {
		t.Fatalf("expected empty registry, got %d sources", len(reg.Sources))
	}
	if _, ok := reg.Get("anything"); ok {
		t.Fatal("expected Get on empty registry to miss")
	}
}

func TestLoadMissingFileReturnsEmptyRegistry(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load(missing) error: %v", err)
	}
	if len(reg.Sources) != 0 {
		t.Fatalf("expected empty registry, got %d sources", len(reg.Sources))
	}
}

func TestLoadParsesSourcesAndDetailSelectors(t *testing.T) {
	yamlBody := `
sources:
  stadtjena:
    config:
      url: https://www.jena.de/veranstaltungen
      use_sitemap: false
      selectors:
        title:
          css: ["h1.event-title"]
    detail:
      price:
        css: ["span.price"]
        attr: text
`
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	entry, ok := reg.Get("stadtjena")
	if !ok {
		t.Fatal("expected stadtjena entry present")
	}
	if entry.Config.URL != "https://www.jena.de/veranstaltungen" {
		t.Errorf("Config.URL = %q", entry.Config.URL)
	}
	if entry.Config.UseSitemap {
		t.Error("expected use_sitemap: false to parse as false")
	}
	if _, ok := entry.Detail["price"]; !ok {
		t.Fatal("expected detail.price selector present")
	}

	if _, ok := reg.Get("unknown-source"); ok {
		t.Fatal("expected Get on unknown source id to miss")
	}
}
