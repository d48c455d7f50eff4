package internal

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/comicshelf/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLibraryConfig_RequiresRoots(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Library.Roots = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing roots should fail")
	}

	cfg = NewDefaultConfig()
	cfg.Library.Roots = []RootConfig{{Category: "", Path: "/x"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("root without category should fail")
	}
}

func TestLibraryConfig_ExtensionsNeedDot(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Library.ContentExtensions = []string{"png"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "dot") {
		t.Fatalf("extension without dot: %v", err)
	}
}

func TestLaunchConfig_ValidatesExecutionString(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Launch.Args = "--open {bogus}"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown key should fail")
	}
	cfg.Launch.Args = "--open {all:,}"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid args: %v", err)
	}
}

func TestExtensions_DuplicateNames(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Extensions = []ExtensionConfig{
		{Name: "export", Command: "cat"},
		{Name: "export", Command: "wc -l"},
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("duplicate extension: %v", err)
	}
}

func TestThumbnailConfig_WidthWhenEnabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Thumbnails.Width = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero width with dir set should fail")
	}
	cfg.Thumbnails.Dir = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled thumbnails: %v", err)
	}
}

func TestParseYAML(t *testing.T) {
	t.Setenv("COMICS_DIR", "/srv/comics")
	cfg := NewDefaultConfig()
	data := []byte(`
app:
  log_level: debug
library:
  roots:
    - category: Manga
      path: ${COMICS_DIR}/manga/
  content_extensions: [".PNG", ".cbz"]
  flatten: true
  depth: 3
  watch: true
  watch_debounce: 750ms
extensions:
  - name: export
    command: "jq -r '.[].title'"
`)
	if err := pkgconfig.Parse(data, cfg); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
	if cfg.Library.WatchDebounce != 750*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Library.WatchDebounce)
	}
	if cfg.App.HTTP.Port != 8080 {
		t.Errorf("default port lost: %d", cfg.App.HTTP.Port)
	}

	opts := cfg.Library.ScannerOptions()
	if len(opts.Roots) != 1 || opts.Roots[0].Path != "/srv/comics/manga" || opts.Roots[0].Category != "Manga" {
		t.Errorf("roots = %+v", opts.Roots)
	}
	if opts.ContentExtensions[0] != ".png" {
		t.Errorf("extensions not lowered: %v", opts.ContentExtensions)
	}
	if !opts.Flatten || opts.Depth != 3 {
		t.Errorf("opts = %+v", opts)
	}

	w := cfg.Library.WatchOptions()
	if w.Depth != 3 || w.Roots[0] != "/srv/comics/manga" {
		t.Errorf("watch = %+v", w)
	}
}
