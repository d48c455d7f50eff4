package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/comicshelf/internal/reconcile"
	"github.com/starford/comicshelf/internal/scanner"
	"github.com/starford/comicshelf/internal/tokenizer"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Library    LibraryConfig     `yaml:"library"`
	Thumbnails ThumbnailConfig   `yaml:"thumbnails"`
	Launch     LaunchConfig      `yaml:"launch"`
	Extensions []ExtensionConfig `yaml:"extensions"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Library.Validate(); err != nil {
		return fmt.Errorf("library: %w", err)
	}
	if err := c.Thumbnails.Validate(); err != nil {
		return fmt.Errorf("thumbnails: %w", err)
	}
	if err := c.Launch.Validate(); err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	seen := make(map[string]bool, len(c.Extensions))
	for i := range c.Extensions {
		if err := c.Extensions[i].Validate(); err != nil {
			return fmt.Errorf("extensions[%d]: %w", i, err)
		}
		if seen[c.Extensions[i].Name] {
			return fmt.Errorf("extensions[%d]: duplicate name %q", i, c.Extensions[i].Name)
		}
		seen[c.Extensions[i].Name] = true
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// RootConfig is one library directory and its category.
type RootConfig struct {
	Category string `yaml:"category"`
	Path     string `yaml:"path"`
}

// Validate validates the root.
func (c RootConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Category, validation.Required),
		validation.Field(&c.Path, validation.Required),
	)
}

// LibraryConfig describes where comics live and how folders map to comics.
type LibraryConfig struct {
	Roots             []RootConfig `yaml:"roots"`
	ContentExtensions []string     `yaml:"content_extensions"`
	ImageExtensions   []string     `yaml:"image_extensions"`
	IgnorePrefixes    []string     `yaml:"ignore_prefixes"`
	Depth             int          `yaml:"depth"`
	Flatten           bool         `yaml:"flatten"`
	Separator         string       `yaml:"separator"`
	Workers           int          `yaml:"workers"`
	// Watch rescans automatically when files under a root change.
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// Validate validates the library configuration.
func (c *LibraryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Roots, validation.Required),
		validation.Field(&c.ContentExtensions, validation.Required, validation.Each(validation.By(isExtension))),
		validation.Field(&c.ImageExtensions, validation.Each(validation.By(isExtension))),
		validation.Field(&c.Depth, validation.Min(1), validation.Max(16)),
		validation.Field(&c.Workers, validation.Min(0), validation.Max(256)),
		validation.Field(&c.WatchDebounce, validation.Min(time.Duration(0))),
	)
}

func isExtension(v any) error {
	s, _ := v.(string)
	if !strings.HasPrefix(s, ".") || len(s) < 2 {
		return fmt.Errorf("must start with a dot, got %q", s)
	}
	return nil
}

// ScannerOptions snapshots the library settings for one scan.
func (c *LibraryConfig) ScannerOptions() scanner.Options {
	roots := make([]scanner.Root, len(c.Roots))
	for i, r := range c.Roots {
		roots[i] = scanner.Root{Category: r.Category, Path: filepath.Clean(r.Path)}
	}
	return scanner.Options{
		Roots:             roots,
		ContentExtensions: lowerAll(c.ContentExtensions),
		ImageExtensions:   lowerAll(c.ImageExtensions),
		IgnorePrefixes:    c.IgnorePrefixes,
		Depth:             c.Depth,
		Flatten:           c.Flatten,
		Separator:         c.Separator,
		Workers:           c.Workers,
	}
}

// WatchOptions builds the watcher settings for the library roots.
func (c *LibraryConfig) WatchOptions() reconcile.WatchOptions {
	roots := make([]string, len(c.Roots))
	for i, r := range c.Roots {
		roots[i] = filepath.Clean(r.Path)
	}
	return reconcile.WatchOptions{Roots: roots, Depth: c.Depth, Debounce: c.WatchDebounce}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// ThumbnailConfig controls the thumbnail cache. An empty Dir disables it.
type ThumbnailConfig struct {
	Dir   string `yaml:"dir"`
	Width int    `yaml:"width"`
	// CoversDir receives cover images uploaded through MCP.
	CoversDir string `yaml:"covers_dir"`
}

// Validate validates the thumbnail configuration.
func (c *ThumbnailConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Width, validation.When(c.Dir != "", validation.Required, validation.Min(16), validation.Max(4096))),
	)
}

// LaunchConfig is the program comics are opened with.
type LaunchConfig struct {
	Program string `yaml:"program"`
	// Args is an execution string expanded per comic.
	Args string `yaml:"args"`
}

// Validate checks that Args is a well-formed execution string.
func (c *LaunchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Args, validation.By(func(any) error { return tokenizer.Validate(c.Args) })),
	)
}

// ExtensionConfig registers an external program as an extension.
type ExtensionConfig struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
}

// Validate validates the extension entry.
func (c *ExtensionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Command, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./comicshelf.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Library: LibraryConfig{
			Roots:             []RootConfig{{Category: "Comics", Path: "./library"}},
			ContentExtensions: []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".cbz", ".pdf"},
			ImageExtensions:   []string{".png", ".jpg", ".jpeg", ".gif", ".webp"},
			IgnorePrefixes:    []string{"."},
			Depth:             1,
			Separator:         " - ",
			Workers:           4,
			WatchDebounce:     2 * time.Second,
		},
		Thumbnails: ThumbnailConfig{
			Dir:       "./thumbnails",
			Width:     256,
			CoversDir: "./covers",
		},
		Launch: LaunchConfig{
			Program: "xdg-open",
			Args:    "{first}",
		},
	}
}
