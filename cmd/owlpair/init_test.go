package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/nao1215/owlpair/internal/config"
)

func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()

	flags := []struct {
		name      string
		shorthand string
		def       string
	}{
		{name: "output", shorthand: "o", def: configFileName},
		{name: "force", shorthand: "f", def: "false"},
	}
	for _, want := range flags {
		t.Run(want.name+" flag", func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(want.name)
			if flag == nil {
				t.Fatalf("expected %s flag", want.name)
			}
			if flag.Shorthand != want.shorthand {
				t.Errorf("shorthand = %q, want %q", flag.Shorthand, want.shorthand)
			}
			if flag.DefValue != want.def {
				t.Errorf("default = %q, want %q", flag.DefValue, want.def)
			}
		})
	}
}

// runInit executes init with args and returns its stdout.
func runInit(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewInitCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing string // written before init runs when non-empty
		subdir   string
		force    bool
		wantErr  string
	}{
		{name: "creates config file"},
		{name: "creates parent directories", subdir: filepath.Join("a", "b")},
		{name: "refuses to overwrite", existing: "model: {}\n", wantErr: "already exists"},
		{name: "overwrites with force", existing: "model: {}\n", force: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), tt.subdir, ".owlpair")
			if tt.existing != "" {
				if err := os.WriteFile(path, []byte(tt.existing), 0600); err != nil {
					t.Fatalf("failed to create existing file: %v", err)
				}
			}

			args := []string{"-o", path}
			if tt.force {
				args = append(args, "-f")
			}
			out, err := runInit(t, args...)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
				}
				got, _ := os.ReadFile(path) //nolint:errcheck,gosec // test path
				if string(got) != tt.existing {
					t.Error("existing file must be left untouched")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !strings.Contains(out, "Created configuration file:") || !strings.Contains(out, path) {
				t.Errorf("unexpected output: %q", out)
			}
			got, err := os.ReadFile(path) //nolint:gosec // test path
			if err != nil {
				t.Fatalf("failed to read config: %v", err)
			}
			if missing, ok := containsAll(string(got), "model:", "defaults:", "sites:"); !ok {
				t.Errorf("config is missing %q", missing)
			}

			if runtime.GOOS != "windows" {
				info, err := os.Stat(path)
				if err != nil {
					t.Fatalf("failed to stat config: %v", err)
				}
				if perm := info.Mode().Perm(); perm != 0600 {
					t.Errorf("permissions = %o, want 0600", perm)
				}
			}
		})
	}
}

func TestConfigTemplate(t *testing.T) {
	t.Parallel()

	content, err := configTemplate.ReadFile("templates/owlpair.yaml")
	if err != nil {
		t.Fatalf("failed to read template: %v", err)
	}
	if !strings.Contains(string(content), "#") {
		t.Error("expected template to contain documentation comments")
	}

	// The generated file must load cleanly and match the built-in defaults
	path := writeConfig(t, string(content))
	cf, err := config.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}
	if cf.Defaults.Depth != config.DefaultCrawlDepth {
		t.Errorf("Defaults.Depth = %d, want %d", cf.Defaults.Depth, config.DefaultCrawlDepth)
	}
	if cf.Defaults.MaxPages != config.DefaultMaxPages {
		t.Errorf("Defaults.MaxPages = %d, want %d", cf.Defaults.MaxPages, config.DefaultMaxPages)
	}
	if len(cf.Sites) != 0 {
		t.Errorf("expected no site overrides, got %d", len(cf.Sites))
	}
	if cf.Model != (config.ModelConfig{}) {
		t.Errorf("model settings should all be commented out, got %+v", cf.Model)
	}
}
