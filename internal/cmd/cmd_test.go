package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/buildlink/internal/config"
)

// isolate points the config directory at a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	return filepath.Join(xdg, "buildlink")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand(&out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"exit error", &ExitError{Code: ExitCancelled, Err: errors.New("cancelled")}, ExitCancelled},
		{"wrapped", fmt.Errorf("run: %w", &ExitError{Code: 7, Err: errors.New("x")}), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	dir := isolate(t)

	out, _, err := execute(t, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if got, want := strings.TrimSpace(out), filepath.Join(dir, "config.toml"); got != want {
		t.Errorf("config path = %q, want %q", got, want)
	}

	out, _, err = execute(t, "--config", "/tmp/other.toml", "config", "path")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "/tmp/other.toml" {
		t.Errorf("config path with --config = %q", out)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	dir := isolate(t)

	out, _, err := execute(t, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	path := filepath.Join(dir, "config.toml")
	if !strings.Contains(out, path) {
		t.Errorf("config init output = %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	if _, _, err := execute(t, "config", "init"); !errors.Is(err, config.ErrConfigExists) {
		t.Errorf("second config init error = %v, want ErrConfigExists", err)
	}

	out, _, err = execute(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"# config file: " + path, "[cancellation]", "threshold = '2.1'"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestConfigShow_FlagOverridesLogging(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "--log-level", "debug", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "# config file: (none, using defaults)") {
		t.Errorf("missing defaults marker:\n%s", out)
	}
	if !strings.Contains(out, "level = 'debug'") {
		t.Errorf("--log-level not applied:\n%s", out)
	}
}

func TestInvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("BUILDLINK_LOGGING_LEVEL", "loud")

	_, _, err := execute(t, "config", "show")
	var verrs config.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
}

func TestRun_RequiresTasks(t *testing.T) {
	isolate(t)

	if _, _, err := execute(t, "run"); err == nil {
		t.Error("run without tasks: error = nil")
	}
	if _, _, err := execute(t, "run", "--", "--info"); err == nil {
		t.Error("run with only build arguments: error = nil")
	}
}
