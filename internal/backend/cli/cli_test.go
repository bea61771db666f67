//go:build unix

package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/buildlink/internal/backend"
	"github.com/dshills/buildlink/internal/logging"
	"github.com/dshills/buildlink/internal/task"
	"github.com/dshills/buildlink/internal/task/initscript"
	"github.com/dshills/buildlink/internal/task/model"
)

// fakeTool writes an executable shell script standing in for the build
// tool. --version prints a Gradle banner; other invocations run body.
func fakeTool(t *testing.T, dir, name, version, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"--version\" ]; then\n" +
		"  echo invoked >> \"" + filepath.Join(dir, "version-calls") + "\"\n" +
		"  printf '\\n------------------------------------------------------------\\nGradle " + version + "\\n------------------------------------------------------------\\n\\nKotlin:       1.9.20\\n'\n" +
		"  exit 0\n" +
		"fi\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

type lines struct {
	mu     sync.Mutex
	stdout []string
	stderr []string
}

func (l *lines) sink(text string, stdout bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if stdout {
		l.stdout = append(l.stdout, text)
	} else {
		l.stderr = append(l.stderr, text)
	}
}

func connect(t *testing.T, p *Provider, project string, settings *backend.Settings) *Connection {
	t.Helper()
	var conn *Connection
	err := p.WithConnection(context.Background(), project, settings, func(c backend.Connection) error {
		conn = c.(*Connection)
		return nil
	})
	if err != nil {
		t.Fatalf("WithConnection: %v", err)
	}
	return conn
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{"banner", "\n-----\nGradle 8.5\n-----\n\nBuild time: 2023\n", "8.5", false},
		{"patch", "Gradle 7.6.3\n", "7.6.3", false},
		{"rc", "Gradle 8.6-rc-1\n", "8.6-rc-1", false},
		{"crlf", "Gradle 2.1\r\nGroovy: 2.3\r\n", "2.1", false},
		{"no version", "command not found\n", "", true},
		{"garbage version", "Gradle x.y\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVersion(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && v.String() != tt.want {
				t.Errorf("parseVersion() = %s, want %s", v, tt.want)
			}
		})
	}
}

func TestResolveTool(t *testing.T) {
	t.Run("explicit tool path", func(t *testing.T) {
		dir := t.TempDir()
		tool := fakeTool(t, dir, "custom", "8.5", "")
		p := NewProvider()
		got, err := p.ResolveTool(dir, &backend.Settings{ToolPath: tool})
		if err != nil || got != tool {
			t.Errorf("ResolveTool() = %q, %v", got, err)
		}
	})

	t.Run("missing explicit tool", func(t *testing.T) {
		p := NewProvider()
		_, err := p.ResolveTool("", &backend.Settings{ToolPath: "/no/such/gradle"})
		if !errors.Is(err, backend.ErrToolNotFound) {
			t.Errorf("err = %v, want ErrToolNotFound", err)
		}
	})

	t.Run("project wrapper", func(t *testing.T) {
		dir := t.TempDir()
		wrapper := fakeTool(t, dir, "gradlew", "8.5", "")
		p := NewProvider()
		got, err := p.ResolveTool(dir, nil)
		if err != nil || got != wrapper {
			t.Errorf("ResolveTool() = %q, %v; want %q", got, err, wrapper)
		}
	})

	t.Run("non-executable wrapper falls back to PATH", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "gradlew"), []byte("#!/bin/sh\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		p := NewProvider()
		p.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
		got, err := p.ResolveTool(dir, nil)
		if err != nil || got != "/usr/bin/gradle" {
			t.Errorf("ResolveTool() = %q, %v", got, err)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		p := NewProvider()
		p.lookPath = func(string) (string, error) { return "", errors.New("not on PATH") }
		_, err := p.ResolveTool(t.TempDir(), nil)
		if !errors.Is(err, backend.ErrToolNotFound) {
			t.Errorf("err = %v, want ErrToolNotFound", err)
		}
	})
}

func TestWithConnection_NoTool(t *testing.T) {
	p := NewProvider()
	p.lookPath = func(string) (string, error) { return "", errors.New("not on PATH") }
	called := false
	err := p.WithConnection(context.Background(), t.TempDir(), nil, func(backend.Connection) error {
		called = true
		return nil
	})
	if !errors.Is(err, backend.ErrToolNotFound) || called {
		t.Errorf("err = %v, called = %v", err, called)
	}
}

func TestConnection_Args(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "gradlew", "8.5", "")
	p := NewProvider()
	conn := connect(t, p, dir, &backend.Settings{
		Offline:         true,
		DaemonVMOptions: []string{"-Xmx2g"},
		Arguments:       []string{"--stacktrace"},
	})

	got := conn.Args(backend.LaunchRequest{
		TaskNames:        []string{"clean", "test"},
		VMOptions:        []string{"-ea"},
		ScriptParameters: []string{"--tests", "*"},
	})
	want := []string{
		"--stacktrace", "--offline", "--project-dir", dir,
		"-Dorg.gradle.jvmargs=-Xmx2g -ea",
		"--tests", "*", "clean", "test",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args() =\n  %v\nwant\n  %v", got, want)
	}
}

func TestConnection_VersionCached(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "gradlew", "8.5", "")
	conn := connect(t, NewProvider(), dir, nil)

	for i := 0; i < 3; i++ {
		v, ok := conn.Version(context.Background())
		if !ok || v.String() != "8.5" {
			t.Fatalf("Version() = %s, %v", v, ok)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, "version-calls"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "invoked"); n != 1 {
		t.Errorf("--version ran %d times, want 1", n)
	}
}

func TestConnection_VersionUnknown(t *testing.T) {
	dir := t.TempDir()
	tool := filepath.Join(dir, "broken")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\necho nope\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	conn := connect(t, NewProvider(), dir, &backend.Settings{ToolPath: tool})
	if _, ok := conn.Version(context.Background()); ok {
		t.Error("failed probe should report unknown version")
	}
}

func TestConnection_LaunchOutputAndEnv(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "gradlew", "8.5", `echo "args:$*"
echo "debug:$BUILDLINK_DEBUGGER_SETUP"
echo "java:$JAVA_HOME"
echo "home:$GRADLE_USER_HOME"
echo "custom:$CUSTOM_VAR"
echo "oops" >&2
exit 0`)
	p := NewProvider()
	defer p.Close(time.Second)
	conn := connect(t, p, dir, &backend.Settings{
		JavaHome:   "/opt/jdk",
		ServiceDir: "/tmp/gradle-home",
		Env:        map[string]string{"CUSTOM_VAR": "yes"},
	})

	out := &lines{}
	err := conn.Launch(context.Background(), backend.LaunchRequest{
		TaskNames:     []string{"build"},
		DebuggerSetup: "-agentlib:jdwp=x",
		Output:        out.sink,
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	want := []string{
		"args:--project-dir " + dir + " build",
		"debug:-agentlib:jdwp=x",
		"java:/opt/jdk",
		"home:/tmp/gradle-home",
		"custom:yes",
	}
	if !reflect.DeepEqual(out.stdout, want) {
		t.Errorf("stdout =\n  %q\nwant\n  %q", out.stdout, want)
	}
	if !reflect.DeepEqual(out.stderr, []string{"oops"}) {
		t.Errorf("stderr = %q", out.stderr)
	}
}

func TestConnection_LaunchFailure(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "gradlew", "8.5", "echo 'BUILD FAILED'\nexit 1")
	p := NewProvider()
	defer p.Close(time.Second)
	conn := connect(t, p, dir, nil)

	err := conn.Launch(context.Background(), backend.LaunchRequest{TaskNames: []string{"build"}})

	var le *backend.LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("err = %T %v, want *LaunchError", err, err)
	}
	if le.ExitCode != 1 || !errors.Is(err, backend.ErrBuildFailed) {
		t.Errorf("LaunchError = %+v", le)
	}
	if errors.Is(err, backend.ErrCancelled) {
		t.Error("failed build must not look cancelled")
	}
}

func TestConnection_LaunchCancelledByToken(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "gradlew", "8.5", "echo started\nexec sleep 30")
	p := NewProvider(WithCancelGrace(5 * time.Second))
	defer p.Close(time.Second)
	conn := connect(t, p, dir, nil)

	src := backend.NewCancellationTokenSource()
	started := make(chan struct{})
	var once sync.Once
	errc := make(chan error, 1)
	go func() {
		errc <- conn.Launch(context.Background(), backend.LaunchRequest{
			TaskNames: []string{"build"},
			Token:     src.Token(),
			Output: func(string, bool) {
				once.Do(func() { close(started) })
			},
		})
	}()

	<-started
	begin := time.Now()
	src.Cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, backend.ErrCancelled) {
			t.Errorf("err = %v, want ErrCancelled", err)
		}
		if time.Since(begin) > 4*time.Second {
			t.Error("interrupt should stop the build before the grace period")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cancelled launch did not return")
	}
}

func TestConnection_LaunchKilledAfterGrace(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "gradlew", "8.5", "trap '' INT\necho started\nsleep 30")
	p := NewProvider(WithCancelGrace(200 * time.Millisecond))
	defer p.Close(time.Second)
	conn := connect(t, p, dir, nil)

	src := backend.NewCancellationTokenSource()
	started := make(chan struct{})
	var once sync.Once
	errc := make(chan error, 1)
	go func() {
		errc <- conn.Launch(context.Background(), backend.LaunchRequest{
			TaskNames: []string{"build"},
			Token:     src.Token(),
			Output:    func(string, bool) { once.Do(func() { close(started) }) },
		})
	}()

	<-started
	src.Cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, backend.ErrCancelled) {
			t.Errorf("err = %v, want ErrCancelled", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("build ignoring the interrupt was not killed")
	}
}

func TestConnection_LaunchContextCancelled(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "gradlew", "8.5", "exec sleep 30")
	p := NewProvider()
	defer p.Close(time.Second)
	conn := connect(t, p, dir, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := conn.Launch(ctx, backend.LaunchRequest{TaskNames: []string{"build"}})
	if !errors.Is(err, backend.ErrCancelled) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want ErrCancelled wrapping the deadline", err)
	}
}

func TestConnection_LaunchAlreadyCancelled(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "gradlew", "8.5", "echo ran > \""+filepath.Join(dir, "ran")+"\"")
	conn := connect(t, NewProvider(), dir, nil)

	src := backend.NewCancellationTokenSource()
	src.Cancel()
	err := conn.Launch(context.Background(), backend.LaunchRequest{TaskNames: []string{"build"}, Token: src.Token()})
	if !errors.Is(err, backend.ErrCancelled) {
		t.Errorf("err = %v, want ErrCancelled", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "ran")); statErr == nil {
		t.Error("a cancelled request must not start the build")
	}
}

type exitedProcess struct {
	done       chan struct{}
	interrupts int
	kills      int
}

func (p *exitedProcess) Done() <-chan struct{} { return p.done }
func (p *exitedProcess) Interrupt() error      { p.interrupts++; return nil }
func (p *exitedProcess) Kill() error           { p.kills++; return nil }

func TestWatchCancellation_ExitedProcessIsNotCancelled(t *testing.T) {
	conn := &Connection{provider: NewProvider(), logger: logging.Nop()}

	src := backend.NewCancellationTokenSource()
	src.Cancel()

	for i := 0; i < 50; i++ {
		proc := &exitedProcess{done: make(chan struct{})}
		close(proc.done)

		cancelled := conn.watchCancellation(context.Background(), src.Token(), proc)
		select {
		case <-cancelled:
			t.Fatalf("iteration %d: finished process reported as cancelled", i)
		case <-time.After(5 * time.Millisecond):
		}
		if proc.interrupts != 0 || proc.kills != 0 {
			t.Fatalf("iteration %d: finished process was signalled", i)
		}
	}
}

func TestManagerEndToEnd(t *testing.T) {
	dir := t.TempDir()
	// Prints the init script passed with --init-script.
	fakeTool(t, dir, "gradlew", "8.5", `while [ $# -gt 0 ]; do
  if [ "$1" = "--init-script" ]; then cat "$2"; echo; fi
  shift
done`)
	p := NewProvider()
	defer p.Close(time.Second)

	var mu sync.Mutex
	var output []string
	listener := outputListener(func(text string) {
		mu.Lock()
		output = append(output, text)
		mu.Unlock()
	})
	contrib := initscript.NewFunc("e2e", func(_ []string, _ string, emit func(string)) {
		emit("println 'hello from init'")
	})
	m := task.NewManager(p,
		task.WithContributors(task.StaticChain{contrib}),
		task.WithTempDir(t.TempDir()),
		task.WithListener(listener))

	req := &model.Request{
		ID:          model.NewID(model.KindExecute, dir),
		TaskNames:   []string{"build"},
		ProjectPath: dir,
	}
	if err := m.ExecuteTasks(context.Background(), req); err != nil {
		t.Fatalf("ExecuteTasks: %v", err)
	}

	joined := strings.Join(output, "\n")
	if !strings.Contains(joined, "//-- Generated by e2e") || !strings.Contains(joined, "println 'hello from init'") {
		t.Errorf("init script not visible to the build, output:\n%s", joined)
	}
}

type outputListener func(text string)

func (outputListener) OnStart(model.ID, string)                {}
func (f outputListener) OnOutput(_ model.ID, s string, _ bool) { f(s) }
func (outputListener) OnSuccess(model.ID)                      {}
func (outputListener) OnFailure(model.ID, error)               {}
func (outputListener) OnCancel(model.ID)                       {}
func (outputListener) OnEnd(model.ID)                          {}
