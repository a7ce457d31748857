package app

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/clonely/internal/ipc"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "clonely")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestRunnerStatusIdleWhenSocketUnavailable(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunnerForwardFailsWhenDaemonNotRunning(t *testing.T) {
	paths := setupRunnerEnv(t)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "mic"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "clonely daemon is not running")
}

func TestRunnerForwardsCommandsToDaemon(t *testing.T) {
	paths := setupRunnerEnv(t)
	requests := make(chan ipc.Request, 8)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "clonely.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		requests <- req
		switch req.Command {
		case "status":
			return ipc.Response{OK: true, State: "live.streaming", Cooldown: true, Muted: true}
		case "submit":
			return ipc.Response{OK: true, State: "chat.loading"}
		case "answer":
			return ipc.Response{OK: true, Answer: "# Title\n\nUse a **map**."}
		case "transcript":
			return ipc.Response{OK: true, Transcript: []string{"First line.", "Second line."}}
		case "mic-start":
			return ipc.Response{OK: true, Message: "microphone cooling down"}
		default:
			return ipc.Response{OK: false, Error: "unsupported"}
		}
	})
	defer shutdown()

	tests := []struct {
		args       []string
		wantOut    string
		wantCode   int
		wantStderr string
	}{
		{args: []string{"status"}, wantOut: "live.streaming (cooldown, muted)\n"},
		{args: []string{"submit", "what", "is", "this?"}, wantOut: ""},
		{args: []string{"answer"}, wantOut: "# Title\n\nUse a **map**.\n"},
		{args: []string{"transcript"}, wantOut: "First line.\nSecond line.\n"},
		{args: []string{"mic-start"}, wantOut: "microphone cooling down\n"},
		{args: []string{"copy"}, wantCode: 1, wantStderr: "unsupported"},
	}

	for _, tc := range tests {
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		runner := Runner{Stdout: stdout, Stderr: stderr}

		exitCode := runner.Execute(context.Background(), append([]string{"--config", paths.configPath}, tc.args...))
		require.Equal(t, tc.wantCode, exitCode, tc.args)
		require.Equal(t, tc.wantOut, stdout.String(), tc.args)
		if tc.wantStderr != "" {
			require.Contains(t, stderr.String(), tc.wantStderr)
		} else {
			require.Empty(t, stderr.String(), tc.args)
		}
	}

	require.Equal(t, ipc.Request{Command: "status"}, <-requests)
	require.Equal(t, ipc.Request{Command: "submit", Value: "what is this?"}, <-requests)
}

func TestRunnerStatusPrintsMachineError(t *testing.T) {
	paths := setupRunnerEnv(t)

	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "clonely.sock"), func(_ context.Context, req ipc.Request) ipc.Response {
		require.Equal(t, "status", req.Command)
		return ipc.Response{OK: true, State: "", Message: "429 rate limited"}
	})
	defer shutdown()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "idle\nerror: 429 rate limited\n", stdout.String())
}

func TestTryForwardSuccessAndFailureResponses(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "clonely.sock")
	shutdown := startIPCServerForRunnerTest(t, socketPath, func(_ context.Context, req ipc.Request) ipc.Response {
		if req.Command == "status" {
			return ipc.Response{OK: true, State: "chat.idle"}
		}
		return ipc.Response{OK: false, Error: "unsupported"}
	})
	defer shutdown()

	resp, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: "status"})
	require.True(t, handled)
	require.NoError(t, err)
	require.Equal(t, "chat.idle", resp.State)

	_, handled, err = tryForward(context.Background(), socketPath, ipc.Request{Command: "bogus"})
	require.True(t, handled)
	require.ErrorContains(t, err, "unsupported")
}

func TestTryForwardDoesNotRemoveSocketPathOnForwardFailure(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "clonely.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	_, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: "status"})
	require.False(t, handled)
	require.NoError(t, err)

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
}

func TestTryForwardTreatsReadFailuresAsHandledErrors(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "clonely.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, acceptErr := listener.Accept()
		if acceptErr == nil {
			_ = conn.Close()
		}
	}()

	_, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: "status"})
	require.True(t, handled)
	require.ErrorContains(t, err, "forward command \"status\":")

	<-done
	require.NoError(t, listener.Close())
}

func TestRunnerDoctorCommandDispatchesAndPrintsReport(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv("XDG_SESSION_TYPE", "x11")
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "doctor"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdout.String(), "config: loaded")
	require.Contains(t, stdout.String(), "XDG_SESSION_TYPE")
	require.Contains(t, stdout.String(), "[FAIL] GEMINI_API_KEY")
}

func TestRunnerDevicesCommandDispatches(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &stderr}

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "devices"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "error:")
}

func TestRunDaemonServesBridgeUntilQuit(t *testing.T) {
	paths := setupRunnerEnv(t)
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	require.NoError(t, os.WriteFile(paths.configPath, []byte(`{
		"indicator": {"enable": false, "sound_enable": false},
		"screen": {"enable": false},
		"live": {"cooldown_ms": 50},
	}`), 0o600))
	socketPath := filepath.Join(paths.runtimeDir, "clonely.sock")

	var stderr bytes.Buffer
	exited := make(chan int, 1)
	go func() {
		runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}
		exited <- runner.Execute(context.Background(), []string{"--config", paths.configPath, "run"})
	}()

	send := func(command, value string) ipc.Response {
		resp, handled, err := tryForward(context.Background(), socketPath, ipc.Request{Command: command, Value: value})
		require.True(t, handled, command)
		require.NoError(t, err, command)
		return resp
	}
	state := func() string {
		resp, _, err := tryForward(context.Background(), socketPath, ipc.Request{Command: "status"})
		if err != nil {
			return ""
		}
		return resp.State
	}
	require.Eventually(t, func() bool {
		alive, _ := ipc.Probe(context.Background(), socketPath, 100*time.Millisecond)
		return alive
	}, 3*time.Second, 20*time.Millisecond)

	require.Equal(t, "chat.idle", send("chat", "").State)
	send("submit", "hello")
	require.Eventually(t, func() bool { return state() == "chat.error" }, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, send("status", "").Message, "GEMINI_API_KEY")

	require.Equal(t, "live.loading", send("mic", "").State)
	require.Eventually(t, func() bool { return state() == "live.error" }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "chat.idle", send("mic", "").State)
	require.Empty(t, send("answer", "").Answer)

	require.Equal(t, "stopping", send("quit", "").Message)
	select {
	case code := <-exited:
		require.Equal(t, 0, code, stderr.String())
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, statErr := os.Stat(socketPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRunDaemonRefusesSecondOwner(t *testing.T) {
	paths := setupRunnerEnv(t)
	shutdown := startIPCServerForRunnerTest(t, filepath.Join(paths.runtimeDir, "clonely.sock"), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "idle"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr}
	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "already running")
}

func TestWrapWidth(t *testing.T) {
	require.Equal(t, 80, wrapWidth(0, false))
	require.Equal(t, 80, wrapWidth(200, false))
	require.Equal(t, 200, wrapWidth(200, true))
	require.Equal(t, 60, wrapWidth(60, false))
}

func TestRenderMarkdown(t *testing.T) {
	out, err := renderMarkdown("Use a **hash map**.", 40)
	require.NoError(t, err)
	require.Contains(t, out, "hash map")
	require.NotContains(t, out, "**")
}

func TestTerminalWidthRejectsNonFiles(t *testing.T) {
	_, tty := terminalWidth(&bytes.Buffer{})
	require.False(t, tty)
}

func TestSocketErrorHelpers(t *testing.T) {
	require.False(t, isSocketMissing(nil))
	require.False(t, isConnectionRefused(nil))

	require.True(t, isSocketMissing(os.ErrNotExist))
	require.True(t, isSocketMissing(errors.New("dial unix /tmp/clonely.sock: no such file or directory")))
	require.False(t, isSocketMissing(errors.New("other error")))

	require.True(t, isConnectionRefused(syscall.ECONNREFUSED))
	require.False(t, isConnectionRefused(errors.New("other error")))
}

type runnerPaths struct {
	configPath string
	runtimeDir string
}

func setupRunnerEnv(t *testing.T) runnerPaths {
	t.Helper()

	runtimeDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)
	for _, key := range []string{"GEMINI_API_KEY", "DEEPGRAM_API_KEY"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	configPath := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte("\n"), 0o600))

	return runnerPaths{configPath: configPath, runtimeDir: runtimeDir}
}

func startIPCServerForRunnerTest(t *testing.T, socketPath string, handler func(context.Context, ipc.Request) ipc.Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(ctx, listener, ipc.HandlerFunc(handler))
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}
