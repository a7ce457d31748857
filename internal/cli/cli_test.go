package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/clonely.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/clonely.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseSubmitJoinsText(t *testing.T) {
	parsed, err := Parse([]string{"submit", "what", "is", "--this?"})
	require.NoError(t, err)
	require.Equal(t, CommandSubmit, parsed.Command)
	require.Equal(t, "what is --this?", parsed.Text)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
		wantRaw  bool
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "help long flag",
			args:     []string{"--help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantCmd: CommandVersion,
		},
		{
			name:    "config after command",
			args:    []string{"status", "--config", "/tmp/cfg"},
			wantErr: "unexpected arguments after command",
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "requires a path",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"toggle"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"mic", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:    "submit without text",
			args:    []string{"submit", "  "},
			wantErr: "submit requires text",
		},
		{
			name:    "mic-stop",
			args:    []string{"mic-stop"},
			wantCmd: CommandMicStop,
		},
		{
			name:     "raw answer with config",
			args:     []string{"--config", "/tmp/cfg", "--raw", "answer"},
			wantCmd:  CommandAnswer,
			wantPath: "/tmp/cfg",
			wantRaw:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
			require.Equal(t, tc.wantRaw, parsed.Raw)
		})
	}
}

func TestForwarded(t *testing.T) {
	for _, cmd := range []Command{CommandStatus, CommandChat, CommandSubmit, CommandMic, CommandDone, CommandCopy, CommandQuit} {
		require.True(t, cmd.Forwarded(), cmd)
	}
	for _, cmd := range []Command{CommandRun, CommandDevices, CommandDoctor, CommandVersion, CommandHelp, Command("bogus")} {
		require.False(t, cmd.Forwarded(), cmd)
	}
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("clonely")
	for _, want := range []string{"run", "mic-start", "transcript", "copy", "doctor", "--config PATH"} {
		require.Contains(t, text, want)
	}
}
