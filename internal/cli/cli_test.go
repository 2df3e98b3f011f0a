package cli

import (
	"bytes"
	"strings"
	"testing"

	"txn-anomaly-alerts/internal/version"
)

func TestVersionCommand(t *testing.T) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), "version: "+version.Version) {
		t.Fatalf("unexpected output %q", out.String())
	}
	if appHandle != nil {
		t.Fatalf("version should not load configuration")
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "show", "export", "import", "replay", "dashboard", "simulate-alert", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered", name)
		}
	}
}
