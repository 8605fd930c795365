package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecRunsCommand(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	out, err := tool.Execute(context.Background(), map[string]any{"command": "echo hello"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("output = %q", out)
	}
}

func TestExecReportsExitCode(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	out, err := tool.Execute(context.Background(), map[string]any{"command": "exit 3"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "Exit code: 3") {
		t.Errorf("output = %q", out)
	}
}

func TestExecBlocksDangerousCommands(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	for _, cmd := range []string{"rm -rf /", "sudo shutdown now", "dd if=/dev/zero of=/dev/sda"} {
		_, err := tool.Execute(context.Background(), map[string]any{"command": cmd})
		te, ok := err.(*ToolError)
		if !ok {
			t.Fatalf("command %q: expected ToolError, got %v", cmd, err)
		}
		if te.Code != CodePermissionDenied || te.Type != "shell_command_blocked" {
			t.Errorf("command %q: envelope = %+v", cmd, te)
		}
	}
}

func TestExecMissingCommand(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	_, err := tool.Execute(context.Background(), map[string]any{})
	te, ok := err.(*ToolError)
	if !ok || te.Code != CodeMissingRequired {
		t.Fatalf("expected MISSING_REQUIRED, got %v", err)
	}
}

func TestExecKillsLongCommands(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	tool.timeout = 100 * time.Millisecond

	_, err := tool.Execute(context.Background(), map[string]any{"command": "sleep 5"})
	te, ok := err.(*ToolError)
	if !ok {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.Code != CodeConnectionTimeout || te.Type != "shell_execution_failed" {
		t.Errorf("envelope = %+v", te)
	}
	if !te.Recoverable {
		t.Error("timeout must be recoverable")
	}
	found := false
	for _, s := range te.Suggestions {
		if strings.Contains(s, "timeout") {
			found = true
		}
	}
	if !found {
		t.Error("timeout envelope should suggest the timeout wrapper")
	}
}

func TestExecHonoursOwnTimeoutDirective(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	tool.timeout = 100 * time.Millisecond

	// The command bounds itself; the external deadline must not apply, and
	// the coreutils wrapper's exit 124 still maps to the timeout envelope.
	_, err := tool.Execute(context.Background(), map[string]any{"command": "timeout 1 sleep 5"})
	te, ok := err.(*ToolError)
	if !ok {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.Type != "shell_execution_failed" {
		t.Errorf("envelope = %+v", te)
	}
}

func TestHasTimeoutDirective(t *testing.T) {
	cases := []struct {
		command string
		want    bool
	}{
		{"timeout 30 make build", true},
		{"mytool --timeout 60", true},
		{"mytool --timeout=60", true},
		{"mytool -t 45 run", true},
		{"mytool -t file.txt", false},
		{"echo timeout", false},
		{"sleep 100", false},
		{"", false},
	}
	for _, c := range cases {
		if got := hasTimeoutDirective(c.command); got != c.want {
			t.Errorf("hasTimeoutDirective(%q) = %v, want %v", c.command, got, c.want)
		}
	}
}

func TestExecTruncatesLongOutput(t *testing.T) {
	tool := NewExecTool(t.TempDir())
	out, err := tool.Execute(context.Background(), map[string]any{
		"command": "head -c 20000 /dev/zero | tr '\\0' 'x'",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "truncated") {
		t.Error("long output should be truncated")
	}
	if len(out) > 11000 {
		t.Errorf("output length = %d", len(out))
	}
}
