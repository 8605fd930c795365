package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// defaultExecTimeout bounds commands that carry no timeout directive of
// their own. Commands that manage their own deadline (a leading timeout
// wrapper or an explicit --timeout/-t flag) run without the external bound.
const defaultExecTimeout = 15 * time.Second

var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`(?i)\bdel\s+/[fq]\b`),
	regexp.MustCompile(`(?i)\brmdir\s+/s\b`),
	regexp.MustCompile(`(?i)(?:^|[;&|]\s*)format\b`),
	regexp.MustCompile(`(?i)\b(mkfs|diskpart)\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	regexp.MustCompile(`(?i)>\s*/dev/sd`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
}

// ExecTool executes shell commands with safety guards and a bounded runtime.
type ExecTool struct {
	workingDir string
	timeout    time.Duration
}

// NewExecTool creates an ExecTool. workingDir is the default CWD
// (empty = os.Getwd()).
func NewExecTool(workingDir string) *ExecTool {
	return &ExecTool{workingDir: workingDir, timeout: defaultExecTimeout}
}

func (e *ExecTool) Name() string { return "exec" }

func (e *ExecTool) Description() string {
	return "Execute a shell command and return its output. Commands are killed after 15 seconds unless they set their own timeout."
}

func (e *ExecTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The shell command to execute"
			},
			"working_dir": {
				"type": "string",
				"description": "Optional working directory for the command"
			}
		},
		"required": ["command"]
	}`)
}

func (e *ExecTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	command, _ := params["command"].(string)
	if command == "" {
		return "", missingParam("exec", "command")
	}

	for _, p := range denyPatterns {
		if p.MatchString(strings.ToLower(command)) {
			return "", &ToolError{
				Code:        CodePermissionDenied,
				Type:        "shell_command_blocked",
				Message:     "command blocked by safety guard (dangerous pattern detected)",
				Recoverable: false,
				Suggestions: []string{"rephrase the command without destructive operations"},
			}
		}
	}

	cwd := e.workingDir
	if wd, ok := params["working_dir"].(string); ok && wd != "" {
		cwd = wd
	}
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	cmdCtx := ctx
	if !hasTimeoutDirective(command) {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if timedOut(cmd, cmdCtx, runErr) {
		return "", &ToolError{
			Code:        CodeConnectionTimeout,
			Type:        "shell_execution_failed",
			Message:     fmt.Sprintf("command did not finish within %s and was killed", e.timeout),
			Recoverable: true,
			Suggestions: []string{
				"prefix the command with `timeout <seconds>` to allow a longer runtime",
				"break the work into smaller commands",
			},
			Context: map[string]any{"command": command},
		}
	}

	var parts []string
	if out := stdout.String(); out != "" {
		parts = append(parts, out)
	}
	if errOut := stderr.String(); strings.TrimSpace(errOut) != "" {
		parts = append(parts, "STDERR:\n"+errOut)
	}
	if runErr != nil && cmd.ProcessState != nil && cmd.ProcessState.ExitCode() != 0 {
		parts = append(parts, fmt.Sprintf("\nExit code: %d", cmd.ProcessState.ExitCode()))
	}

	result := strings.Join(parts, "\n")
	if result == "" {
		result = "(no output)"
	}
	const maxLen = 10000
	if len(result) > maxLen {
		result = result[:maxLen] + fmt.Sprintf("\n... (truncated, %d more chars)", len(result)-maxLen)
	}
	return result, nil
}

// timedOut reports whether the command was killed by the external deadline
// or exited with the conventional timeout status (124, what the coreutils
// timeout wrapper uses).
func timedOut(cmd *exec.Cmd, ctx context.Context, runErr error) bool {
	if ctx.Err() == context.DeadlineExceeded {
		return true
	}
	if runErr == nil || cmd.ProcessState == nil {
		return false
	}
	code := cmd.ProcessState.ExitCode()
	// ExitCode is -1 when the process died from a signal (our kill).
	return code == 124 || code == -1
}

// hasTimeoutDirective reports whether the command already bounds its own
// runtime: a leading `timeout` wrapper, or a --timeout / -t flag anywhere
// in the command line.
func hasTimeoutDirective(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	if fields[0] == "timeout" {
		return true
	}
	for i, f := range fields {
		if f == "--timeout" || strings.HasPrefix(f, "--timeout=") {
			return true
		}
		if f == "-t" && i+1 < len(fields) && isNumeric(fields[i+1]) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
