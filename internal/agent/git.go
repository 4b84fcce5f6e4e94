package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitInspector reports repository state after a run so results can be tied
// to a concrete commit.
type GitInspector interface {
	HeadCommit(ctx context.Context, dir string) (string, error)
}

// CLIGitInspector shells out to git.
type CLIGitInspector struct {
	GitPath string
}

// NewGitInspector creates a git inspector using the git binary on PATH.
func NewGitInspector() *CLIGitInspector {
	return &CLIGitInspector{GitPath: "git"}
}

// HeadCommit returns the SHA of HEAD in the given directory.
func (g *CLIGitInspector) HeadCommit(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, g.GitPath, "rev-parse", "HEAD")
	cmd.Dir = dir

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD in %s: %w", dir, err)
	}
	return strings.TrimSpace(string(output)), nil
}
