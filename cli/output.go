package cli

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tidwall/pretty"
)

// isRunningInCI checks if we're running in a CI/CD environment
func isRunningInCI() bool {
	if os.Getenv("CI") != "" {
		return true
	}
	for _, v := range []string{"GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "BUILDKITE", "JENKINS_URL", "TF_BUILD"} {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// isInteractive reports whether w is a terminal a human is watching.
func isInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || isRunningInCI() {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// formatJSON indents raw JSON and colors it for terminals.
func formatJSON(w io.Writer, raw []byte) []byte {
	out := pretty.Pretty(raw)
	if isInteractive(w) {
		out = pretty.Color(out, nil)
	}
	return out
}
