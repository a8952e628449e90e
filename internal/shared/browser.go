package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// browserCommand returns the platform launcher for opening a URL.
func browserCommand(url string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("cmd", "/c", "start", url), nil
	}
	return nil, fmt.Errorf("no browser launcher for %s", runtime.GOOS)
}

// OpenBrowser launches the system browser at url. The OAuth flow uses it to
// hand the user off to the consent page; callers print the URL as a fallback
// when the launch fails.
func OpenBrowser(url string) error {
	cmd, err := browserCommand(url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
