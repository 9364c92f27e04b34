//go:build windows || linux

package main

import (
	"os/exec"
	"runtime"

	"github.com/reemio/endoapp/internal/logging"
)

// openInExplorer opens a directory in the platform file explorer.
func openInExplorer(dir string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("explorer", dir)
	case "darwin":
		cmd = exec.Command("open", dir)
	case "linux":
		cmd = exec.Command("xdg-open", dir)
	default:
		logging.Warning("Unsupported platform: %s", runtime.GOOS)
		return
	}
	if err := cmd.Start(); err != nil {
		logging.Error("Failed to open directory: %v", err)
	}
}
