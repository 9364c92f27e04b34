//go:build windows

package camera

import (
	"golang.org/x/sys/windows"

	"github.com/reemio/endoapp/internal/logging"
)

// The paced read loop is timing sensitive; while a recording is active
// the process runs above normal priority so encoder and capture keep up
// under desktop load.

func raisePriority() {
	if err := windows.SetPriorityClass(windows.CurrentProcess(), windows.ABOVE_NORMAL_PRIORITY_CLASS); err != nil {
		logging.Warning("Could not raise process priority: %v", err)
	}
}

func restorePriority() {
	if err := windows.SetPriorityClass(windows.CurrentProcess(), windows.NORMAL_PRIORITY_CLASS); err != nil {
		logging.Warning("Could not restore process priority: %v", err)
	}
}
