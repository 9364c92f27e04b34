//go:build !windows

package camera

// Priority boosting is only implemented on Windows, where desktop load
// visibly disturbs the paced capture loop.

func raisePriority() {}

func restorePriority() {}
