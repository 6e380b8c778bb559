//go:build windows

package supervisor

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// isProcessAlive probes liveness via a tasklist scan for the pid, per
// spec.md §4.5's Windows branch.
func isProcessAlive(pid int) bool {
	out, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid)).Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), strconv.Itoa(pid))
}

// spawnDetached launches argv[0] with argv[1:]. Signal-based shutdown is
// best-effort on Windows per spec.md §4.5; the worker still exits cleanly
// on its own check-interval loop if no signal arrives.
func spawnDetached(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Start()
}
