package fault

import (
	"os"
	"os/exec"
)

// KilledExitCode is the status a shell reports for a SIGKILLed process. It is
// used only if the kill signal somehow fails to end the process.
const KilledExitCode = 137

// Terminator ends the process. Production implementations never return.
type Terminator interface {
	Terminate(p Point)
}

// SelfKiller sends SIGKILL to the current process.
type SelfKiller struct{}

// Terminate kills the current process without running deferred calls.
func (SelfKiller) Terminate(Point) {
	killSelf()
	os.Exit(KilledExitCode)
}

// PatternKiller kills every process whose command line matches Pattern,
// which lets a crash also take down a supervisor that shares the harness's
// name. If the current process survives the pattern kill, Fallback runs.
type PatternKiller struct {
	Pattern  string
	Fallback Terminator
}

// Terminate runs pkill -9 -f Pattern, then the fallback.
func (k PatternKiller) Terminate(p Point) {
	cmd := exec.Command("pkill", "-9", "-f", k.Pattern)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	_ = cmd.Run()

	fallback := k.Fallback
	if fallback == nil {
		fallback = SelfKiller{}
	}
	fallback.Terminate(p)
}
