package multiplexer

import (
	"errors"
	"os/exec"
)

// RunAndWaitForMarker starts cmd in a scratch multiplexer sharing target's
// options, delivers its output until a line matches check, then transfers
// the process with its unread output to target. The matched line itself is
// not delivered.
//
// ready is false when the process finished before printing the marker; its
// output has been delivered and its exit code is recorded on the scratch
// multiplexer only. Either way target then runs its handoff ticks.
func RunAndWaitForMarker(target *Multiplexer, tag string, check LineCheck, cmd *exec.Cmd) (proc *Cmd, ready bool, err error) {
	scratch := newWithConfig(target.cfg)
	defer scratch.Close()

	target.notice("Running %s", tag)
	proc, err = scratch.Run(tag, cmd)
	if err != nil {
		return nil, false, err
	}
	for _, s := range scratch.Streams(proc) {
		if err := scratch.SetLineCheck(s, check); err != nil {
			return proc, false, err
		}
	}

	err = scratch.ProcessAll()
	var intr *Interrupted
	switch {
	case errors.As(err, &intr):
		if err := scratch.Transfer(target, proc); err != nil {
			return proc, false, err
		}
		target.notice("%s is running", tag)
		ready = true
	case err != nil:
		return proc, false, err
	default:
		target.notice("Process %s finished early", tag)
	}

	for _, tick := range target.cfg.handoffTicks {
		if _, err := target.Process(tick); err != nil {
			return proc, ready, err
		}
	}
	return proc, ready, nil
}
