package vfd

import (
	"fmt"

	"github.com/vfdstore/vfd/config"
	"github.com/vfdstore/vfd/vfderrors"
	"github.com/vfdstore/vfd/vfdlog"
	"golang.org/x/sys/unix"
)

// setMaxSafeFds implements spec §4.6: probe the usable FD budget with
// dup(0), cross-check against RLIMIT_NOFILE, and derive max_safe_fds.
func setMaxSafeFds(maxFilesPerProcess int) (int, error) {
	usable, highest, err := probeUsableFds(maxFilesPerProcess)
	if err != nil {
		return 0, vfderrors.NewBudgetExhausted("set_max_safe_fds", err)
	}

	alreadyOpen := highest + 1 - usable
	limit := maxFilesPerProcess - alreadyOpen
	safe := usable
	if limit < safe {
		safe = limit
	}

	if rlim, err := rlimitNofile(); err == nil {
		cur := int(rlim.Cur)
		if cur > 0 && cur-alreadyOpen < safe {
			vfdlog.Debugf(nil, "RLIMIT_NOFILE cur=%d tighter than dup(0) probe, clamping", cur)
			safe = cur - alreadyOpen
		}
	}

	safe -= config.NumReservedFDs
	if safe < config.FDMinFree {
		return 0, vfderrors.NewBudgetExhausted("set_max_safe_fds",
			fmt.Errorf("max_safe_fds=%d below FD_MINFREE=%d", safe, config.FDMinFree))
	}
	return safe, nil
}

// probeUsableFds repeatedly dup(0)s until failure or maxFilesPerProcess
// successes, then closes every probe fd again (spec §4.6 step 1).
func probeUsableFds(maxFilesPerProcess int) (usable, highest int, err error) {
	fds := make([]int, 0, config.InitialProbeDefault)
	defer func() {
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
	}()

	for len(fds) < maxFilesPerProcess {
		fd, derr := unix.Dup(0)
		if derr != nil {
			break
		}
		fds = append(fds, fd)
		if fd > highest {
			highest = fd
		}
	}
	if len(fds) == 0 {
		return 0, 0, fmt.Errorf("dup(0) failed on the very first probe")
	}
	return len(fds), highest, nil
}

func rlimitNofile() (unix.Rlimit, error) {
	var rlim unix.Rlimit
	err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim)
	return rlim, err
}
