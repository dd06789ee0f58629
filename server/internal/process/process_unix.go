//go:build unix

package process

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the whole process group of p.
func terminate(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}

	pgid, err := unix.Getpgid(p.Pid)
	if err != nil {
		return err
	}

	return unix.Kill(-pgid, unix.SIGTERM)
}

func forceKill(p *os.Process) {
	if pgid, err := unix.Getpgid(p.Pid); err == nil {
		unix.Kill(-pgid, unix.SIGKILL)
		return
	}
	p.Kill()
}
