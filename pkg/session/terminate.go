package session

import "golang.org/x/sys/unix"

func defaultTerminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}
