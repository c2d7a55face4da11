//go:build !linux

package engine

import "golang.org/x/sys/unix"

// controlPipe is the portable (non-Linux) self-pipe, built on the
// lowest-common-denominator unix.Pipe rather than Linux's pipe2(2) fast
// path in control.go.
type controlPipe struct {
	r, w int
}

func newControlPipe() (*controlPipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		return nil, err
	}
	return &controlPipe{r: fds[0], w: fds[1]}, nil
}

func (c *controlPipe) wake() {
	var b [1]byte
	b[0] = 1
	_, _ = unix.Write(c.w, b[:])
}

func (c *controlPipe) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(c.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (c *controlPipe) close() {
	unix.Close(c.r)
	unix.Close(c.w)
}
