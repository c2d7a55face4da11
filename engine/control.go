//go:build linux

package engine

import "golang.org/x/sys/unix"

// controlPipe is spec.md's glossary "control descriptor": a self-pipe that
// lets external goroutines wake the single engine loop. Grounded on
// original_source/lib/event_groups (the C original's self-pipe plus
// event-bit group combination) — here the pipe only wakes the poller;
// eventgroup.Group still carries the running/stopped bits for Start/Stop
// synchronization.
type controlPipe struct {
	r, w int
}

func newControlPipe() (*controlPipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		return nil, err
	}
	return &controlPipe{r: fds[0], w: fds[1]}, nil
}

// wake writes one byte, waking any engine-loop iteration blocked in
// poller.wait. EAGAIN (pipe buffer already has a pending wake byte) is not
// an error: the loop only needs to wake once per batch of queued work.
func (c *controlPipe) wake() {
	var b [1]byte
	b[0] = 1
	_, _ = unix.Write(c.w, b[:])
}

// drain empties the pipe after a wake.
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
