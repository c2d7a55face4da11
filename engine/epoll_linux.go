//go:build linux

package engine

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// poller wraps a Linux epoll instance used purely for readiness
// multiplexing (spec.md §2's "OS primitives: socket, bind, listen, accept,
// select" are explicitly out-of-scope external collaborators; actual
// accept/read/write still go through net.Listener/net.Conn). Grounded on
// the teacher's reactor/epoll_reactor.go (momentics/hioload-ws), narrowed
// from the teacher's general-purpose Reactor interface (which also serves
// write-readiness and a callback-per-fd map) to exactly what the single
// engine loop needs: one Wait call per iteration returning the set of ready
// fds.
type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &poller{epfd: epfd}, nil
}

// add registers fd for read readiness.
func (p *poller) add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// remove unregisters fd. Errors are ignored by callers closing an fd that
// is about to vanish from the kernel's table anyway.
func (p *poller) remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks up to timeoutMs (negative blocks indefinitely) and appends
// every ready fd into out, returning the updated slice.
func (p *poller) wait(timeoutMs int, out []int) ([]int, error) {
	var raw [128]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		out = append(out, int(raw[i].Fd))
	}
	return out, nil
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}
