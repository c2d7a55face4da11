//go:build !linux

package engine

import "golang.org/x/sys/unix"

// poller is the non-Linux readiness multiplexer, built on the portable
// unix.Poll(2) wrapper in golang.org/x/sys/unix rather than the teacher's
// Linux-only epoll path (reactor/epoll_reactor.go has no portable
// counterpart in the teacher tree; reactor_windows.go uses IOCP, which has
// no equivalent semantics to adapt here). Functionally identical to the
// Linux poller: one wait() call per engine-loop iteration returning ready
// fds.
type poller struct {
	fds []unix.PollFd
}

func newPoller() (*poller, error) {
	return &poller{}, nil
}

func (p *poller) add(fd int) error {
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	return nil
}

func (p *poller) remove(fd int) error {
	for i, pf := range p.fds {
		if int(pf.Fd) == fd {
			p.fds = append(p.fds[:i], p.fds[i+1:]...)
			return nil
		}
	}
	return nil
}

func (p *poller) wait(timeoutMs int, out []int) ([]int, error) {
	if len(p.fds) == 0 {
		return out, nil
	}
	n, err := unix.Poll(p.fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, err
	}
	if n == 0 {
		return out, nil
	}
	for _, pf := range p.fds {
		if pf.Revents&unix.POLLIN != 0 {
			out = append(out, int(pf.Fd))
		}
	}
	return out, nil
}

func (p *poller) close() error { return nil }
