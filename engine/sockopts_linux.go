//go:build linux

package engine

import (
	"net"
	"time"

	"github.com/brevis-labs/emberhttpd/config"
	"golang.org/x/sys/unix"
)

// applySockOpts wires spec.md §6's socket-level config knobs (TCP_NODELAY,
// SO_KEEPALIVE with its idle/interval/count triplet, SO_LINGER) straight onto
// the accepted connection's fd via golang.org/x/sys/unix, matching the
// teacher's own raw-syscall approach to connection tuning
// (internal/transport/transport_linux.go) rather than the narrower portable
// subset net.TCPConn exposes. conn is unused on this build (the raw fd is
// authoritative) but kept in the signature so accept.go calls one function
// on every platform.
func applySockOpts(fd int, conn net.Conn, cfg *config.Config) {
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	if cfg.KeepAliveEnable {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(cfg.KeepAliveIdle/time.Second))
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(cfg.KeepAliveInterval/time.Second))
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, cfg.KeepAliveCount)
	}

	if cfg.EnableSOLinger {
		_ = unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{
			Onoff:  1,
			Linger: int32(cfg.LingerTimeout / time.Second),
		})
	}
}
