//go:build !linux

package engine

import (
	"net"
	"time"

	"github.com/brevis-labs/emberhttpd/config"
)

// applySockOpts mirrors sockopts_linux.go's knobs through the portable
// net.TCPConn setters (SetNoDelay/SetKeepAliveConfig/SetLinger) on platforms
// where raw TCP_KEEP* socket-option constants are not uniformly available
// through golang.org/x/sys/unix. fd is unused on this build.
func applySockOpts(fd int, conn net.Conn, cfg *config.Config) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(true)
	if cfg.KeepAliveEnable {
		_ = tc.SetKeepAliveConfig(net.KeepAliveConfig{
			Enable:   true,
			Idle:     cfg.KeepAliveIdle,
			Interval: cfg.KeepAliveInterval,
			Count:    cfg.KeepAliveCount,
		})
	}
	if cfg.EnableSOLinger {
		_ = tc.SetLinger(int(cfg.LingerTimeout / time.Second))
	}
}
