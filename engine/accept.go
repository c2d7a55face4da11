package engine

import (
	"net"
	"syscall"

	"github.com/brevis-labs/emberhttpd/log"
	"github.com/brevis-labs/emberhttpd/session"
	"github.com/brevis-labs/emberhttpd/tokenizer"
)

// rawFD extracts the kernel file descriptor backing a net.Conn/net.Listener
// so the poller can watch it directly, matching spec.md's "select over the
// listening socket, every active session fd, and an internal control
// descriptor." net.Listener/net.Conn themselves remain the accept/recv/send
// primitives (spec.md §1 scopes those as external collaborators); only the
// readiness signal is re-derived here.
func rawFD(sc syscall.Conn) (int, error) {
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	cerr := raw.Control(func(f uintptr) { fd = int(f) })
	if cerr != nil {
		return -1, cerr
	}
	return fd, nil
}

// runLoop is the engine worker of spec.md §4.1: one goroutine, one poller,
// draining listener/session/control readiness until shutdown.
func (srv *Server) runLoop() {
	defer close(srv.loopDone)
	defer func() {
		srv.events.Clear(bitRunning)
		srv.events.Set(bitStopped)
	}()

	listenerFD, err := rawFD(srv.listener.(syscall.Conn))
	if err != nil {
		srv.log.Errorf("listener fd: %v", err)
		return
	}
	if err := srv.poll.add(listenerFD); err != nil {
		srv.log.Errorf("poll add listener: %v", err)
		return
	}

	var listenerV6FD int = -1
	if srv.listenerV6 != nil {
		listenerV6FD, err = rawFD(srv.listenerV6.(syscall.Conn))
		if err != nil {
			srv.log.Errorf("listener v6 fd: %v", err)
			return
		}
		if err := srv.poll.add(listenerV6FD); err != nil {
			srv.log.Errorf("poll add listener v6: %v", err)
			return
		}
	}

	if err := srv.poll.add(srv.ctrl.r); err != nil {
		srv.log.Errorf("poll add control: %v", err)
		return
	}

	fdToSlot := map[int]*session.Slot{}
	ready := make([]int, 0, 32)

	for {
		ready = ready[:0]
		ready, err = srv.poll.wait(-1, ready)
		if err != nil {
			srv.log.Errorf("poll wait: %v", err)
			break
		}

		for _, fd := range ready {
			switch {
			case fd == listenerFD:
				srv.handleAcceptOn(srv.listener, fdToSlot)
			case listenerV6FD != -1 && fd == listenerV6FD:
				srv.handleAcceptOn(srv.listenerV6, fdToSlot)
			case fd == srv.ctrl.r:
				srv.ctrl.drain()
				for _, w := range srv.workQ.DrainAll() {
					w()
				}
			default:
				if slot, ok := fdToSlot[fd]; ok {
					if srv.handleSessionReadable(slot) {
						delete(fdToSlot, fd)
					}
				}
			}
		}

		srv.mu.Lock()
		shuttingDown := srv.shutdownRequested
		srv.mu.Unlock()
		if shuttingDown {
			break
		}
	}

	srv.sessions.Range(func(s *session.Slot) {
		srv.closeSession(s)
	})
	srv.workQ.Close()
	srv.listener.Close()
	if srv.listenerV6 != nil {
		srv.listenerV6.Close()
	}
	srv.ctrl.close()
	srv.poll.close()
}

// handleAcceptOn implements spec.md §4.1's admission policy for a readiness
// event on ln (the IPv4 or the optional IPv6 listener): install into a free
// slot, or LRU-evict/reject at capacity.
func (srv *Server) handleAcceptOn(ln net.Listener, fdToSlot map[int]*session.Slot) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}

	slot := srv.sessions.AllocFree()
	if slot == nil {
		if srv.cfg.LRUPurgeEnable {
			victim := srv.sessions.EvictionCandidate()
			if victim == nil {
				conn.Close()
				return
			}
			evictedFD := victim.FD
			srv.closeSession(victim) // Reset() returns victim to Free
			delete(fdToSlot, evictedFD)
			slot = victim
		}
		if slot == nil {
			conn.Close()
			return
		}
	}

	fd, err := rawFD(conn.(syscall.Conn))
	if err != nil {
		conn.Close()
		slot.Reset()
		return
	}

	if srv.cfg.OpenFn != nil {
		if err := srv.cfg.OpenFn(fd); err != nil {
			conn.Close()
			slot.Reset()
			return
		}
	}

	applySockOpts(fd, conn, srv.cfg)

	slot.FD = fd
	slot.Conn = conn
	slot.RemoteAddr = conn.RemoteAddr().String()
	slot.LRUIdle = true
	slot.ReadBuf = srv.scratchPool.Get()
	slot.Parser = newSlotParser(srv, slot)
	srv.sessions.Touch(slot)

	if err := srv.poll.add(fd); err != nil {
		srv.log.Errorf("poll add session: %v", err)
		conn.Close()
		slot.Reset()
		return
	}
	fdToSlot[fd] = slot
	srv.log.WithFields(log.Fields{"fd": fd, "event": "accept", "remote_addr": slot.RemoteAddr}).Debugf("session accepted")
}

// closeSession implements spec.md §3's Closing->Free transition: runs
// destructors, closes the fd, releases buffers, zeroes the slot.
func (srv *Server) closeSession(s *session.Slot) {
	if srv.cfg.CloseFn != nil {
		srv.cfg.CloseFn(s.FD)
	}
	delete(srv.wsHandlers, s.FD)
	_ = srv.poll.remove(s.FD)
	if s.Conn != nil {
		s.Conn.Close()
	}
	s.Reset()
}

// parseState accumulates the in-flight request line/header bytes the
// tokenizer's callbacks deliver one byte (or fragment) at a time (spec.md
// §4.2: "on_url: append raw bytes into the URI slot... on_header_field /
// on_header_value: append to the scratch buffer in canonical Name: Value
// layout"). One parseState lives per session slot, rebuilt by
// newSlotParser after every Reset.
type parseState struct {
	uri          []byte
	headers      []headerLine
	building     *headerLine
	inValue      bool
	scratchUsed  int
	scratchCap   int
	maxHeaderLen int
}

func (ps *parseState) onURL(b []byte, maxURILen int) error {
	if len(ps.uri)+len(b) > maxURILen {
		return errURITooLong
	}
	ps.uri = append(ps.uri, b...)
	return nil
}

func (ps *parseState) onHeaderField(b []byte) error {
	if ps.inValue {
		ps.headers = append(ps.headers, *ps.building)
		ps.building = nil
		ps.inValue = false
	}
	if ps.building == nil {
		ps.building = &headerLine{}
	}
	ps.building.name += string(b)
	ps.scratchUsed += len(b)
	if ps.scratchUsed > ps.scratchCap || ps.singleHeaderTooLong() {
		return errHeaderTooLarge
	}
	return nil
}

func (ps *parseState) onHeaderValue(b []byte) error {
	ps.inValue = true
	ps.building.value += string(b)
	ps.scratchUsed += len(b)
	if ps.scratchUsed > ps.scratchCap || ps.singleHeaderTooLong() {
		return errHeaderTooLarge
	}
	return nil
}

// singleHeaderTooLong enforces spec.md's max_req_hdr_len bound on one
// "Name: Value" line, distinct from scratchCap's bound on the whole header
// block (spec.md §8 scenario 4: "X-Long: <max_req_hdr_len+1 chars>" -> 431).
func (ps *parseState) singleHeaderTooLong() bool {
	if ps.maxHeaderLen <= 0 || ps.building == nil {
		return false
	}
	return len(ps.building.name)+len(ps.building.value) > ps.maxHeaderLen
}

func (ps *parseState) finish() {
	if ps.building != nil {
		ps.headers = append(ps.headers, *ps.building)
		ps.building = nil
	}
}

// newSlotParser wires a fresh tokenizer.Parser over a fresh parseState,
// stashing the parseState on the slot so dispatch.go can read it back out
// once headers-complete fires (spec.md §4.2 step 3).
func newSlotParser(srv *Server, slot *session.Slot) *tokenizer.Parser {
	ps := &parseState{scratchCap: srv.cfg.ScratchSize, maxHeaderLen: srv.cfg.MaxReqHdrLen}
	cb := tokenizer.Callbacks{
		OnURL:         func(b []byte) error { return ps.onURL(b, srv.cfg.MaxURILen) },
		OnHeaderField: ps.onHeaderField,
		OnHeaderValue: ps.onHeaderValue,
		OnHeadersComplete: func() (tokenizer.HeadersAction, error) {
			ps.finish()
			return tokenizer.ActionContinue, nil
		},
	}
	parser := tokenizer.NewParser(cb)
	slot.ParserState = ps
	return parser
}

// resetSlotParse rearms both the tokenizer and its parseState for the next
// request on a keep-alive connection (spec.md §3 lifecycle:
// "WritingResponse -> Parsing").
func resetSlotParse(srv *Server, slot *session.Slot) {
	slot.Parser = newSlotParser(srv, slot)
}
