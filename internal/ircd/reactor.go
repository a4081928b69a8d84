package ircd

import (
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// readChunkSize is the bounded amount read from a session's socket per
// wake-up (§4.6 step 5: "read up to a bounded chunk (≈1 KiB)").
const readChunkSize = 1024

// livenessSweepInterval is how often the reactor reaps idle sessions and
// issues liveness PINGs (§4.6 step 7, "≈10 s").
const livenessSweepInterval = 10 * time.Second

// Core is the reactor: the single-threaded readiness multiplexer described
// in §4.6. There is exactly one goroutine (Run) that ever mutates the
// Registry; every other goroutine here only moves bytes and reports what
// happened over a channel.
type Core struct {
	registry *Registry
	logger   *logger

	nextID uint64

	accepted chan *Session
	inbound  chan inboundEvent
	writeErr chan *Session

	listeners []net.Listener
}

type inboundEvent struct {
	session *Session
	data    []byte
	err     error
}

// NewCore constructs a reactor core. cfg is supplied wholesale by the CLI
// front end (§6); the core never reads configuration from disk or the
// environment itself.
func NewCore(cfg Config) *Core {
	lg := newLogger(cfg.Verbose, cfg.Debug)
	return &Core{
		registry: newRegistry(cfg, lg),
		logger:   lg,
		accepted: make(chan *Session, 16),
		inbound:  make(chan inboundEvent, 64),
		writeErr: make(chan *Session, 16),
	}
}

// Listen binds every address in addrs (already fully-formed host:port
// strings — turning a bare port list plus optional bind IP into these is
// the CLI collaborator's job) and starts accepting connections on each.
// A bind failure is fatal to the caller (§7.4): it is returned wrapped,
// not logged and swallowed.
func (c *Core) Listen(addrs []string) error {
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.Wrapf(err, "unable to listen on %s", addr)
		}
		c.listeners = append(c.listeners, ln)
		c.logger.infof("listening on %s", ln.Addr())
		go c.acceptLoop(ln)
	}
	return nil
}

// Run drives the reactor loop until the process is killed. Per §7.5, a
// fault isolated to one session's handling must never bring this loop
// down; dispatchLine recovers from any panic in a single message's handling
// and disconnects only the offending session.
func (c *Core) Run() {
	ticker := time.NewTicker(livenessSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case s := <-c.accepted:
			c.registry.Connections[s.ID] = s
			c.logger.infof("accepted %s", s)

		case ev := <-c.inbound:
			c.handleInbound(ev)

		case s := <-c.writeErr:
			if _, ok := c.registry.Connections[s.ID]; ok {
				c.registry.disconnect(s, "write error")
			}

		case <-ticker.C:
			c.livenessSweep()
		}
	}
}

func (c *Core) handleInbound(ev inboundEvent) {
	s := ev.session
	if _, ok := c.registry.Connections[s.ID]; !ok {
		// Already disconnected (e.g. by a previous event in this same batch).
		return
	}

	if ev.err != nil {
		c.registry.disconnect(s, quitMessageForError(ev.err))
		return
	}

	s.LastActivityAt = time.Now()
	s.PingOutstanding = false

	for _, line := range s.framer.feed(ev.data) {
		if line == "" {
			continue
		}
		c.dispatchLine(s, line)
		// A handler may have disconnected this session (e.g. QUIT). Stop
		// processing the rest of this read's lines for it, matching "Messages
		// originating from a single session in one readable burst are parsed
		// and dispatched in arrival order" without dispatching to a session
		// that no longer exists.
		if _, ok := c.registry.Connections[s.ID]; !ok {
			return
		}
	}
}

func (c *Core) dispatchLine(s *Session, line string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.infof("recovered from panic handling %s from %s: %v", line, s, r)
			c.registry.disconnect(s, "internal error")
		}
	}()

	command, args, err := parseLine(line)
	if err != nil {
		c.logger.debugf("malformed line from %s: %q: %s", s, line, err)
		return
	}
	if command == "" {
		return
	}

	c.dispatch(s, command, args)
}

// livenessSweep implements §4.6's liveness sweep and §7.3's liveness
// timeouts.
func (c *Core) livenessSweep() {
	now := time.Now()
	for _, s := range c.registry.Connections {
		idle := now.Sub(s.LastActivityAt)

		if idle > idleDeadAfter {
			c.registry.disconnect(s, "ping timeout")
			continue
		}

		if idle > idlePingAfter && !s.PingOutstanding {
			if s.established() {
				c.registry.message(s, "PING", []string{c.registry.Config.ServerName})
				s.PingOutstanding = true
			} else {
				c.registry.disconnect(s, "ping timeout")
			}
		}
	}
}

func (c *Core) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			c.logger.infof("accept on %s failed: %s", ln.Addr(), err)
			return
		}

		id := atomic.AddUint64(&c.nextID, 1)
		s := newSession(id, conn)

		go c.readLoop(s)
		go c.writeLoop(s)

		c.accepted <- s
	}
}

// readLoop is the only goroutine that calls Read on a session's socket. It
// never touches Registry or Session fields beyond the connection handle;
// everything it learns is reported through the inbound channel for the
// reactor goroutine to act on.
func (c *Core) readLoop(s *Session) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.inbound <- inboundEvent{session: s, data: chunk}
		}
		if err != nil {
			c.inbound <- inboundEvent{session: s, err: err}
			return
		}
	}
}

// writeLoop is the only goroutine that calls Write on a session's socket.
// It drains the outbox the reactor enqueues onto until the reactor closes
// it (on disconnect), then closes the connection.
func (c *Core) writeLoop(s *Session) {
	for line := range s.outbox {
		if _, err := io.WriteString(s.conn, line); err != nil {
			c.writeErr <- s
			break
		}
	}
	_ = s.conn.Close()
}

// quitMessageForError classifies a socket error into the human-readable
// disconnect reason used as the session's QUIT/ERROR text.
func quitMessageForError(err error) string {
	if err == nil || err == io.EOF {
		return "remote host closed the connection"
	}

	msg := err.Error()

	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return "ping timeout"
	}

	if strings.Contains(msg, "connection reset by peer") {
		return "connection reset by peer"
	}

	return msg
}
