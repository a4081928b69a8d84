package ircd

import (
	"fmt"
	"net"
	"time"

	"github.com/horgh/irc"
)

// handlerState is the explicit per-session state machine the spec calls for
// (§4.3/§4.4, Design Notes "state-dependent handler selection"): the state
// itself is the source of truth, not a swapped-out function pointer.
type handlerState int

const (
	// stateRegistering accepts only NICK/USER/QUIT/PING/PONG.
	stateRegistering handlerState = iota
	// stateEstablished is reached once both a nickname and a USER have been
	// accepted.
	stateEstablished
)

// outboxCapacity bounds the number of queued outbound messages per
// session. At the 512 byte maximum line length this caps a session's
// write queue at roughly 64 KiB, the minimum the spec recommends
// (§5 Resources, §9 "send-queue bound").
const outboxCapacity = 128

// idlePingAfter is how long a session may go without inbound traffic
// before the reactor sends it a liveness PING.
const idlePingAfter = 90 * time.Second

// idleDeadAfter is how long a session may go without inbound traffic
// before the reactor disconnects it outright.
const idleDeadAfter = 180 * time.Second

// Session holds all per-connection state: identity, buffers, channel
// membership, and liveness bookkeeping. It is only ever mutated by the
// reactor's single event-loop goroutine; the reader and writer goroutines
// that own its socket only move bytes.
type Session struct {
	ID uint64

	conn net.Conn

	// Host and Port are the observed peer address, captured at accept.
	Host string
	Port int

	framer lineFramer

	// outbox carries encoded protocol lines to the writer goroutine. The
	// event loop is the sole producer; the writer goroutine is the sole
	// consumer.
	outbox chan string

	Nickname string
	Username string
	RealName string

	// Channels maps a folded channel name to the Channel itself.
	Channels map[string]*Channel

	LastActivityAt  time.Time
	PingOutstanding bool

	State handlerState

	closed bool
}

func newSession(id uint64, conn net.Conn) *Session {
	host, port := splitHostPort(conn.RemoteAddr())
	return &Session{
		ID:             id,
		conn:           conn,
		Host:           host,
		Port:           port,
		outbox:         make(chan string, outboxCapacity),
		Channels:       make(map[string]*Channel),
		LastActivityAt: time.Now(),
		State:          stateRegistering,
	}
}

func splitHostPort(addr net.Addr) (string, int) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String(), 0
	}
	return tcpAddr.IP.String(), tcpAddr.Port
}

func (s *Session) String() string {
	return fmt.Sprintf("session %d (%s:%d)", s.ID, s.Host, s.Port)
}

// established reports whether the session has completed registration.
func (s *Session) established() bool {
	return s.State == stateEstablished
}

// prefix is the nick!user@host tag used as the source of messages this
// session originates to others.
func (s *Session) prefix() string {
	return fmt.Sprintf("%s!%s@%s", s.Nickname, s.Username, s.Host)
}

// displayNickOrStar is used as the target nick in numeric replies sent
// before registration completes, matching the "*" placeholder ircd-ratbox
// and catbox both use.
func (s *Session) displayNickOrStar() string {
	if s.Nickname == "" {
		return "*"
	}
	return s.Nickname
}

// onChannel reports whether the session is a member of c.
func (s *Session) onChannel(c *Channel) bool {
	_, ok := s.Channels[foldIdentifier(c.Name)]
	return ok
}

// enqueue appends a protocol message to the session's outbound queue. If
// the queue is already full the session is disconnected with
// "send queue exceeded" rather than silently dropping data, per the
// open question in §9.
func (s *Session) enqueue(reg *Registry, m irc.Message) {
	if s.closed {
		return
	}

	encoded, err := m.Encode()
	if err != nil && err != irc.ErrTruncated {
		// A message we built ourselves failed to encode; this is a bug in a
		// caller, not a protocol condition. Drop it rather than wedge the
		// session.
		return
	}

	select {
	case s.outbox <- encoded:
	default:
		reg.disconnect(s, "send queue exceeded")
	}
}

// enqueueRaw queues an already-encoded line (used for ERROR on disconnect,
// where we want delivery best-effort even as the session is torn down).
func (s *Session) enqueueRaw(line string) {
	if s.closed {
		return
	}
	select {
	case s.outbox <- line:
	default:
	}
}
