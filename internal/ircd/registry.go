package ircd

import (
	"fmt"
	"time"

	"github.com/horgh/irc"
)

// Config holds everything the core needs that an external collaborator
// (the CLI front end) is responsible for supplying, apart from the bind
// addresses, which are passed to Core.Listen instead: the two verbosity
// flags, plus ServerName/Version/CreatedAt for the welcome numerics, all of
// it computed by the caller rather than read from disk or the environment.
type Config struct {
	ServerName string
	Version    string
	CreatedAt  time.Time

	Verbose bool
	Debug   bool
}

// Registry owns the three server-wide indexes described in §3: connection
// to session, folded nickname to session, and folded channel name to
// channel. It also owns the invariant-preserving mutation methods, so that
// disconnect (§4.7) has exactly one place to run from.
//
// Every method here runs exclusively on the reactor's single event-loop
// goroutine; there is no locking because there is no concurrent mutation.
type Registry struct {
	Config Config

	Connections map[uint64]*Session
	Nicknames   map[string]*Session
	Channels    map[string]*Channel

	logger *logger
}

func newRegistry(cfg Config, lg *logger) *Registry {
	return &Registry{
		Config:      cfg,
		Connections: make(map[uint64]*Session),
		Nicknames:   make(map[string]*Session),
		Channels:    make(map[string]*Channel),
		logger:      lg,
	}
}

// getClient looks up a session by nickname (any case/bracket folding).
func (r *Registry) getClient(nick string) (*Session, bool) {
	s, ok := r.Nicknames[foldIdentifier(nick)]
	return s, ok
}

// getChannel looks up a channel by name (any case folding).
func (r *Registry) getChannel(name string) (*Channel, bool) {
	c, ok := r.Channels[foldIdentifier(name)]
	return c, ok
}

// getOrCreateChannel returns the named channel, creating and registering
// it if it does not exist yet (§3 Lifecycle: "Channels are born the first
// time any session names them in JOIN").
func (r *Registry) getOrCreateChannel(name string) *Channel {
	folded := foldIdentifier(name)
	c, ok := r.Channels[folded]
	if ok {
		return c
	}
	c = newChannel(name)
	r.Channels[folded] = c
	return c
}

// joinChannel adds s to c, creating the bidirectional membership
// invariant (P2).
func (r *Registry) joinChannel(c *Channel, s *Session) {
	folded := foldIdentifier(c.Name)
	r.Channels[folded] = c
	c.addMember(s)
}

// partChannel removes s from c. If c is left with no members it is
// deleted from the registry (§3 Invariant 4 / P3).
func (r *Registry) partChannel(c *Channel, s *Session) {
	delete(c.Members, s.ID)
	delete(s.Channels, foldIdentifier(c.Name))
	if len(c.Members) == 0 {
		delete(r.Channels, foldIdentifier(c.Name))
	}
}

// setNickname records the registry side of a nick assignment, freeing any
// previous nickname this session held.
func (r *Registry) setNickname(s *Session, nick string) {
	if s.Nickname != "" {
		delete(r.Nicknames, foldIdentifier(s.Nickname))
	}
	s.Nickname = nick
	r.Nicknames[foldIdentifier(nick)] = s
}

// message writes a server-originated message to one session. For numeric
// commands the target nick (or "*" before one is assigned) is prepended,
// matching ircd-ratbox's convention.
func (r *Registry) message(s *Session, command string, params []string) {
	if isNumericCommand(command) {
		params = append([]string{s.displayNickOrStar()}, params...)
	}
	s.enqueue(r, irc.Message{
		Prefix:  r.Config.ServerName,
		Command: command,
		Params:  params,
	})
}

// relay writes a message to `to` that appears to originate from `from`,
// i.e. a PRIVMSG/NOTICE/JOIN/PART/QUIT/NICK a client causes other clients
// to observe.
func (r *Registry) relay(from *Session, to *Session, command string, params []string) {
	to.enqueue(r, irc.Message{
		Prefix:  from.prefix(),
		Command: command,
		Params:  params,
	})
}

// broadcast sends a relayed message to every member of c. If
// includeSender is false the originating session is skipped.
func (r *Registry) broadcast(from *Session, c *Channel, command string, params []string, includeSender bool) {
	for _, member := range c.Members {
		if member == from && !includeSender {
			continue
		}
		r.relay(from, member, command, params)
	}
}

func isNumericCommand(command string) bool {
	if len(command) == 0 {
		return false
	}
	for _, c := range command {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// disconnect is the single destruction path described in §4.7. It is
// idempotent: disconnecting an already-closed session is a no-op, which
// is what makes it safe to call from any handler without the caller
// needing to track whether the session is still live (P6).
func (r *Registry) disconnect(s *Session, reason string) {
	if s.closed {
		return
	}

	s.enqueueRaw(errorLine(reason))
	s.closed = true

	// Remove from every channel it belonged to; emptying a channel removes
	// it from the registry (P2, P3).
	for _, c := range s.Channels {
		delete(c.Members, s.ID)
		if len(c.Members) == 0 {
			delete(r.Channels, foldIdentifier(c.Name))
		}
	}
	s.Channels = make(map[string]*Channel)

	if s.Nickname != "" {
		delete(r.Nicknames, foldIdentifier(s.Nickname))
	}

	delete(r.Connections, s.ID)

	close(s.outbox)

	r.logger.infof("%s disconnected: %s", s, reason)
}

func errorLine(reason string) string {
	m := irc.Message{Command: "ERROR", Params: []string{reason}}
	encoded, err := m.Encode()
	if err != nil {
		return fmt.Sprintf("ERROR :%s\r\n", reason)
	}
	return encoded
}
