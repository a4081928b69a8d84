package ircd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/horgh/irc"
)

// dispatch routes one already-framed-and-parsed command to the handler for
// the session's current state. The two states are handled by two disjoint
// lookup tables rather than a single big switch, matching Design Notes'
// "state-dependent handler selection... make the state the source of
// truth."
func (c *Core) dispatch(s *Session, command string, args []string) {
	if s.State == stateRegistering {
		c.dispatchRegistering(s, command, args)
		return
	}
	c.dispatchEstablished(s, command, args)
}

// registrationHandlers is the fixed command table for §4.3. Anything not
// in this table is silently ignored while registering.
var registrationHandlers = map[string]func(*Core, *Session, []string){
	"NICK": (*Core).cmdNick,
	"USER": (*Core).cmdUser,
	"QUIT": (*Core).cmdQuit,
	"PING": (*Core).cmdPing,
	"PONG": (*Core).cmdPong,
}

func (c *Core) dispatchRegistering(s *Session, command string, args []string) {
	h, ok := registrationHandlers[command]
	if !ok {
		return
	}
	h(c, s, args)
}

// establishedHandlers is the fixed command table for §4.4. Anything not in
// this table yields 421 ERR_UNKNOWNCOMMAND (Design Notes: "Unknown
// commands yield 421").
var establishedHandlers = map[string]func(*Core, *Session, []string){
	"JOIN":   (*Core).cmdJoin,
	"NAMES":  (*Core).cmdNames,
	"LIST":   (*Core).cmdList,
	"LUSERS": (*Core).cmdLusers,
	"NICK":   (*Core).cmdNick,
	"PRIVMSG": func(c *Core, s *Session, args []string) {
		c.cmdPrivmsgOrNotice(s, "PRIVMSG", args)
	},
	"NOTICE": func(c *Core, s *Session, args []string) {
		c.cmdPrivmsgOrNotice(s, "NOTICE", args)
	},
	"PING": (*Core).cmdPing,
	"PONG": (*Core).cmdPong,
	"QUIT": (*Core).cmdQuit,
}

func (c *Core) dispatchEstablished(s *Session, command string, args []string) {
	h, ok := establishedHandlers[command]
	if !ok {
		c.registry.message(s, errUnknownCmd, []string{command, "Unknown command"})
		return
	}
	h(c, s, args)
}

// cmdNick implements NICK for both states (§4.3 / §4.4).
func (c *Core) cmdNick(s *Session, args []string) {
	if len(args) < 1 {
		c.registry.message(s, errNoNickGiven, []string{"No nickname given"})
		return
	}

	nick := args[0]

	// A no-op rename (modulo folding) succeeds silently (§4.4 NICK).
	if s.Nickname != "" && foldIdentifier(nick) == foldIdentifier(s.Nickname) {
		return
	}

	if !isValidNick(nick) {
		c.registry.message(s, errErroneousNic, []string{nick, "Erroneous nickname"})
		return
	}

	if existing, ok := c.registry.getClient(nick); ok && existing != s {
		c.registry.message(s, errNickInUse, []string{nick, "Nickname is already in use"})
		return
	}

	wasEstablished := s.established()
	oldPrefix := ""
	if wasEstablished {
		oldPrefix = s.prefix()
	}

	c.registry.setNickname(s, nick)

	if s.Username != "" && s.State == stateRegistering {
		c.completeRegistration(s)
		return
	}

	if wasEstablished {
		c.announceNickChange(s, oldPrefix, nick)
	}
}

// announceNickChange tells every session sharing a channel with s about
// its nick change, each such session exactly once, using the old prefix
// as required by IRC convention (the message must appear to come from the
// nick being vacated).
func (c *Core) announceNickChange(s *Session, oldPrefix, newNick string) {
	told := map[uint64]struct{}{}
	for _, ch := range s.Channels {
		for _, member := range ch.Members {
			if _, ok := told[member.ID]; ok {
				continue
			}
			told[member.ID] = struct{}{}
			member.enqueue(c.registry, nickChangeMessage(oldPrefix, newNick))
		}
	}
	if _, ok := told[s.ID]; !ok {
		s.enqueue(c.registry, nickChangeMessage(oldPrefix, newNick))
	}
}

func (c *Core) cmdUser(s *Session, args []string) {
	if len(args) < 4 {
		c.registry.message(s, errNeedMoreArgs, []string{"USER", "Not enough parameters"})
		return
	}

	// §9 Open Question: re-issuing USER while Established updates the
	// fields rather than replying 462.
	s.Username = args[0]
	s.RealName = args[3]

	if s.State == stateRegistering && s.Nickname != "" {
		c.completeRegistration(s)
	}
}

// completeRegistration transitions a session to Established once both
// NICK and USER are known (§3 Invariant 5) and sends the welcome burst
// (§4.3).
func (c *Core) completeRegistration(s *Session) {
	s.State = stateEstablished

	c.registry.message(s, rplWelcome, []string{
		fmt.Sprintf("Welcome to the Internet Relay Network %s", s.prefix()),
	})
	c.registry.message(s, rplYourHost, []string{
		fmt.Sprintf("Your host is %s, running version %s", c.registry.Config.ServerName, c.registry.Config.Version),
	})
	c.registry.message(s, rplCreated, []string{
		fmt.Sprintf("This server was created %s", c.registry.Config.CreatedAt.Format("2006-01-02")),
	})

	c.cmdLusers(s, nil)
}

func (c *Core) cmdLusers(s *Session, _ []string) {
	c.registry.message(s, rplLUserClient, []string{
		fmt.Sprintf("There are %d users on %s", len(c.registry.Connections), c.registry.Config.ServerName),
	})
}

// cmdJoin implements JOIN, including the "JOIN 0" leave-everything form
// and optional channel keys, per §4.4.
func (c *Core) cmdJoin(s *Session, args []string) {
	if len(args) < 1 {
		c.registry.message(s, errNeedMoreArgs, []string{"JOIN", "Not enough parameters"})
		return
	}

	if len(args) == 1 && args[0] == "0" {
		for _, ch := range s.Channels {
			c.partOne(s, ch, "")
		}
		return
	}

	names := strings.Split(args[0], ",")
	var keys []string
	if len(args) >= 2 {
		keys = strings.Split(args[1], ",")
	}

	for i, name := range names {
		key := ""
		if i < len(keys) {
			key = keys[i]
		}
		c.joinOne(s, name, key)
	}
}

func (c *Core) joinOne(s *Session, name, key string) {
	if !isValidChannelName(name) {
		c.registry.message(s, errNoSuchChan, []string{name, "Invalid channel name"})
		return
	}

	existing, exists := c.registry.getChannel(name)
	if exists && existing.hasMember(s) {
		// Already a member; re-JOINing is a no-op (P4).
		return
	}

	if exists && existing.Key != "" && existing.Key != key {
		c.registry.message(s, errBadChanKey, []string{name, "Cannot join channel (+k) - bad key"})
		return
	}

	ch := c.registry.getOrCreateChannel(name)
	c.registry.joinChannel(ch, s)

	c.registry.broadcast(s, ch, "JOIN", []string{ch.Name}, true)

	if ch.Topic != "" {
		c.registry.message(s, rplTopic, []string{ch.Name, ch.Topic})
	} else {
		c.registry.message(s, rplNoTopic, []string{ch.Name, "No topic is set"})
	}

	c.sendNames(s, ch)
}

// sendNames emits one or more 353 lines covering every member of ch,
// followed by 366, keeping each 353 payload within the 512 byte wire
// limit (§4.4 NAMES).
func (c *Core) sendNames(s *Session, ch *Channel) {
	names := ch.names()
	sort.Strings(names)

	prefixLen := len(":") + len(c.registry.Config.ServerName) + len(" 353 ") +
		len(s.displayNickOrStar()) + len(" = ") + len(ch.Name) + len(" :") + len("\r\n")
	budget := maxLineLength - prefixLen
	if budget < 1 {
		budget = 1
	}

	var line string
	flush := func() {
		if line == "" {
			return
		}
		c.registry.message(s, rplNameReply, []string{"=", ch.Name, line})
		line = ""
	}

	for _, n := range names {
		candidate := n
		if line != "" {
			candidate = line + " " + n
		}
		if len(candidate) > budget {
			flush()
			candidate = n
		}
		line = candidate
	}
	flush()

	c.registry.message(s, rplEndOfNames, []string{ch.Name, "End of NAMES list"})
}

func (c *Core) cmdNames(s *Session, args []string) {
	if len(args) == 0 {
		for _, ch := range s.Channels {
			c.sendNames(s, ch)
		}
		return
	}

	for _, name := range strings.Split(args[0], ",") {
		ch, ok := c.registry.getChannel(name)
		if !ok {
			continue
		}
		c.sendNames(s, ch)
	}
}

func (c *Core) cmdList(s *Session, args []string) {
	var channels []*Channel

	if len(args) == 0 {
		for _, ch := range c.registry.Channels {
			channels = append(channels, ch)
		}
	} else {
		for _, name := range strings.Split(args[0], ",") {
			if ch, ok := c.registry.getChannel(name); ok {
				channels = append(channels, ch)
			}
		}
	}

	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })

	for _, ch := range channels {
		c.registry.message(s, rplList, []string{
			ch.Name, fmt.Sprintf("%d", len(ch.Members)), ch.Topic,
		})
	}
	c.registry.message(s, rplListEnd, []string{"End of LIST"})
}

func (c *Core) cmdPrivmsgOrNotice(s *Session, command string, args []string) {
	if len(args) == 0 {
		c.registry.message(s, errNoRecipient, []string{"No recipient given (" + command + ")"})
		return
	}
	if len(args) == 1 {
		c.registry.message(s, errNoTextToSend, []string{"No text to send"})
		return
	}

	target, text := args[0], args[1]

	if ch, ok := c.registry.getChannel(target); ok {
		c.registry.broadcast(s, ch, command, []string{ch.Name, text}, false)
		return
	}

	if dest, ok := c.registry.getClient(target); ok {
		c.registry.relay(s, dest, command, []string{dest.Nickname, text})
		return
	}

	c.registry.message(s, errNoSuchNick, []string{target, "No such nick/channel"})
}

func (c *Core) cmdPing(s *Session, args []string) {
	if len(args) < 1 {
		c.registry.message(s, errNoOrigin, []string{"No origin specified"})
		return
	}
	c.registry.message(s, "PONG", []string{c.registry.Config.ServerName, args[0]})
}

func (c *Core) cmdPong(*Session, []string) {
	// Purely a liveness signal; LastActivityAt was already refreshed by the
	// reactor for any inbound traffic. No reply.
}

func (c *Core) cmdQuit(s *Session, args []string) {
	msg := s.Nickname
	if len(args) > 0 {
		msg = args[0]
	}
	c.registry.disconnect(s, msg)
}

// partOne removes s from ch, telling every remaining member (and s
// itself) via PART, and deletes ch from the registry if it is now empty.
func (c *Core) partOne(s *Session, ch *Channel, message string) {
	params := []string{ch.Name}
	if message != "" {
		params = append(params, message)
	}

	c.registry.broadcast(s, ch, "PART", params, true)
	c.registry.partChannel(ch, s)
}

func nickChangeMessage(oldPrefix, newNick string) irc.Message {
	return irc.Message{Prefix: oldPrefix, Command: "NICK", Params: []string{newNick}}
}
