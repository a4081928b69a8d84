package ircd

// Channel is a named set of member sessions with an optional topic and an
// optional join key. A channel exists only while it has at least one
// member; see Registry.partChannel and Registry.disconnect.
type Channel struct {
	// Name is the canonical (as first created) display form.
	Name string

	// Members maps a session's connection id to the session itself.
	Members map[uint64]*Session

	// Topic may be empty.
	Topic string

	// Key is the join key. An empty string means no key is required.
	Key string
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		Members: make(map[uint64]*Session),
	}
}

func (c *Channel) hasMember(s *Session) bool {
	_, ok := c.Members[s.ID]
	return ok
}

func (c *Channel) addMember(s *Session) {
	c.Members[s.ID] = s
	s.Channels[foldIdentifier(c.Name)] = c
}

// names returns the display nicknames of every member, for NAMES/JOIN
// replies. Order is unspecified; callers that need determinism sort it.
func (c *Channel) names() []string {
	names := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		names = append(names, m.Nickname)
	}
	return names
}
