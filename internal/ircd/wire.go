package ircd

import (
	"github.com/horgh/irc"
)

// maxLineLength is the protocol's line length ceiling, CRLF included.
const maxLineLength = irc.MaxLineLength

// lineFramer splits a growing inbound byte stream into CRLF (or bare LF)
// terminated lines, holding the unterminated remainder for the next read.
//
// It does not allocate a new slice per read; feed appends to a single
// buffer and frame extraction trims the consumed prefix in place.
type lineFramer struct {
	buf []byte
}

// feed appends newly read bytes and returns every complete line found,
// stripped of its terminator. The last, possibly empty, fragment stays
// buffered for the next feed.
func (f *lineFramer) feed(data []byte) []string {
	f.buf = append(f.buf, data...)

	var lines []string
	start := 0
	for i := 0; i < len(f.buf); i++ {
		if f.buf[i] != '\n' {
			continue
		}
		end := i
		if end > start && f.buf[end-1] == '\r' {
			end--
		}
		lines = append(lines, string(f.buf[start:end]))
		start = i + 1
	}

	remaining := len(f.buf) - start
	copy(f.buf, f.buf[start:])
	f.buf = f.buf[:remaining]

	return lines
}

// parseLine turns one framed line into a command and its arguments,
// following the leading-colon trailing-parameter convention: the command is
// upper-cased, and the wire codec (github.com/horgh/irc) handles tokenizing
// the remainder and the ':'-delimited trailing argument the same way it does
// for every other catbox-family client.
//
// A client is not expected to send a message prefix; if one appears anyway
// (some clients send it by habit) it is accepted and discarded rather than
// rejected, since this dialect reserves no numeric for that condition.
func parseLine(line string) (command string, args []string, err error) {
	m, err := irc.ParseMessage(line + "\r\n")
	if err != nil && err != irc.ErrTruncated {
		return "", nil, err
	}
	return m.Command, m.Params, nil
}
