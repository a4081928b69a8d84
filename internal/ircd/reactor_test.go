package ircd

import (
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQuitMessageForError(t *testing.T) {
	tests := []struct {
		err    error
		output string
	}{
		{nil, "remote host closed the connection"},
		{io.EOF, "remote host closed the connection"},
		{fmt.Errorf("connection reset by peer"), "connection reset by peer"},
		{fmt.Errorf("some other failure"), "some other failure"},
	}

	for _, test := range tests {
		require.Equal(t, test.output, quitMessageForError(test.err))
	}
}

// testClient dials the core and gives back a line reader/writer pair,
// mirroring how a real IRC client would speak the wire protocol.
type testClient struct {
	t    *testing.T
	conn net.Conn
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err, "dial %s", addr)
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, line+"\r\n")
	require.NoError(c.t, err, "write %q", line)
}

// readLine reads a single CRLF-terminated line, failing the test if none
// arrives within the deadline.
func (c *testClient) readLine() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := c.conn.Read(buf)
		require.NoError(c.t, err, "read line (partial: %q)", line)
		if n == 0 {
			continue
		}
		if buf[0] == '\n' {
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			return string(line)
		}
		line = append(line, buf[0])
	}
}

func startTestCore(t *testing.T) string {
	t.Helper()

	core := NewCore(Config{
		ServerName: "test.example",
		Version:    "test",
		CreatedAt:  time.Unix(0, 0),
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "listen")
	core.listeners = append(core.listeners, ln)
	go core.acceptLoop(ln)
	go core.Run()

	return ln.Addr().String()
}

// register drives a client through NICK/USER and consumes the full
// welcome burst (001/002/003/251).
func register(t *testing.T, c *testClient, nick string) {
	t.Helper()
	c.send("NICK " + nick)
	c.send("USER " + nick + " 0 * :" + nick + " Real Name")

	welcome := c.readLine()
	require.Contains(t, welcome, " 001 ", "expected welcome numeric first, got %q", welcome)
	c.readLine() // 002
	c.readLine() // 003
	c.readLine() // 251
}

func TestRegistrationAndNicknameCollision(t *testing.T) {
	addr := startTestCore(t)

	alice := dial(t, addr)
	register(t, alice, "alice")

	bob := dial(t, addr)
	bob.send("NICK alice")
	bob.send("USER bob 0 * :Bob")

	require.Contains(t, bob.readLine(), " 433 ")
}

func TestChannelJoinEcho(t *testing.T) {
	addr := startTestCore(t)

	alice := dial(t, addr)
	register(t, alice, "alice")

	bob := dial(t, addr)
	register(t, bob, "bob")

	alice.send("JOIN #general")
	require.Contains(t, alice.readLine(), "JOIN", "expected JOIN echo")
	alice.readLine() // 331/332 topic
	alice.readLine() // 353 names
	alice.readLine() // 366 end of names

	bob.send("JOIN #general")
	require.Contains(t, bob.readLine(), "JOIN", "expected bob's own JOIN echo")

	// alice should observe bob's JOIN too.
	require.Contains(t, alice.readLine(), "JOIN", "expected alice to observe bob's JOIN")

	bob.send("PRIVMSG #general :hello there")
	require.Contains(t, alice.readLine(), "PRIVMSG #general :hello there")
}

func TestBadPingNoOrigin(t *testing.T) {
	addr := startTestCore(t)

	alice := dial(t, addr)
	register(t, alice, "alice")

	alice.send("PING")
	require.Contains(t, alice.readLine(), " 409 ")
}

func TestJoinZeroLeavesAllChannels(t *testing.T) {
	addr := startTestCore(t)

	alice := dial(t, addr)
	register(t, alice, "alice")

	bob := dial(t, addr)
	register(t, bob, "bob")

	alice.send("JOIN #a,#b")
	require.Contains(t, alice.readLine(), "JOIN")
	drainUntil(alice, "366")
	require.Contains(t, alice.readLine(), "JOIN")
	drainUntil(alice, "366")

	alice.send("JOIN 0")
	left := alice.readLine()
	require.Contains(t, left, "PART")
	left2 := alice.readLine()
	require.Contains(t, left2, "PART")
}

// drainUntil reads lines from c until one contains code, inclusive.
func drainUntil(c *testClient, code string) {
	for {
		if strings.Contains(c.readLine(), " "+code+" ") {
			return
		}
	}
}
