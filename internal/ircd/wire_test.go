package ircd

import (
	"testing"
)

func TestLineFramerFeed(t *testing.T) {
	var f lineFramer

	lines := f.feed([]byte("NICK alice\r\nUSER a 0 * :A\r\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, wanted 2: %#v", len(lines), lines)
	}
	if lines[0] != "NICK alice" {
		t.Errorf("line 0 = %q, wanted %q", lines[0], "NICK alice")
	}
	if lines[1] != "USER a 0 * :A" {
		t.Errorf("line 1 = %q, wanted %q", lines[1], "USER a 0 * :A")
	}
}

func TestLineFramerFeedBareLF(t *testing.T) {
	var f lineFramer

	lines := f.feed([]byte("PING x\n"))
	if len(lines) != 1 || lines[0] != "PING x" {
		t.Fatalf("got %#v, wanted one line %q", lines, "PING x")
	}
}

// TestLineFramerFeedSplitAcrossReads exercises the invariant that a line
// split arbitrarily across reads is reassembled identically regardless of
// where the split falls (P5).
func TestLineFramerFeedSplitAcrossReads(t *testing.T) {
	whole := "NICK alice\r\n"

	for split := 0; split <= len(whole); split++ {
		var f lineFramer

		first := f.feed([]byte(whole[:split]))
		second := f.feed([]byte(whole[split:]))

		all := append(first, second...)
		if len(all) != 1 {
			t.Fatalf("split %d: got %d lines, wanted 1: %#v", split, len(all), all)
		}
		if all[0] != "NICK alice" {
			t.Fatalf("split %d: got %q, wanted %q", split, all[0], "NICK alice")
		}
	}
}

func TestLineFramerFeedRetainsPartialTail(t *testing.T) {
	var f lineFramer

	lines := f.feed([]byte("NICK al"))
	if len(lines) != 0 {
		t.Fatalf("got %d lines before terminator, wanted 0: %#v", len(lines), lines)
	}

	lines = f.feed([]byte("ice\r\n"))
	if len(lines) != 1 || lines[0] != "NICK alice" {
		t.Fatalf("got %#v, wanted one line %q", lines, "NICK alice")
	}
}

func TestParseLine(t *testing.T) {
	command, args, err := parseLine("PRIVMSG #chan :hello there")
	if err != nil {
		t.Fatalf("parseLine returned error: %s", err)
	}
	if command != "PRIVMSG" {
		t.Errorf("command = %q, wanted PRIVMSG", command)
	}
	if len(args) != 2 || args[0] != "#chan" || args[1] != "hello there" {
		t.Errorf("args = %#v, wanted [#chan, hello there]", args)
	}
}

func TestParseLineUppercasesCommand(t *testing.T) {
	command, _, err := parseLine("nick alice")
	if err != nil {
		t.Fatalf("parseLine returned error: %s", err)
	}
	if command != "NICK" {
		t.Errorf("command = %q, wanted NICK", command)
	}
}

func TestParseLineDiscardsPrefix(t *testing.T) {
	command, args, err := parseLine(":alice!a@host PING x")
	if err != nil {
		t.Fatalf("parseLine returned error: %s", err)
	}
	if command != "PING" {
		t.Errorf("command = %q, wanted PING", command)
	}
	if len(args) != 1 || args[0] != "x" {
		t.Errorf("args = %#v, wanted [x]", args)
	}
}
