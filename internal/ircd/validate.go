package ircd

import "regexp"

// nickRegexp implements §4.3's nickname grammar.
var nickRegexp = regexp.MustCompile(`^[A-Za-z\[\]\\^_` + "`" + `{|}][A-Za-z0-9\[\]\\^_` + "`" + `{|}-]{0,50}$`)

// channelRegexp implements §4.4 JOIN's channel name grammar.
var channelRegexp = regexp.MustCompile(`^[&#+!][^\x00\x07\n\r ,:]{0,50}$`)

func isValidNick(nick string) bool {
	return nickRegexp.MatchString(nick)
}

func isValidChannelName(name string) bool {
	return channelRegexp.MatchString(name)
}
