package cmd

import (
	"log"
	"os"
)

// stdLogger is the default CLI logger: plain stdlib log.Logger writing to
// stderr, used whenever -v/--verbose is set. The rest of the module only
// ever depends on the keychain.Logger interface; this is the one concrete
// implementation the CLI wires in.
type stdLogger struct {
	verbose bool
	l       *log.Logger
}

func newStdLogger(verbose bool) *stdLogger {
	return &stdLogger{verbose: verbose, l: log.New(os.Stderr, "", log.LstdFlags)}
}

func (s *stdLogger) Warnf(format string, args ...any) {
	if s.verbose {
		s.l.Printf("WARN "+format, args...)
	}
}

func (s *stdLogger) Debugf(format string, args ...any) {
	if s.verbose {
		s.l.Printf("DEBUG "+format, args...)
	}
}

func (s *stdLogger) Infof(format string, args ...any) {
	if s.verbose {
		s.l.Printf("INFO "+format, args...)
	}
}
