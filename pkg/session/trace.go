package session

import (
	"bytes"
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"
)

// Matches the arguments of a LOGIN command, ex: "a1 LOGIN user secret".
var loginArgs = regexp.MustCompile(`(?i)^(\S+ LOGIN) .*$`)

// traceWriter logs each protocol line at debug level.
type traceWriter struct {
	mu   sync.Mutex
	addr string
	buf  []byte
}

func newTraceWriter(addr string) *traceWriter {
	return &traceWriter{addr: addr}
}

func (w *traceWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(w.buf[:i], "\r")
		log.Debug().Str("module", "imap").Str("addr", w.addr).Str("line", redact(string(line))).
			Msg("Trace")
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func redact(line string) string {
	return loginArgs.ReplaceAllString(line, "$1 [redacted]")
}
