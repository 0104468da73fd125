package message

import (
	"bufio"
	"bytes"
	"io"
	"mime"
	"net/mail"
	nettextproto "net/textproto"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
	"github.com/rs/zerolog/log"
)

var (
	encodedWord = regexp.MustCompile(`=\?[^?\s]+\?[bBqQ]\?[^?\s]*\?=`)
	dateComment = regexp.MustCompile(`\([^()]*\)`)
	zoneOffset  = regexp.MustCompile(`(^|\s)[+-]\d{4}(\s|$)`)

	wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}
	unfolder    = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")
)

// Zone names that unambiguously mean UTC. Other abbreviations are not trusted.
var utcZones = map[string]bool{"UT": true, "UTC": true, "GMT": true, "Z": true}

// readHeader parses the header block at the head of br, leaving br at the start of the body. A
// truncated block still yields the fields read before the problem.
func readHeader(br *bufio.Reader) textproto.Header {
	h, err := textproto.ReadHeader(br)
	if err != nil && err != io.EOF {
		log.Debug().Str("module", "message").Err(err).Msg("Malformed header block")
	}
	return h
}

// headerMap decodes every field of h. The last occurrence of a repeated field wins.
func headerMap(h textproto.Header) map[string]string {
	m := make(map[string]string)
	fields := h.Fields()
	for fields.Next() {
		m[nettextproto.CanonicalMIMEHeaderKey(fields.Key())] = decodeHeader(fields.Value())
	}
	return m
}

// decodeHeader unfolds v and decodes each RFC 2047 encoded word with its own charset. Words that
// cannot be decoded are dropped, raw 8-bit text goes through the charset chain.
func decodeHeader(v string) string {
	v = unfolder.Replace(v)
	locs := encodedWord.FindAllStringIndex(v, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(rawText(v))
	}
	var b strings.Builder
	last := 0
	prevWord := false
	for _, loc := range locs {
		gap := v[last:loc[0]]
		// Whitespace between adjacent encoded words is not part of the text.
		if !prevWord || strings.TrimSpace(gap) != "" {
			b.WriteString(rawText(gap))
		}
		word := v[loc[0]:loc[1]]
		if s, err := wordDecoder.Decode(word); err == nil {
			b.WriteString(s)
		} else {
			log.Debug().Str("module", "message").Str("word", word).Err(err).Msg("Skipping encoded word")
		}
		last = loc[1]
		prevWord = true
	}
	b.WriteString(rawText(v[last:]))
	return strings.TrimSpace(b.String())
}

func rawText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return decodeText([]byte(s), "")
}

// sentDate derives the sending time from the first Received header, or from Date. Only numeric
// zone offsets and explicit UTC names are trusted.
func sentDate(h textproto.Header) (time.Time, bool) {
	v := ""
	if rcv := unfolder.Replace(h.Get("Received")); rcv != "" {
		v = rcv[strings.LastIndex(rcv, ";")+1:]
	} else {
		v = unfolder.Replace(h.Get("Date"))
	}
	v = strings.Join(strings.Fields(dateComment.ReplaceAllString(v, " ")), " ")
	if v == "" {
		return time.Time{}, false
	}
	if loc := zoneOffset.FindStringIndex(v); loc != nil {
		v = strings.TrimSpace(v[:loc[1]])
	} else {
		fields := strings.Fields(v)
		zone := strings.ToUpper(fields[len(fields)-1])
		if !utcZones[zone] {
			return time.Time{}, false
		}
		fields[len(fields)-1] = "+0000"
		v = strings.Join(fields, " ")
	}
	t, err := mail.ParseDate(v)
	if err != nil {
		log.Debug().Str("module", "message").Str("date", v).Err(err).Msg("Unparsable date header")
		return time.Time{}, false
	}
	return t.UTC(), true
}

// newHeaderReader wraps raw for header parsing.
func newHeaderReader(raw []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(raw))
}
