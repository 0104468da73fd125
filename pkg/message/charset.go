package message

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"github.com/gogs/chardet"
	"golang.org/x/text/encoding/charmap"
)

// textDecoder is one step of the charset chain. It reports false when it cannot produce text.
type textDecoder func(content []byte, declared string) (string, bool)

// chain is tried in order, the first decoder to succeed wins. The last one never fails.
var chain = []textDecoder{
	declaredCharset,
	detectedCharset,
	strictUTF8,
	latin1,
}

// decodeText converts content to UTF-8.
func decodeText(content []byte, declared string) string {
	if len(content) == 0 {
		return ""
	}
	for _, dec := range chain {
		if s, ok := dec(content, declared); ok {
			return s
		}
	}
	return string(content)
}

func declaredCharset(content []byte, declared string) (string, bool) {
	return convert(content, declared)
}

func detectedCharset(content []byte, _ string) (string, bool) {
	result, err := chardet.NewTextDetector().DetectBest(content)
	if err != nil || result == nil {
		return "", false
	}
	return convert(content, result.Charset)
}

func strictUTF8(content []byte, _ string) (string, bool) {
	if !utf8.Valid(content) {
		return "", false
	}
	return string(content), true
}

// latin1 maps every byte to a rune, which preserves the input.
func latin1(content []byte, _ string) (string, bool) {
	b, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func convert(content []byte, name string) (string, bool) {
	name = strings.ToLower(strings.Trim(strings.TrimSpace(name), `"`))
	switch name {
	case "":
		return "", false
	case "utf-8", "utf8", "us-ascii", "ascii":
		// Mislabeled 8-bit content is common, leave it to the next decoder.
		if !utf8.Valid(content) {
			return "", false
		}
		return string(content), true
	}
	r, err := charset.Reader(name, bytes.NewReader(content))
	if err != nil {
		return "", false
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}
