package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"regexp"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/lilycrm/imapmail/pkg/message"
)

// Allow subcommands to accept regular expressions as flags
type regexFlag struct {
	*regexp.Regexp
}

func (r *regexFlag) Defined() bool {
	return r.Regexp != nil
}

func (r *regexFlag) Set(pattern string) error {
	if pattern == "" {
		r.Regexp = nil
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.Regexp = re
	return nil
}

func (r *regexFlag) String() string {
	if r.Regexp == nil {
		return ""
	}
	return r.Regexp.String()
}

// regexFlag must implement flag.Value
var _ flag.Value = &regexFlag{}

// matcher filters decoded messages on header fields.
type matcher struct {
	from    regexFlag
	subject regexFlag
	to      regexFlag
	maxAge  time.Duration
}

func (m *matcher) setFlags(f *flag.FlagSet) {
	f.Var(&m.from, "from", "From header matching regexp (address, not name)")
	f.Var(&m.subject, "subject", "Subject header matching regexp")
	f.Var(&m.to, "to", "To header matching regexp (must match 1+ to address)")
	f.DurationVar(
		&m.maxAge, "maxage", 0,
		"Matches must have been sent in this time frame (ex: \"10s\", \"5m\")")
}

// match returns true if msg matches all defined criteria
func (m *matcher) match(msg *message.Message) bool {
	if m.maxAge > 0 {
		if time.Since(msg.SentDate) > m.maxAge {
			return false
		}
	}
	if m.subject.Defined() {
		if !m.subject.MatchString(msg.Subject) {
			return false
		}
	}
	if m.from.Defined() {
		from := msg.From
		addr, err := mail.ParseAddress(from)
		if err == nil {
			// Parsed successfully
			from = addr.Address
		}
		if !m.from.MatchString(from) {
			return false
		}
	}
	if m.to.Defined() {
		addrs, err := mail.ParseAddressList(msg.To)
		if err != nil {
			return m.to.MatchString(msg.To)
		}
		for _, addr := range addrs {
			if m.to.MatchString(addr.Address) {
				return true
			}
		}
		return false
	}
	return true
}

// messageJSON is the json output form of a message.
type messageJSON struct {
	UID            uint32            `json:"uid"`
	Folder         string            `json:"folder"`
	Flags          []string          `json:"flags"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	Subject        string            `json:"subject"`
	Date           time.Time         `json:"date"`
	Size           int64             `json:"size"`
	HasAttachments bool              `json:"hasAttachments"`
	Header         map[string]string `json:"header,omitempty"`
	Text           string            `json:"text,omitempty"`
	HTML           string            `json:"html,omitempty"`
	Attachments    []attachmentJSON  `json:"attachments,omitempty"`
}

type attachmentJSON struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

func toJSON(m *message.Message, full bool) *messageJSON {
	j := &messageJSON{
		UID:            m.UID,
		Folder:         m.Folder,
		Flags:          m.Flags,
		From:           m.From,
		To:             m.To,
		Subject:        m.Subject,
		Date:           m.SentDate,
		Size:           m.Size,
		HasAttachments: m.HasAttachments,
	}
	if full {
		j.Header = m.Header
		j.Text = m.PlainBody
		j.HTML = m.HTMLBody
		for _, a := range m.Attachments {
			j.Attachments = append(j.Attachments, attachmentJSON{
				Filename:    a.Filename,
				ContentType: a.ContentType,
				Size:        a.Size,
			})
		}
	}
	return j
}

// outputFunc writes a list of messages to w.
type outputFunc func(w io.Writer, msgs []*message.Message) error

func selectOutput(name string, full bool) (outputFunc, bool) {
	switch name {
	case "id":
		return outputID, true
	case "json":
		return func(w io.Writer, msgs []*message.Message) error {
			return outputJSON(w, msgs, full)
		}, true
	case "table":
		return outputTable, true
	}
	return nil, false
}

func outputID(w io.Writer, msgs []*message.Message) error {
	for _, m := range msgs {
		if _, err := fmt.Fprintln(w, m.UID); err != nil {
			return err
		}
	}
	return nil
}

func outputJSON(w io.Writer, msgs []*message.Message, full bool) error {
	out := make([]*messageJSON, len(msgs))
	for i, m := range msgs {
		out[i] = toJSON(m, full)
	}
	return writeJSON(w, out)
}

func writeJSON(w io.Writer, v interface{}) error {
	jsonEncoder := json.NewEncoder(w)
	jsonEncoder.SetEscapeHTML(false)
	jsonEncoder.SetIndent("", "  ")
	return jsonEncoder.Encode(v)
}

func outputTable(w io.Writer, msgs []*message.Message) error {
	tabs := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	fmt.Fprintln(tabs, "UID\tFOLDER\tDATE\tFROM\tSUBJECT")
	for _, m := range msgs {
		seen := " "
		if !m.Seen() {
			seen = "*"
		}
		fmt.Fprintf(tabs, "%d%s\t%s\t%s\t%s\t%s\n", m.UID, seen, m.Folder,
			m.SentDate.Local().Format("2006-01-02 15:04"), m.From, m.Subject)
	}
	return tabs.Flush()
}

// sortedMessages returns the values of msgs ordered by UID.
func sortedMessages(msgs map[uint32]*message.Message) []*message.Message {
	result := make([]*message.Message, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UID < result[j].UID })
	return result
}

var stdout io.Writer = os.Stdout
