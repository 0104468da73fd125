// Package message turns raw IMAP fetch responses into structured message records.
package message

import (
	"strings"
	"time"
)

// DataItem names a FETCH data item.
type DataItem string

// Data items understood by the decoder. Body items use PEEK so fetching never sets \Seen.
const (
	ItemFlags        DataItem = "FLAGS"
	ItemHeader       DataItem = "BODY.PEEK[HEADER]"
	ItemBody         DataItem = "BODY.PEEK[]"
	ItemSize         DataItem = "RFC822.SIZE"
	ItemInternalDate DataItem = "INTERNALDATE"
)

var (
	// HeaderItems fetches everything needed for a message listing.
	HeaderItems = []DataItem{ItemFlags, ItemHeader, ItemSize, ItemInternalDate}

	// FullItems fetches the complete message including bodies and attachments.
	FullItems = []DataItem{ItemFlags, ItemBody, ItemSize, ItemInternalDate}
)

// ParseDataItem accepts the protocol name of a data item, with or without PEEK.
func ParseDataItem(s string) (DataItem, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FLAGS":
		return ItemFlags, true
	case "BODY.PEEK[HEADER]", "BODY[HEADER]", "HEADER":
		return ItemHeader, true
	case "BODY.PEEK[]", "BODY[]", "BODY":
		return ItemBody, true
	case "RFC822.SIZE", "SIZE":
		return ItemSize, true
	case "INTERNALDATE":
		return ItemInternalDate, true
	}
	return "", false
}

// Response is one raw fetch response item. Nil slices mean the matching data item was not
// requested or not returned.
type Response struct {
	UID          uint32
	Flags        []string
	Header       []byte
	Body         []byte
	Size         int64
	InternalDate time.Time
}

// Attachment is a MIME part the sender marked as a file.
type Attachment struct {
	Content     []byte
	ContentType string
	Size        int
	Filename    string
}

// Message is the decoded form of a Response.
type Message struct {
	UID            uint32
	Flags          []string
	Header         map[string]string
	From           string
	To             string
	Subject        string
	Size           int64
	SentDate       time.Time
	IsPlain        bool
	HasAttachments bool
	PlainBody      string
	HTMLBody       string
	Attachments    []*Attachment
	Folder         string
}

// HasFlag returns true if the message carries flag, compared case-insensitively.
func (m *Message) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// Seen returns true if the message has been read.
func (m *Message) Seen() bool {
	return m.HasFlag(`\Seen`)
}

// Messages is an insertion ordered UID to Message collection. Putting an existing UID replaces
// the value but keeps its original position.
type Messages struct {
	order []uint32
	index map[uint32]*Message
}

// NewMessages returns an empty collection.
func NewMessages() *Messages {
	return &Messages{index: make(map[uint32]*Message)}
}

// Put adds or replaces the message stored under uid.
func (ms *Messages) Put(uid uint32, m *Message) {
	if _, ok := ms.index[uid]; !ok {
		ms.order = append(ms.order, uid)
	}
	ms.index[uid] = m
}

// Get returns the message stored under uid.
func (ms *Messages) Get(uid uint32) (*Message, bool) {
	m, ok := ms.index[uid]
	return m, ok
}

// Len returns the number of messages.
func (ms *Messages) Len() int {
	return len(ms.order)
}

// UIDs returns the keys in insertion order.
func (ms *Messages) UIDs() []uint32 {
	return append([]uint32(nil), ms.order...)
}

// List returns the messages in insertion order.
func (ms *Messages) List() []*Message {
	result := make([]*Message, len(ms.order))
	for i, uid := range ms.order {
		result[i] = ms.index[uid]
	}
	return result
}
