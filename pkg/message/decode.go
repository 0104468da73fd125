package message

import (
	"expvar"
	"io"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
	"github.com/lilycrm/imapmail/pkg/sanitize"
	"github.com/rs/zerolog/log"
)

// Nesting deeper than this is not walked.
const maxDepth = 16

// ExpPartsSkipped counts MIME parts dropped while decoding.
var ExpPartsSkipped = new(expvar.Int)

// Decode converts one fetch response into a Message. Decode never fails: a malformed header or
// MIME part is skipped and leaves the affected fields empty.
func Decode(r *Response) *Message {
	m := &Message{
		UID:   r.UID,
		Flags: r.Flags,
		Size:  r.Size,
	}
	source := r.Body
	if source == nil {
		source = r.Header
	}
	if source == nil {
		m.SentDate = internalDate(r)
		return m
	}

	br := newHeaderReader(source)
	h := readHeader(br)
	m.Header = headerMap(h)
	// Addressing fields take the top-most occurrence.
	m.From = decodeHeader(h.Get("From"))
	m.To = decodeHeader(h.Get("To"))
	m.Subject = decodeHeader(h.Get("Subject"))

	ct := strings.ToLower(strings.TrimSpace(h.Get("Content-Type")))
	m.IsPlain = strings.HasPrefix(ct, "text/plain")
	mixed := strings.HasPrefix(ct, "multipart/mixed")

	if t, ok := sentDate(h); ok {
		m.SentDate = t
	} else {
		m.SentDate = internalDate(r)
	}

	if r.Body == nil {
		m.HasAttachments = mixed
		return m
	}

	w := &walker{uid: r.UID, attachments: make([]*Attachment, 0)}
	w.walk(h, br, 0)
	m.HasAttachments = mixed && w.multipart
	m.PlainBody = w.plain.String()
	m.Attachments = w.attachments
	if html := w.html.String(); html != "" {
		prepared, err := sanitize.Prepare(html)
		if err != nil {
			log.Debug().Str("module", "message").Uint32("uid", r.UID).Err(err).
				Msg("Keeping HTML body unprocessed")
			prepared = html
		}
		m.HTMLBody = prepared
	}
	return m
}

func internalDate(r *Response) time.Time {
	if r.InternalDate.IsZero() {
		return time.Time{}
	}
	return r.InternalDate.UTC()
}

// walker accumulates text and attachments while descending the MIME tree.
type walker struct {
	uid         uint32
	plain       strings.Builder
	html        strings.Builder
	attachments []*Attachment
	multipart   bool
}

func (w *walker) walk(h textproto.Header, body io.Reader, depth int) {
	if depth > maxDepth {
		w.skip(depth, "", "MIME nesting too deep")
		return
	}
	mh := gomessage.Header{Header: h}
	mediaType, params := contentType(mh)

	if name := attachmentName(mh, params); name != "" {
		content, err := transferDecode(h, body)
		if err != nil {
			w.skip(depth, mediaType, err.Error())
			return
		}
		w.attachments = append(w.attachments, &Attachment{
			Content:     content,
			ContentType: mediaType,
			Size:        len(content),
			Filename:    name,
		})
		return
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			w.skip(depth, mediaType, "missing boundary")
			return
		}
		mr := textproto.NewMultipartReader(body, boundary)
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			if err != nil {
				w.skip(depth, mediaType, err.Error())
				return
			}
			if depth == 0 {
				w.multipart = true
			}
			w.walk(p.Header, p, depth+1)
		}
	case mediaType == "message/rfc822" || mediaType == "message/global":
		content, err := transferDecode(h, body)
		if err != nil {
			w.skip(depth, mediaType, err.Error())
			return
		}
		br := newHeaderReader(content)
		w.walk(readHeader(br), br, depth+1)
	case mediaType == "text/plain" || mediaType == "text/html":
		content, err := transferDecode(h, body)
		if err != nil {
			w.skip(depth, mediaType, err.Error())
			return
		}
		text := decodeText(content, params["charset"])
		if mediaType == "text/plain" {
			w.plain.WriteString(text)
		} else {
			w.html.WriteString(text)
		}
	}
}

func (w *walker) skip(depth int, mediaType, reason string) {
	ExpPartsSkipped.Add(1)
	log.Debug().Str("module", "message").Uint32("uid", w.uid).Int("depth", depth).
		Str("type", mediaType).Str("reason", reason).Msg("Skipping MIME part")
}

// contentType returns the lowercased media type, defaulting to text/plain when the header is
// missing.
func contentType(h gomessage.Header) (string, map[string]string) {
	if !h.Has("Content-Type") {
		return "text/plain", map[string]string{}
	}
	mediaType, params, err := h.ContentType()
	if err != nil && mediaType == "" {
		return "", map[string]string{}
	}
	if params == nil {
		params = map[string]string{}
	}
	return strings.ToLower(mediaType), params
}

// attachmentName returns the decoded filename of a part disposed as attachment or inline, or
// empty if the part is not an attachment.
func attachmentName(h gomessage.Header, typeParams map[string]string) string {
	disp, dispParams, _ := h.ContentDisposition()
	disp = strings.ToLower(disp)
	if disp != "attachment" && disp != "inline" {
		return ""
	}
	name := dispParams["filename"]
	if name == "" {
		name = typeParams["name"]
	}
	return decodeHeader(name)
}

// transferDecode undoes the Content-Transfer-Encoding of body. Charset conversion is left to the
// charset chain, so only the encoding field is handed to go-message.
func transferDecode(h textproto.Header, body io.Reader) ([]byte, error) {
	enc := strings.TrimSpace(h.Get("Content-Transfer-Encoding"))
	if enc == "" {
		return io.ReadAll(body)
	}
	eh := gomessage.HeaderFromMap(map[string][]string{"Content-Transfer-Encoding": {enc}})
	e, err := gomessage.New(eh, body)
	if err != nil && !gomessage.IsUnknownEncoding(err) {
		return nil, err
	}
	return io.ReadAll(e.Body)
}
