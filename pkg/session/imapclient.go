package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/lilycrm/imapmail/pkg/message"
	"github.com/rs/zerolog/log"
)

// IMAPDialer dials real servers with go-imap.
type IMAPDialer struct {
	// TLSConfig is cloned for every connection. ServerName defaults to the dialed host.
	TLSConfig *tls.Config
	// Trace logs the protocol exchange at debug level, with LOGIN arguments redacted.
	Trace bool
}

var _ Dialer = &IMAPDialer{}

// Dial connects to the server described by c.
func (d *IMAPDialer) Dial(ctx context.Context, c Credentials) (Conn, error) {
	tlsConfig := &tls.Config{}
	if d.TLSConfig != nil {
		tlsConfig = d.TLSConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = c.Host
	}
	opts := &imapclient.Options{TLSConfig: tlsConfig}
	if d.Trace {
		opts.DebugWriter = newTraceWriter(c.Addr())
	}

	nd := &net.Dialer{}
	var client *imapclient.Client
	switch c.Security {
	case SecurityTLS:
		td := &tls.Dialer{NetDialer: nd, Config: tlsConfig}
		conn, err := td.DialContext(ctx, "tcp", c.Addr())
		if err != nil {
			return nil, err
		}
		client = imapclient.New(conn, opts)
	case SecurityStartTLS:
		conn, err := nd.DialContext(ctx, "tcp", c.Addr())
		if err != nil {
			return nil, err
		}
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	case SecurityNone:
		conn, err := nd.DialContext(ctx, "tcp", c.Addr())
		if err != nil {
			return nil, err
		}
		client = imapclient.New(conn, opts)
	default:
		return nil, fmt.Errorf("%w: %v", ErrSecurity, c.Security)
	}
	log.Debug().Str("module", "session").Str("addr", c.Addr()).Stringer("security", c.Security).
		Msg("Connected")
	return &imapConn{client: client}, nil
}

// imapConn adapts imapclient.Client to Conn.
type imapConn struct {
	client *imapclient.Client
}

func (c *imapConn) State() imap.ConnState {
	return c.client.State()
}

func (c *imapConn) Login(username, password string) error {
	return c.client.Login(username, password).Wait()
}

func (c *imapConn) List() ([]*folder.ListEntry, error) {
	var opts *imap.ListOptions
	if c.client.Caps().Has(imap.CapSpecialUse) {
		opts = &imap.ListOptions{ReturnSpecialUse: true}
	}
	data, err := c.client.List("", "*", opts).Collect()
	if err != nil {
		return nil, err
	}
	entries := make([]*folder.ListEntry, len(data))
	for i, d := range data {
		if d == nil {
			continue
		}
		flags := make([]string, len(d.Attrs))
		for j, a := range d.Attrs {
			flags[j] = string(a)
		}
		entries[i] = &folder.ListEntry{Name: d.Mailbox, Delim: d.Delim, Flags: flags}
	}
	return entries, nil
}

func (c *imapConn) Select(mailbox string, readOnly bool) (uint32, error) {
	data, err := c.client.Select(mailbox, &imap.SelectOptions{ReadOnly: readOnly}).Wait()
	if err != nil {
		return 0, err
	}
	return data.NumMessages, nil
}

func (c *imapConn) Search(criteria *imap.SearchCriteria) ([]uint32, error) {
	if criteria == nil {
		criteria = &imap.SearchCriteria{}
	}
	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, err
	}
	all := data.AllUIDs()
	uids := make([]uint32, len(all))
	for i, uid := range all {
		uids[i] = uint32(uid)
	}
	return uids, nil
}

// fetchRequest maps data items onto go-imap fetch options, keeping the body sections so their
// content can be found in the responses.
type fetchRequest struct {
	options *imap.FetchOptions
	header  *imap.FetchItemBodySection
	body    *imap.FetchItemBodySection
}

func newFetchRequest(items []message.DataItem) *fetchRequest {
	req := &fetchRequest{options: &imap.FetchOptions{UID: true}}
	for _, item := range items {
		switch item {
		case message.ItemFlags:
			req.options.Flags = true
		case message.ItemSize:
			req.options.RFC822Size = true
		case message.ItemInternalDate:
			req.options.InternalDate = true
		case message.ItemHeader:
			if req.header == nil {
				req.header = &imap.FetchItemBodySection{Specifier: imap.PartSpecifierHeader, Peek: true}
				req.options.BodySection = append(req.options.BodySection, req.header)
			}
		case message.ItemBody:
			if req.body == nil {
				req.body = &imap.FetchItemBodySection{Peek: true}
				req.options.BodySection = append(req.options.BodySection, req.body)
			}
		default:
			log.Debug().Str("module", "session").Str("item", string(item)).Msg("Ignoring unknown data item")
		}
	}
	return req
}

func (req *fetchRequest) response(buf *imapclient.FetchMessageBuffer) *message.Response {
	r := &message.Response{
		UID:          uint32(buf.UID),
		Size:         buf.RFC822Size,
		InternalDate: buf.InternalDate,
	}
	if req.options.Flags {
		r.Flags = make([]string, len(buf.Flags))
		for i, f := range buf.Flags {
			r.Flags[i] = string(f)
		}
	}
	if req.header != nil {
		r.Header = buf.FindBodySection(req.header)
	}
	if req.body != nil {
		r.Body = buf.FindBodySection(req.body)
	}
	return r
}

func (c *imapConn) Fetch(uids []uint32, items []message.DataItem) ([]*message.Response, error) {
	req := newFetchRequest(items)
	cmd := c.client.Fetch(uidSet(uids), req.options)

	var responses []*message.Response
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			log.Debug().Str("module", "session").Err(err).Msg("Skipping malformed fetch response")
			continue
		}
		responses = append(responses, req.response(buf))
	}
	if err := cmd.Close(); err != nil {
		return responses, err
	}
	return responses, nil
}

func (c *imapConn) Store(uids []uint32, flags []string, add bool) error {
	op := imap.StoreFlagsAdd
	if !add {
		op = imap.StoreFlagsDel
	}
	return c.client.Store(uidSet(uids), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  imapFlags(flags),
	}, nil).Close()
}

func (c *imapConn) Append(mailbox string, flags []string, date time.Time, literal []byte) (uint32, error) {
	cmd := c.client.Append(mailbox, int64(len(literal)), &imap.AppendOptions{
		Flags: imapFlags(flags),
		Time:  date,
	})
	if _, err := cmd.Write(literal); err != nil {
		_ = cmd.Close()
		return 0, err
	}
	if err := cmd.Close(); err != nil {
		return 0, err
	}
	data, err := cmd.Wait()
	if err != nil {
		return 0, err
	}
	return uint32(data.UID), nil
}

func (c *imapConn) Status(mailbox string, items []StatusItem) (map[StatusItem]uint32, error) {
	opts := &imap.StatusOptions{}
	for _, item := range items {
		switch item {
		case StatusMessages:
			opts.NumMessages = true
		case StatusUIDNext:
			opts.UIDNext = true
		case StatusUIDValidity:
			opts.UIDValidity = true
		case StatusUnseen:
			opts.NumUnseen = true
		}
	}
	data, err := c.client.Status(mailbox, opts).Wait()
	if err != nil {
		return nil, err
	}
	result := make(map[StatusItem]uint32)
	if data.NumMessages != nil {
		result[StatusMessages] = *data.NumMessages
	}
	if opts.UIDNext {
		result[StatusUIDNext] = uint32(data.UIDNext)
	}
	if opts.UIDValidity {
		result[StatusUIDValidity] = data.UIDValidity
	}
	if data.NumUnseen != nil {
		result[StatusUnseen] = *data.NumUnseen
	}
	return result, nil
}

// Close issues CLOSE, which go-imap names UnselectAndExpunge.
func (c *imapConn) Close() error {
	return c.client.UnselectAndExpunge().Wait()
}

func (c *imapConn) Logout() error {
	err := c.client.Logout().Wait()
	_ = c.client.Close()
	return err
}

func uidSet(uids []uint32) imap.UIDSet {
	set := make([]imap.UID, len(uids))
	for i, uid := range uids {
		set[i] = imap.UID(uid)
	}
	return imap.UIDSetNum(set...)
}

func imapFlags(flags []string) []imap.Flag {
	result := make([]imap.Flag, len(flags))
	for i, f := range flags {
		result[i] = imap.Flag(f)
	}
	return result
}
