package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/google/subcommands"
	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/lilycrm/imapmail/pkg/message"
	"github.com/lilycrm/imapmail/pkg/session"
)

// searchFlags are shared by search and list.
type searchFlags struct {
	unseen bool
	seen   bool
	page   int
	size   int
}

func (sf *searchFlags) setFlags(f *flag.FlagSet) {
	f.BoolVar(&sf.unseen, "unseen", false, "only messages without \\Seen")
	f.BoolVar(&sf.seen, "seen", false, "only messages with \\Seen")
	f.IntVar(&sf.page, "page", 1, "page number, starting at 1")
	f.IntVar(&sf.size, "size", 0, "page size, 0 for the configured default")
}

func (sf *searchFlags) criteria() *imap.SearchCriteria {
	c := &imap.SearchCriteria{}
	if sf.unseen {
		c.NotFlag = append(c.NotFlag, imap.FlagSeen)
	}
	if sf.seen {
		c.Flag = append(c.Flag, imap.FlagSeen)
	}
	return c
}

func (sf *searchFlags) pageSize() int {
	if sf.size > 0 {
		return sf.size
	}
	return conf.Fetch.PageSize
}

type searchCmd struct {
	searchFlags
	output string
}

func (*searchCmd) Name() string {
	return "search"
}

func (*searchCmd) Synopsis() string {
	return "list message UIDs in a folder"
}

func (*searchCmd) Usage() string {
	return `search [flags] <folder>:
	print the message count of folder followed by one page of matching UIDs
	folder is a server name or a role marker such as \Sent
`
}

func (c *searchCmd) SetFlags(f *flag.FlagSet) {
	c.searchFlags.setFlags(f)
	f.StringVar(&c.output, "output", "id", "output format: id or json")
}

func (c *searchCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	name := f.Arg(0)
	if name == "" {
		return usage("folder required")
	}
	if c.output != "id" && c.output != "json" {
		return usage("unknown output type: " + c.output)
	}
	s, err := openSession()
	if err != nil {
		return fatal("Couldn't open session", err)
	}
	defer s.Logout()

	count, uids, err := s.Search(ctx, folder.ParseRef(name), c.criteria(), session.SearchOptions{
		Page:     c.page,
		PageSize: c.pageSize(),
	})
	if err != nil {
		return fatal("Search failed", err)
	}
	if c.output == "json" {
		err = writeJSON(stdout, struct {
			Count int      `json:"count"`
			UIDs  []uint32 `json:"uids"`
		}{count, uids})
		if err != nil {
			return fatal("Error", err)
		}
		return subcommands.ExitSuccess
	}
	fmt.Fprintln(stdout, count)
	for _, uid := range uids {
		fmt.Fprintln(stdout, uid)
	}
	return subcommands.ExitSuccess
}

type listCmd struct {
	searchFlags
	matcher
	output string
	body   bool
}

func (*listCmd) Name() string {
	return "list"
}

func (*listCmd) Synopsis() string {
	return "list messages across folders"
}

func (*listCmd) Usage() string {
	return `list [flags] [<folder>...]:
	list one page of messages from each folder, the inbox if none are given
	exit status will be 1 if no messages matched, otherwise 0
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	c.searchFlags.setFlags(f)
	c.matcher.setFlags(f)
	f.StringVar(&c.output, "output", "table", "output format: id, json, or table")
	f.BoolVar(&c.body, "body", false, "fetch full messages")
}

func (c *listCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	body := c.body || conf.Fetch.Body
	out, ok := selectOutput(c.output, body)
	if !ok {
		return usage("unknown output type: " + c.output)
	}
	refs := make([]folder.Ref, 0, f.NArg())
	for _, arg := range f.Args() {
		refs = append(refs, folder.ParseRef(arg))
	}
	if len(refs) == 0 {
		refs = append(refs, folder.Inbox)
	}
	items := message.HeaderItems
	if body {
		items = message.FullItems
	}

	s, err := openSession()
	if err != nil {
		return fatal("Couldn't open session", err)
	}
	defer s.Logout()

	page, err := s.Across(ctx, refs, c.criteria(), items, c.page, c.pageSize())
	if err != nil {
		return fatal("List failed", err)
	}
	matches := make([]*message.Message, 0, page.Messages.Len())
	for _, m := range page.Messages.List() {
		if c.match(m) {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return subcommands.ExitFailure
	}
	if err := out(stdout, matches); err != nil {
		return fatal("Error", err)
	}
	return subcommands.ExitSuccess
}
