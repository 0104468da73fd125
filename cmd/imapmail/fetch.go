package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/lilycrm/imapmail/pkg/message"
	"github.com/lilycrm/imapmail/pkg/sanitize"
	"github.com/lilycrm/imapmail/pkg/session"
	"github.com/lilycrm/imapmail/pkg/stringutil"
)

type fetchCmd struct {
	output  string
	headers bool
	html    bool
}

func (*fetchCmd) Name() string {
	return "fetch"
}

func (*fetchCmd) Synopsis() string {
	return "fetch messages by UID"
}

func (*fetchCmd) Usage() string {
	return `fetch [flags] <folder> <uids>:
	fetch and decode messages, uids is a list such as 1,4,7-9
`
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "output", "json", "output format: id, json, or table")
	f.BoolVar(&c.headers, "headers", false, "fetch headers only")
	f.BoolVar(&c.html, "html", false, "sanitize HTML bodies for display")
}

func (c *fetchCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		return usage("folder and uids required")
	}
	uids, err := stringutil.ParseUIDs(f.Arg(1))
	if err != nil {
		return usage(err.Error())
	}
	out, ok := selectOutput(c.output, !c.headers)
	if !ok {
		return usage("unknown output type: " + c.output)
	}
	items := message.FullItems
	if c.headers {
		items = message.HeaderItems
	}

	s, err := openSession()
	if err != nil {
		return fatal("Couldn't open session", err)
	}
	defer s.Logout()

	fetched, err := s.Fetch(ctx, folder.ParseRef(f.Arg(0)), uids, items, session.FetchOptions{})
	if err != nil {
		return fatal("Fetch failed", err)
	}
	msgs := sortedMessages(fetched)
	if c.html {
		sanitizeBodies(msgs)
	}
	if err := out(stdout, msgs); err != nil {
		return fatal("Error", err)
	}
	if len(msgs) < len(uids) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func sanitizeBodies(msgs []*message.Message) {
	for _, m := range msgs {
		if m.HTMLBody == "" {
			continue
		}
		safe, err := sanitize.HTML(m.HTMLBody)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Couldn't sanitize HTML of UID %d: %v\n", m.UID, err)
			m.HTMLBody = ""
			continue
		}
		m.HTMLBody = safe
	}
}

type findCmd struct {
	folder  string
	output  string
	headers bool
	html    bool
}

func (*findCmd) Name() string {
	return "find"
}

func (*findCmd) Synopsis() string {
	return "find a message by UID in any folder"
}

func (*findCmd) Usage() string {
	return `find [flags] <uid>:
	look for uid in the -folder hint, then the inbox, then every other folder
	UIDs are only unique per folder, a match outside the hint is reported as guessed
`
}

func (c *findCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.folder, "folder", "", "folder expected to hold the message")
	f.StringVar(&c.output, "output", "json", "output format: id, json, or table")
	f.BoolVar(&c.headers, "headers", false, "fetch headers only")
	f.BoolVar(&c.html, "html", false, "sanitize HTML bodies for display")
}

func (c *findCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	uids, err := stringutil.ParseUIDs(f.Arg(0))
	if err != nil || len(uids) != 1 {
		return usage("a single uid required")
	}
	out, ok := selectOutput(c.output, !c.headers)
	if !ok {
		return usage("unknown output type: " + c.output)
	}
	items := message.FullItems
	if c.headers {
		items = message.HeaderItems
	}
	var hint folder.Ref
	if c.folder != "" {
		hint = folder.ParseRef(c.folder)
	}

	s, err := openSession()
	if err != nil {
		return fatal("Couldn't open session", err)
	}
	defer s.Logout()

	found, err := s.FindUID(ctx, uids[0], items, hint)
	if err != nil {
		return fatal("Find failed", err)
	}
	if !found.Found {
		return subcommands.ExitFailure
	}
	if found.Guessed {
		fmt.Fprintf(os.Stderr, "UID %d found in %s, which may be a different message\n", uids[0], found.Folder)
	}
	msgs := []*message.Message{found.Message}
	if c.html {
		sanitizeBodies(msgs)
	}
	if err := out(stdout, msgs); err != nil {
		return fatal("Error", err)
	}
	return subcommands.ExitSuccess
}
