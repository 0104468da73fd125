package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/lilycrm/imapmail/pkg/session"
	"github.com/lilycrm/imapmail/pkg/stringutil"
)

type statusCmd struct {
	output string
}

func (*statusCmd) Name() string {
	return "status"
}

func (*statusCmd) Synopsis() string {
	return "show message counts of a folder"
}

func (*statusCmd) Usage() string {
	return `status [flags] [<folder>]:
	show message, unseen and UID counters of folder, All Mail if omitted
`
}

func (c *statusCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "output", "table", "output format: table or json")
}

func (c *statusCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var ref folder.Ref
	if f.NArg() > 0 {
		ref = folder.ParseRef(f.Arg(0))
	}
	s, err := openSession()
	if err != nil {
		return fatal("Couldn't open session", err)
	}
	defer s.Logout()

	status, err := s.Status(ctx, ref)
	if err != nil {
		return fatal("Status failed", err)
	}
	switch c.output {
	case "json":
		if err := writeJSON(stdout, status); err != nil {
			return fatal("Error", err)
		}
	case "table":
		for _, item := range []session.StatusItem{
			session.StatusMessages, session.StatusUnseen, session.StatusUIDNext, session.StatusUIDValidity,
		} {
			if v, ok := status[item]; ok {
				fmt.Fprintf(stdout, "%-12s %d\n", item, v)
			}
		}
	default:
		return usage("unknown output type: " + c.output)
	}
	return subcommands.ExitSuccess
}

type markCmd struct {
	unread bool
}

func (*markCmd) Name() string {
	return "mark"
}

func (*markCmd) Synopsis() string {
	return "mark messages read or unread"
}

func (*markCmd) Usage() string {
	return `mark [flags] <folder> <uids>:
	set \Seen on uids, or clear it with -unread
`
}

func (c *markCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.unread, "unread", false, "mark unread instead of read")
}

func (c *markCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		return usage("folder and uids required")
	}
	uids, err := stringutil.ParseUIDs(f.Arg(1))
	if err != nil {
		return usage(err.Error())
	}
	s, err := openSession()
	if err != nil {
		return fatal("Couldn't open session", err)
	}
	defer s.Logout()

	if _, err := s.OpenFolder(ctx, folder.ParseRef(f.Arg(0)), false); err != nil {
		return fatal("Couldn't open folder", err)
	}
	defer s.CloseFolder()
	if c.unread {
		err = s.MarkUnread(ctx, uids...)
	} else {
		err = s.MarkRead(ctx, uids...)
	}
	if err != nil {
		return fatal("Store failed", err)
	}
	fmt.Fprintln(stdout, stringutil.FormatUIDs(uids))
	return subcommands.ExitSuccess
}
