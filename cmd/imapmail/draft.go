package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/jhillyerd/enmime/v2"
)

type draftCmd struct {
	file    string
	from    string
	to      string
	subject string
	text    string
	html    string
}

func (*draftCmd) Name() string {
	return "draft"
}

func (*draftCmd) Synopsis() string {
	return "save a message to the drafts folder"
}

func (*draftCmd) Usage() string {
	return `draft [flags]:
	save a draft from -file (- for stdin), or build one from -from, -to, -subject and -text
	prints the UID the server assigned
`
}

func (c *draftCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "", "RFC 5322 message to upload")
	f.StringVar(&c.from, "from", "", "From address")
	f.StringVar(&c.to, "to", "", "To address")
	f.StringVar(&c.subject, "subject", "", "Subject")
	f.StringVar(&c.text, "text", "", "plain text body")
	f.StringVar(&c.html, "htmlbody", "", "HTML body")
}

// build assembles a draft from the flags.
func (c *draftCmd) build() (*enmime.Part, error) {
	b := enmime.Builder().
		From("", c.from).
		Subject(c.subject).
		Text([]byte(c.text))
	if c.to != "" {
		b = b.To("", c.to)
	}
	if c.html != "" {
		b = b.HTML([]byte(c.html))
	}
	return b.Build()
}

func (c *draftCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var raw []byte
	var part *enmime.Part
	var err error
	switch {
	case c.file == "-":
		raw, err = io.ReadAll(os.Stdin)
	case c.file != "":
		raw, err = os.ReadFile(c.file)
	case c.from != "" && c.subject != "":
		part, err = c.build()
	default:
		return usage("-file, or -from and -subject required")
	}
	if err != nil {
		return fatal("Couldn't prepare draft", err)
	}

	s, err := openSession()
	if err != nil {
		return fatal("Couldn't open session", err)
	}
	defer s.Logout()

	var uid uint32
	if part != nil {
		uid, err = s.SaveDraftMessage(ctx, part)
	} else {
		uid, err = s.SaveDraft(ctx, raw)
	}
	if err != nil {
		return fatal("Saving draft failed", err)
	}
	fmt.Fprintln(stdout, uid)
	return subcommands.ExitSuccess
}
