package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"
)

type foldersCmd struct {
	all    bool
	output string
}

func (*foldersCmd) Name() string {
	return "folders"
}

func (*foldersCmd) Synopsis() string {
	return "list the folders of the account"
}

func (*foldersCmd) Usage() string {
	return `folders [flags]:
	list folders with their roles, selectable folders only unless -all is given
`
}

func (c *foldersCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.all, "all", false, "include folders that cannot be selected")
	f.StringVar(&c.output, "output", "table", "output format: table or json")
}

type folderJSON struct {
	Name       string   `json:"name"`
	LocaleName string   `json:"localeName,omitempty"`
	Role       string   `json:"role,omitempty"`
	Flags      []string `json:"flags"`
	Selectable bool     `json:"selectable"`
}

func (c *foldersCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := openSession()
	if err != nil {
		return fatal("Couldn't open session", err)
	}
	defer s.Logout()

	reg, err := s.Folders(ctx)
	if err != nil {
		return fatal("Couldn't list folders", err)
	}
	folders := reg.Folders(nil, c.all)
	switch c.output {
	case "json":
		out := make([]folderJSON, len(folders))
		for i, fo := range folders {
			out[i] = folderJSON{
				Name:       fo.ServerName(),
				LocaleName: fo.LocaleName(),
				Role:       fo.Role().String(),
				Flags:      fo.Flags(),
				Selectable: fo.CanSelect(),
			}
		}
		if err := writeJSON(stdout, out); err != nil {
			return fatal("Error", err)
		}
	case "table":
		tabs := tabwriter.NewWriter(stdout, 1, 0, 2, ' ', 0)
		fmt.Fprintln(tabs, "NAME\tROLE\tDISPLAY")
		for _, fo := range folders {
			fmt.Fprintf(tabs, "%s\t%s\t%s\n", fo.ServerName(), fo.Role(), fo.Name(true))
		}
		if err := tabs.Flush(); err != nil {
			return fatal("Error", err)
		}
	default:
		return usage("unknown output type: " + c.output)
	}
	return subcommands.ExitSuccess
}
