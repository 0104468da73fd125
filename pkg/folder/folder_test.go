package folder_test

import (
	"testing"

	"github.com/lilycrm/imapmail/pkg/folder"
	"github.com/stretchr/testify/assert"
)

func TestDeriveRole(t *testing.T) {
	testCases := []struct {
		name  string
		flags []string
		want  folder.Role
	}{
		{"none", nil, ""},
		{"hierarchy only", []string{`\HasNoChildren`}, ""},
		{"sent", []string{`\HasNoChildren`, `\Sent`}, folder.Sent},
		{"case insensitive", []string{`\TRASH`}, folder.Trash},
		{"special-use all", []string{`\All`}, folder.AllMail},
		{"special-use junk", []string{`\Junk`, `\HasChildren`}, folder.Spam},
		{"special-use flagged", []string{`\Flagged`}, folder.Starred},
		{"same role twice", []string{`\Flagged`, `\Starred`}, folder.Starred},
		{"ambiguous", []string{`\Sent`, `\Drafts`}, ""},
		{"ambiguous with noise", []string{`\Noselect`, `\Spam`, `\Important`}, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, folder.DeriveRole(tc.flags))
		})
	}
}

func TestDeriveRoleEveryMarker(t *testing.T) {
	for _, r := range folder.Roles {
		t.Run(r.String(), func(t *testing.T) {
			assert.Equal(t, r, folder.DeriveRole([]string{`\HasNoChildren`, r.Marker()}))
			assert.True(t, r.Valid())
		})
	}
}

func TestNewFolderInboxKeepsKeyword(t *testing.T) {
	f := folder.NewFolder("Postvak IN", '/', []string{`\Inbox`, `\HasNoChildren`})
	assert.Equal(t, folder.Inbox, f.Role())
	assert.Equal(t, "INBOX", f.ServerName())
	assert.Equal(t, "Postvak IN", f.LocaleName())
	assert.Equal(t, "Postvak IN", f.Name(true))
}

func TestNewFolderInboxWithoutLocale(t *testing.T) {
	f := folder.NewFolder("INBOX", '/', []string{`\Inbox`})
	assert.Equal(t, "INBOX", f.ServerName())
	assert.False(t, f.HasLocaleName())
}

func TestFolderNames(t *testing.T) {
	f := folder.NewFolder("[Gmail]/Sent Mail", '/', []string{`\Sent`, `\HasNoChildren`})
	assert.Equal(t, "[Gmail]/Sent Mail", f.ServerName())
	assert.Equal(t, "[Gmail]/Sent Mail", f.Name(true))
	assert.Equal(t, "Sent Mail", f.Name(false))
	assert.True(t, f.IsSubfolder())
	assert.Equal(t, "[Gmail]", f.Parent())
	assert.False(t, f.HasLocaleName())
}

func TestFolderTopLevel(t *testing.T) {
	f := folder.NewFolder("Work", 0, nil)
	assert.False(t, f.IsSubfolder())
	assert.Equal(t, "", f.Parent())
	assert.Equal(t, '/', f.Delimiter())
	assert.Equal(t, "Work", f.Name(false))
}

func TestFolderDotDelimiter(t *testing.T) {
	f := folder.NewFolder("INBOX.Lists.golang", '.', nil)
	assert.True(t, f.IsSubfolder())
	assert.Equal(t, "golang", f.Name(false))
	assert.Equal(t, "INBOX.Lists", f.Parent())
}

func TestFolderSelectAndChildren(t *testing.T) {
	parent := folder.NewFolder("[Gmail]", '/', []string{`\Noselect`, `\HasChildren`})
	assert.False(t, parent.CanSelect())
	assert.True(t, parent.HasChildren())

	leaf := folder.NewFolder("Work", '/', []string{`\HasNoChildren`})
	assert.True(t, leaf.CanSelect())
	assert.False(t, leaf.HasChildren())
}

func TestFolderFlagsCopied(t *testing.T) {
	flags := []string{`\Sent`}
	f := folder.NewFolder("Sent", '/', flags)
	flags[0] = `\Trash`
	assert.Equal(t, []string{`\Sent`}, f.Flags())
	assert.Equal(t, folder.Sent, f.Role())
}

func TestParseRef(t *testing.T) {
	assert.Equal(t, folder.Sent, folder.ParseRef(`\Sent`))
	assert.Equal(t, folder.Spam, folder.ParseRef(`\Junk`))
	assert.Equal(t, folder.Name("Sent"), folder.ParseRef("Sent"))
	assert.Equal(t, folder.Name(`\Unknown`), folder.ParseRef(`\Unknown`))
}
