package session

import (
	"expvar"

	"github.com/lilycrm/imapmail/pkg/message"
)

var (
	expConnectsTotal   = new(expvar.Int)
	expConnectFailures = new(expvar.Int)
	expLoginFailures   = new(expvar.Int)
	expReconnects      = new(expvar.Int)
	expMessagesFetched = new(expvar.Int)
	expDraftsSaved     = new(expvar.Int)
)

func init() {
	m := expvar.NewMap("imap")
	m.Set("ConnectsTotal", expConnectsTotal)
	m.Set("ConnectFailures", expConnectFailures)
	m.Set("LoginFailures", expLoginFailures)
	m.Set("Reconnects", expReconnects)
	m.Set("MessagesFetched", expMessagesFetched)
	m.Set("DraftsSaved", expDraftsSaved)
	m.Set("PartsSkipped", message.ExpPartsSkipped)
}
