// Package main implements a command line client for IMAP mailboxes
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/subcommands"
	"github.com/lilycrm/imapmail/pkg/account"
	"github.com/lilycrm/imapmail/pkg/config"
	"github.com/lilycrm/imapmail/pkg/credential"
	"github.com/lilycrm/imapmail/pkg/metric"
	"github.com/lilycrm/imapmail/pkg/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// version contains the build version number, populated during linking.
	version = "undefined"

	// date contains the build date, populated during linking.
	date = "undefined"
)

var (
	accountName  = flag.String("account", "", "Accounts file entry to use, default entry if empty")
	accountsFile = flag.String("accounts", "", "Accounts file, overrides IMAPMAIL_IMAP_ACCOUNTS")
	logfile      = flag.String("logfile", "stderr", "Write out log into the specified file.")
	logjson      = flag.Bool("logjson", false, "Logs are written in JSON format.")
	trace        = flag.Bool("trace", false, "Log the IMAP exchange at debug level.")
	stats        = flag.Bool("stats", false, "Log connection and decoding counters on exit.")

	conf *config.Root
)

func main() {
	// Important top-level flags
	subcommands.ImportantFlag("account")
	subcommands.ImportantFlag("accounts")

	// Setup standard helpers
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&envCmd{}, "")

	// Setup my commands
	subcommands.Register(&foldersCmd{}, "")
	subcommands.Register(&searchCmd{}, "")
	subcommands.Register(&listCmd{}, "")
	subcommands.Register(&fetchCmd{}, "")
	subcommands.Register(&findCmd{}, "")
	subcommands.Register(&statusCmd{}, "")
	subcommands.Register(&markCmd{}, "")
	subcommands.Register(&draftCmd{}, "")

	// Parse and execute
	flag.Parse()
	config.Version = version
	config.BuildDate = date
	var err error
	conf, err = config.Process()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if *trace {
		conf.IMAP.Trace = true
		conf.LogLevel = "debug"
	}
	closeLog, err := openLog(strings.ToLower(conf.LogLevel), *logfile, *logjson)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Log error: %v\n", err)
		os.Exit(1)
	}
	status := subcommands.Execute(context.Background())
	if *stats {
		log.Info().Str("module", "main").Str("imap", metric.Format(metric.Snapshot("imap"))).
			Msg("Counters")
	}
	closeLog()
	os.Exit(int(status))
}

// openSession builds a Session from the accounts file when one is configured, otherwise from
// the environment.
func openSession() (*session.Session, error) {
	dialer := &session.IMAPDialer{
		TLSConfig: &tls.Config{InsecureSkipVerify: conf.IMAP.InsecureSkipVerify},
		Trace:     conf.IMAP.Trace,
	}
	path := *accountsFile
	if path == "" {
		path = conf.IMAP.Accounts
	}
	if path == "" && conf.IMAP.Host == "" {
		path = account.DefaultPath()
	}
	name := *accountName
	if name == "" {
		name = conf.IMAP.Account
	}

	if path != "" {
		secrets := credential.NewKeyring(filepath.Join(filepath.Dir(path), "credentials"))
		f, err := account.Load(path, secrets)
		if err != nil {
			return nil, err
		}
		a, err := f.Find(name)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("module", "main").Str("account", a.Name).Msg("Using accounts file")
		return session.NewForAccount(dialer, a), nil
	}

	creds, err := conf.IMAP.Credentials()
	if err != nil {
		return nil, err
	}
	if creds.Password == "" {
		secrets := credential.NewKeyring(filepath.Join(filepath.Dir(account.DefaultPath()), "credentials"))
		if creds.Password, err = secrets.Get(credential.Key(creds.Username, creds.Host)); err != nil {
			return nil, err
		}
	}
	return session.New(dialer, creds), nil
}

// openLog points the global logger at logfile, ex: "stderr" or a path. The returned func flushes
// and closes the file.
func openLog(level string, logfile string, json bool) (func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl < zerolog.DebugLevel || lvl > zerolog.ErrorLevel {
		return nil, fmt.Errorf("log level %q not one of: debug, info, warn, error", level)
	}
	zerolog.SetGlobalLevel(lvl)

	w, isFile, closeFn, err := logWriter(logfile)
	if err != nil {
		return nil, err
	}
	w = zerolog.SyncWriter(w)
	if json {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return closeFn, nil
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    isFile || runtime.GOOS == "windows",
		TimeFormat: "15:04:05",
	}).With().Timestamp().Logger()
	return closeFn, nil
}

// logWriter opens the log destination. Files are appended to through a buffer.
func logWriter(logfile string) (w io.Writer, isFile bool, closeFn func(), err error) {
	switch logfile {
	case "", "stderr":
		return os.Stderr, false, func() {}, nil
	case "stdout":
		return os.Stdout, false, func() {}, nil
	}
	f, err := os.OpenFile(logfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, nil, fmt.Errorf("opening log: %w", err)
	}
	bw := bufio.NewWriter(f)
	return bw, true, func() {
		_ = bw.Flush()
		_ = f.Close()
	}, nil
}

type envCmd struct{}

func (*envCmd) Name() string     { return "env" }
func (*envCmd) Synopsis() string { return "describe the environment variables" }
func (*envCmd) Usage() string {
	return `env:
	print the configuration environment variables and their defaults
`
}
func (*envCmd) SetFlags(*flag.FlagSet) {}

func (*envCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	config.Usage()
	return subcommands.ExitSuccess
}

func fatal(msg string, err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	return subcommands.ExitFailure
}

func usage(msg string) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, msg)
	return subcommands.ExitUsageError
}
