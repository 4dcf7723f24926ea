// Command qp is the quantity-plan client: sign in, browse products and agents,
// and edit per-agent quantities from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/qty-planner/internal/api"
	"github.com/and161185/qty-planner/internal/config"
	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/gateway"
	"github.com/and161185/qty-planner/internal/logging"
	"github.com/and161185/qty-planner/internal/quantityplan"
	"github.com/and161185/qty-planner/internal/session"
	"github.com/and161185/qty-planner/internal/tokenstore"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// errUsage marks bad command-line input; main exits with 2.
var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprint(w, `qp - quantity plan client
Usage:
  qp [-api URL] [-config-dir DIR] [-log-level LEVEL] [-json] [-strict] <cmd> [args]

Commands:
  version
  login     -email <email> [-password <password>]   (password is read from stdin when omitted)
  logout
  whoami
  products
  agents    -product <code> -date <YYYY-MM-DD> [-phase <no>] [-search <text>]
  show      -product <code> -date <YYYY-MM-DD> [-phase <no>] -contract <no> -item <no> [-raw]
  update    -product <code> -date <YYYY-MM-DD> [-phase <no>] -contract <no> -item <no>
            [-base N] [-night N] [-days N] [-extra N] [-delivery N] [-fixed=true|false]
  shell     interactive session; signs out after the inactivity timeout
  health    [-addr HOST:PORT] [-service NAME] [-tls]
`)
}

// app holds the wired client stack for one process.
type app struct {
	cfg    *config.Client
	log    *zap.Logger
	out    io.Writer
	errOut io.Writer
	in     io.Reader
	json   bool

	store *tokenstore.FileStore
	sess  *session.Manager
	gw    *gateway.Gateway
	qp    *quantityplan.Service

	// navigation events are reported only while the shell runs
	interactive atomic.Bool
}

func newApp(cfg *config.Client, log *zap.Logger, in io.Reader, out, errOut io.Writer) (*app, error) {
	hc := api.NewHTTPClient(cfg.HTTPTimeout, cfg.InsecureTLS)
	client, err := api.NewClient(cfg.APIBase, hc)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, in: in, out: out, errOut: errOut}
	a.store = tokenstore.NewFileStore(cfg.ConfigDir, tokenstore.WithDefaultExpiresIn(cfg.DefaultExpiresIn))

	opts := []session.Option{session.WithRefreshLead(cfg.RefreshLead), session.WithListener(a.onNav)}
	if cfg.FallbackEmail != "" && cfg.FallbackPassword != "" {
		opts = append(opts, session.WithFallbackCredentials(cfg.FallbackEmail, cfg.FallbackPassword))
	}
	a.sess = session.NewManager(client, a.store, log, opts...)
	a.gw = gateway.New(client.BaseURL(), hc, a.sess, log)
	a.qp = quantityplan.NewService(a.gw, log, quantityplan.WithStrictMatch(cfg.StrictMatch))
	return a, nil
}

func (a *app) close() { a.sess.Close() }

func (a *app) onNav(n session.Nav) {
	if a.interactive.Load() && n == session.NavUnauthenticated {
		fmt.Fprintln(a.errOut, "signed out")
	}
}

// main loads config, applies flag overrides and dispatches one command.
func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("qp", flag.ContinueOnError)
	fs.Usage = func() { usage(os.Stderr) }
	fs.StringVar(&cfg.APIBase, "api", cfg.APIBase, "API base URL")
	fs.StringVar(&cfg.ConfigDir, "config-dir", cfg.ConfigDir, "token storage directory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	fs.BoolVar(&cfg.StrictMatch, "strict", cfg.StrictMatch, "fail instead of showing the first row when no row matches")
	asJSON := fs.Bool("json", false, "print JSON instead of tables")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if fs.NArg() < 1 {
		usage(os.Stderr)
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	a, err := newApp(cfg, log, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	a.json = *asJSON

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rctx, cancel := context.WithTimeout(ctx, 2*cfg.HTTPTimeout)
	a.sess.Restore(rctx)
	cancel()
	err = a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
	stop()
	a.close()
	if err != nil {
		os.Exit(fail(os.Stderr, err))
	}
}

// dispatch runs one command. Commands other than shell get a bounded context.
func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	if cmd == "shell" {
		return a.cmdShell(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*a.cfg.HTTPTimeout+10*time.Second)
	defer cancel()

	switch cmd {
	case "version":
		fmt.Fprintf(a.out, "qp %s (%s)\n", version, buildDate)
		return nil
	case "login":
		return a.cmdLogin(ctx, args)
	case "logout":
		return a.cmdLogout(ctx)
	case "whoami":
		return a.cmdWhoami(ctx)
	case "products":
		return a.cmdProducts(ctx)
	case "agents":
		return a.cmdAgents(ctx, args)
	case "show":
		return a.cmdShow(ctx, args)
	case "update":
		return a.cmdUpdate(ctx, args)
	case "health":
		return a.cmdHealth(ctx, args)
	case "help", "-h", "--help":
		usage(a.out)
		return nil
	default:
		usage(a.errOut)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// fail prints the user-facing message and returns the exit code.
func fail(w io.Writer, err error) int {
	if errors.Is(err, errUsage) {
		fmt.Fprintln(w, err)
		return 2
	}
	fmt.Fprintln(w, errs.UserMessage(err))
	return 1
}
