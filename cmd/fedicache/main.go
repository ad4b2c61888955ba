package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smileynet/fedicache/internal/api"
	"github.com/smileynet/fedicache/internal/config"
	"github.com/smileynet/fedicache/internal/dashboard"
	"github.com/smileynet/fedicache/internal/entity"
	"github.com/smileynet/fedicache/internal/inspect"
	"github.com/smileynet/fedicache/internal/logging"
	"github.com/smileynet/fedicache/internal/metrics"
	"github.com/smileynet/fedicache/internal/model"
	"github.com/smileynet/fedicache/internal/orchestrator"
	"github.com/smileynet/fedicache/internal/schema"
	"github.com/smileynet/fedicache/internal/snapshot"
	"github.com/smileynet/fedicache/internal/source"
	"github.com/smileynet/fedicache/internal/store"
	"github.com/smileynet/fedicache/internal/stream"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Globals are flags shared by every command. Set flags override the config files.
type Globals struct {
	Instance string `help:"Instance URL, overriding instance.url." placeholder:"URL"`
	LogLevel string `help:"Log level (debug, info, warn, error), overriding logging.level." placeholder:"LEVEL"`
}

// CLI is the top-level command structure for fedicache.
type CLI struct {
	Globals

	Version   kong.VersionFlag `help:"Show version." short:"V"`
	Timeline  TimelineCmd      `cmd:"" help:"Fetch a list and print it."`
	Post      PostCmd          `cmd:"" help:"Publish a status."`
	Dashboard DashboardCmd     `cmd:"" help:"Browse a list in an interactive TUI."`
	Serve     ServeCmd         `cmd:"" help:"Serve the inspector and follow the streaming API."`
	Ver       VersionCmd       `cmd:"" name:"version" help:"Print version information."`
}

// --- Wiring ---

// app holds the collaborators every command shares.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	metrics   *metrics.Collectors
	store     *store.Store
	client    *api.Client
	orch      *orchestrator.Orchestrator
	sources   *source.Registry
	snapshots *snapshot.FileStore // nil when snapshots are disabled
}

// snapshotCodecs lists the entity types written to snapshots.
var snapshotCodecs = snapshot.Codecs{
	model.TypeStatuses:      snapshot.JSONDecoder[model.Status](),
	model.TypeAccounts:      snapshot.JSONDecoder[model.Account](),
	model.TypeNotifications: snapshot.JSONDecoder[model.Notification](),
}

// newApp builds the store, API client, orchestrator and source registry from
// cfg. When warm is set and snapshots are enabled, the store starts from the
// instance's last snapshot.
func newApp(cfg *config.Config, log *zap.Logger, warm bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     logging.OrNop(log),
		metrics: metrics.New(),
	}

	client, err := api.New(cfg.Instance.URL,
		api.WithToken(cfg.Instance.Token),
		api.WithTimeout(cfg.Instance.Timeout),
		api.WithRetry(cfg.Fetch.RetryAttempts, 0),
		api.WithLogger(a.log.Named("api")),
		api.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	a.client = client

	var initial *entity.State
	if cfg.Snapshot.Dir != "" {
		a.snapshots = snapshot.NewFileStore(cfg.Snapshot.Dir, snapshotCodecs)
		if warm {
			s, found, err := a.snapshots.Load(a.profile())
			switch {
			case err != nil:
				a.log.Warn("ignoring unreadable snapshot", zap.Error(err))
			case found:
				a.log.Debug("restored snapshot", zap.String("profile", a.profile()))
				initial = s
			}
		}
	}

	a.store = store.New(
		store.WithInitialState(initial),
		store.WithLogger(a.log.Named("store")),
		store.WithMiddleware(store.Logging(a.log.Named("store")), store.Metrics(a.metrics)),
	)
	a.orch = orchestrator.New(a.store,
		orchestrator.WithLogger(a.log.Named("orchestrator")),
		orchestrator.WithStaleAfter(cfg.Fetch.StaleAfter),
	)
	a.sources = source.NewRegistry()
	source.RegisterBuiltins(a.sources, client, cfg.Fetch.PageSize)
	return a, nil
}

// profile names the snapshot file of the configured instance.
func (a *app) profile() string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(a.client.BaseURL().Host)
}

// saveSnapshot writes the current state when snapshots are enabled. Failures
// are logged; a missing snapshot only costs a cold start.
func (a *app) saveSnapshot() {
	if a.snapshots == nil {
		return
	}
	if err := a.snapshots.Save(a.profile(), a.store.State()); err != nil {
		a.log.Warn("saving snapshot", zap.Error(err))
	}
}

// loadConfig loads layered config (user → project), applies environment
// overrides and the global flags, then validates.
func loadConfig(g *Globals) (*config.Config, error) {
	cfg, err := config.LoadLayered(
		os.ExpandEnv("$HOME/.config/fedicache/config.yaml"),
		".fedicache/config.yaml",
	)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if g != nil {
		if g.Instance != "" {
			cfg.Instance.URL = g.Instance
		}
		if g.LogLevel != "" {
			cfg.Logging.Level = g.LogLevel
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads config, builds the logger and wires the app.
func setup(g *Globals, warm bool) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, log, warm)
}

// --- Timeline command ---

// TimelineCmd fetches a list source and prints its entries.
type TimelineCmd struct {
	Source string `arg:"" help:"List source, e.g. home, local, notifications, account:<id>."`
	Pages  int    `help:"Pages to fetch (default fetch.max_pages)."`
	Force  bool   `help:"Fetch even if the list is fresh."`
}

// Run executes the timeline command.
func (t *TimelineCmd) Run(g *Globals) error {
	a, err := setup(g, true)
	if err != nil {
		return fmt.Errorf("timeline: %w", err)
	}
	defer func() { _ = a.log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = t.run(ctx, os.Stdout, a)
	a.saveSnapshot()
	return err
}

// run fetches the source into the store and prints the resulting list.
func (t *TimelineCmd) run(ctx context.Context, w io.Writer, a *app) error {
	src, err := a.sources.Lookup(t.Source)
	if err != nil {
		return err
	}
	pages := t.Pages
	if pages <= 0 {
		pages = a.cfg.Fetch.MaxPages
	}
	opts := []orchestrator.FetchOption{orchestrator.WithSchema(src.Schema)}
	if t.Force {
		opts = append(opts, orchestrator.Force())
	}
	if err := a.orch.FetchAll(ctx, src.Path, src.Fetch, pages, opts...); err != nil {
		return err
	}
	return printList(w, a.store.State(), src.Path)
}

// printList writes one line per entity of the list at p, then a count line.
func printList(w io.Writer, s *entity.State, p entity.Path) error {
	entries := entity.SelectEntities[entity.Entity](s, p)
	if len(entries) == 0 {
		_, err := fmt.Fprintf(w, "No entries in %s\n", p)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		item := dashboard.RenderEntity(e)
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", item.ID, item.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	ls, _ := entity.SelectListState(s, p)
	total := ""
	if n, ok := ls.Count(); ok {
		total = fmt.Sprintf(" of %d", n)
	}
	more := ""
	if ls.Next != "" {
		more = ", more available"
	}
	_, err := fmt.Fprintf(w, "%d entries%s%s\n", len(entries), total, more)
	return err
}

// --- Post command ---

// PostCmd publishes a status.
type PostCmd struct {
	Text       string `arg:"" help:"Status text."`
	Visibility string `help:"Visibility." enum:"public,unlisted,private,direct" default:"public"`
	ReplyTo    string `help:"Id of the status being replied to." placeholder:"ID"`
	Spoiler    string `help:"Content warning shown before the text."`
}

// Run executes the post command.
func (p *PostCmd) Run(g *Globals) error {
	a, err := setup(g, true)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer func() { _ = a.log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = p.run(ctx, os.Stdout, a)
	a.saveSnapshot()
	return err
}

// run creates the status, showing a tentative copy at the top of the home
// timeline until the server's version replaces it.
func (p *PostCmd) run(ctx context.Context, w io.Writer, a *app) error {
	if strings.TrimSpace(p.Text) == "" {
		return errors.New("post: text cannot be empty")
	}
	req := api.NewStatus{
		Status:      p.Text,
		Visibility:  p.Visibility,
		InReplyToID: p.ReplyTo,
		SpoilerText: p.Spoiler,
		Sensitive:   p.Spoiler != "",
	}
	tentative := model.Status{
		ID:          "pending-" + uuid.NewString(),
		Content:     p.Text,
		SpoilerText: p.Spoiler,
		Visibility:  p.Visibility,
		InReplyToID: p.ReplyTo,
	}

	created, err := a.orch.CreateEntity(ctx, model.TypeStatuses, a.client.CreateStatus(req),
		orchestrator.WithCreateSchema(source.Statuses),
		orchestrator.Tentative(tentative),
		orchestrator.IntoList("home", entity.PositionStart),
	)
	if err != nil {
		// The tentative copy has no server counterpart.
		a.store.Dispatch(entity.DeleteEntities([]string{tentative.ID}, model.TypeStatuses, entity.DeleteOptions{}))
		return err
	}

	status, _ := created.(model.Status)
	if status.URL != "" {
		_, err = fmt.Fprintf(w, "Posted %s %s\n", status.ID, status.URL)
	} else {
		_, err = fmt.Fprintf(w, "Posted %s\n", created.EntityID())
	}
	return err
}

// --- Dashboard command ---

// DashboardCmd opens the interactive dashboard TUI over one list source.
type DashboardCmd struct {
	Source string `arg:"" optional:"" default:"home" help:"List source, e.g. home, local, notifications, account:<id>."`
}

// teaRunner abstracts Bubble Tea program execution for testing.
type teaRunner interface {
	Run() (tea.Model, error)
}

// Run builds real dependencies and launches the dashboard TUI.
func (d *DashboardCmd) Run(g *Globals) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("dashboard: requires a terminal (TTY)")
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	// The alt screen owns the terminal; only json logs to a redirected stderr survive it.
	var log *zap.Logger
	if cfg.Logging.Format == "json" && !isatty.IsTerminal(os.Stderr.Fd()) {
		if log, err = logging.New(cfg.Logging); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
	}
	a, err := newApp(cfg, log, true)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	src, err := a.sources.Lookup(d.Source)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	actions := newSourceActions(ctx, a.orch, a.client, src)
	m := dashboard.NewModel(src.Name, src.Path, actions, dashboard.RenderEntity, a.store.State())
	prog := tea.NewProgram(m, tea.WithAltScreen())
	unsubscribe := dashboard.Bridge(a.store, prog)
	defer unsubscribe()

	if cfg.Stream.Enabled && src.Stream != "" {
		sc, err := newStreamClient(a)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		go func() { _ = sc.Run(ctx, src.Stream, a.store, streamTargets(src)) }()
	}

	err = d.run(true, prog)
	cancel()
	a.saveSnapshot()
	return err
}

// run executes the tea program, enabling testable wiring.
func (d *DashboardCmd) run(isTTY bool, prog teaRunner) error {
	if !isTTY {
		return fmt.Errorf("dashboard: requires a terminal (TTY)")
	}
	_, err := prog.Run()
	return err
}

// --- Serve command ---

// ServeCmd runs the inspector HTTP server and, when streaming is enabled,
// keeps a list source current from the streaming API.
type ServeCmd struct {
	Source string `help:"List source to load and stream into." default:"home"`
	Addr   string `help:"Listen address (default inspect.addr)." placeholder:"HOST:PORT"`
}

// Run executes the serve command.
func (s *ServeCmd) Run(g *Globals) error {
	a, err := setup(g, true)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer func() { _ = a.log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = s.run(ctx, a)
	a.saveSnapshot()
	return err
}

// run serves until ctx is done.
func (s *ServeCmd) run(ctx context.Context, a *app) error {
	src, err := a.sources.Lookup(s.Source)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := a.metrics.Register(reg); err != nil {
		return err
	}

	addr := s.Addr
	if addr == "" {
		addr = a.cfg.Inspect.Addr
	}
	srv := inspect.New(a.store, inspect.WithGatherer(reg), inspect.WithLogger(a.log.Named("inspect")))

	if err := a.orch.FetchFirstPage(ctx, src.Path, src.Fetch, orchestrator.WithSchema(src.Schema)); err != nil {
		a.log.Warn("initial fetch failed", zap.String("source", src.Name), zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, addr)
	})
	if a.cfg.Stream.Enabled && src.Stream != "" {
		sc, err := newStreamClient(a)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := sc.Run(ctx, src.Stream, a.store, streamTargets(src)); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func newStreamClient(a *app) (*stream.Client, error) {
	return stream.New(a.cfg.Instance.URL,
		stream.WithToken(a.cfg.Instance.Token),
		stream.WithReconnectDelay(a.cfg.Stream.ReconnectDelay),
		stream.WithLogger(a.log.Named("stream")),
		stream.WithMetrics(a.metrics),
	)
}

// streamTargets routes streamed statuses and notifications to the source's
// list when it holds that entity type.
func streamTargets(src source.Source) stream.Targets {
	var t stream.Targets
	switch src.Path.EntityType {
	case model.TypeStatuses:
		t.Updates = src.Path
	case model.TypeNotifications:
		t.Notifications = src.Path
	}
	return t
}

// --- Version command ---

// VersionCmd prints version information.
type VersionCmd struct{}

// Run executes the version command.
func (v *VersionCmd) Run() error {
	return v.run(os.Stdout)
}

func (v *VersionCmd) run(w io.Writer) error {
	_, err := fmt.Fprintf(w, "fedicache %s (commit %s, built %s)\n", version, commit, date)
	return err
}

// Exit codes.
const (
	exitSuccess = 0
	exitFailure = 1
	exitSetup   = 2
)

// exitCode maps an error to the appropriate exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var (
		apiErr *api.Error
		valErr *schema.ValidationError
		opErr  *orchestrator.OpError
	)
	if errors.As(err, &apiErr) || errors.As(err, &valErr) || errors.As(err, &opErr) {
		return exitFailure
	}
	if errors.Is(err, orchestrator.ErrNoNextPage) || errors.Is(err, context.Canceled) {
		return exitFailure
	}
	return exitSetup
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("fedicache"),
		kong.Description("A normalized entity cache for Mastodon-compatible servers."),
		kong.Vars{"version": version + " " + commit + " " + date},
	)
	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
	}
	os.Exit(exitCode(err))
}
