package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scipunch/editorhub/agent"
	"github.com/scipunch/editorhub/auth"
	"github.com/scipunch/editorhub/cache"
	"github.com/scipunch/editorhub/config"
	"github.com/scipunch/editorhub/content"
	"github.com/scipunch/editorhub/event"
	"github.com/scipunch/editorhub/feed"
	"github.com/scipunch/editorhub/fetcher"
	"github.com/scipunch/editorhub/filter"
	"github.com/scipunch/editorhub/metrics"
	"github.com/scipunch/editorhub/render"
)

const (
	defaultListenAddress = "127.0.0.1:9464"
	digestLimit          = 10
	signInTimeout        = 5 * time.Minute
)

func main() {
	if os.Getenv("DEBUG") != "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	var (
		cfgPath   string
		outputDir string
		clean     bool
		refresh   bool
		signIn    bool
		signOut   bool
		serve     bool
	)
	flag.StringVar(&cfgPath, "config", config.DefaultPath(), "path to a TOML or YAML config")
	flag.StringVar(&outputDir, "output", "", "directory for the rendered panel (overrides output_directory)")
	flag.BoolVar(&clean, "clean", false, "remove all cache entries")
	flag.BoolVar(&refresh, "refresh", false, "ignore the cache and fetch everything")
	flag.BoolVar(&signIn, "login", false, "sign in through the browser")
	flag.BoolVar(&signOut, "logout", false, "forget the stored API key")
	flag.BoolVar(&serve, "serve", false, "keep running: serve the panel and metrics and refresh periodically")
	flag.Parse()

	// Read config and create if default is missing
	conf, err := config.Read(cfgPath)
	wroteDefault := false
	if errors.Is(err, os.ErrNotExist) && cfgPath == config.DefaultPath() {
		if err := config.Write(cfgPath, conf); err != nil {
			log.Fatalf("failed to write default config with %s", err)
		}
		wroteDefault = true
	} else if err != nil {
		log.Fatalf("failed to read config with %s", err)
	}
	if outputDir == "" {
		outputDir = conf.OutputDirectory
	}

	credPath := config.DefaultCredentialsPath()
	creds, err := config.ReadCredentials(credPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to read credentials: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop := event.NewLoop(conf.Events.LoopQueueSize)
	go loop.Run(ctx)

	bus := event.New(
		event.WithSweepInterval(config.Duration(conf.Events.SweepInterval, 30*time.Second)),
		event.WithHistory(conf.Events.HistorySize),
		event.WithLoop(loop),
	)
	if err := bus.Start(ctx); err != nil {
		log.Fatalf("failed to start event aggregator: %s", err)
	}
	defer bus.Stop()

	event.On(bus, func(e event.SignedIn) {
		slog.Info("signed in", "name", e.Name, "email", e.Email)
	})
	event.On(bus, func(event.SignedOut) {
		slog.Info("signed out")
	})
	event.On(bus, func(e event.ConfigChanged) {
		slog.Info("config changed", "path", e.Path)
	})
	if wroteDefault {
		bus.Publish(event.ConfigChanged{Path: cfgPath})
	}

	switch {
	case signOut:
		if err := logout(credPath, creds, bus); err != nil {
			log.Fatalf("failed to sign out: %s", err)
		}
		return
	case signIn:
		if err := login(ctx, conf.Auth, credPath, creds, bus); err != nil {
			log.Fatalf("failed to sign in: %s", err)
		}
		return
	}

	store, err := openStore(conf.Cache)
	if err != nil {
		log.Fatalf("failed to open cache: %s", err)
	}
	if store != nil {
		defer store.Close()
	}

	if clean {
		if store != nil {
			if err := store.Clear(); err != nil {
				log.Fatalf("failed to clear cache: %v", err)
			}
		}
		slog.Info("cache cleared successfully")
		return
	}

	if store != nil {
		if stats, err := store.Stats(); err != nil {
			slog.Warn("failed to get cache stats", "error", err)
		} else {
			slog.Info("cache initialized", "entries", stats.Entries, "bytes", stats.Bytes)
		}
	}

	recorder := metrics.NewRecorder(bus)
	defer recorder.Close()

	filterPipeline, err := filter.NewFilterPipeline(conf.Filters, conf.Client)
	if err != nil {
		log.Fatalf("failed to initialize filters: %s", err)
	}
	if len(conf.Filters) > 0 {
		slog.Info("initialized filters", "count", len(conf.Filters))
	}

	opts := fetcher.OptionsFromConfig(conf.Fetch)
	opts.APIKey = creds.Account.APIKey
	env := fetcher.Env{
		Options:   opts,
		ConfigDir: filepath.Dir(cfgPath),
		MediaDir:  filepath.Join(outputDir, "media"),
		Telegram: func() (config.TelegramCredentials, error) {
			return config.LoadOrPromptTelegramCredentials(credPath)
		},
	}
	policy := fetcher.PolicyFromConfig(conf.Fetch)

	announcementSources, err := fetcher.NewAnnouncementSources(conf.Announcements, env)
	if err != nil {
		log.Fatalf("failed to initialize announcement sources with %s", err)
	}
	changelogSources, err := fetcher.NewChangelogSources(conf.Changelogs, env)
	if err != nil {
		log.Fatalf("failed to initialize changelog sources with %s", err)
	}

	ttl := config.Duration(conf.Cache.TTL, cache.DefaultTTL)
	onCorrupt := func(kind string, err error) {
		bus.Publish(event.CacheCorrupted{Content: kind, Reason: err.Error()})
	}
	var announcementCache *cache.Manager[feed.Announcement]
	var changelogCache *cache.Manager[feed.Changelog]
	if conf.Cache.Enabled {
		announcementCache = cache.NewManager[feed.Announcement](cache.Options{TTL: ttl, Store: store, OnCorrupt: onCorrupt})
		changelogCache = cache.NewManager[feed.Changelog](cache.Options{TTL: ttl, Store: store, OnCorrupt: onCorrupt})
		defer announcementCache.Close()
		defer changelogCache.Close()
	}

	a := &app{
		outputDir: outputDir,
		announcements: content.NewService[feed.Announcement](
			fetcher.NewMulti(announcementSources, policy),
			content.Options[feed.Announcement]{
				Cache:  announcementCache,
				Events: bus,
				Loop:   loop,
				Filter: func(items []feed.Announcement) []feed.Announcement {
					return filter.Apply(filterPipeline, items, conf.Announcements.FilterNames)
				},
			}),
		changelogs: content.NewService[feed.Changelog](
			fetcher.NewMulti(changelogSources, policy),
			content.Options[feed.Changelog]{
				Cache:  changelogCache,
				Events: bus,
				Loop:   loop,
				Filter: func(items []feed.Changelog) []feed.Changelog {
					return filter.Apply(filterPipeline, items, conf.Changelogs.FilterNames)
				},
			}),
	}

	if agentTypes := agent.AgentTypes(conf.Digest); len(agentTypes) > 0 {
		if !creds.Gemini.IsValid() {
			log.Fatal("Gemini API key and model required for the digest but not found in creds.toml")
		}
		agents, err := agent.InitAgents(ctx, agentTypes, creds.Gemini)
		if err != nil {
			log.Fatalf("failed to initialize agents: %s", err)
		}
		a.digest = agents[conf.Digest.Agent]
		slog.Info("initialized agents", "types", agentTypes)
	}

	a.publish(a.build(ctx, refresh))

	if !serve {
		return
	}

	addr := conf.Metrics.ListenAddress
	if addr == "" {
		addr = defaultListenAddress
	}
	interval := config.Duration(conf.RefreshInterval, 15*time.Minute)
	if err := a.serve(ctx, addr, interval, recorder); err != nil {
		log.Fatalf("server failed with %s", err)
	}
}

func openStore(conf config.CacheConfig) (cache.Store, error) {
	if !conf.Enabled {
		return nil, nil
	}
	dir := conf.Directory
	if dir == "" {
		dir = cache.DefaultDirectory()
	}
	switch conf.Backend {
	case config.BackendSQLite:
		return cache.NewSQLiteStore(filepath.Join(dir, "cache.db"))
	default:
		return cache.NewFileStore(dir)
	}
}

func login(ctx context.Context, conf config.AuthConfig, credPath string, creds config.Credentials, bus *event.Aggregator) error {
	session, err := auth.NewSession(conf.Port)
	if err != nil {
		return err
	}
	defer session.Close()

	authURL, err := session.AuthorizeURL(conf.AuthorizeURL)
	if err != nil {
		return err
	}
	fmt.Printf("Open the following URL in your browser to sign in:\n\n  %s\n\n", authURL)

	ctx, cancel := context.WithTimeout(ctx, signInTimeout)
	defer cancel()
	res, err := session.Wait(ctx)
	if err != nil {
		return fmt.Errorf("sign-in did not complete: %w", err)
	}

	creds.Account = config.AccountCredentials{
		APIKey: res.APIKey,
		Name:   res.User.Name,
		Email:  res.User.Email,
	}
	if err := config.WriteCredentials(credPath, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	bus.Publish(event.SignedIn{Name: res.User.Name, Email: res.User.Email})
	return nil
}

func logout(credPath string, creds config.Credentials, bus *event.Aggregator) error {
	if !creds.Account.SignedIn() {
		slog.Info("not signed in")
		return nil
	}
	creds.Account = config.AccountCredentials{}
	if err := config.WriteCredentials(credPath, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	bus.Publish(event.SignedOut{})
	return nil
}

type app struct {
	outputDir     string
	announcements *content.Service[feed.Announcement]
	changelogs    *content.Service[feed.Changelog]
	digest        agent.Agent

	mu         sync.RWMutex
	page       render.Page
	lastDigest string
}

// build fetches both kinds concurrently. A kind whose refresh fails falls
// back to its last stored feed and marks the page stale.
func (a *app) build(ctx context.Context, force bool) render.Page {
	var (
		g                  errgroup.Group
		announcements      []feed.Announcement
		changelogs         []feed.Changelog
		annStale, logStale bool
		annFresh, logFresh bool
	)

	g.Go(func() error {
		resp, err := a.announcements.GetContent(ctx, force)
		if err != nil {
			f, _ := a.announcements.Cached()
			announcements, annStale = f.Items, true
			return fmt.Errorf("announcements: %w", err)
		}
		announcements, annFresh = resp.Feed.Items, !resp.FromCache
		return nil
	})
	g.Go(func() error {
		resp, err := a.changelogs.GetContent(ctx, force)
		if err != nil {
			f, _ := a.changelogs.Cached()
			changelogs, logStale = f.Items, true
			return fmt.Errorf("changelogs: %w", err)
		}
		changelogs, logFresh = resp.Feed.Items, !resp.FromCache
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Error("some content could not be refreshed", "error", err)
	}

	page := render.Page{
		GeneratedAt:   time.Now(),
		Announcements: announcements,
		Changelogs:    changelogs,
		Stale:         annStale || logStale,
	}

	a.mu.RLock()
	page.Digest = a.lastDigest
	a.mu.RUnlock()
	if a.digest != nil && (annFresh || logFresh || page.Digest == "") {
		digest, err := agent.Digest(ctx, a.digest, announcements, changelogs, digestLimit)
		if err != nil {
			slog.Warn("digest skipped", "error", err)
		} else {
			page.Digest = digest
		}
	}
	return page
}

func (a *app) publish(page render.Page) {
	a.mu.Lock()
	a.page = page
	a.lastDigest = page.Digest
	a.mu.Unlock()

	if _, err := render.WriteFile(a.outputDir, page); err != nil {
		slog.Error("failed to write panel", "error", err)
	}
}

// update edits the current page. It runs on the event loop.
func (a *app) update(edit func(p *render.Page)) {
	a.mu.Lock()
	edit(&a.page)
	a.page.GeneratedAt = time.Now()
	page := a.page
	a.mu.Unlock()

	if _, err := render.WriteFile(a.outputDir, page); err != nil {
		slog.Error("failed to write panel", "error", err)
	}
}

func (a *app) refreshAsync(ctx context.Context) {
	a.announcements.GetContentAsync(ctx, false, func(resp content.Response[feed.Announcement], err error) {
		a.update(func(p *render.Page) {
			if err != nil {
				p.Stale = true
				return
			}
			p.Announcements = resp.Feed.Items
		})
	})
	a.changelogs.GetContentAsync(ctx, false, func(resp content.Response[feed.Changelog], err error) {
		a.update(func(p *render.Page) {
			if err != nil {
				p.Stale = true
				return
			}
			p.Changelogs = resp.Feed.Items
		})
	})
}

func (a *app) handlePanel(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	a.mu.RLock()
	page := a.page
	a.mu.RUnlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.Render(w, page); err != nil {
		slog.Error("failed to serve panel", "error", err)
	}
}

func (a *app) serve(ctx context.Context, addr string, interval time.Duration, recorder *metrics.Recorder) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handlePanel)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("serving panel and metrics", "addr", addr, "refresh_interval", interval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("interrupted by user, exiting gracefully")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errc:
			return err
		case <-ticker.C:
			a.refreshAsync(ctx)
		}
	}
}
