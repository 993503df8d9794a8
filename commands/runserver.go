package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"task-manager/config"
	"task-manager/controllers"
	"task-manager/logging"
	"task-manager/middleware"
	"task-manager/migrations"
	"task-manager/notify"
	"task-manager/ratelimit"
	"task-manager/sessions"
	"task-manager/storage"
)

const purgeInterval = 10 * time.Minute

func newRunServerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runserver [addr]",
		Short: "Start the HTTP server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.ServerAddr = listenAddr(args[0])
			}
			db, err := opts.openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			warnUnapplied(cfg)

			app, cleanup, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(cmd.OutOrStdout(), "Starting server at http://%s/\nQuit with CONTROL-C.\n", cfg.ServerAddr)
			return serve(ctx, cfg, newHandler(cfg, app, db), app)
		},
	}
}

// listenAddr accepts "8000", ":8000" or "host:port".
func listenAddr(arg string) string {
	if !strings.Contains(arg, ":") {
		return "127.0.0.1:" + arg
	}
	return arg
}

// newApp builds the controller dependencies from cfg. cleanup releases them.
func newApp(cfg config.Config) (*controllers.App, func(), error) {
	secret, err := cfg.SigningSecret()
	if err != nil {
		return nil, nil, err
	}
	files, err := storage.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	sess, err := sessions.Open(cfg.SessionDB)
	if err != nil {
		return nil, nil, err
	}

	closers := []func() error{sess.Close}
	var limiter ratelimit.Limiter = ratelimit.NewMemory()
	if cfg.RedisAddr != "" {
		rl := ratelimit.NewRedis(cfg.RedisAddr)
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := rl.Ping(pingCtx)
		cancel()
		if err != nil {
			logging.Logger.Warnf("Event ID: REDIS_UNAVAILABLE, Description: %s: %v; using in-memory rate limits", cfg.RedisAddr, err)
			rl.Close()
		} else {
			limiter = rl
			closers = append(closers, rl.Close)
		}
	}

	app := &controllers.App{
		Config:   cfg,
		Secret:   secret,
		Sessions: sess,
		Notifier: notify.New(cfg),
		Storage:  files,
		Limiter:  limiter,
		Location: cfg.Location(),
	}
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logging.Logger.Warnf("Event ID: SHUTDOWN_CLOSE_FAILED, Description: %v", err)
			}
		}
	}
	return app, cleanup, nil
}

// newHandler is the router plus CORS, and local media in debug mode.
func newHandler(cfg config.Config, app *controllers.App, db *sql.DB) http.Handler {
	router := controllers.NewRouter(app, db)
	if cfg.Debug && (cfg.StorageBackend == "" || cfg.StorageBackend == "local") && cfg.MediaURL != "" {
		mediaURL := "/" + strings.Trim(cfg.MediaURL, "/") + "/"
		router.PathPrefix(mediaURL).Handler(http.StripPrefix(mediaURL, http.FileServer(http.Dir(cfg.MediaRoot)))).Methods("GET")
	}
	return middleware.CORS(router)
}

func serve(ctx context.Context, cfg config.Config, handler http.Handler, app *controllers.App) error {
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go purgeLoop(ctx, app.Sessions, app.Limiter)

	errCh := make(chan error, 1)
	go func() {
		logging.Logger.Infof("Event ID: SERVER_STARTED, Description: listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Logger.Infof("Event ID: SERVER_SHUTDOWN, Description: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// purgeLoop drops stale pre-login sessions and idle rate limit keys until
// ctx ends.
func purgeLoop(ctx context.Context, sess *sessions.Store, limiter ratelimit.Limiter) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			purge(now, sess, limiter)
		}
	}
}

func purge(now time.Time, sess *sessions.Store, limiter ratelimit.Limiter) {
	n, err := sess.Purge(now)
	if err != nil {
		logging.Logger.Warnf("Event ID: SESSION_PURGE_FAILED, Description: %v", err)
	} else if n > 0 {
		logging.Logger.Debugf("Event ID: SESSION_PURGE, Description: removed %d stale session(s)", n)
	}
	if mem, ok := limiter.(*ratelimit.Memory); ok {
		if n := mem.Sweep(); n > 0 {
			logging.Logger.Debugf("Event ID: RATE_LIMIT_SWEEP, Description: dropped %d idle key(s)", n)
		}
	}
}

func warnUnapplied(cfg config.Config) {
	runner, err := migrations.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logging.Logger.Warnf("Event ID: MIGRATION_CHECK_FAILED, Description: %v", err)
		return
	}
	defer runner.Close()
	list, err := runner.List()
	if err != nil {
		logging.Logger.Warnf("Event ID: MIGRATION_CHECK_FAILED, Description: %v", err)
		return
	}
	pending := 0
	for _, m := range list {
		if !m.Applied {
			pending++
		}
	}
	if pending > 0 {
		logging.Logger.Warnf("Event ID: MIGRATIONS_PENDING, Description: %d unapplied migration(s); run 'task-manager migrate'", pending)
	}
}
