package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/blackmichael/live-comments/internal/cache"
	"github.com/blackmichael/live-comments/internal/client"
	"github.com/blackmichael/live-comments/internal/config"
	"github.com/blackmichael/live-comments/internal/domain"
	"github.com/blackmichael/live-comments/internal/hubclient"
	"github.com/blackmichael/live-comments/internal/identity"
	"github.com/blackmichael/live-comments/internal/objectstore"
	"github.com/blackmichael/live-comments/internal/postgres"
	"github.com/blackmichael/live-comments/internal/rest"
	"github.com/blackmichael/live-comments/internal/sqlite"
)

const connectTimeout = 5 * time.Second

// env is everything one command invocation runs against.
type env struct {
	host    *client.Host
	closers []func() error
}

// session returns the signed-in session, or nil after sign-out.
func (e *env) session() *client.Session {
	return e.host.Session()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// openStore returns the record store selected by cfg, behind the Redis cache
// when one is configured.
func openStore(ctx context.Context, opts *RootOptions) (domain.RecordStore, []func() error, error) {
	cfg := opts.cfg
	var (
		store   domain.RecordStore
		closers []func() error
	)

	switch cfg.StoreDriver {
	case "postgres":
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		store = pg
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		closers = append(closers, db.Close)
		store = db
	case "rest":
		store = rest.NewClient(cfg.RestURL, cfg.RestAPIKey)
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.CacheRedisURL != "" {
		c, err := cache.Connect(ctx, cfg.CacheRedisURL, store, opts.logger)
		if err != nil {
			for _, closeFn := range closers {
				closeFn()
			}
			return nil, nil, fmt.Errorf("connect cache: %w", err)
		}
		closers = append(closers, c.Close)
		store = c
	}
	return store, closers, nil
}

func openImages(ctx context.Context, cfg *config.Config) (domain.ImageStore, error) {
	if cfg.S3Endpoint == "" {
		return nil, nil
	}
	s, err := objectstore.New(objectstore.Options{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// openEnv signs in as the --user-id identity and connects to the store and
// the hub. The hub connection lives until ctx is done or the env is
// closed.
func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("--user-id is required (or set COMMENTCTL_USER_ID)")
	}
	name := opts.UserName
	if name == "" {
		name = opts.UserID
	}
	provider := identity.NewStatic(&domain.Identity{ID: opts.UserID, DisplayName: name})

	store, closers, err := openStore(ctx, opts)
	if err != nil {
		return nil, err
	}
	e := &env{closers: closers}

	images, err := openImages(ctx, opts.cfg)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open image store: %w", err)
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	e.closers = append(e.closers, func() error {
		stopHub()
		return nil
	})
	hc := hubclient.New(opts.cfg.RelayURL, opts.logger)
	go hc.Start(hubCtx)

	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := hc.WaitConnected(waitCtx); err != nil {
		opts.logger.Warn("hub not reachable, changes will not be relayed", "url", opts.cfg.RelayURL)
	}

	e.host = client.NewHost(client.Deps{
		Store:  store,
		Images: images,
		Hub:    hc,
		Logger: opts.logger,
	})
	stopHost := e.host.Follow(provider)
	e.closers = append(e.closers, func() error {
		stopHost()
		return nil
	}, func() error {
		provider.SignOut()
		return nil
	})
	if e.session() == nil {
		e.Close()
		return nil, fmt.Errorf("no signed-in identity")
	}
	return e, nil
}
