package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ric-network/catalogdao/internal/api"
	"github.com/ric-network/catalogdao/internal/app/ledger"
	"github.com/ric-network/catalogdao/internal/domain"
	"github.com/ric-network/catalogdao/internal/infra/chain"
	"github.com/ric-network/catalogdao/internal/infra/events"
	"github.com/ric-network/catalogdao/internal/infra/sqlite"
)

// Daemon is a running catalog ledger node.
type Daemon struct {
	cfg    Config
	logger *zap.Logger
	db     *sqlite.DB
	svc    *ledger.Service
	nats   *events.NATSSink
	api    *api.Server
}

// NewLogger builds a zap logger from the log section. When File is set,
// entries are also written as JSON to a size-rotated file.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	var opts []zap.Option
	if cfg.File != "" {
		rotate := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), rotate, zc.Level)
		opts = append(opts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}
	return zc.Build(opts...)
}

// New opens storage, rebuilds ledger state from the journal and wires the
// event sinks and HTTP server. It does not start serving.
func New(cfg Config, logger *zap.Logger) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gen, err := LoadGenesis(cfg.Storage.Genesis)
	if err != nil {
		return nil, err
	}
	if gen.Admin != "" {
		cfg.Accounts.Admin = gen.Admin
	}

	db, err := sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	d := &Daemon{cfg: cfg, logger: logger, db: db}

	svc, err := ledger.New(cfg.Ledger(), gen.Ledger(), ledger.Options{
		Clock:   chain.NewClock(0),
		Journal: db,
		Logger:  logger.Named("ledger"),
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	d.svc = svc

	if err := d.restore(); err != nil {
		db.Close()
		return nil, err
	}

	svc.Events().Add("sqlite", db.Sink(logger.Named("sqlite")))
	if cfg.Events.NATSURL != "" {
		sink, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, cfg.Events.Buffer, logger.Named("nats"))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		d.nats = sink
		svc.Events().Add("nats", sink)
	}

	d.api = api.NewServer(svc, logger.Named("api"))
	d.api.SetStore(db)
	if timeout, _ := cfg.RequestTimeout(); timeout > 0 {
		d.api.SetTimeout(timeout)
	}
	if cfg.API.Metrics {
		d.api.EnableMetrics()
	}
	return d, nil
}

// restore replays the journal and moves the clock to the persisted tip.
func (d *Daemon) restore() error {
	n, err := d.svc.Replay(context.Background())
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}
	tip, ok, err := d.db.LoadTip()
	if err != nil {
		return fmt.Errorf("load chain tip: %w", err)
	}
	if ok && tip > d.svc.Height() {
		if err := d.svc.Clock().Set(tip); err != nil {
			return err
		}
	}
	d.logger.Info("ledger restored",
		zap.Int("operations", n),
		zap.Uint64("height", d.svc.Height()),
		zap.String("storage", d.db.Path()))
	return nil
}

// Service returns the ledger service.
func (d *Daemon) Service() *ledger.Service { return d.svc }

// Handler returns the HTTP handler.
func (d *Daemon) Handler() http.Handler { return d.api.Handler() }

// Run serves the API and, when configured, mines blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.Addr(), err)
	}
	return d.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	clock := d.svc.Clock()
	if d.cfg.Chain.Automine {
		interval, _ := d.cfg.BlockInterval()
		clock.OnBlock(d.saveTip)
		clock.Start(interval)
		defer clock.Stop()
	}

	srv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.logger.Info("api listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (d *Daemon) saveTip(height uint64) {
	if err := d.db.SaveTip(height); err != nil {
		d.logger.Warn("save chain tip", zap.Uint64("height", height), zap.Error(err))
	}
}

// Submit applies one operation. Used by tooling that embeds the daemon.
func (d *Daemon) Submit(ctx context.Context, caller domain.Account, kind domain.OpKind, args any) (ledger.Result, error) {
	return d.svc.Submit(ctx, caller, kind, args)
}

// Close persists the chain tip and releases storage and the NATS connection.
func (d *Daemon) Close() error {
	d.svc.Clock().Stop()
	d.saveTip(d.svc.Height())
	var errs []error
	if d.nats != nil {
		errs = append(errs, d.nats.Close())
	}
	errs = append(errs, d.db.Close())
	return errors.Join(errs...)
}
