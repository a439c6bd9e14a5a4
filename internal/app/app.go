// Package app wires configuration, the host engine, the schema and the
// HTTP and gRPC servers into one arkdb service.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	grpcapi "github.com/arkilian/arkdb/internal/api/grpc"
	httpapi "github.com/arkilian/arkdb/internal/api/http"
	"github.com/arkilian/arkdb/internal/config"
	"github.com/arkilian/arkdb/internal/server"
	"github.com/arkilian/arkdb/internal/snapshot"
	"github.com/arkilian/arkdb/internal/storage"
	"github.com/arkilian/arkdb/pkg/arkdb"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/hostdb/memdb"
	"github.com/arkilian/arkdb/pkg/hostdb/sqlitedb"
	"github.com/arkilian/arkdb/pkg/schema"
)

// App manages the arkdb service lifecycle.
type App struct {
	cfg *config.Config

	db       *arkdb.DB
	store    storage.ObjectStorage
	shutdown *server.ShutdownManager

	httpAddr net.Addr
	grpcAddr net.Addr
	errCh    chan error

	mu      sync.Mutex
	running bool
}

// New creates an App after resolving and validating cfg.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg, errCh: make(chan error, 2)}, nil
}

// NewEngine builds the host engine named by cfg.
func NewEngine(cfg *config.Config) (hostdb.Engine, error) {
	switch cfg.Engine.Type {
	case config.EngineMemory:
		return memdb.New(), nil
	case config.EngineSQLite:
		return sqlitedb.New(cfg.Engine.Path), nil
	default:
		return nil, fmt.Errorf("unknown engine type: %s", cfg.Engine.Type)
	}
}

// OpenDB loads the schema file and opens the database it describes.
func OpenDB(ctx context.Context, cfg *config.Config) (*arkdb.DB, error) {
	if cfg.SchemaFile == "" {
		return nil, fmt.Errorf("schema_file is required")
	}
	s, err := schema.LoadFile(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	db, err := arkdb.Open(ctx, engine, s, arkdb.Options{Name: cfg.Name, Version: cfg.Version})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ready(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Printf("app: opened %s on %s engine at version %d", db.Name(), cfg.Engine.Type, db.Version())
	return db, nil
}

// OpenStorage creates the snapshot object storage named by cfg.
func OpenStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	sc := cfg.Snapshot.Storage
	switch sc.Type {
	case "local":
		return storage.NewLocalStorage(sc.Path)
	case "s3":
		s3cfg := storage.DefaultS3Config()
		if sc.S3.Region != "" {
			s3cfg.Region = sc.S3.Region
		}
		s3cfg.Endpoint = sc.S3.Endpoint
		s3cfg.UsePathStyle = sc.S3.UsePathStyle
		return storage.NewS3Storage(ctx, sc.S3.Bucket, s3cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", sc.Type)
	}
}

// SnapshotFormat is the format snapshots are saved in.
func SnapshotFormat(cfg *config.Config) snapshot.Format {
	if cfg.Snapshot.Compress {
		return snapshot.FormatSnappy
	}
	return snapshot.FormatJSON
}

// Start opens the database and storage and starts the servers.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}

	db, err := OpenDB(ctx, a.cfg)
	if err != nil {
		return err
	}
	store, err := OpenStorage(ctx, a.cfg)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to open snapshot storage: %w", err)
	}
	a.db, a.store = db, store
	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{
		DrainTimeout: a.cfg.HTTP.WriteTimeout,
	})
	a.shutdown.Register("database", db)

	if err := a.startHTTP(); err != nil {
		a.shutdown.Shutdown(context.Background(), "startup failed")
		return err
	}
	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.shutdown.Shutdown(context.Background(), "startup failed")
			return err
		}
	}
	a.running = true
	return nil
}

func (a *App) startHTTP() error {
	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.Addr, err)
	}
	handler := httpapi.ChainMiddleware(
		a.shutdown.Middleware,
		httpapi.DefaultMiddleware(),
	)(httpapi.NewHandler(a.db))

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.httpAddr = lis.Addr()
	a.forward(a.shutdown.ServeHTTP(srv, lis))
	log.Printf("app: HTTP listening on %s", a.httpAddr)
	return nil
}

func (a *App) startGRPC() error {
	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
	}
	srv := grpc.NewServer(grpc.UnaryInterceptor(grpcapi.RequestIDInterceptor))
	grpcapi.RegisterRecordsServer(srv, grpcapi.NewServer(a.db))
	a.grpcAddr = lis.Addr()
	a.forward(a.shutdown.ServeGRPC(srv, lis))
	log.Printf("app: gRPC listening on %s", a.grpcAddr)
	return nil
}

func (a *App) forward(errCh <-chan error) {
	go func() {
		if err := <-errCh; err != nil {
			a.errCh <- err
		}
	}()
}

// Wait blocks until a signal, ctx cancellation or a server failure, then
// shuts down.
func (a *App) Wait(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	failed := make(chan error, 1)
	go func() {
		select {
		case err := <-a.errCh:
			failed <- err
			cancel()
		case <-ctx.Done():
		}
	}()
	err := a.shutdown.Wait(ctx)
	select {
	case serveErr := <-failed:
		return serveErr
	default:
		return err
	}
}

// Stop shuts the service down.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	return a.shutdown.Shutdown(ctx, "stop requested")
}

// DB returns the open database, or nil before Start.
func (a *App) DB() *arkdb.DB { return a.db }

// HTTPAddr returns the bound HTTP address.
func (a *App) HTTPAddr() net.Addr { return a.httpAddr }

// GRPCAddr returns the bound gRPC address, or nil when gRPC is disabled.
func (a *App) GRPCAddr() net.Addr { return a.grpcAddr }

// SaveSnapshot exports db and writes it to the configured storage under a
// timestamped name, returning the object path.
func (a *App) SaveSnapshot(ctx context.Context, opts arkdb.ExportOptions) (string, error) {
	if a.db == nil {
		return "", fmt.Errorf("app is not running")
	}
	snap, err := a.db.Export(ctx, opts)
	if err != nil {
		return "", err
	}
	format := SnapshotFormat(a.cfg)
	path := snapshot.ObjectName(a.cfg.Snapshot.Prefix, a.db.Name(), time.Now(), format)
	if err := snapshot.Save(ctx, a.store, path, snap, format, false); err != nil {
		return "", err
	}
	return path, nil
}
