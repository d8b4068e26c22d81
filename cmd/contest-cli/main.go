package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"contestoj/internal/common/cache"
	"contestoj/internal/common/db"
	"contestoj/internal/common/storage"
	"contestoj/internal/contest/console"
	"contestoj/internal/contest/export"
	"contestoj/internal/contest/problemset"
	"contestoj/internal/contest/repository"
	"contestoj/internal/contest/runner"
	"contestoj/internal/contest/sandbox"
	"contestoj/internal/contest/service"
	"contestoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultConfigPath = "configs/contest.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	name := flag.String("name", "", "Act as this competitor")
	backend := flag.String("backend", "", "Override store backend (local, redis, mysql)")
	problemsPath := flag.String("problems", "", "Override problem set file or directory")
	migrateTo := flag.String("migrate-to", "", "Enable the migrate command towards this backend (redis, mysql)")
	flag.Parse()

	if *backend != "" {
		_ = os.Setenv("CONTEST_STORE_BACKEND", *backend)
	}
	if *problemsPath != "" {
		_ = os.Setenv("CONTEST_PROBLEMS", *problemsPath)
	}
	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, appCfg, *name, *migrateTo); err != nil {
		logger.Error(ctx, "contest-cli exited with error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, appCfg *AppConfig, name, migrateTo string) error {
	problems, err := problemset.Load(appCfg.Problems)
	if err != nil {
		return fmt.Errorf("load problems failed: %w", err)
	}

	store, err := openStore(ctx, appCfg, appCfg.Store.Backend)
	if err != nil {
		return fmt.Errorf("init %s store failed: %w", appCfg.Store.Backend, err)
	}

	executor, err := sandbox.NewProcessExecutor(appCfg.Sandbox)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("init sandbox failed: %w", err)
	}
	judgeRunner := runner.New(executor, appCfg.Runner)

	exporter, err := newExporter(ctx, appCfg, store)
	if err != nil {
		_ = store.Close()
		return err
	}

	svc, err := service.NewService(service.Config{
		Store:        store,
		Judge:        judgeRunner,
		Problems:     problems,
		Exporter:     exporter,
		ExportDir:    appCfg.Export.Dir,
		StoreTimeout: appCfg.Store.Timeout,
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("init service failed: %w", err)
	}
	defer func() {
		_ = svc.Close()
	}()

	if err := svc.PublishProblems(ctx); err != nil {
		return fmt.Errorf("publish problems failed: %w", err)
	}
	logger.Info(ctx, "contest ready",
		zap.String("backend", appCfg.Store.Backend),
		zap.Int("problems", problems.Len()))

	opts := []console.Option{console.WithCompetitor(name)}
	if migrateTo != "" {
		dst, err := openStore(ctx, appCfg, migrateTo)
		if err != nil {
			return fmt.Errorf("init migration target failed: %w", err)
		}
		defer func() {
			_ = dst.Close()
		}()
		importer, ok := dst.(repository.Importer)
		if !ok {
			return fmt.Errorf("backend %s cannot receive a migration", migrateTo)
		}
		opts = append(opts, console.WithMigrationTarget(importer))
	}

	return console.New(svc, os.Stdin, os.Stdout, opts...).Run(ctx)
}

func openStore(ctx context.Context, appCfg *AppConfig, backend string) (repository.Store, error) {
	switch backend {
	case backendLocal:
		return repository.NewLocalStore(appCfg.Store.LocalPath)
	case backendRedis:
		if appCfg.Store.Redis.Addr == "" {
			return nil, fmt.Errorf("redis addr is required")
		}
		appCfg.Store.Redis.ApplyDefaults()
		client, err := cache.NewRedisClient(&appCfg.Store.Redis)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewRedisStore(client, appCfg.Store.Namespace)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil
	case backendMySQL:
		mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Store.MySQL)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewMySQLStore(ctx, mysqlDB)
		if err != nil {
			_ = mysqlDB.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func newExporter(ctx context.Context, appCfg *AppConfig, store repository.Store) (*export.Exporter, error) {
	opts := []export.Option{export.WithKeyPrefix(appCfg.Export.KeyPrefix)}
	if appCfg.uploadsEnabled() {
		objStorage, err := storage.NewMinIOStorage(appCfg.Export.MinIO)
		if err != nil {
			return nil, fmt.Errorf("init minio failed: %w", err)
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.Export.MinIO.Bucket, appCfg.Export.MinIO.Region); err != nil {
			logger.Warn(ctx, "ensure export bucket failed, uploads may fail", zap.Error(err))
		}
		opts = append(opts, export.WithObjectStorage(objStorage, appCfg.Export.MinIO.Bucket))
	}
	return export.NewExporter(store, opts...), nil
}
