package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	_ "github.com/go-sql-driver/mysql"

	"ecommerce/pkg/product/domain/service"
	"ecommerce/pkg/product/infrastructure/mysql"
	"ecommerce/pkg/product/infrastructure/transport"
)

const appID = "productservice"

type config struct {
	ServeRESTAddress string `envconfig:"serve_rest_address" default:":8081"`
	DatabaseDSN      string `envconfig:"database_dsn" default:"ecommerce:ecommerce@tcp(localhost:3306)/products?parseTime=true"`
	MigrationsPath   string `envconfig:"migrations_path" default:"data/migrations/products"`
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	app := &cli.App{
		Name:  appID,
		Usage: "product catalog and inventory service",
		Action: func(*cli.Context) error {
			var cfg config
			if err := envconfig.Process(appID, &cfg); err != nil {
				return errors.Wrap(err, "parse configuration")
			}
			return runService(cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithField("err", err).Fatal("service failed")
	}
}

func runService(cfg config) error {
	if err := applyMigrations(cfg.MigrationsPath, cfg.DatabaseDSN); err != nil {
		return err
	}

	db, err := sqlx.Connect("mysql", cfg.DatabaseDSN)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer db.Close()

	repo := mysql.NewProductRepository(db)
	productService := service.NewProductService(repo, &logDispatcher{})

	server := &http.Server{
		Addr:    cfg.ServeRESTAddress,
		Handler: transport.Router(productService),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		log.WithField("address", cfg.ServeRESTAddress).Info("product service listening")
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "serve REST")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Wrap(server.Shutdown(shutdownCtx), "shutdown REST server")
	}
}

func applyMigrations(path, dsn string) error {
	m, err := migrate.New("file://"+path, "mysql://"+dsn)
	if err != nil {
		return errors.Wrap(err, "open migrations")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

type logDispatcher struct{}

func (d *logDispatcher) Dispatch(event service.Event) error {
	log.WithField("event", event.Type()).Info("domain event")
	return nil
}
