// Package cli implements the interactive photoflow shell: account
// management, queueing files, driving uploads and watching folders.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/photoflow/internal/config"
	"github.com/dmitrijs2005/photoflow/internal/credentials"
	"github.com/dmitrijs2005/photoflow/internal/history"
	"github.com/dmitrijs2005/photoflow/internal/logging"
	"github.com/dmitrijs2005/photoflow/internal/photoservice"
	"github.com/dmitrijs2005/photoflow/internal/storage"
	"github.com/dmitrijs2005/photoflow/internal/uploader"
)

type App struct {
	config *config.Config
	log    logging.Logger
	db     *sql.DB

	creds credentials.Repository
	hist  history.Repository

	active  *credentials.Credential
	manager *uploader.Manager

	watchCancel context.CancelFunc

	reader *bufio.Reader
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	db, err := storage.Open(c.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := storage.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &App{
		config: c,
		log:    log,
		db:     db,
		creds:  credentials.NewSQLiteRepository(db),
		hist:   history.NewSQLiteRepository(db),
		reader: bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) Run(ctx context.Context) {
	a.Main(ctx)
	a.StopWatch()
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) hasAccount() bool {
	return a.active != nil
}

// useCredential activates a stored account and rebuilds the upload manager
// around a fresh service client bound to it.
func (a *App) useCredential(cred *credentials.Credential) {
	a.active = cred
	httpClient := photoservice.NewHTTPClient(a.config.HTTPRetryMax, a.config.RequestTimeout)
	svc := photoservice.NewClient(httpClient, photoservice.DefaultEndpoints(), cred, a.log)
	a.manager = uploader.NewManager(svc, a.log, a.hist)
	a.manager.OnBatchDone = func(s uploader.Summary) {
		printlnFn(fmt.Sprintf("Batch finished: %d uploaded, %d failed", s.Completed, s.Failed))
	}
}

func (a *App) uploadOptions() uploader.Options {
	return uploader.Options{
		MaxConcurrency:    a.config.MaxConcurrency,
		ForceUpload:       a.config.ForceUpload,
		DeleteAfterUpload: a.config.DeleteAfterUpload,
		StorageSaver:      a.config.StorageSaver,
		UseQuota:          a.config.UseQuota,
		AccountEmail:      a.active.Email,
	}
}
