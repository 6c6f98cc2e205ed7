// Package backend builds the infrastructure selected by configuration:
// the credential store, the spreadsheet exporter and the change-event
// client.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"domu/internal/amqp"
	"domu/internal/log"
	"domu/internal/sheets"
	gsheet "domu/internal/sheets/google"
	"domu/internal/sheets/memory"
	"domu/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Create implements Factory.Create. The spreadsheet exporter is built
// lazily on first export, so commands that never export do not need Google
// credentials to be valid.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	creds, err := f.createCredentialStore(config)
	if err != nil {
		return nil, err
	}

	var events *amqp.Client
	if config.AMQPURL != "" {
		events = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		f.logger.Info("Change events enabled",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
	}

	return &Result{
		Credentials: creds,
		Exporter:    f.createExporter(config),
		Events:      events,
		Cleanup: func() error {
			var err error
			if events != nil {
				err = events.Close()
			}
			return errors.Join(err, creds.Close())
		},
	}, nil
}

func (f *DefaultFactory) createCredentialStore(config Config) (CredentialStore, error) {
	switch config.Type {
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credential store: %w", err)
		}
		f.logger.Debug("Initialized SQLite credential store", "db_path", config.SQLiteDBPath)
		return store, nil
	case MemoryBackend:
		f.logger.Debug("Initialized in-memory credential store")
		return storage.NewMemoryStore(""), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createExporter(config Config) sheets.Exporter {
	if config.GoogleSpreadsheetID == "" {
		return memory.New()
	}
	return &lazyExporter{
		logger: f.logger,
		build: func(ctx context.Context) (sheets.Exporter, error) {
			return gsheet.New(ctx, gsheet.Config{
				SpreadsheetID:   config.GoogleSpreadsheetID,
				SheetName:       config.GoogleSheetName,
				CredentialsJSON: config.GoogleCredentialsJSON,
				CredentialsFile: config.GoogleCredentialsFile,
			}, f.logger)
		},
	}
}

type lazyExporter struct {
	mu       sync.Mutex
	logger   *log.Logger
	build    func(ctx context.Context) (sheets.Exporter, error)
	exporter sheets.Exporter
}

func (l *lazyExporter) Export(ctx context.Context, rows []sheets.Row) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.exporter == nil {
		exp, err := l.build(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		l.logger.Info("Initialized Google Sheets exporter")
		l.exporter = exp
	}
	return l.exporter.Export(ctx, rows)
}
