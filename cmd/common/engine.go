package common

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/linkscan/internal/checker"
	"github.com/jonesrussell/linkscan/internal/database"
	"github.com/jonesrussell/linkscan/internal/pagetree"
	"github.com/jonesrussell/linkscan/internal/registry"
	"github.com/jonesrussell/linkscan/internal/scan"
)

// Engine bundles the scan engine components shared by the commands.
type Engine struct {
	DB       *sqlx.DB
	Scans    *database.ScanRepository
	Links    *database.ScanLinkRepository
	Prefs    *database.PreferencesRepository
	Registry *registry.Registry
	Checker  *checker.Checker
	Service  *scan.Service
	Pages    *pagetree.Client
}

// NewEngine connects to the database and wires the engine. The enqueuer may
// be nil for commands that only run synchronous scans.
func NewEngine(deps *CommandDeps, enqueuer checker.Enqueuer) (*Engine, error) {
	db, err := database.NewPostgresConnection(database.Config{
		Host:     deps.Config.Database.Host,
		Port:     deps.Config.Database.Port,
		User:     deps.Config.Database.User,
		Password: deps.Config.Database.Password,
		DBName:   deps.Config.Database.DBName,
		SSLMode:  deps.Config.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	scans := database.NewScanRepository(db)
	links := database.NewScanLinkRepository(db)
	prefs := database.NewPreferencesRepository(db)

	reg := registry.New(links, deps.Logger)

	chk := checker.New(scans, links, prefs, reg, enqueuer, deps.Logger, checker.Config{
		UserAgent:      deps.Config.Checker.UserAgent,
		RequestTimeout: deps.Config.Checker.RequestTimeout,
	})

	pageOpts := []pagetree.Option{
		pagetree.WithBaseURL(deps.Config.PageTree.BaseURL),
		pagetree.WithTimeout(deps.Config.PageTree.Timeout),
	}
	if deps.Config.PageTree.APIToken != "" {
		pageOpts = append(pageOpts, pagetree.WithAPIToken(deps.Config.PageTree.APIToken))
	}
	pages := pagetree.NewClient(pageOpts...)

	service := scan.New(scans, links, pages, reg, chk, deps.Logger)

	return &Engine{
		DB:       db,
		Scans:    scans,
		Links:    links,
		Prefs:    prefs,
		Registry: reg,
		Checker:  chk,
		Service:  service,
		Pages:    pages,
	}, nil
}

// Close releases the engine's database connection.
func (e *Engine) Close() error {
	return e.DB.Close()
}
