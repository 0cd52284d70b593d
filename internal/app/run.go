package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/manwithadodla/quality-assessment-protocol/internal/config"
	"github.com/manwithadodla/quality-assessment-protocol/internal/ctxlog"
	"github.com/manwithadodla/quality-assessment-protocol/internal/engine"
	"github.com/manwithadodla/quality-assessment-protocol/internal/pool"
	"github.com/manwithadodla/quality-assessment-protocol/internal/resolver"
	"github.com/manwithadodla/quality-assessment-protocol/internal/sink"
)

// Run assembles and executes one graph per configured scan. Scans are
// independent: a scan whose assembly or execution fails does not stop the
// others, and the errors are joined at the end.
func (a *App) Run(ctx context.Context, appConfig *AppConfig) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if len(a.runFile.Scans) == 0 {
		a.logger.Warn("No scans configured, nothing to do.")
		return nil
	}

	var errs []error
	for _, scan := range a.runFile.Scans {
		if err := a.runScan(ctx, appConfig, scan); err != nil {
			a.logger.Error("Scan failed.", "scan", scan.Label, "error", err)
			errs = append(errs, fmt.Errorf("scan %s: %w", scan.Label, err))
		}
	}

	a.logger.Debug("App.Run method finished.", "scans", len(a.runFile.Scans), "failed", len(errs))
	return errors.Join(errs...)
}

func (a *App) runScan(ctx context.Context, appConfig *AppConfig, scan *config.Scan) error {
	cfg := a.runFile.Run.ForScan(scan.Subject, scan.Session, scan.Scan)
	suffix := "_" + scan.Label
	logger := a.logger.With("scan", scan.Label)
	ctx = ctxlog.WithLogger(ctx, logger)

	g := engine.New()
	seed := make(map[string]pool.Value, len(scan.Resources))
	for name, v := range scan.Resources {
		seed[name] = pool.Concrete(v)
	}
	p := pool.Seed(seed)

	res := resolver.New(a.registry, cfg)
	unresolved, err := res.Resolve(ctx, g, p, suffix, scan.Requests...)
	if err != nil {
		return fmt.Errorf("assembling graph: %w", err)
	}
	if len(unresolved) > 0 {
		logger.Warn("Some requested outputs cannot be produced from the available inputs.",
			"unresolved", unresolved)
	}

	if _, err := sink.Attach(ctx, g, p, cfg, suffix); err != nil {
		return fmt.Errorf("attaching sinks: %w", err)
	}
	if err := g.DetectCycles(); err != nil {
		return fmt.Errorf("validating graph: %w", err)
	}
	if err := a.handlers.Validate(g); err != nil {
		return fmt.Errorf("validating handlers: %w", err)
	}
	logger.Info("Graph assembled.", "nodes", g.Len(), "resources", p.Len())

	if appConfig.AssembleOnly {
		logger.Info("Assemble-only mode, skipping execution.")
		return nil
	}
	if g.Len() == 0 {
		logger.Warn("Graph is empty, execution not required.")
		return nil
	}

	workers := appConfig.WorkerCount
	if workers <= 0 {
		workers = cfg.NumProcessors
	}
	results, err := g.Run(ctx, engine.RunOptions{Workers: workers, Handlers: a.handlers})
	logSummary(logger, results)
	return err
}

func logSummary(logger *slog.Logger, results map[engine.NodeID]*engine.Result) {
	counts := make(map[engine.Status]int)
	for _, r := range results {
		counts[r.Status]++
	}
	logger.Info("Execution finished.",
		"done", counts[engine.StatusDone],
		"failed", counts[engine.StatusFailed],
		"skipped", counts[engine.StatusSkipped])
}
