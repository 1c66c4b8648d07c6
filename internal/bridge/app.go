// Package bridge wires together the registry, correlation layer,
// dispatcher, chunk pipeline, timer engines, and external collaborators
// into one typed application context, and exposes the HTTP surface gin
// routes against it. Replaces the originating codebase's module-global
// client manager with a struct built once in cmd/ssebridge and passed to
// every handler as a receiver (see SPEC_FULL.md's "Global registries"
// design note).
package bridge

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/ssebridge/pkg/chunk"
	"github.com/codeready-toolchain/ssebridge/pkg/config"
	"github.com/codeready-toolchain/ssebridge/pkg/correlation"
	"github.com/codeready-toolchain/ssebridge/pkg/dispatch"
	"github.com/codeready-toolchain/ssebridge/pkg/externalsvc"
	"github.com/codeready-toolchain/ssebridge/pkg/jobstore"
	"github.com/codeready-toolchain/ssebridge/pkg/oneshot"
	"github.com/codeready-toolchain/ssebridge/pkg/recurring"
	"github.com/codeready-toolchain/ssebridge/pkg/registry"
)

// App holds every long-lived collaborator the HTTP handlers need. It is
// built once by cmd/ssebridge/main.go and attached to the gin router as
// method receivers via Routes.
type App struct {
	Config *config.Config

	Registry    *registry.Registry
	Correlation *correlation.Layer
	Dispatcher  *dispatch.Dispatcher
	Emitter     *chunk.Emitter
	Assembler   *chunk.Assembler

	Recurring *recurring.Engine
	OneShot   *oneshot.Service

	Store      *jobstore.Store
	Collector  externalsvc.MessageCollector
	MessageSvc externalsvc.MessageService
	Oracle     externalsvc.HolidayOracle

	Logger *slog.Logger
}

// New assembles an App from its already-constructed collaborators. It does
// not start any background loop; call Start to launch them together.
func New(cfg *config.Config, reg *registry.Registry, corr *correlation.Layer, disp *dispatch.Dispatcher, emitter *chunk.Emitter, assembler *chunk.Assembler, rec *recurring.Engine, oneShot *oneshot.Service, store *jobstore.Store, collector externalsvc.MessageCollector, msgSvc externalsvc.MessageService, oracle externalsvc.HolidayOracle) *App {
	if cfg != nil {
		disp.ResponseTimeout = cfg.ResponseTimeout()
		disp.IgnoreResponse = cfg.IgnoreResponse
	}
	return &App{
		Config:      cfg,
		Registry:    reg,
		Correlation: corr,
		Dispatcher:  disp,
		Emitter:     emitter,
		Assembler:   assembler,
		Recurring:   rec,
		OneShot:     oneShot,
		Store:       store,
		Collector:   collector,
		MessageSvc:  msgSvc,
		Oracle:      oracle,
		Logger:      slog.Default().With("component", "bridge"),
	}
}

// Start launches every cooperative background loop: the registry's expiry
// sweeper, the chunk assembler's GC sweep, the recurring engine, and the
// one-shot timer service. Mirrors the originating codebase's cleanup
// service Start(ctx) idiom, applied to the whole collaborator set at once.
func (a *App) Start(ctx context.Context) error {
	a.Registry.Start(ctx)
	a.Assembler.Start(ctx)
	if err := a.Recurring.Start(ctx); err != nil {
		return err
	}
	a.OneShot.Start(ctx)
	return nil
}

// Stop signals every background loop to exit and waits for each in turn.
func (a *App) Stop() {
	a.OneShot.Stop()
	a.Recurring.Stop()
	a.Assembler.Stop()
	a.Registry.Stop()
}
