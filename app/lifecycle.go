package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gaborage/go-tenantdb/schema"
)

const serverErrorMsg = "server: %w"

// backgroundTasks tracks goroutines started by Start so Shutdown can stop
// them and wait.
type backgroundTasks struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBackgroundTasks() *backgroundTasks {
	ctx, cancel := context.WithCancel(context.Background())
	return &backgroundTasks{ctx: ctx, cancel: cancel}
}

func (b *backgroundTasks) Go(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}

func (b *backgroundTasks) stop() {
	b.cancel()
	b.wg.Wait()
}

// Start launches the background work: the idle pool cleanup loop, the startup
// schema sync and the event consumer. With schema.blocking set the startup
// sync completes before Start returns; its failures are logged, never fatal.
func (a *App) Start(ctx context.Context) error {
	if interval := a.cfg.Multitenant.Pool.CleanupInterval; interval > 0 {
		a.logger.Info().Dur("interval", interval).Msg("Starting tenant pool cleanup loop")
		a.pools.StartCleanup(interval)
	}

	scfg := &a.cfg.Multitenant.Schema
	if a.provisioner != nil && scfg.OnStartup {
		if scfg.Blocking {
			if _, err := a.SyncSchemas(ctx); err != nil {
				return err
			}
		} else {
			a.background.Go(func(ctx context.Context) {
				if _, err := a.SyncSchemas(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.logger.Error().Err(err).Msg("Startup schema sync failed")
				}
			})
		}
	}

	if a.consumer != nil {
		a.background.Go(func(ctx context.Context) {
			if err := a.consumer.Run(ctx); err != nil {
				a.logger.Error().Err(err).Msg("Tenant event consumer exited")
			}
		})
	}
	return nil
}

// SyncSchemas runs the schema script against every active tenant.
func (a *App) SyncSchemas(ctx context.Context) (schema.Report, error) {
	if a.provisioner == nil {
		return schema.Report{}, errors.New("schema provisioning is disabled")
	}
	start := time.Now()
	report, err := a.provisioner.EnsureAll(ctx)
	if err != nil {
		return report, fmt.Errorf("schema sync: %w", err)
	}
	a.logger.Info().
		Str("run_id", report.RunID).
		Int("failed", len(report.Failed)).
		Dur("duration", time.Since(start)).
		Msg("Schema sync completed")
	return report, nil
}

// serve starts the HTTP server in a goroutine and returns an error channel
func (a *App) serve() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
		close(errCh)
	}()
	return errCh
}

// drainServerError waits for the server goroutine after Shutdown.
func (a *App) drainServerError(ch <-chan error) error {
	select {
	case err := <-ch:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-time.After(3 * time.Second):
		a.logger.Warn().Msg("Timeout waiting for server goroutine to complete")
		return errors.New("server goroutine failed to complete within timeout")
	}
}

// Run starts the app and blocks until ctx is cancelled, SIGINT or SIGTERM
// arrives, or the server fails. It always shuts down before returning.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return errors.Join(err, a.Shutdown(context.Background()))
	}

	serverErrCh := a.serve()
	a.logger.Info().Str("address", a.server.Address()).Msg("Tenant router started")

	var errs []error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutdown requested")
		a.shutdownWithTimeout(&errs)
		if err := a.drainServerError(serverErrCh); err != nil {
			errs = append(errs, fmt.Errorf(serverErrorMsg, err))
		}
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Server stopped unexpectedly")
			errs = append(errs, fmt.Errorf(serverErrorMsg, err))
		}
		a.shutdownWithTimeout(&errs)
	}
	return errors.Join(errs...)
}

func (a *App) shutdownWithTimeout(errs *[]error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.Timeout.Shutdown)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		*errs = append(*errs, err)
	}
}

// Shutdown stops the server, then background work, then releases pools and
// clients. Errors from each step are collected and joined.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	start := time.Now()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf(serverErrorMsg, err))
			a.logger.Error().Err(err).Msg("Failed to shutdown server")
		}
	}

	a.background.stop()
	if a.provisioner != nil {
		a.provisioner.Close()
	}
	a.pools.StopCleanup()

	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info().Dur("duration", time.Since(start)).Msg("Tenant router shutdown complete")
	return errors.Join(errs...)
}

// shutdownResource closes one resource, collecting and logging its error.
func (a *App) shutdownResource(closer namedCloser, errs *[]error) {
	if err := closer.closer.Close(); err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", closer.name, err))
		a.logger.Error().Err(err).Msgf("Failed to close %s", closer.name)
		return
	}

	name := strings.TrimSpace(closer.name)
	if name == "" {
		return
	}
	a.logger.Debug().Msgf("%s closed", strings.ToUpper(name[:1])+name[1:])
}
