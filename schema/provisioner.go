package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gaborage/go-tenantdb/database"
	"github.com/gaborage/go-tenantdb/directory"
	"github.com/gaborage/go-tenantdb/logger"
	"github.com/gaborage/go-tenantdb/observability"
)

// Defaults for Options.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4
)

// Options tunes a Provisioner.
type Options struct {
	// Timeout bounds one tenant sync including connecting.
	Timeout time.Duration
	// Concurrency is the number of tenants EnsureAll syncs at once.
	Concurrency int
	// Settings size the direct connection; MaxOpenConns is forced to 1.
	Settings database.PoolSettings
	// VendorScripts replaces the script for tenants of the given vendor.
	VendorScripts map[string]*Script
	Metrics  *observability.Metrics
	Tracer   trace.Tracer
}

// Report summarises one EnsureAll run.
type Report struct {
	RunID     string
	Succeeded []string
	Failed    map[string]error
	Skipped   []string
}

// Provisioner applies the schema script to tenant databases. It always opens
// its own connection and never borrows from the pool cache, so it can run
// before a tenant pool exists.
type Provisioner struct {
	dir     directory.Directory
	script  *Script
	connect database.Connector
	opts    Options
	logger  logger.Logger
	tracer  trace.Tracer

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// NewProvisioner creates a provisioner. A nil connect selects database.Connect.
func NewProvisioner(dir directory.Directory, script *Script, connect database.Connector, log logger.Logger, opts Options) *Provisioner {
	if connect == nil {
		connect = database.Connect
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	opts.Settings.MaxOpenConns = 1
	opts.Settings.MaxIdleConns = 1

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(observability.ScopeName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Provisioner{
		dir:      dir,
		script:   script,
		connect:  connect,
		opts:     opts,
		logger:   log,
		tracer:   tracer,
		inflight: make(map[string]struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// EnsureSchema runs every statement of the script against the tenant
// database, in order, stopping at the first failure. Running it again on a
// synchronised database changes nothing.
func (p *Provisioner) EnsureSchema(ctx context.Context, d directory.Descriptor) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "schema.EnsureSchema", trace.WithAttributes(
		attribute.String("tenant.id", d.ID),
		attribute.String("db.system", d.Vendor),
	))
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		p.opts.Metrics.RecordSchemaSync(ctx, result, time.Since(start))
		span.End()
	}()

	conn, err := p.connect(ctx, d.Endpoint(), p.opts.Settings, p.logger)
	if err != nil {
		return fmt.Errorf("tenant %s: connect: %w: %w", d.ID, ErrSchemaSync, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			p.logger.Warn().Err(cerr).Str("tenant_id", d.ID).Msg("Failed to close schema connection")
		}
	}()

	script := p.scriptFor(d.Vendor)
	for i, stmt := range script.statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("tenant %s: statement %d: %w: %w", d.ID, i+1, ErrSchemaSync, err)
		}
	}

	p.logger.Info().
		Str("tenant_id", d.ID).
		Str("script", script.name).
		Int("statements", len(script.statements)).
		Dur("elapsed", time.Since(start)).
		Msg("Tenant schema synchronised")
	return nil
}

func (p *Provisioner) scriptFor(vendor string) *Script {
	if s, ok := p.opts.VendorScripts[vendor]; ok && s != nil {
		return s
	}
	return p.script
}

// EnsureAll synchronises every active tenant of the directory, at most
// Concurrency at a time. A failing tenant never stops the others; failures
// are logged and reported. The error is non-nil only when the directory
// cannot be listed.
func (p *Provisioner) EnsureAll(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString(), Failed: make(map[string]error)}
	log := p.logger.WithFields(map[string]any{"run_id": report.RunID})

	ctx, span := p.tracer.Start(ctx, "schema.EnsureAll", trace.WithAttributes(attribute.String("run.id", report.RunID)))
	defer span.End()

	tenants, err := p.dir.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("list tenants: %w", err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)

	for _, d := range tenants {
		if !d.Active() {
			report.Skipped = append(report.Skipped, d.ID)
			continue
		}
		g.Go(func() error {
			err := p.EnsureSchema(ctx, d)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[d.ID] = err
				log.Error().Err(err).Str("tenant_id", d.ID).Msg("Tenant schema sync failed")
				return nil
			}
			report.Succeeded = append(report.Succeeded, d.ID)
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Int("skipped", len(report.Skipped)).
		Msg("Schema sync run finished")
	span.SetAttributes(attribute.Int("tenants.failed", len(report.Failed)))
	return report, nil
}

// Trigger synchronises one tenant in the background. A sync already running
// for the tenant absorbs the trigger. Errors are logged and dropped: the
// next pool rebuild triggers another attempt.
func (p *Provisioner) Trigger(d directory.Descriptor) {
	p.mu.Lock()
	if p.baseCtx.Err() != nil {
		p.mu.Unlock()
		return
	}
	if _, running := p.inflight[d.ID]; running {
		p.mu.Unlock()
		p.logger.Debug().Str("tenant_id", d.ID).Msg("Schema sync already running")
		return
	}
	p.inflight[d.ID] = struct{}{}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.inflight, d.ID)
			p.mu.Unlock()
		}()

		if err := p.EnsureSchema(p.baseCtx, d); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error().Err(err).Str("tenant_id", d.ID).Msg("Background tenant schema sync failed")
		}
	}()
}

// Wait blocks until every triggered sync has finished.
func (p *Provisioner) Wait() {
	p.wg.Wait()
}

// Close cancels background syncs and waits for them to return.
func (p *Provisioner) Close() {
	p.mu.Lock()
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}
