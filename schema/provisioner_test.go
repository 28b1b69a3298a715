package schema

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-tenantdb/database"
	"github.com/gaborage/go-tenantdb/directory"
	"github.com/gaborage/go-tenantdb/logger"
	"github.com/gaborage/go-tenantdb/testing/mocks"
)

const testScript = "CREATE TABLE IF NOT EXISTS patients (id INT);\nCREATE TABLE IF NOT EXISTS invoices (id INT);"

// fakeTenants hands out one sqlmock-backed connection per connect call.
type fakeTenants struct {
	mu          sync.Mutex
	connects    atomic.Int32
	unreachable map[string]bool
	failExec    map[string]bool
	mocks       []sqlmock.Sqlmock
	block       chan struct{}
}

func (f *fakeTenants) connect(ctx context.Context, ep database.Endpoint, settings database.PoolSettings, log logger.Logger) (database.Interface, error) {
	f.connects.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.unreachable[ep.Host] {
		return nil, errors.New("dial tcp: connection refused")
	}
	if settings.MaxOpenConns != 1 {
		return nil, errors.New("schema connection must be a single connection")
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		return nil, err
	}
	if f.failExec[ep.Host] {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS patients").WillReturnError(errors.New("permission denied"))
	} else {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS patients").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS invoices").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectClose()

	f.mu.Lock()
	f.mocks = append(f.mocks, mock)
	f.mu.Unlock()
	return database.NewConnectionFromDB(db, ep.Vendor, settings, log), nil
}

func (f *fakeTenants) assertMet(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.mocks {
		assert.NoError(t, m.ExpectationsWereMet())
	}
}

func newTestProvisioner(t *testing.T, dir directory.Directory, f *fakeTenants) *Provisioner {
	t.Helper()
	script, err := ParseScript("test", []byte(testScript))
	require.NoError(t, err)
	p := NewProvisioner(dir, script, f.connect, logger.Nop(), Options{Timeout: time.Second, Concurrency: 2})
	t.Cleanup(p.Close)
	return p
}

func tenant(id string) directory.Descriptor {
	return directory.Descriptor{ID: id, Vendor: "postgresql", Host: id + "-db", Database: id}
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	f := &fakeTenants{}
	p := newTestProvisioner(t, directory.NewStaticDirectory(), f)

	require.NoError(t, p.EnsureSchema(context.Background(), tenant("acme")))
	require.NoError(t, p.EnsureSchema(context.Background(), tenant("acme")))

	assert.EqualValues(t, 2, f.connects.Load())
	f.assertMet(t)
}

func TestEnsureSchemaStopsAtFirstFailure(t *testing.T) {
	f := &fakeTenants{failExec: map[string]bool{"acme-db": true}}
	p := newTestProvisioner(t, directory.NewStaticDirectory(), f)

	err := p.EnsureSchema(context.Background(), tenant("acme"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaSync)
	assert.Contains(t, err.Error(), "statement 1")
	assert.Contains(t, err.Error(), "permission denied")
	f.assertMet(t)
}

func TestEnsureSchemaConnectFailure(t *testing.T) {
	f := &fakeTenants{unreachable: map[string]bool{"acme-db": true}}
	p := newTestProvisioner(t, directory.NewStaticDirectory(), f)

	err := p.EnsureSchema(context.Background(), tenant("acme"))
	assert.ErrorIs(t, err, ErrSchemaSync)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEnsureAllIsolatesFailures(t *testing.T) {
	suspended := tenant("dormant")
	suspended.Status = directory.StatusSuspended
	dir := directory.NewStaticDirectory(tenant("acme"), tenant("broken"), tenant("ghost"), tenant("zeta"), suspended)

	f := &fakeTenants{
		unreachable: map[string]bool{"ghost-db": true},
		failExec:    map[string]bool{"broken-db": true},
	}
	p := newTestProvisioner(t, dir, f)

	report, err := p.EnsureAll(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.ElementsMatch(t, []string{"acme", "zeta"}, report.Succeeded)
	assert.Len(t, report.Failed, 2)
	assert.Contains(t, report.Failed, "ghost")
	assert.Contains(t, report.Failed, "broken")
	assert.Equal(t, []string{"dormant"}, report.Skipped)
}

func TestEnsureAllListFailure(t *testing.T) {
	dir := &mocks.MockDirectory{}
	dir.ExpectList(nil, errors.New("control plane down"))

	p := newTestProvisioner(t, dir, &fakeTenants{})
	_, err := p.EnsureAll(context.Background())
	assert.ErrorContains(t, err, "control plane down")
	dir.AssertExpectations(t)
}

func TestTriggerDeduplicatesInFlight(t *testing.T) {
	f := &fakeTenants{block: make(chan struct{})}
	p := newTestProvisioner(t, directory.NewStaticDirectory(), f)

	p.Trigger(tenant("acme"))
	require.Eventually(t, func() bool { return f.connects.Load() == 1 }, time.Second, 5*time.Millisecond)

	p.Trigger(tenant("acme"))
	p.Trigger(tenant("acme"))

	close(f.block)
	p.Wait()
	assert.EqualValues(t, 1, f.connects.Load())

	p.Trigger(tenant("acme"))
	p.Wait()
	assert.EqualValues(t, 2, f.connects.Load())
	f.assertMet(t)
}

func TestTriggerSwallowsFailures(t *testing.T) {
	f := &fakeTenants{unreachable: map[string]bool{"acme-db": true}}
	p := newTestProvisioner(t, directory.NewStaticDirectory(), f)

	assert.NotPanics(t, func() {
		p.Trigger(tenant("acme"))
		p.Wait()
	})
}

func TestTriggerAfterCloseIsIgnored(t *testing.T) {
	f := &fakeTenants{}
	p := newTestProvisioner(t, directory.NewStaticDirectory(), f)
	p.Close()

	p.Trigger(tenant("acme"))
	p.Wait()
	assert.EqualValues(t, 0, f.connects.Load())
}

func TestEnsureSchemaUsesVendorScript(t *testing.T) {
	base, err := ParseScript("test", []byte(testScript))
	require.NoError(t, err)
	oracle, err := ParseScript("oracle", []byte("CREATE TABLE patients (id NUMBER)"))
	require.NoError(t, err)

	var sessions []sqlmock.Sqlmock
	connect := func(_ context.Context, ep database.Endpoint, settings database.PoolSettings, log logger.Logger) (database.Interface, error) {
		db, mock, err := sqlmock.New()
		if err != nil {
			return nil, err
		}
		if ep.Vendor == "oracle" {
			mock.ExpectExec(`CREATE TABLE patients \(id NUMBER\)`).WillReturnResult(sqlmock.NewResult(0, 0))
		} else {
			mock.ExpectExec("CREATE TABLE IF NOT EXISTS patients").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("CREATE TABLE IF NOT EXISTS invoices").WillReturnResult(sqlmock.NewResult(0, 0))
		}
		mock.ExpectClose()
		sessions = append(sessions, mock)
		return database.NewConnectionFromDB(db, ep.Vendor, settings, log), nil
	}

	p := NewProvisioner(directory.NewStaticDirectory(), base, connect, logger.Nop(), Options{
		Timeout:       time.Second,
		VendorScripts: map[string]*Script{"oracle": oracle},
	})
	t.Cleanup(p.Close)

	ora := tenant("globex")
	ora.Vendor = "oracle"
	require.NoError(t, p.EnsureSchema(context.Background(), ora))
	require.NoError(t, p.EnsureSchema(context.Background(), tenant("acme")))

	require.Len(t, sessions, 2)
	for _, m := range sessions {
		assert.NoError(t, m.ExpectationsWereMet())
	}
}
