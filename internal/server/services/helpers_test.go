package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/audit"
	"github.com/dmitrijs2005/staffkeeper/internal/cryptox"
	"github.com/dmitrijs2005/staffkeeper/internal/dbx"
	"github.com/dmitrijs2005/staffkeeper/internal/lockout"
	"github.com/dmitrijs2005/staffkeeper/internal/metrics"
	"github.com/dmitrijs2005/staffkeeper/internal/server/config"
	"github.com/dmitrijs2005/staffkeeper/internal/server/models"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/principals"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type auditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *auditRecorder) Record(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *auditRecorder) kinds() []audit.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// singleRepoManager hands out one repository whatever the handle.
type singleRepoManager struct {
	repo principals.Repository
}

func (m *singleRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *singleRepoManager) Principals(dbx.DBTX) principals.Repository    { return m.repo }

type fixture struct {
	t        *testing.T
	db       *sql.DB
	repos    repomanager.RepositoryManager
	codec    *cryptox.Codec
	clock    *fakeClock
	audit    *auditRecorder
	metrics  *metrics.Collector
	registry *prometheus.Registry
	cfg      *config.Config
	auth     *AuthService
	accounts *AccountService
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Store = repomanager.StoreMemory
	cfg.SecretKey = "test-secret"
	return cfg
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil, repomanager.NewMemoryRepositoryManager())
}

func newFixtureWith(t *testing.T, db *sql.DB, repos repomanager.RepositoryManager) *fixture {
	t.Helper()

	codec, err := cryptox.NewCodec(cryptox.DefaultParams())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	f := &fixture{
		t:        t,
		db:       db,
		repos:    repos,
		codec:    codec,
		clock:    &fakeClock{now: epoch},
		audit:    &auditRecorder{},
		metrics:  metrics.NewCollector(reg),
		registry: reg,
		cfg:      testConfig(),
	}
	f.build()
	return f
}

// build (re)creates the services from the fixture's current settings.
func (f *fixture) build() {
	d := Deps{
		Codec:   f.codec,
		Policy:  lockout.NewPolicy(lockout.WithMaxAttempts(f.cfg.MaxAttempts), lockout.WithDuration(f.cfg.LockDuration)),
		Audit:   f.audit,
		Metrics: f.metrics,
		Now:     f.clock.Now,
	}
	f.auth = NewAuthService(f.db, f.repos, f.cfg, d)
	f.accounts = NewAccountService(f.db, f.repos, f.cfg, d)
}

func (f *fixture) repo() principals.Repository {
	return f.repos.Principals(f.db)
}

// seed stores a principal with a known password that expires in a year.
func (f *fixture) seed(login string, role models.Role, territory models.Territory, password string) *models.Principal {
	f.t.Helper()
	cred, err := f.codec.Hash(password)
	require.NoError(f.t, err)
	p := &models.Principal{
		ID:             uuid.NewString(),
		Login:          login,
		GivenName:      "Given",
		FamilyName:     login,
		Territory:      territory,
		Role:           role,
		Credential:     cred,
		PasswordExpiry: epoch.Add(365 * 24 * time.Hour),
		CreatedAt:      epoch,
	}
	require.NoError(f.t, f.repo().Insert(context.Background(), p))
	return p
}

func (f *fixture) load(login string) *models.Principal {
	f.t.Helper()
	p, err := f.repo().FindByLogin(context.Background(), login)
	require.NoError(f.t, err)
	return p
}

// scripted supplies passwords in order and records the prompts it saw.
type scripted struct {
	passwords []string
	prompts   []Prompt
}

func supply(passwords ...string) *scripted {
	return &scripted{passwords: passwords}
}

func (s *scripted) supplier(_ context.Context, p Prompt) (string, error) {
	s.prompts = append(s.prompts, p)
	if len(s.prompts) > len(s.passwords) {
		return "", ErrSupplierClosed
	}
	return s.passwords[len(s.prompts)-1], nil
}

func gatherValue(t *testing.T, f *fixture, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
