package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jbweber/homelab/policyd/internal/dialect"
	"github.com/jbweber/homelab/policyd/internal/domain"
	"github.com/jbweber/homelab/policyd/internal/notify"
	"github.com/jbweber/homelab/policyd/internal/repository"
	"github.com/jbweber/homelab/policyd/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Events() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}

func newTestService(t *testing.T) (*PolicyService, *recordingPublisher) {
	t.Helper()

	db, _ := testutil.SetupTestDBWithMigrations(t, t.Name())
	repo := repository.NewPolicyRepository(db, dialect.SQLite)
	t.Cleanup(func() { repo.Close() })

	pub := &recordingPublisher{}
	return NewPolicyService(repo, PolicyMapper{}, pub, zap.NewNop()), pub
}

func exampleDTO() domain.PolicyDTO {
	return domain.PolicyDTO{
		PolicyNumber:   "P-100",
		Type:           "AUTO",
		CoverageAmount: decimal.NewNullDecimal(decimal.NewFromInt(5000)),
		Premium:        decimal.NewNullDecimal(decimal.NewFromInt(120)),
		StartDate:      civil.Date{Year: 2024, Month: 1, Day: 1},
		EndDate:        civil.Date{Year: 2025, Month: 1, Day: 1},
	}
}

func TestPolicyService_Scenario(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePolicy(ctx, exampleDTO())
	require.NoError(t, err)
	require.NotNil(t, created.ID)
	assert.Equal(t, int64(1), *created.ID)
	assert.Equal(t, "P-100", created.PolicyNumber)

	update := exampleDTO()
	update.CoverageAmount = decimal.NewNullDecimal(decimal.NewFromInt(6000))
	updated, err := svc.UpdatePolicy(ctx, 1, update)
	require.NoError(t, err)
	assert.Equal(t, int64(1), *updated.ID)
	assert.True(t, updated.CoverageAmount.Decimal.Equal(decimal.NewFromInt(6000)))

	require.NoError(t, svc.DeletePolicy(ctx, 1))

	_, err = svc.GetPolicy(ctx, 1)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, int64(1), nf.ID)

	assert.Equal(t, []notify.Event{
		{Op: notify.OpCreated, ID: 1},
		{Op: notify.OpUpdated, ID: 1},
		{Op: notify.OpDeleted, ID: 1},
	}, pub.Events())
}

func TestPolicyService_ListPolicies(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	list, err := svc.ListPolicies(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	for _, n := range []string{"A", "B"} {
		dto := exampleDTO()
		dto.PolicyNumber = n
		_, err := svc.CreatePolicy(ctx, dto)
		require.NoError(t, err)
	}

	list, err = svc.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].PolicyNumber)
	assert.Equal(t, "B", list[1].PolicyNumber)
}

func TestPolicyService_CreatePolicy_IgnoresCallerID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dto := exampleDTO()
	callerID := int64(77)
	dto.ID = &callerID

	created, err := svc.CreatePolicy(ctx, dto)
	require.NoError(t, err)
	assert.Equal(t, int64(1), *created.ID)

	_, err = svc.GetPolicy(ctx, 77)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestPolicyService_CreatePolicy_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dto := exampleDTO()
	dto.Premium = decimal.NewNullDecimal(decimal.RequireFromString("99.95"))

	created, err := svc.CreatePolicy(ctx, dto)
	require.NoError(t, err)

	got, err := svc.GetPolicy(ctx, *created.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.PolicyNumber, got.PolicyNumber)
	assert.Equal(t, dto.Type, got.Type)
	assert.True(t, dto.CoverageAmount.Decimal.Equal(got.CoverageAmount.Decimal))
	assert.True(t, dto.Premium.Decimal.Equal(got.Premium.Decimal))
	assert.Equal(t, dto.StartDate, got.StartDate)
	assert.Equal(t, dto.EndDate, got.EndDate)
}

func TestPolicyService_UpdatePolicy_UsesPathID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreatePolicy(ctx, exampleDTO())
	require.NoError(t, err)
	second, err := svc.CreatePolicy(ctx, exampleDTO())
	require.NoError(t, err)

	update := exampleDTO()
	update.ID = second.ID
	update.Type = "HOME"

	updated, err := svc.UpdatePolicy(ctx, *first.ID, update)
	require.NoError(t, err)
	assert.Equal(t, *first.ID, *updated.ID)
	assert.Equal(t, "HOME", updated.Type)

	untouched, err := svc.GetPolicy(ctx, *second.ID)
	require.NoError(t, err)
	assert.Equal(t, "AUTO", untouched.Type)
}

func TestPolicyService_NotFound(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetPolicy(ctx, 42)
	assert.EqualError(t, err, "policy not found with id: 42")
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	_, err = svc.UpdatePolicy(ctx, 42, exampleDTO())
	assert.EqualError(t, err, "policy not found with id: 42")

	err = svc.DeletePolicy(ctx, 42)
	assert.EqualError(t, err, "policy not found with id: 42")

	assert.Empty(t, pub.Events())

	list, err := svc.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPolicyService_DeleteTwice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreatePolicy(ctx, exampleDTO())
	require.NoError(t, err)

	require.NoError(t, svc.DeletePolicy(ctx, *created.ID))

	var nf *NotFoundError
	assert.True(t, errors.As(svc.DeletePolicy(ctx, *created.ID), &nf))
}

func TestPolicyService_PublishFailureIsLogged(t *testing.T) {
	db, _ := testutil.SetupTestDBWithMigrations(t, t.Name())
	repo := repository.NewPolicyRepository(db, dialect.SQLite)
	defer repo.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	pub := &recordingPublisher{err: errors.New("redis down")}
	svc := NewPolicyService(repo, nil, pub, zap.New(core))

	created, err := svc.CreatePolicy(context.Background(), exampleDTO())
	require.NoError(t, err)
	assert.NotNil(t, created.ID)

	entries := logs.FilterMessage("policy event delivery failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "created", entries[0].ContextMap()["op"])
}

// stubRepository lets tests inject storage failures
type stubRepository struct {
	repository.Repository[domain.Policy, int64]

	findErr error
	saveErr error
	stored  domain.Policy
}

func (r *stubRepository) FindAll(context.Context) ([]domain.Policy, error) {
	return nil, r.findErr
}

func (r *stubRepository) FindByID(context.Context, int64) (domain.Policy, error) {
	if r.findErr != nil {
		return domain.Policy{}, r.findErr
	}
	return r.stored, nil
}

func (r *stubRepository) Save(context.Context, domain.Policy) (domain.Policy, error) {
	return domain.Policy{}, r.saveErr
}

func (r *stubRepository) Delete(context.Context, domain.Policy) error {
	return r.saveErr
}

func TestPolicyService_StorageFailure(t *testing.T) {
	boom := errors.New("disk full")
	pub := &recordingPublisher{}
	svc := NewPolicyService(&stubRepository{findErr: boom, saveErr: boom}, nil, pub, nil)
	ctx := context.Background()

	_, err := svc.ListPolicies(ctx)
	assert.ErrorIs(t, err, boom)

	_, err = svc.GetPolicy(ctx, 1)
	assert.ErrorIs(t, err, boom)

	_, err = svc.CreatePolicy(ctx, exampleDTO())
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, pub.Events())
}

func TestPolicyService_RowVanishesBeforeWrite(t *testing.T) {
	gone := errors.Join(errors.New("policy with ID 5"), repository.ErrNotFound)
	repo := &stubRepository{stored: domain.Policy{ID: 5}, saveErr: gone}
	svc := NewPolicyService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.UpdatePolicy(ctx, 5, exampleDTO())
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, int64(5), nf.ID)

	err = svc.DeletePolicy(ctx, 5)
	require.True(t, errors.As(err, &nf))
}
