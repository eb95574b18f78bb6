package service_test

import (
	"context"
	"testing"

	"github.com/punchamoorthee/custodia/internal/auth"
	"github.com/punchamoorthee/custodia/internal/domain"
	"github.com/punchamoorthee/custodia/internal/service"
	"github.com/punchamoorthee/custodia/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	store     store.Store
	accounts  *service.AccountService
	intake    *service.IntakeService
	approvals *service.ApprovalService
	queries   *service.QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, store.NewMemory())
}

func newFixtureWithStore(t *testing.T, s store.Store) *fixture {
	t.Helper()
	logger := zap.NewNop()
	return &fixture{
		store:     s,
		accounts:  service.NewAccountService(s, auth.NewBcrypt(bcrypt.MinCost), logger),
		intake:    service.NewIntakeService(s, logger),
		approvals: service.NewApprovalService(s, logger),
		queries:   service.NewQueryService(s, 0),
	}
}

func (f *fixture) signup(t *testing.T, username string) {
	t.Helper()
	require.NoError(t, f.accounts.Signup(context.Background(), username, "secret"))
}

// fund deposits and approves amount for username.
func (f *fixture) fund(t *testing.T, username, amount string) {
	t.Helper()
	ctx := context.Background()
	req, _, err := f.intake.SubmitDeposit(ctx, username, dec(amount), "")
	require.NoError(t, err)
	_, err = f.approvals.ApplyAction(ctx, domain.KindDeposit, req.ID, domain.ActionApprove, "", "test")
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, username string) decimal.Decimal {
	t.Helper()
	b, err := f.queries.GetBalance(context.Background(), username)
	require.NoError(t, err)
	return b
}

func (f *fixture) history(t *testing.T, username string) []domain.TransactionRecord {
	t.Helper()
	h, err := f.queries.GetHistory(context.Background(), username, service.MaxHistoryLimit)
	require.NoError(t, err)
	return h
}

func (f *fixture) request(t *testing.T, id int64) *domain.Request {
	t.Helper()
	r, err := f.store.GetRequest(context.Background(), id)
	require.NoError(t, err)
	return r
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want amount %s, got %s", want, got)
}
