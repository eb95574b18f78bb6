package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/punchamoorthee/custodia/internal/domain"
	"github.com/punchamoorthee/custodia/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAction_ApproveDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "alice")

	req, current, err := f.intake.SubmitDeposit(ctx, "alice", dec("500"), "UTR-1")
	require.NoError(t, err)
	assertAmount(t, "0", current)

	out, err := f.approvals.ApplyAction(ctx, domain.KindDeposit, req.ID, domain.ActionApprove, "verified", "ops")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusApproved, out.Request.Status)
	assert.Equal(t, "verified", out.Request.AdminNotes)
	assert.NotNil(t, out.Request.ProcessedAt)
	assertAmount(t, "500", out.Balance)
	assertAmount(t, "500", f.balance(t, "alice"))

	history := f.history(t, "alice")
	require.Len(t, history, 1)
	assert.Equal(t, domain.TxDeposit, history[0].Kind)
	assertAmount(t, "500", history[0].Amount)

	pending, err := f.queries.GetPendingRequests(ctx, "alice", domain.KindDeposit)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApplyAction_ApproveWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "alice")
	f.fund(t, "alice", "500")

	req, err := f.intake.SubmitWithdrawal(ctx, "alice", dec("120.50"))
	require.NoError(t, err)
	assertAmount(t, "500", f.balance(t, "alice"))

	out, err := f.approvals.ApplyAction(ctx, domain.KindWithdrawal, req.ID, domain.ActionApprove, "", "ops")
	require.NoError(t, err)
	require.NotNil(t, out.Transaction)

	assertAmount(t, "379.50", f.balance(t, "alice"))
	history := f.history(t, "alice")
	require.Len(t, history, 2)
	assert.Equal(t, domain.TxWithdraw, history[0].Kind)
	assertAmount(t, "120.50", history[0].Amount)
}

func TestApplyAction_RejectLeavesBalanceAndLedger(t *testing.T) {
	for _, kind := range []domain.RequestKind{domain.KindDeposit, domain.KindWithdrawal} {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.signup(t, "bob")
			f.fund(t, "bob", "100")

			var id int64
			if kind == domain.KindDeposit {
				req, _, err := f.intake.SubmitDeposit(ctx, "bob", dec("40"), "")
				require.NoError(t, err)
				id = req.ID
			} else {
				req, err := f.intake.SubmitWithdrawal(ctx, "bob", dec("40"))
				require.NoError(t, err)
				id = req.ID
			}

			out, err := f.approvals.ApplyAction(ctx, kind, id, domain.ActionReject, "no proof", "ops")
			require.NoError(t, err)
			assert.Nil(t, out.Transaction)
			assert.Equal(t, domain.StatusRejected, out.Request.Status)
			assert.Equal(t, "no proof", f.request(t, id).AdminNotes)

			assertAmount(t, "100", f.balance(t, "bob"))
			assert.Len(t, f.history(t, "bob"), 1)
		})
	}
}

func TestApplyAction_ReapplyIsRefused(t *testing.T) {
	cases := []struct {
		name   string
		first  domain.Action
		second domain.Action
	}{
		{"approve then approve", domain.ActionApprove, domain.ActionApprove},
		{"approve then reject", domain.ActionApprove, domain.ActionReject},
		{"reject then approve", domain.ActionReject, domain.ActionApprove},
		{"reject then reject", domain.ActionReject, domain.ActionReject},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.signup(t, "carol")

			req, _, err := f.intake.SubmitDeposit(ctx, "carol", dec("75"), "")
			require.NoError(t, err)
			_, err = f.approvals.ApplyAction(ctx, domain.KindDeposit, req.ID, tc.first, "", "ops")
			require.NoError(t, err)

			before := f.balance(t, "carol")
			ledger := len(f.history(t, "carol"))

			_, err = f.approvals.ApplyAction(ctx, domain.KindDeposit, req.ID, tc.second, "again", "ops")
			assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

			assert.True(t, before.Equal(f.balance(t, "carol")))
			assert.Len(t, f.history(t, "carol"), ledger)
			assert.Equal(t, tc.first.Status(), f.request(t, req.ID).Status)
		})
	}
}

func TestApplyAction_WithdrawalRecheckedAtApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "alice")
	f.fund(t, "alice", "500")

	first, err := f.intake.SubmitWithdrawal(ctx, "alice", dec("300"))
	require.NoError(t, err)
	second, err := f.intake.SubmitWithdrawal(ctx, "alice", dec("300"))
	require.NoError(t, err)

	_, err = f.approvals.ApplyAction(ctx, domain.KindWithdrawal, first.ID, domain.ActionApprove, "", "ops")
	require.NoError(t, err)
	assertAmount(t, "200", f.balance(t, "alice"))

	_, err = f.approvals.ApplyAction(ctx, domain.KindWithdrawal, second.ID, domain.ActionApprove, "", "ops")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, domain.StatusPending, f.request(t, second.ID).Status)
	assertAmount(t, "200", f.balance(t, "alice"))
	assert.Len(t, f.history(t, "alice"), 2)

	// The admin can still reject the stuck request explicitly.
	_, err = f.approvals.ApplyAction(ctx, domain.KindWithdrawal, second.ID, domain.ActionReject, "insufficient funds", "ops")
	require.NoError(t, err)
}

func TestApplyAction_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "dave")

	_, err := f.approvals.ApplyAction(ctx, domain.KindDeposit, 999, domain.ActionApprove, "", "ops")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// A deposit id is not reachable through the withdrawal route.
	req, _, err := f.intake.SubmitDeposit(ctx, "dave", dec("10"), "")
	require.NoError(t, err)
	_, err = f.approvals.ApplyAction(ctx, domain.KindWithdrawal, req.ID, domain.ActionApprove, "", "ops")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StatusPending, f.request(t, req.ID).Status)
}

func TestApplyAction_InvalidAction(t *testing.T) {
	f := newFixture(t)

	_, err := f.approvals.ApplyAction(context.Background(), domain.KindDeposit, 1, domain.Action("cancel"), "", "ops")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestApplyAction_ConcurrentApprovalsFinalizeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "erin")

	req, _, err := f.intake.SubmitDeposit(ctx, "erin", dec("50"), "")
	require.NoError(t, err)

	const racers = 8
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make(chan error, racers)
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.approvals.ApplyAction(ctx, domain.KindDeposit, req.ID, domain.ActionApprove, "", "ops")
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var ok, processed int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrAlreadyProcessed):
			processed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, racers-1, processed)
	assert.Len(t, f.history(t, "erin"), 1)
	assertAmount(t, "50", f.balance(t, "erin"))
}

// failingStore fails every ledger append made inside a transaction.
type failingStore struct {
	store.Store
	err error
}

func (s *failingStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(&failingTx{Tx: tx, err: s.err})
	})
}

type failingTx struct {
	store.Tx
	err error
}

func (t *failingTx) AppendTransaction(context.Context, domain.TransactionRecord) (*domain.TransactionRecord, error) {
	return nil, t.err
}

func TestApplyAction_LedgerFailureRollsBack(t *testing.T) {
	mem := store.NewMemory()
	healthy := newFixtureWithStore(t, mem)
	healthy.signup(t, "frank")
	healthy.fund(t, "frank", "80")

	ctx := context.Background()
	req, err := healthy.intake.SubmitWithdrawal(ctx, "frank", dec("30"))
	require.NoError(t, err)

	broken := newFixtureWithStore(t, &failingStore{Store: mem, err: domain.ErrStorage})
	_, err = broken.approvals.ApplyAction(ctx, domain.KindWithdrawal, req.ID, domain.ActionApprove, "", "ops")
	require.ErrorIs(t, err, domain.ErrStorage)

	assert.Equal(t, domain.StatusPending, healthy.request(t, req.ID).Status)
	assert.Empty(t, healthy.request(t, req.ID).AdminNotes)
	assertAmount(t, "80", healthy.balance(t, "frank"))
	assert.Len(t, healthy.history(t, "frank"), 1)

	// Once storage recovers the same request can be approved.
	_, err = healthy.approvals.ApplyAction(ctx, domain.KindWithdrawal, req.ID, domain.ActionApprove, "", "ops")
	require.NoError(t, err)
	assertAmount(t, "50", healthy.balance(t, "frank"))
}

func TestHistory_OrderedNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "gina")

	const n = 6
	for i := 0; i < n; i++ {
		f.fund(t, "gina", "1")
	}

	history := f.history(t, "gina")
	require.Len(t, history, n)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.After(history[i-1].Timestamp), "timestamps must not increase")
		assert.Less(t, history[i].ID, history[i-1].ID)
	}
}
