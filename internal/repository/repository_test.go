package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/model"
	"backoffice/internal/testing/testdb"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newUser(t *testing.T, db *gorm.DB, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com", Password: "x", Role: model.RoleStaff}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func TestRunInTx_AfterCommit(t *testing.T) {
	db := testdb.New(t)
	tx := NewTransactionManager(db)
	users := NewUserRepository(db)
	ctx := context.Background()

	var fired []string
	err := tx.RunInTx(ctx, func(txCtx context.Context) error {
		AfterCommit(txCtx, func() { fired = append(fired, "outer") })
		return tx.RunInTx(txCtx, func(inner context.Context) error {
			AfterCommit(inner, func() { fired = append(fired, "inner") })
			assert.Empty(t, fired)
			return users.Create(inner, &model.User{Username: "kept", Email: "kept@example.com", Password: "x", Role: model.RoleStaff})
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, fired)

	fired = nil
	boom := errors.New("boom")
	err = tx.RunInTx(ctx, func(txCtx context.Context) error {
		AfterCommit(txCtx, func() { fired = append(fired, "rolled back") })
		if err := users.Create(txCtx, &model.User{Username: "gone", Email: "gone@example.com", Password: "x", Role: model.RoleStaff}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, fired)

	_, err = users.GetByEmail(ctx, "gone@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = users.GetByEmail(ctx, "kept@example.com")
	assert.NoError(t, err)

	// outside a transaction the hook runs immediately
	ran := false
	AfterCommit(ctx, func() { ran = true })
	assert.True(t, ran)
}

func TestApprovalRepository_DecideOnlyOnce(t *testing.T) {
	db := testdb.New(t)
	repo := NewApprovalRepository(db)
	ctx := context.Background()
	submitter := newUser(t, db, "sam")
	approver := newUser(t, db, "alex")

	approval := &model.PendingApproval{
		FormType:    model.FormPayroll,
		SubmittedBy: submitter.ID,
		Data:        datatypes.JSON(`{}`),
		Status:      model.ApprovalPending,
	}
	require.NoError(t, repo.Create(ctx, approval))

	won, err := repo.Decide(ctx, approval.ID, model.ApprovalDenied, approver.ID, "late", time.Now())
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Decide(ctx, approval.ID, model.ApprovalApproved, approver.ID, "", time.Now())
	require.NoError(t, err)
	assert.False(t, won)

	stored, err := repo.FindByIDWithRelations(ctx, approval.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalDenied, stored.Status)
	assert.Equal(t, "late", stored.Reason)
	require.NotNil(t, stored.Approver)
	assert.Equal(t, "alex", stored.Approver.Username)

	won, err = repo.Decide(ctx, uuid.New(), model.ApprovalApproved, approver.ID, "", time.Now())
	require.NoError(t, err)
	assert.False(t, won)
}

func TestClockRepository_OneActiveEntryPerUser(t *testing.T) {
	db := testdb.New(t)
	repo := NewClockRepository(db)
	ctx := context.Background()
	user := newUser(t, db, "casey")

	first := &model.ClockEntry{UserID: user.ID, ClockIn: time.Now().Add(-time.Hour)}
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, &model.ClockEntry{UserID: user.ID, ClockIn: time.Now()})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	active, err := repo.FindActive(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	out := time.Now()
	active.ClockOut = &out
	require.NoError(t, repo.Save(ctx, active))

	// closed entries do not count against the index
	require.NoError(t, repo.Create(ctx, &model.ClockEntry{UserID: user.ID, ClockIn: time.Now()}))

	entries, total, err := repo.ListByUser(ctx, user.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, entries, 2)
}
