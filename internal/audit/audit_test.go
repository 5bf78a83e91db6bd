package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/settlement/internal/ledger"
)

func TestMemoryLogAppendAndListBySubject(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	meta := map[string]string{"amount": "5000"}
	appended, err := log.Append(ctx, Entry{
		ActorID:      "admin-1",
		ActorRole:    "admin",
		Action:       ActionFundingApproved,
		SubjectType:  SubjectFundingRequest,
		SubjectID:    "req-1",
		BeforeStatus: "pending",
		AfterStatus:  "approved",
		Metadata:     meta,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, appended.ID)
	assert.False(t, appended.CreatedAt.IsZero())

	meta["amount"] = "1"

	_, err = log.Append(ctx, Entry{ActorID: "user-1", Action: ActionTransferCompleted, SubjectType: SubjectTransfer, SubjectID: "tx-1"})
	require.NoError(t, err)

	entries, err := log.ListBySubject(ctx, SubjectFundingRequest, "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pending", entries[0].BeforeStatus)
	assert.Equal(t, "approved", entries[0].AfterStatus)
	assert.Equal(t, "5000", entries[0].Metadata["amount"])
}

func TestMemoryLogRejectsIncompleteEntries(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	_, err := log.Append(ctx, Entry{Action: ActionFundingApproved, SubjectType: SubjectFundingRequest, SubjectID: "req-1"})
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = log.Append(ctx, Entry{ActorID: "a", Action: "x", SubjectType: "wallet", SubjectID: "w"})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestMemoryLogListNewestFirst(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx, Entry{ActorID: "u", Action: ActionTransferCompleted, SubjectType: SubjectTransfer, SubjectID: fmt.Sprintf("tx-%d", i)})
		require.NoError(t, err)
	}

	page, err := log.List(ctx, ledger.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "tx-3", page[0].SubjectID)
	assert.Equal(t, "tx-2", page[1].SubjectID)
}
