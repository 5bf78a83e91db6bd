package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, BalanceChanged) error { return f.err }

func TestBroadcasterDeliversToAccountSubscribers(t *testing.T) {
	b := NewBroadcaster(4, nil)
	ch, cancel := b.Subscribe("wallet:a")
	defer cancel()
	other, cancelOther := b.Subscribe("wallet:b")
	defer cancelOther()

	require.NoError(t, b.Publish(context.Background(), BalanceChanged{Kind: KindBalanceChanged, AccountCode: "wallet:a", Balance: 700}))

	got := <-ch
	assert.Equal(t, int64(700), got.Balance)
	select {
	case ev := <-other:
		t.Fatalf("unexpected event for other account: %+v", ev)
	default:
	}
}

func TestBroadcasterDropsWhenSubscriberIsFull(t *testing.T) {
	b := NewBroadcaster(1, nil)
	ch, cancel := b.Subscribe("wallet:a")
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(context.Background(), BalanceChanged{AccountCode: "wallet:a", Balance: int64(i)}))
	}
	assert.Len(t, ch, 1)
	assert.Equal(t, int64(0), (<-ch).Balance)
}

func TestBroadcasterCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster(1, nil)
	ch, cancel := b.Subscribe("wallet:a")
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, b.Publish(context.Background(), BalanceChanged{AccountCode: "wallet:a"}))
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	m := Multi{Nop{}, nil, failingPublisher{err: boom}}
	err := m.Publish(context.Background(), BalanceChanged{})
	assert.ErrorIs(t, err, boom)
}
