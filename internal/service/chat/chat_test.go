package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/yyc3/yunshu/backend/internal/model/chat"
	"github.com/yyc3/yunshu/backend/internal/service/chat"
	"github.com/yyc3/yunshu/backend/internal/service/dialog"
)

func TestStoreKeepsAppendOrder(t *testing.T) {
	store := chat.NewStore()
	first := store.Append(model.Message{Role: model.RoleUser, Text: "one"})
	second := store.Append(model.Message{Role: model.RoleAssistant, Text: "two"})

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())

	all := store.All()
	require.Len(t, all, 2)
	assert.Equal(t, "one", all[0].Text)
	assert.Equal(t, "two", all[1].Text)

	all[0].Text = "mutated"
	assert.Equal(t, "one", store.All()[0].Text)

	store.Reset()
	assert.Empty(t, store.All())
	assert.Equal(t, 0, store.Len())
}

func TestStoreConcurrentAppend(t *testing.T) {
	store := chat.NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Append(model.Message{Role: model.RoleUser, Text: "x"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, store.Len())
}

func TestNewIDIsTimeOrdered(t *testing.T) {
	a := chat.NewID()
	b := chat.NewID()
	assert.Less(t, a, b)
}

func TestServiceLifecycle(t *testing.T) {
	svc := chat.NewService(dialog.Options{RevealInterval: time.Millisecond})
	ctx := context.Background()

	d := svc.Create(ctx)
	assert.True(t, d.Snapshot().Open)
	assert.Equal(t, 1, svc.Len())

	got, err := svc.Get(ctx, d.ID())
	require.NoError(t, err)
	assert.Same(t, d, got)

	require.NoError(t, svc.Remove(ctx, d.ID()))
	assert.False(t, d.Snapshot().Open)
	_, err = svc.Get(ctx, d.ID())
	assert.ErrorIs(t, err, chat.ErrDialogNotFound)
	assert.ErrorIs(t, svc.Remove(ctx, d.ID()), chat.ErrDialogNotFound)
}

func TestServiceShutdownClosesAll(t *testing.T) {
	svc := chat.NewService(dialog.Options{RevealInterval: time.Millisecond})
	ctx := context.Background()
	a := svc.Create(ctx)
	b := svc.Create(ctx)

	svc.Shutdown()
	assert.Equal(t, 0, svc.Len())
	assert.False(t, a.Snapshot().Open)
	assert.False(t, b.Snapshot().Open)
}
