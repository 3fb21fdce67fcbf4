package service

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/loyalty"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRaffle(t *testing.T, e *env, winners, maxEntries int) *models.Raffle {
	t.Helper()

	p, _ := e.product(t, "250.00", 20, "S", "M", "L")
	now := time.Now()

	r, err := e.raffles.Create(context.Background(), CreateRaffleRequest{
		ProductID:    p.ID,
		Name:         "Spring Drop",
		EntryStart:   now.Add(-time.Hour),
		EntryEnd:     now.Add(time.Hour),
		DrawAt:       now.Add(2 * time.Hour),
		MaxEntries:   maxEntries,
		WinnersCount: winners,
	})
	require.NoError(t, err)
	return r
}

func TestRaffleEntrySnapshotsTier(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := openRaffle(t, e, 1, 10)

	elite := e.register(t)
	_, err := e.loyalty.Award(ctx, elite.ID, loyalty.SourceBonus, loyalty.EliteThreshold, "")
	require.NoError(t, err)

	entry, err := e.raffles.Enter(ctx, elite.ID, r.ID, EnterRaffleRequest{SizePreference: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ELITE", entry.Tier)
	assert.Equal(t, 5, entry.PriorityMultiplier)
	assert.Equal(t, "M", entry.SizePreference)

	_, err = e.raffles.Enter(ctx, elite.ID, r.ID, EnterRaffleRequest{SizePreference: "L"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	starter := e.register(t)
	entry, err = e.raffles.Enter(ctx, starter.ID, r.ID, EnterRaffleRequest{SizePreference: "S"})
	require.NoError(t, err)
	assert.Equal(t, "STARTER", entry.Tier)
	assert.Equal(t, 1, entry.PriorityMultiplier)

	other := e.register(t)
	_, err = e.raffles.Enter(ctx, other.ID, r.ID, EnterRaffleRequest{SizePreference: "XXL"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRaffleRejectsOutsideWindowAndWhenFull(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := openRaffle(t, e, 1, 1)

	first := e.register(t)
	_, err := e.raffles.Enter(ctx, first.ID, r.ID, EnterRaffleRequest{SizePreference: "M"})
	require.NoError(t, err)

	second := e.register(t)
	_, err = e.raffles.Enter(ctx, second.ID, r.ID, EnterRaffleRequest{SizePreference: "M"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	late := e.raffles.WithClock(func() time.Time { return r.EntryEnd })
	_, err = late.Enter(ctx, e.register(t).ID, r.ID, EnterRaffleRequest{SizePreference: "M"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestRaffleDraw(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := openRaffle(t, e, 3, 50)

	var users []int64
	for i := 0; i < 10; i++ {
		u := e.register(t)
		if i < 2 {
			_, err := e.loyalty.Award(ctx, u.ID, loyalty.SourceBonus, loyalty.EliteThreshold, "")
			require.NoError(t, err)
		}
		_, err := e.raffles.Enter(ctx, u.ID, r.ID, EnterRaffleRequest{SizePreference: "M"})
		require.NoError(t, err)
		users = append(users, u.ID)
	}

	_, err := e.raffles.Draw(ctx, r.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "draw before entries close")

	e.raffles.
		WithClock(func() time.Time { return r.EntryEnd.Add(time.Minute) }).
		WithRand(func() *rand.Rand { return rand.New(rand.NewPCG(7, 11)) })

	res, err := e.raffles.Draw(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.WinnersCount)
	assert.Equal(t, 10, res.TotalEntries)

	won, lost := 0, 0
	for _, id := range users {
		entry, err := e.raffles.MyEntry(ctx, id, r.ID)
		require.NoError(t, err)
		switch entry.Status {
		case models.EntryStatusWon:
			won++
		case models.EntryStatusLost:
			lost++
		default:
			t.Errorf("entry %d still %s after draw", entry.ID, entry.Status)
		}
	}
	assert.Equal(t, 3, won)
	assert.Equal(t, 7, lost)

	drawn, err := e.raffles.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaffleStatusDrawn, drawn.Status)
	assert.NotNil(t, drawn.DrawnAt)

	_, err = e.raffles.Draw(ctx, r.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "re-draw must be rejected")

	_, err = e.raffles.Cancel(ctx, r.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	completed, err := e.raffles.Complete(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaffleStatusCompleted, completed.Status)
}

func TestRaffleCreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p, _ := e.product(t, "100.00", 1)
	now := time.Now()

	_, err := e.raffles.Create(ctx, CreateRaffleRequest{
		ProductID: p.ID, Name: "Bad", EntryStart: now, EntryEnd: now.Add(-time.Minute), DrawAt: now,
		MaxEntries: 10, WinnersCount: 1,
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = e.raffles.Create(ctx, CreateRaffleRequest{
		ProductID: 999999, Name: "Missing", EntryStart: now, EntryEnd: now.Add(time.Hour), DrawAt: now.Add(time.Hour),
		MaxEntries: 10, WinnersCount: 1,
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	entries, err := store.ListRaffles(ctx, e.db, "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
