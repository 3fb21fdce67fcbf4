package service

import (
	"context"
	"database/sql"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/internal/loyalty"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/raffle"
	"github.com/safar/dropshop/internal/store"
	"go.uber.org/zap"
)

type CreateRaffleRequest struct {
	ProductID    int64
	Name         string
	Description  string
	EntryStart   time.Time
	EntryEnd     time.Time
	DrawAt       time.Time
	MaxEntries   int
	WinnersCount int
}

type EnterRaffleRequest struct {
	SizePreference    string
	ShippingAddressID *int64
}

type DrawResult struct {
	WinnersCount int `json:"winnersCount"`
	TotalEntries int `json:"totalEntries"`
}

type RaffleService struct {
	db  *sql.DB
	now func() time.Time
	rng func() *rand.Rand
}

func NewRaffleService(db *sql.DB) *RaffleService {
	return &RaffleService{db: db, now: time.Now, rng: raffle.NewRand}
}

// WithClock replaces the time source; tests use it to move past entry windows.
func (s *RaffleService) WithClock(now func() time.Time) *RaffleService {
	s.now = now
	return s
}

func (s *RaffleService) WithRand(rng func() *rand.Rand) *RaffleService {
	s.rng = rng
	return s
}

func (s *RaffleService) List(ctx context.Context, status string) ([]models.Raffle, error) {
	switch status {
	case "", models.RaffleStatusActive, models.RaffleStatusDrawn, models.RaffleStatusCompleted, models.RaffleStatusCancelled:
	default:
		return nil, apperr.Validation("unknown raffle status %q", status)
	}
	return store.ListRaffles(ctx, s.db, status)
}

func (s *RaffleService) Get(ctx context.Context, id int64) (*models.Raffle, error) {
	r, err := store.GetRaffle(ctx, s.db, id)
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func (s *RaffleService) Create(ctx context.Context, req CreateRaffleRequest) (*models.Raffle, error) {
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		return nil, apperr.Validation("name is required")
	case !req.EntryEnd.After(req.EntryStart):
		return nil, apperr.Validation("entryEnd must be after entryStart")
	case req.DrawAt.Before(req.EntryEnd):
		return nil, apperr.Validation("drawAt must not be before entryEnd")
	case req.MaxEntries < 1:
		return nil, apperr.Validation("maxEntries must be positive")
	case req.WinnersCount < 1:
		return nil, apperr.Validation("winnersCount must be positive")
	case req.WinnersCount > req.MaxEntries:
		return nil, apperr.Validation("winnersCount cannot exceed maxEntries")
	}

	created, err := store.CreateRaffle(ctx, s.db, store.NewRaffle{
		ProductID:    req.ProductID,
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		EntryStart:   req.EntryStart,
		EntryEnd:     req.EntryEnd,
		DrawAt:       req.DrawAt,
		MaxEntries:   req.MaxEntries,
		WinnersCount: req.WinnersCount,
	})
	if err != nil {
		return nil, translate(err)
	}

	logger.Info("raffle created", zap.Int64("raffle_id", created.ID), zap.Int64("product_id", created.ProductID))
	return created, nil
}

// Enter records the caller's entry with a snapshot of their current tier.
func (s *RaffleService) Enter(ctx context.Context, userID, raffleID int64, req EnterRaffleRequest) (*models.RaffleEntry, error) {
	size := strings.ToUpper(strings.TrimSpace(req.SizePreference))
	if size == "" {
		return nil, apperr.Validation("sizePreference is required")
	}

	if req.ShippingAddressID != nil {
		if _, err := store.GetAddress(ctx, s.db, userID, *req.ShippingAddressID); err != nil {
			return nil, translate(err)
		}
	}

	tier := loyalty.TierStarter
	account, err := store.GetLoyaltyAccount(ctx, s.db, userID)
	switch {
	case err == nil:
		tier = loyalty.Tier(account.Tier)
	case errors.Is(err, database.ErrAccountNotFound):
	default:
		return nil, err
	}

	var entry *models.RaffleEntry
	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		r, err := store.LockRaffle(ctx, tx, raffleID)
		if err != nil {
			return err
		}
		if !r.AcceptingEntries(s.now()) {
			return apperr.Conflict("raffle is not accepting entries")
		}

		if err := s.checkSize(ctx, tx, r.ProductID, size); err != nil {
			return err
		}

		if _, err := store.GetRaffleEntry(ctx, tx, raffleID, userID); err == nil {
			return database.ErrDuplicateEntry
		} else if !errors.Is(err, database.ErrEntryNotFound) {
			return err
		}

		if r.EntryCount >= r.MaxEntries {
			return apperr.Conflict("raffle is full")
		}

		entry, err = store.CreateRaffleEntry(ctx, tx, models.RaffleEntry{
			RaffleID:           raffleID,
			UserID:             userID,
			SizePreference:     size,
			ShippingAddressID:  req.ShippingAddressID,
			Tier:               tier.String(),
			PriorityMultiplier: tier.Multiplier(),
		})
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	return entry, nil
}

// checkSize accepts any size the raffled product is stocked in. Products
// without variants accept any size.
func (s *RaffleService) checkSize(ctx context.Context, db database.DBTX, productID int64, size string) error {
	variants, err := store.ListVariants(ctx, db, productID)
	if err != nil {
		return err
	}
	if len(variants) == 0 {
		return nil
	}
	for _, v := range variants {
		if strings.EqualFold(v.Size, size) {
			return nil
		}
	}
	return apperr.Validation("size %s is not offered for this product", size)
}

// Draw selects winners once. Entries are weighted by their multiplier
// snapshot and every remaining entry is marked lost.
func (s *RaffleService) Draw(ctx context.Context, raffleID int64) (*DrawResult, error) {
	var result *DrawResult

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		r, err := store.LockRaffle(ctx, tx, raffleID)
		if err != nil {
			return err
		}
		if r.Status != models.RaffleStatusActive {
			return apperr.Conflict("raffle already %s", r.Status)
		}
		if s.now().Before(r.EntryEnd) {
			return apperr.Conflict("raffle entry window is still open")
		}

		entries, err := store.ListPendingEntries(ctx, tx, raffleID)
		if err != nil {
			return err
		}

		candidates := make([]raffle.Candidate, len(entries))
		for i, e := range entries {
			candidates[i] = raffle.Candidate{EntryID: e.ID, UserID: e.UserID, Multiplier: e.PriorityMultiplier}
		}
		picked := raffle.Draw(candidates, r.WinnersCount, s.rng())

		won, err := store.MarkEntries(ctx, tx, raffleID, picked.Winners, models.EntryStatusWon)
		if err != nil {
			return err
		}
		if _, err := store.MarkEntries(ctx, tx, raffleID, picked.Losers, models.EntryStatusLost); err != nil {
			return err
		}

		if err := store.SetRaffleStatus(ctx, tx, raffleID, models.RaffleStatusDrawn); err != nil {
			return err
		}

		result = &DrawResult{WinnersCount: int(won), TotalEntries: len(entries)}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	logger.Info("raffle drawn",
		zap.Int64("raffle_id", raffleID),
		zap.Int("winners", result.WinnersCount),
		zap.Int("entries", result.TotalEntries))

	return result, nil
}

// Cancel stops an undrawn raffle.
func (s *RaffleService) Cancel(ctx context.Context, raffleID int64) (*models.Raffle, error) {
	return s.transition(ctx, raffleID, models.RaffleStatusActive, models.RaffleStatusCancelled)
}

// Complete closes a drawn raffle once winners have been fulfilled.
func (s *RaffleService) Complete(ctx context.Context, raffleID int64) (*models.Raffle, error) {
	return s.transition(ctx, raffleID, models.RaffleStatusDrawn, models.RaffleStatusCompleted)
}

func (s *RaffleService) transition(ctx context.Context, raffleID int64, from, to string) (*models.Raffle, error) {
	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		r, err := store.LockRaffle(ctx, tx, raffleID)
		if err != nil {
			return err
		}
		if r.Status != from {
			return apperr.Conflict("cannot move raffle from %s to %s", r.Status, to)
		}
		return store.SetRaffleStatus(ctx, tx, raffleID, to)
	})
	if err != nil {
		return nil, translate(err)
	}

	return s.Get(ctx, raffleID)
}

func (s *RaffleService) MyEntry(ctx context.Context, userID, raffleID int64) (*models.RaffleEntry, error) {
	entry, err := store.GetRaffleEntry(ctx, s.db, raffleID, userID)
	if err != nil {
		return nil, translate(err)
	}
	return entry, nil
}

func (s *RaffleService) MyEntries(ctx context.Context, userID int64) ([]models.RaffleEntry, error) {
	return store.ListUserEntries(ctx, s.db, userID)
}
