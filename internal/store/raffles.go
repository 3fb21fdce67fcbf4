package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/models"
)

const raffleColumns = `r.id, r.product_id, r.name, r.description, r.entry_start, r.entry_end, r.draw_at,
	r.max_entries, r.winners_count, r.status, r.drawn_at, r.created_at, r.updated_at`

const raffleEntryCount = `(SELECT COUNT(*) FROM raffle_entries e WHERE e.raffle_id = r.id)`

func scanRaffle(row interface{ Scan(...interface{}) error }, r *models.Raffle, extra ...interface{}) error {
	var drawnAt sql.NullTime
	dest := []interface{}{
		&r.ID,
		&r.ProductID,
		&r.Name,
		&r.Description,
		&r.EntryStart,
		&r.EntryEnd,
		&r.DrawAt,
		&r.MaxEntries,
		&r.WinnersCount,
		&r.Status,
		&drawnAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	if drawnAt.Valid {
		r.DrawnAt = &drawnAt.Time
	}
	return nil
}

type NewRaffle struct {
	ProductID    int64
	Name         string
	Description  string
	EntryStart   time.Time
	EntryEnd     time.Time
	DrawAt       time.Time
	MaxEntries   int
	WinnersCount int
}

func CreateRaffle(ctx context.Context, db database.DBTX, nr NewRaffle) (*models.Raffle, error) {
	raffle := &models.Raffle{}

	query := `
		INSERT INTO raffles AS r (product_id, name, description, entry_start, entry_end, draw_at, max_entries, winners_count,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING ` + raffleColumns

	err := scanRaffle(db.QueryRowContext(ctx, query,
		nr.ProductID, nr.Name, nr.Description, nr.EntryStart, nr.EntryEnd, nr.DrawAt,
		nr.MaxEntries, nr.WinnersCount, models.RaffleStatusActive), raffle)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("create raffle: %w", err)
	}

	return raffle, nil
}

func GetRaffle(ctx context.Context, db database.DBTX, id int64) (*models.Raffle, error) {
	raffle := &models.Raffle{}

	query := `SELECT ` + raffleColumns + `, ` + raffleEntryCount + ` FROM raffles r WHERE r.id = $1`

	err := scanRaffle(db.QueryRowContext(ctx, query, id), raffle, &raffle.EntryCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrRaffleNotFound
		}
		return nil, fmt.Errorf("get raffle: %w", err)
	}

	return raffle, nil
}

// LockRaffle holds the raffle row for the rest of tx, which serializes entry
// capacity checks and draws.
func LockRaffle(ctx context.Context, tx *sql.Tx, id int64) (*models.Raffle, error) {
	raffle := &models.Raffle{}

	err := scanRaffle(tx.QueryRowContext(ctx, `SELECT `+raffleColumns+` FROM raffles r WHERE r.id = $1 FOR UPDATE`, id), raffle)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrRaffleNotFound
		}
		if database.IsLockNotAvailable(err) {
			return nil, database.ErrLockTimeout
		}
		return nil, fmt.Errorf("lock raffle: %w", err)
	}

	count, err := CountRaffleEntries(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	raffle.EntryCount = count

	return raffle, nil
}

// ListRaffles returns raffles newest first; an empty status lists all.
func ListRaffles(ctx context.Context, db database.DBTX, status string) ([]models.Raffle, error) {
	var q queryBuilder
	if status != "" {
		q.where("r.status = %s", status)
	}

	query := `SELECT ` + raffleColumns + `, ` + raffleEntryCount + ` FROM raffles r ` + q.whereClause() +
		` ORDER BY r.entry_start DESC, r.id DESC`

	rows, err := db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list raffles: %w", err)
	}
	defer rows.Close()

	raffles := []models.Raffle{}
	for rows.Next() {
		var r models.Raffle
		if err := scanRaffle(rows, &r, &r.EntryCount); err != nil {
			return nil, fmt.Errorf("scan raffle: %w", err)
		}
		raffles = append(raffles, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return raffles, nil
}

func SetRaffleStatus(ctx context.Context, db database.DBTX, id int64, status string) error {
	query := `UPDATE raffles SET status = $1, updated_at = NOW() WHERE id = $2`
	if status == models.RaffleStatusDrawn {
		query = `UPDATE raffles SET status = $1, drawn_at = NOW(), updated_at = NOW() WHERE id = $2`
	}
	return execOne(ctx, db, database.ErrRaffleNotFound, "set raffle status", query, status, id)
}

func CountRaffleEntries(ctx context.Context, db database.DBTX, raffleID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raffle_entries WHERE raffle_id = $1`, raffleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count raffle entries: %w", err)
	}
	return count, nil
}

const raffleEntryColumns = `id, raffle_id, user_id, size_preference, shipping_address_id, tier, priority_multiplier, status, entered_at`

func scanRaffleEntry(row interface{ Scan(...interface{}) error }, e *models.RaffleEntry) error {
	var addressID sql.NullInt64
	err := row.Scan(
		&e.ID,
		&e.RaffleID,
		&e.UserID,
		&e.SizePreference,
		&addressID,
		&e.Tier,
		&e.PriorityMultiplier,
		&e.Status,
		&e.EnteredAt,
	)
	if err != nil {
		return err
	}
	if addressID.Valid {
		e.ShippingAddressID = &addressID.Int64
	}
	return nil
}

// CreateRaffleEntry stores an entry with its tier snapshot. A second entry by
// the same user yields ErrDuplicateEntry.
func CreateRaffleEntry(ctx context.Context, tx *sql.Tx, e models.RaffleEntry) (*models.RaffleEntry, error) {
	entry := &models.RaffleEntry{}

	var addressID sql.NullInt64
	if e.ShippingAddressID != nil {
		addressID = sql.NullInt64{Int64: *e.ShippingAddressID, Valid: true}
	}

	err := scanRaffleEntry(tx.QueryRowContext(ctx,
		`INSERT INTO raffle_entries (raffle_id, user_id, size_preference, shipping_address_id, tier, priority_multiplier, status, entered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING `+raffleEntryColumns,
		e.RaffleID, e.UserID, e.SizePreference, addressID, e.Tier, e.PriorityMultiplier, models.EntryStatusPending), entry)
	if err != nil {
		if database.IsUniqueViolation(err, "raffle_entries_raffle_user_key") {
			return nil, database.ErrDuplicateEntry
		}
		return nil, fmt.Errorf("create raffle entry: %w", err)
	}

	return entry, nil
}

func GetRaffleEntry(ctx context.Context, db database.DBTX, raffleID, userID int64) (*models.RaffleEntry, error) {
	entry := &models.RaffleEntry{}

	err := scanRaffleEntry(db.QueryRowContext(ctx,
		`SELECT `+raffleEntryColumns+` FROM raffle_entries WHERE raffle_id = $1 AND user_id = $2`,
		raffleID, userID), entry)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrEntryNotFound
		}
		return nil, fmt.Errorf("get raffle entry: %w", err)
	}

	return entry, nil
}

func ListUserEntries(ctx context.Context, db database.DBTX, userID int64) ([]models.RaffleEntry, error) {
	return listEntries(ctx, db,
		`SELECT `+raffleEntryColumns+` FROM raffle_entries WHERE user_id = $1 ORDER BY entered_at DESC, id DESC`, userID)
}

// ListPendingEntries returns the entries still eligible for a draw.
func ListPendingEntries(ctx context.Context, db database.DBTX, raffleID int64) ([]models.RaffleEntry, error) {
	return listEntries(ctx, db,
		`SELECT `+raffleEntryColumns+` FROM raffle_entries WHERE raffle_id = $1 AND status = $2 ORDER BY id`,
		raffleID, models.EntryStatusPending)
}

func listEntries(ctx context.Context, db database.DBTX, query string, args ...interface{}) ([]models.RaffleEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list raffle entries: %w", err)
	}
	defer rows.Close()

	entries := []models.RaffleEntry{}
	for rows.Next() {
		var e models.RaffleEntry
		if err := scanRaffleEntry(rows, &e); err != nil {
			return nil, fmt.Errorf("scan raffle entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}

// MarkEntries sets status on the given pending entries of a raffle.
func MarkEntries(ctx context.Context, tx *sql.Tx, raffleID int64, ids []int64, status string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE raffle_entries SET status = $1 WHERE raffle_id = $2 AND status = $3 AND id = ANY($4)`,
		status, raffleID, models.EntryStatusPending, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("mark raffle entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected, nil
}
