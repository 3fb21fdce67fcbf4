package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/database"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/store"
)

type AddressService struct {
	db *sql.DB
}

func NewAddressService(db *sql.DB) *AddressService {
	return &AddressService{db: db}
}

func (s *AddressService) List(ctx context.Context, userID int64) ([]models.Address, error) {
	return store.ListAddresses(ctx, s.db, userID)
}

// Create stores an address. A new default replaces the previous one.
func (s *AddressService) Create(ctx context.Context, userID int64, a models.Address) (*models.Address, error) {
	a.UserID = userID
	a.FullName = strings.TrimSpace(a.FullName)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))

	if a.FullName == "" || a.Line1 == "" || a.City == "" || a.PostalCode == "" || a.Country == "" {
		return nil, apperr.Validation("fullName, line1, city, postalCode and country are required")
	}

	var created *models.Address
	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		created, err = store.CreateAddress(ctx, tx, a)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *AddressService) Delete(ctx context.Context, userID, id int64) error {
	return translate(store.DeleteAddress(ctx, s.db, userID, id))
}
