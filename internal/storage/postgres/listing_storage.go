package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/models"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ListingStorage mirrors merged listings into a Postgres table, one row per run and name
type ListingStorage struct {
	db     *sql.DB
	table  string
	logger arbor.ILogger
}

// Open connects with the pgx driver, pings, and ensures the listings table exists
func Open(ctx context.Context, config common.PostgresConfig, logger arbor.ILogger) (*ListingStorage, error) {
	db, err := sql.Open("pgx", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store, err := NewListingStorage(db, config.Table, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.EnsureSchema(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().Str("table", store.table).Msg("Postgres listing storage initialized")
	return store, nil
}

// NewListingStorage wraps an open database. table must be a plain identifier.
func NewListingStorage(db *sql.DB, table string, logger arbor.ILogger) (*ListingStorage, error) {
	if table == "" {
		table = "business_listings"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ListingStorage{db: db, table: table, logger: logger}, nil
}

func (s *ListingStorage) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			search_query TEXT NOT NULL,
			website TEXT,
			phone TEXT,
			email TEXT,
			street TEXT,
			city TEXT,
			state TEXT,
			postal_code TEXT,
			review_count INTEGER,
			average_rating DOUBLE PRECISION,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (run_id, name)
		)`, s.table)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *ListingStorage) UpsertListings(ctx context.Context, runID, searchQuery string, listings []models.MergedListing) (err error) {
	if len(listings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (run_id, name, search_query, website, phone, email, street, city, state, postal_code, review_count, average_rating, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id, name) DO UPDATE
		SET
			search_query = EXCLUDED.search_query,
			website = EXCLUDED.website,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			street = EXCLUDED.street,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			postal_code = EXCLUDED.postal_code,
			review_count = EXCLUDED.review_count,
			average_rating = EXCLUDED.average_rating,
			data = EXCLUDED.data,
			updated_at = NOW()`, s.table))
	if err != nil {
		return fmt.Errorf("prepare upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, listing := range listings {
		data, marshalErr := json.Marshal(listing)
		if marshalErr != nil {
			err = fmt.Errorf("marshal listing %q: %w", listing.Detail.Name, marshalErr)
			return err
		}
		d := listing.Detail
		if _, err = stmt.ExecContext(ctx,
			runID,
			d.Name,
			searchQuery,
			d.Website,
			d.Phone,
			listing.Email,
			listing.Address.Street,
			listing.Address.City,
			listing.Address.State,
			listing.Address.PostalCode,
			d.ReviewCount,
			d.AverageRating,
			data,
		); err != nil {
			return fmt.Errorf("upsert listing %q: %w", d.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug().Str("run_id", runID).Int("rows", len(listings)).Msg("Listings upserted")
	return nil
}

func (s *ListingStorage) Close() error {
	return s.db.Close()
}
