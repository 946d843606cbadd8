package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hwahn/dilmon/internal/contracts"
)

// FilingRepository implements contracts.FilingRepository.
type FilingRepository struct {
	pool *pgxpool.Pool
}

// NewFilingRepository creates a new filing repository.
func NewFilingRepository(pool *pgxpool.Pool) *FilingRepository {
	return &FilingRepository{pool: pool}
}

// ListBySecurity returns all filings for a security, most recent first.
func (r *FilingRepository) ListBySecurity(ctx context.Context, securityID int64) ([]*contracts.Filing, error) {
	query := `
		SELECT id, security_id, accession_number, filing_type, filed_date,
		       document_url, is_dilution_event, dilution_type, offering_amount
		FROM filings
		WHERE security_id = $1
		ORDER BY filed_date DESC NULLS LAST
	`

	rows, err := r.pool.Query(ctx, query, securityID)
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Filing
	for rows.Next() {
		var f contracts.Filing
		err := rows.Scan(
			&f.ID, &f.SecurityID, &f.AccessionNumber, &f.FilingType, &f.FiledDate,
			&f.DocumentURL, &f.IsDilutionEvent, &f.DilutionType, &f.OfferingAmount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// InsertIfAbsent inserts the filing unless its accession number is
// already stored. The unique constraint is the idempotency guard, so
// concurrent ingestion of the same filing is also safe.
func (r *FilingRepository) InsertIfAbsent(ctx context.Context, f *contracts.Filing) error {
	query := `
		INSERT INTO filings (
			security_id, accession_number, filing_type, filed_date,
			document_url, is_dilution_event, dilution_type, offering_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (accession_number) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		f.SecurityID, f.AccessionNumber, f.FilingType, f.FiledDate,
		f.DocumentURL, f.IsDilutionEvent, f.DilutionType, f.OfferingAmount,
	)
	if err != nil {
		return fmt.Errorf("insert filing %s: %w", f.AccessionNumber, err)
	}
	return nil
}

// Exists reports whether a filing with the accession number is stored.
func (r *FilingRepository) Exists(ctx context.Context, accessionNumber string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM filings WHERE accession_number = $1)`,
		accessionNumber,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("filing exists: %w", err)
	}
	return exists, nil
}
