package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Seeded master data; every test account registers against this chain.
const (
	SeedDistrictID int64 = 1
	SeedTalukaID   int64 = 1
	SeedVillageID  int64 = 1

	SeedAdminEmail    = "admin@gujaratclassified.test"
	SeedAdminPassword = "admin-pass-123"
)

// TruncateAuthTables truncates auth-related tables for a clean test state.
func TruncateAuthTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE refresh_sessions, otp_codes, users, admins CASCADE")
	if err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}

// SeedFixtures inserts the location chain and one active admin.
func SeedFixtures(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`INSERT INTO districts (id, name) VALUES (1, 'Ahmedabad') ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO talukas (id, district_id, name) VALUES (1, 1, 'Daskroi') ON CONFLICT (id) DO NOTHING`,
		`INSERT INTO villages (id, taluka_id, name) VALUES (1, 1, 'Bopal') ON CONFLICT (id) DO NOTHING`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("seed locations: %w", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(SeedAdminPassword), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO admins (id, email, name, password_hash, is_active, created_at)
		VALUES ($1, $2, 'Test Admin', $3, true, now())
	`, uuid.New(), SeedAdminEmail, string(hash))
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}
