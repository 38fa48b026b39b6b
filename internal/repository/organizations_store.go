package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/audi0417/Patient-CRM-sub002/internal/tenant"
)

// PostgresOrganizationStore 机构表读取
type PostgresOrganizationStore struct {
	db *sql.DB
}

func NewPostgresOrganizationStore(db *sql.DB) *PostgresOrganizationStore {
	return &PostgresOrganizationStore{db: db}
}

// OrganizationByID 按主键读取机构，不存在返回 (nil, nil)
func (s *PostgresOrganizationStore) OrganizationByID(ctx context.Context, id string) (*tenant.Organization, error) {
	query := `
		SELECT "id", "name", "plan", "isActive",
		       COALESCE("maxUsers", 0), COALESCE("maxPatients", 0)
		FROM "organizations"
		WHERE "id" = $1`

	org := &tenant.Organization{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Plan,
		&org.IsActive,
		&org.Limits.MaxUsers,
		&org.Limits.MaxPatients,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load organization %s: %w", id, err)
	}
	return org, nil
}
