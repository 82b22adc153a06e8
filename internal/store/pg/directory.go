package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mk-162/fixMate/internal/store"
)

// TenantDirectory implements store.TenantDirectory on Postgres.
type TenantDirectory struct {
	db *sql.DB
}

func NewTenantDirectory(db *sql.DB) *TenantDirectory {
	return &TenantDirectory{db: db}
}

const tenantColumns = `t.id, t.name, t.phone, t.property_id, p.name, t.is_active, t.created_at, t.updated_at`

func (d *TenantDirectory) Get(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants t JOIN properties p ON p.id = t.property_id
		 WHERE t.id = $1`, id)
	return scanTenant(row)
}

func (d *TenantDirectory) ByPhone(ctx context.Context, raw, normalized string) (*store.Tenant, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants t JOIN properties p ON p.id = t.property_id
		 WHERE t.is_active AND t.phone IN ($1, $2)
		 LIMIT 1`, raw, normalized)
	return scanTenant(row)
}

func (d *TenantDirectory) Create(ctx context.Context, name, phone string, propertyID uuid.UUID) (*store.Tenant, error) {
	tenant := &store.Tenant{
		ID:         store.GenNewID(),
		Name:       name,
		Phone:      phone,
		PropertyID: propertyID,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, phone, property_id, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $6)`,
		tenant.ID, name, phone, propertyID, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return tenant, nil
}

func scanTenant(row *sql.Row) (*store.Tenant, error) {
	var tenant store.Tenant
	err := row.Scan(&tenant.ID, &tenant.Name, &tenant.Phone, &tenant.PropertyID,
		&tenant.PropertyName, &tenant.Active, &tenant.CreatedAt, &tenant.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// PropertyDirectory implements store.PropertyDirectory on Postgres.
type PropertyDirectory struct {
	db *sql.DB
}

func NewPropertyDirectory(db *sql.DB) *PropertyDirectory {
	return &PropertyDirectory{db: db}
}

func (d *PropertyDirectory) Get(ctx context.Context, id uuid.UUID) (*store.Property, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, address, created_at FROM properties WHERE id = $1`, id)

	var prop store.Property
	err := row.Scan(&prop.ID, &prop.Name, &prop.Address, &prop.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &prop, nil
}

func (d *PropertyDirectory) List(ctx context.Context, limit int) ([]store.Property, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, address, created_at FROM properties ORDER BY name LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var properties []store.Property
	for rows.Next() {
		var prop store.Property
		if err := rows.Scan(&prop.ID, &prop.Name, &prop.Address, &prop.CreatedAt); err != nil {
			return nil, err
		}
		properties = append(properties, prop)
	}
	return properties, rows.Err()
}

func (d *PropertyDirectory) Create(ctx context.Context, name, address string) (*store.Property, error) {
	prop := &store.Property{
		ID:        store.GenNewID(),
		Name:      name,
		Address:   address,
		CreatedAt: time.Now().UTC(),
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO properties (id, name, address, created_at) VALUES ($1, $2, $3, $4)`,
		prop.ID, name, address, prop.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert property: %w", err)
	}
	return prop, nil
}
