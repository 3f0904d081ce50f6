package database

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"clinicsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMissingKey is returned when a record without a primary key is saved.
var ErrMissingKey = errors.New("record has no primary key")

// FindByID loads a uuid-keyed record of one tenant. Absent records return nil, nil.
func FindByID[T any](ctx context.Context, db *DB, id string, tenantID int64, preloads ...string) (*T, error) {
	return findOne[T](ctx, db, preloads, "id = ? AND account_id = ?", id, tenantID)
}

// FindAccount loads the tenant's own account row.
func FindAccount(ctx context.Context, db *DB, tenantID int64) (*models.Account, error) {
	return findOne[models.Account](ctx, db, nil, "account_id = ?", tenantID)
}

func FindClinic(ctx context.Context, db *DB, clinicID, tenantID int64) (*models.Clinic, error) {
	return findOne[models.Clinic](ctx, db, nil, "clinic_id = ? AND account_id = ?", clinicID, tenantID)
}

func findOne[T any](ctx context.Context, db *DB, preloads []string, where string, args ...interface{}) (*T, error) {
	var rec T
	q := db.orm.WithContext(ctx)
	for _, p := range preloads {
		q = q.Preload(p)
	}
	err := q.Where(where, args...).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %T from %s store: %w", rec, db.side, err)
	}
	return &rec, nil
}

// Save writes a record of one tenant. An existing row is updated only when it
// belongs to tenantID; otherwise the record is inserted, and a primary key held
// by another tenant fails the insert instead of being taken over.
// Child collections are left alone.
func Save[T any](ctx context.Context, db *DB, tenantID int64, rec *T) error {
	err := db.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveScoped(tx, tenantID, rec)
	})
	if err != nil {
		return fmt.Errorf("failed to save %T to %s store: %w", rec, db.side, err)
	}
	return nil
}

func saveScoped(tx *gorm.DB, tenantID int64, rec interface{}) error {
	// an empty key would turn the scoped update into one over the whole tenant
	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(rec); err != nil {
		return err
	}
	if pk := stmt.Schema.PrioritizedPrimaryField; pk != nil {
		if _, zero := pk.ValueOf(tx.Statement.Context, reflect.Indirect(reflect.ValueOf(rec))); zero {
			return ErrMissingKey
		}
	}

	res := tx.Model(rec).
		Where("account_id = ?", tenantID).
		Select("*").
		Omit(clause.Associations).
		Updates(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return tx.Omit(clause.Associations).Create(rec).Error
}

// SaveInvoice upserts the invoice and replaces its items and allocations.
func SaveInvoice(ctx context.Context, db *DB, tenantID int64, inv *models.Invoice) error {
	return db.saveAggregate(ctx, tenantID, inv, func(tx *gorm.DB) error {
		if err := ReplaceChildren(tx, "invoice_id", inv.ID, inv.Items); err != nil {
			return err
		}
		return ReplaceChildren(tx, "invoice_id", inv.ID, inv.Allocations)
	})
}

func SaveOperation(ctx context.Context, db *DB, tenantID int64, op *models.Operation) error {
	return db.saveAggregate(ctx, tenantID, op, func(tx *gorm.DB) error {
		return ReplaceChildren(tx, "operation_id", op.ID, op.Teeth)
	})
}

func SaveTreatment(ctx context.Context, db *DB, tenantID int64, tr *models.Treatment) error {
	return db.saveAggregate(ctx, tenantID, tr, func(tx *gorm.DB) error {
		return ReplaceChildren(tx, "treatment_id", tr.ID, tr.Teeth)
	})
}

func (db *DB) saveAggregate(ctx context.Context, tenantID int64, parent interface{}, replace func(tx *gorm.DB) error) error {
	err := db.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveScoped(tx, tenantID, parent); err != nil {
			return err
		}
		return replace(tx)
	})
	if err != nil {
		return fmt.Errorf("failed to save %T to %s store: %w", parent, db.side, err)
	}
	return nil
}

// ReplaceChildren substitutes the whole child collection of one parent: every
// stored row for the parent is deleted and the given rows are inserted.
// Rows missing from children are removed, never left orphaned.
func ReplaceChildren[C any](tx *gorm.DB, fkColumn, parentID string, children []C) error {
	var zero C
	if err := tx.Where(fkColumn+" = ?", parentID).Delete(&zero).Error; err != nil {
		return fmt.Errorf("failed to clear %T rows: %w", zero, err)
	}
	if len(children) == 0 {
		return nil
	}
	if err := tx.Create(&children).Error; err != nil {
		return fmt.Errorf("failed to insert %T rows: %w", zero, err)
	}
	return nil
}
