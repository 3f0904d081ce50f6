package syncer

import (
	"context"
	"fmt"
	"strconv"

	"clinicsync/internal/database"
	"clinicsync/internal/models"

	"github.com/rs/zerolog"
)

// Registry maps entity types to the handlers that sync them.
type Registry struct {
	handlers map[models.EntityType]Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[models.EntityType]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds or replaces the handler for its entity type.
func (r *Registry) Register(h Handler) {
	r.handlers[h.EntityType()] = h
}

func (r *Registry) Lookup(entityType models.EntityType) (Handler, bool) {
	h, ok := r.handlers[entityType]
	return h, ok
}

// Len returns the number of registered entity types.
func (r *Registry) Len() int {
	return len(r.handlers)
}

// DefaultRegistry wires a handler for every entity type the queues carry.
func DefaultRegistry(logger *zerolog.Logger) *Registry {
	updateOnly := []models.ChangeKind{models.ChangeUpdate}

	return NewRegistry(
		NewStrategy(models.EntityInvoice, Options[models.Invoice]{
			Find:  byID[models.Invoice]("Items", "Allocations"),
			Save:  database.SaveInvoice,
			Adopt: (*models.Invoice).AdoptFrom,
		}, logger),
		NewStrategy(models.EntityOperation, Options[models.Operation]{
			Find:  byID[models.Operation]("Teeth"),
			Save:  database.SaveOperation,
			Adopt: (*models.Operation).AdoptFrom,
		}, logger),
		NewStrategy(models.EntityTreatment, Options[models.Treatment]{
			Find:  byID[models.Treatment]("Teeth"),
			Save:  database.SaveTreatment,
			Adopt: (*models.Treatment).AdoptFrom,
		}, logger),
		NewStrategy(models.EntityPayment, plain[models.Payment](), logger),
		NewStrategy(models.EntityAppointment, plain[models.Appointment](), logger),
		NewStrategy(models.EntityCustomer, plain[models.Customer](), logger),
		NewStrategy(models.EntityUser, plain[models.User](), logger),
		NewStrategy(models.EntityProcedure, plain[models.Procedure](), logger),
		NewStrategy(models.EntityClassType, plain[models.ClassType](), logger),
		NewStrategy(models.EntityMedicalSheet, plain[models.MedicalSheet](), logger),
		NewStrategy(models.EntityRecall, plain[models.Recall](), logger),
		NewStrategy(models.EntityClinic, Options[models.Clinic]{
			Find: findClinic,
			Save: database.Save[models.Clinic],
		}, logger),
		NewStrategy(models.EntityAccount, Options[models.Account]{
			Find:  findAccount,
			Save:  database.Save[models.Account],
			Kinds: updateOnly,
		}, logger),
		NewStrategy(models.EntityAccountSetting, Options[models.AccountSetting]{
			Find:  byID[models.AccountSetting](),
			Save:  database.Save[models.AccountSetting],
			Kinds: updateOnly,
		}, logger),
		NewStrategy(models.EntityClinicSetting, Options[models.ClinicSetting]{
			Find:  byID[models.ClinicSetting](),
			Save:  database.Save[models.ClinicSetting],
			Kinds: updateOnly,
		}, logger),
	)
}

func plain[T any]() Options[T] {
	return Options[T]{Find: byID[T](), Save: database.Save[T]}
}

func byID[T any](preloads ...string) Finder[T] {
	return func(ctx context.Context, db *database.DB, entityID string, tenantID int64) (*T, error) {
		return database.FindByID[T](ctx, db, entityID, tenantID, preloads...)
	}
}

// findAccount ignores the entity id: the account row is the tenant itself.
func findAccount(ctx context.Context, db *database.DB, _ string, tenantID int64) (*models.Account, error) {
	return database.FindAccount(ctx, db, tenantID)
}

func findClinic(ctx context.Context, db *database.DB, entityID string, tenantID int64) (*models.Clinic, error) {
	clinicID, err := strconv.ParseInt(entityID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: clinic id %q", ErrInvalidEntityID, entityID)
	}
	return database.FindClinic(ctx, db, clinicID, tenantID)
}
