// Package app assembles roadguard components from settings for the CLI commands.
package app

import (
	"fmt"

	"github.com/esafety/roadguard/internal/conf"
	"github.com/esafety/roadguard/internal/datastore"
	"github.com/esafety/roadguard/internal/logger"
	"github.com/esafety/roadguard/internal/observability"
	"github.com/esafety/roadguard/internal/validation"
)

// OpenStore opens and migrates the configured database. m may be nil.
func OpenStore(settings *conf.Settings, log logger.Logger, m *observability.Metrics) (datastore.Interface, error) {
	var store datastore.Interface
	var err error
	if m != nil {
		store, err = datastore.New(settings, log, m.Datastore)
	} else {
		store, err = datastore.New(settings, log, nil)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// NewValidationService builds the validation service from the configured policy.
// m may be nil.
func NewValidationService(settings *conf.Settings, store validation.Store, log logger.Logger, m *observability.Metrics, opts ...validation.Option) (*validation.Service, error) {
	policy, err := validation.NewPolicy(settings.Validation)
	if err != nil {
		return nil, err
	}

	all := []validation.Option{validation.WithLogger(log)}
	if m != nil {
		all = append(all, validation.WithMetrics(m.Validation))
	}
	return validation.NewService(store, policy, append(all, opts...)...)
}

// CloseStore closes the store, logging rather than returning failures.
func CloseStore(store datastore.Interface, log logger.Logger) {
	if err := store.Close(); err != nil {
		log.Error("failed to close database", logger.Error(err))
	}
}
