package linkstore

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/linkstore/postgres"
	"github.com/shaibs3/LinkWatch/internal/telemetry"
)

// StoreType identifies a persistence backend.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypePostgres StoreType = "postgres"
)

func (t StoreType) String() string { return string(t) }

// IsValid checks whether the store type is supported.
func (t StoreType) IsValid() bool {
	return t == StoreTypeMemory || t == StoreTypePostgres
}

// StoreConfig is the JSON provider configuration consumed by the factory.
type StoreConfig struct {
	DbType       StoreType      `json:"db_type"`
	ExtraDetails map[string]any `json:"extra_details"`
}

// ProviderFactory defines the interface for creating link stores.
type ProviderFactory interface {
	CreateStore(configJSON string) (Store, error)
}

// StoreFactory implements ProviderFactory.
type StoreFactory struct {
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
}

func NewStoreFactory(logger *zap.Logger, tel *telemetry.Telemetry) *StoreFactory {
	return &StoreFactory{
		logger:    logger.Named("factory"),
		telemetry: tel,
	}
}

// CreateStore builds the configured backend. An empty configuration defaults
// to the in-memory store.
func (f *StoreFactory) CreateStore(configJSON string) (Store, error) {
	if configJSON == "" {
		f.logger.Info("no store configuration, using in-memory store")
		return NewMemoryStore(), nil
	}

	var cfg StoreConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse store configuration JSON: %w", err)
	}

	if !cfg.DbType.IsValid() {
		return nil, fmt.Errorf("unsupported store type: %s", cfg.DbType)
	}

	f.logger.Info("creating link store", zap.String("db_type", cfg.DbType.String()))

	switch cfg.DbType {
	case StoreTypePostgres:
		connStr, ok := cfg.ExtraDetails["conn_str"].(string)
		if !ok {
			return nil, fmt.Errorf("conn_str is required for the postgres store")
		}
		var meter metric.Meter
		if f.telemetry != nil {
			meter = f.telemetry.Meter
		}
		return postgres.NewStore(connStr, f.logger, meter)
	case StoreTypeMemory:
		f.logger.Info("using in-memory store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.DbType)
	}
}
