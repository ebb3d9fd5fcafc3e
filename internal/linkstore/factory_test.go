package linkstore

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/telemetry"
)

func TestStoreFactory_CreateStore_Memory(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	tel, _ := telemetry.NewTelemetry(logger)
	factory := NewStoreFactory(logger, tel)

	config := StoreConfig{
		DbType:       StoreTypeMemory,
		ExtraDetails: map[string]interface{}{},
	}
	configJSON, _ := json.Marshal(config)

	store, err := factory.CreateStore(string(configJSON))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if store == nil {
		t.Fatalf("expected store, got nil")
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected MemoryStore, got %T", store)
	}
}

func TestStoreFactory_CreateStore_EmptyDefaultsToMemory(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	tel, _ := telemetry.NewTelemetry(logger)
	factory := NewStoreFactory(logger, tel)

	store, err := factory.CreateStore("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected MemoryStore, got %T", store)
	}
}

func TestStoreFactory_CreateStore_UnknownType(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	tel, _ := telemetry.NewTelemetry(logger)
	factory := NewStoreFactory(logger, tel)

	_, err := factory.CreateStore(`{"db_type":"cassandra"}`)
	if err == nil {
		t.Fatalf("expected error for unsupported store type")
	}
}

func TestStoreFactory_CreateStore_PostgresRequiresConnStr(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	tel, _ := telemetry.NewTelemetry(logger)
	factory := NewStoreFactory(logger, tel)

	_, err := factory.CreateStore(`{"db_type":"postgres","extra_details":{}}`)
	if err == nil {
		t.Fatalf("expected error when conn_str is missing")
	}
}
