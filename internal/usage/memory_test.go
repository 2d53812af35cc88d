package usage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"aiengine/internal/models"
)

func record(provider, feature string, success bool, at time.Time) *models.UsageRecord {
	return &models.UsageRecord{
		ProviderID: provider,
		Capability: "chat",
		Feature:    feature,
		Success:    success,
		CreatedAt:  at,
	}
}

func TestMemoryLedgerRecordAndQuery(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		rec := record("openai", "content_generation", i%2 == 0, base.Add(time.Duration(i)*time.Second))
		if err := ledger.Record(ctx, rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	all, err := ledger.Query(ctx, Filters{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("Expected 5 records, got %d", len(all))
	}

	// Newest first
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Error("Expected records ordered newest first")
		}
	}
}

func TestMemoryLedgerFilters(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()
	base := time.Now()

	ledger.Record(ctx, record("openai", "f", true, base))
	ledger.Record(ctx, record("anthropic", "f", false, base.Add(time.Second)))
	ledger.Record(ctx, record("openai", "f", false, base.Add(2*time.Second)))

	byProvider, err := ledger.Query(ctx, Filters{Provider: "openai"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(byProvider) != 2 {
		t.Errorf("Expected 2 openai records, got %d", len(byProvider))
	}

	failed := false
	bySuccess, err := ledger.Query(ctx, Filters{Success: &failed})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(bySuccess) != 2 {
		t.Errorf("Expected 2 failed records, got %d", len(bySuccess))
	}

	limited, err := ledger.Query(ctx, Filters{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("Expected 1 record with limit, got %d", len(limited))
	}
	if limited[0].ProviderID != "anthropic" {
		t.Errorf("Expected middle record after offset, got %+v", limited[0])
	}
}

func TestMemoryLedgerEvictsOldestBeyondCap(t *testing.T) {
	ledger := NewMemoryLedger(3)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 6; i++ {
		rec := record("openai", fmt.Sprintf("feature_%d", i), true, base.Add(time.Duration(i)*time.Second))
		if err := ledger.Record(ctx, rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	all, err := ledger.Query(ctx, Filters{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected cap of 3 records, got %d", len(all))
	}

	// The three newest survive, oldest first went out.
	for i, expected := range []string{"feature_5", "feature_4", "feature_3"} {
		if all[i].Feature != expected {
			t.Errorf("Expected %s at position %d, got %s", expected, i, all[i].Feature)
		}
	}
}

func TestMemoryLedgerSystemRecordsExemptFromCap(t *testing.T) {
	ledger := NewMemoryLedger(2)
	ctx := context.Background()
	base := time.Now()

	// Oldest records are system bookkeeping.
	ledger.Record(ctx, record("openai", "system.maintenance", true, base))
	ledger.Record(ctx, record("openai", "system.health_check", true, base.Add(time.Second)))

	for i := 0; i < 4; i++ {
		rec := record("openai", fmt.Sprintf("user_%d", i), true, base.Add(time.Duration(i+2)*time.Second))
		ledger.Record(ctx, rec)
	}

	all, err := ledger.Query(ctx, Filters{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	// 2 system + 2 capped user records
	if len(all) != 4 {
		t.Fatalf("Expected 4 records, got %d", len(all))
	}

	system := 0
	for _, rec := range all {
		if rec.IsSystem() {
			system++
		}
	}
	if system != 2 {
		t.Errorf("Expected both system records to survive eviction, got %d", system)
	}
}

func TestMemoryLedgerCopiesOnRead(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()

	ledger.Record(ctx, record("openai", "f", true, time.Now()))

	first, _ := ledger.Query(ctx, Filters{})
	first[0].ProviderID = "mutated"

	second, _ := ledger.Query(ctx, Filters{})
	if second[0].ProviderID != "openai" {
		t.Error("Expected stored record to be isolated from caller mutation")
	}
}
