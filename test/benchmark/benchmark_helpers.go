package benchmark

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/types"
)

// benchStore returns the store benchmarks read from, its key schema,
// and a unique partition value prefix for this run so repeated runs
// against a shared table never collide.
//
// By default everything runs against the in-memory store. Setting
// QUARRY_BENCH_TARGET=dynamodb in the environment or in .env at the
// project root points the execution benchmarks at a live table named
// by QUARRY_BENCH_TABLE, connected through the usual QUARRY_REMOTE_*
// settings.
func benchStore(b *testing.B) (remote.Store, types.KeySchema, string) {
	// Try loading .env from project root (../../.env relative to test/benchmark)
	_ = godotenv.Load("../../.env")

	runPrefix := fmt.Sprintf("bench-%d", time.Now().UnixNano())

	if os.Getenv("QUARRY_BENCH_TARGET") == "dynamodb" {
		table := os.Getenv("QUARRY_BENCH_TABLE")
		if table == "" {
			b.Fatal("QUARRY_BENCH_TABLE is required for dynamodb benchmarks")
		}

		store, err := remote.NewDynamoStore(context.Background(), remote.Options{
			Region:   os.Getenv("QUARRY_REMOTE_REGION"),
			Endpoint: os.Getenv("QUARRY_REMOTE_ENDPOINT"),
			Profile:  os.Getenv("QUARRY_REMOTE_PROFILE"),
		})
		if err != nil {
			b.Fatalf("Failed to connect to DynamoDB: %v", err)
		}

		desc, err := store.DescribeTable(context.Background(), table)
		if err != nil {
			b.Fatalf("Failed to describe benchmark table: %v", err)
		}
		if !desc.Schema.HasSortKey() {
			b.Fatal("benchmark table needs both a partition and a sort key")
		}

		b.Logf("Running benchmarks against DynamoDB table %s prefix %s", table, runPrefix)
		return store, desc.Schema, runPrefix
	}

	store := remote.NewMemoryStore()
	if err := store.CreateTable(eventsDescription()); err != nil {
		b.Fatal(err)
	}
	return store, eventsSchema(), runPrefix
}

// eventsSchema is the key layout of the synthetic events table used by
// in-memory benchmark runs.
func eventsSchema() types.KeySchema {
	return types.KeySchema{
		TableName:     "events",
		PartitionAttr: "tenant_id",
		SortAttr:      "event_id",
		Indexes: []types.IndexDef{
			{
				Name:           "by_time",
				Kind:           types.IndexLocal,
				SortAttr:       "recorded_at",
				FullProjection: true,
			},
		},
	}
}

func eventsDescription() remote.TableDescription {
	return remote.TableDescription{
		Schema: eventsSchema(),
		AttributeKinds: map[string]types.Kind{
			"tenant_id":   types.KindString,
			"event_id":    types.KindString,
			"recorded_at": types.KindNumber,
		},
	}
}

// tenantValue names one seeded partition. Benchmarks address partitions
// through it so live and in-memory runs share the same layout.
func tenantValue(runPrefix string, tenant int) string {
	return fmt.Sprintf("%s-tenant-%03d", runPrefix, tenant)
}

var eventTypes = [...]string{"page_view", "click", "purchase", "signup"}

// generateEvents builds n items for one tenant partition.
func generateEvents(schema types.KeySchema, tenant string, n int) []types.Item {
	items := make([]types.Item, n)
	for i := 0; i < n; i++ {
		items[i] = types.Item{
			schema.PartitionAttr: types.String(tenant),
			schema.SortAttr:      types.String(fmt.Sprintf("evt-%06d", i)),
			"event_type":         types.String(eventTypes[i%len(eventTypes)]),
			"amount":             types.NumberFromInt(int64(i % 500)),
			"recorded_at":        types.NumberFromInt(1700000000 + int64(i)),
		}
	}
	return items
}

// seedEvents writes perTenant items into each of tenants partitions
// and returns the partition values.
func seedEvents(b *testing.B, store remote.Store, schema types.KeySchema, runPrefix string, tenants, perTenant int) []string {
	ctx := context.Background()
	values := make([]string, tenants)
	for t := 0; t < tenants; t++ {
		values[t] = tenantValue(runPrefix, t)
		for _, item := range generateEvents(schema, values[t], perTenant) {
			if err := store.PutItem(ctx, schema.TableName, item); err != nil {
				b.Fatalf("Failed to seed benchmark data: %v", err)
			}
		}
	}
	return values
}
