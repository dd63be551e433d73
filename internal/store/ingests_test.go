package store

import (
	"fmt"
	"testing"
	"time"
)

func TestRecordAndGetIngest(t *testing.T) {
	st, ctx := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	user := createTestUser(t, st, ctx, "alice", now)

	rec := &IngestRecord{
		UserID:    user.ID,
		Username:  user.Username,
		Namespace: "scf",
		Overall:   "partial_failure",
		CreatedAt: now,
		Parts: []IngestPartRecord{
			{Slot: "product", Status: "stored", StorageKey: "scf/product.xlsx", Filename: "product.xlsx", SizeBytes: 42},
			{Slot: "order_header", Status: "failed", Reason: "storage error: network error", Filename: "oh.xlsx", SizeBytes: 7},
		},
	}
	if err := st.RecordIngest(ctx, rec); err != nil {
		t.Fatalf("record ingest: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := st.GetIngest(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get ingest: %v", err)
	}
	if got == nil {
		t.Fatal("expected ingest")
	}
	if got.Overall != "partial_failure" || got.Username != "alice" || got.UserID != user.ID {
		t.Fatalf("unexpected ingest %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, now)
	}
	if len(got.Parts) != 2 || got.Parts[0].Slot != "product" || got.Parts[1].Slot != "order_header" {
		t.Fatalf("parts out of order: %+v", got.Parts)
	}
	if got.Parts[0].SizeBytes != 42 || got.Parts[1].Reason == "" {
		t.Fatalf("part fields not persisted: %+v", got.Parts)
	}

	missing, err := st.GetIngest(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown ingest, got %+v, %v", missing, err)
	}
}

func TestRecordIngestValidation(t *testing.T) {
	st, ctx := openTestStore(t)
	if err := st.RecordIngest(ctx, nil); err == nil {
		t.Fatal("expected error for nil record")
	}
	if err := st.RecordIngest(ctx, &IngestRecord{Username: "x"}); err == nil {
		t.Fatal("expected error for missing overall")
	}
}

func TestListIngestsNewestFirstAndFiltered(t *testing.T) {
	st, ctx := openTestStore(t)
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	alice := createTestUser(t, st, ctx, "alice", base)
	bob := createTestUser(t, st, ctx, "bob", base)

	for i := 0; i < 4; i++ {
		owner := alice
		if i%2 == 1 {
			owner = bob
		}
		rec := &IngestRecord{
			ID:        fmt.Sprintf("ing-%d", i),
			UserID:    owner.ID,
			Username:  owner.Username,
			Overall:   "all_stored",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Parts:     []IngestPartRecord{{Slot: "product", Status: "stored", StorageKey: "product.xlsx"}},
		}
		if err := st.RecordIngest(ctx, rec); err != nil {
			t.Fatalf("record ingest %d: %v", i, err)
		}
	}

	all, err := st.ListIngests(ctx, IngestFilter{})
	if err != nil {
		t.Fatalf("list ingests: %v", err)
	}
	if len(all) != 4 || all[0].ID != "ing-3" || all[3].ID != "ing-0" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	for _, rec := range all {
		if len(rec.Parts) != 1 {
			t.Fatalf("expected parts loaded for %s", rec.ID)
		}
	}

	mine, err := st.ListIngests(ctx, IngestFilter{UserID: alice.ID, Limit: 1})
	if err != nil {
		t.Fatalf("list alice ingests: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "ing-2" {
		t.Fatalf("expected alice's latest ingest, got %+v", mine)
	}
}

func TestDeletedUserKeepsLedger(t *testing.T) {
	st, ctx := openTestStore(t)
	now := time.Now()
	user := createTestUser(t, st, ctx, "carol", now)

	rec := &IngestRecord{UserID: user.ID, Username: user.Username, Overall: "rejected"}
	if err := st.RecordIngest(ctx, rec); err != nil {
		t.Fatalf("record ingest: %v", err)
	}
	if _, err := st.DeleteUser(ctx, "carol"); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	got, err := st.GetIngest(ctx, rec.ID)
	if err != nil || got == nil {
		t.Fatalf("get ingest after delete: %+v, %v", got, err)
	}
	if got.UserID != "" || got.Username != "carol" {
		t.Fatalf("expected user_id cleared and username kept, got %+v", got)
	}
}
