package stores

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func strPtr(s string) *string { return &s }

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"runs", "augments", "events"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestRunCRUD tests Run CRUD operations
func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	run := &Run{
		ID:           "run-1",
		ManifestPath: "build.cue",
		Status:       RunStatusRunning,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.ManifestPath != "build.cue" {
		t.Errorf("ManifestPath = %q, want build.cue", got.ManifestPath)
	}
	if got.Status != RunStatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt should be nil for a running run")
	}

	// Attach the finalized environment
	if err := store.SetRunEnvironment(ctx, "run-1", `{"CC":"clang"}`, `["llvm"]`); err != nil {
		t.Fatalf("failed to set run environment: %v", err)
	}

	// Complete the run
	if err := store.UpdateRunStatus(ctx, "run-1", RunStatusCompleted, nil); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != RunStatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set for a completed run")
	}
	if got.Environment == nil || *got.Environment != `{"CC":"clang"}` {
		t.Errorf("Environment = %v, want stored JSON", got.Environment)
	}
	if got.Providers == nil || *got.Providers != `["llvm"]` {
		t.Errorf("Providers = %v, want stored JSON", got.Providers)
	}

	// Delete
	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if _, err := store.GetRun(ctx, "run-1"); err == nil {
		t.Error("expected error for deleted run")
	}
}

// TestRunStatusFailed records the error message
func TestRunStatusFailed(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	run := &Run{
		ID:           "run-fail",
		ManifestPath: "build.cue",
		Status:       RunStatusRunning,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	if err := store.UpdateRunStatus(ctx, "run-fail", RunStatusFailed, strPtr("library 'm' not found")); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	got, err := store.GetRun(ctx, "run-fail")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Error == nil || *got.Error != "library 'm' not found" {
		t.Errorf("Error = %v, want recorded message", got.Error)
	}
}

// TestUpdateMissingRun returns an error for unknown IDs
func TestUpdateMissingRun(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	if err := store.UpdateRunStatus(ctx, "missing", RunStatusCompleted, nil); err == nil {
		t.Error("expected error for missing run")
	}
	if err := store.SetRunEnvironment(ctx, "missing", "{}", "[]"); err == nil {
		t.Error("expected error for missing run")
	}
	if err := store.DeleteRun(ctx, "missing"); err == nil {
		t.Error("expected error for missing run")
	}
}

// TestListRuns tests pagination ordering
func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := &Run{
			ID:           id,
			ManifestPath: "build.cue",
			Status:       RunStatusCompleted,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
			CreatedAt:    base,
			UpdatedAt:    base,
		}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	// Newest first
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("got order %s, %s; want run-c, run-b", runs[0].ID, runs[1].ID)
	}

	runs, err = store.ListRuns(ctx, 2, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-a" {
		t.Errorf("offset page mismatch: %+v", runs)
	}
}

// TestAugmentCRUD tests augment persistence
func TestAugmentCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	run := &Run{
		ID:           "run-1",
		ManifestPath: "build.cue",
		Status:       RunStatusRunning,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	augments := []*Augment{
		{
			ID:        "aug-1",
			RunID:     "run-1",
			SpecName:  "m",
			Kind:      "library",
			Provider:  strPtr("llvm"),
			Component: strPtr("LIBPATH"),
			Status:    AugmentStatusResolved,
			CreatedAt: now,
		},
		{
			ID:        "aug-2",
			RunID:     "run-1",
			SpecName:  "pkg-config",
			Kind:      "program",
			Status:    AugmentStatusRejected,
			Reason:    strPtr("external program 'pkg-config' not found"),
			CreatedAt: now.Add(time.Second),
		},
	}

	for _, a := range augments {
		if err := store.CreateAugment(ctx, a); err != nil {
			t.Fatalf("failed to create augment %s: %v", a.ID, err)
		}
	}

	got, err := store.GetAugment(ctx, "aug-1")
	if err != nil {
		t.Fatalf("failed to get augment: %v", err)
	}
	if got.Provider == nil || *got.Provider != "llvm" {
		t.Errorf("Provider = %v, want llvm", got.Provider)
	}
	if got.Status != AugmentStatusResolved {
		t.Errorf("Status = %q, want resolved", got.Status)
	}

	list, err := store.ListAugmentsByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list augments: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d augments, want 2", len(list))
	}
	if list[0].ID != "aug-1" || list[1].ID != "aug-2" {
		t.Errorf("augments out of order: %s, %s", list[0].ID, list[1].ID)
	}
	if list[1].Reason == nil || *list[1].Reason == "" {
		t.Error("rejected augment should carry a reason")
	}
}

// TestAugmentCascadeDelete verifies augments are removed with their run
func TestAugmentCascadeDelete(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	run := &Run{
		ID:           "run-1",
		ManifestPath: "build.cue",
		Status:       RunStatusCompleted,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	augment := &Augment{
		ID:        "aug-1",
		RunID:     "run-1",
		SpecName:  "m",
		Kind:      "library",
		Status:    AugmentStatusResolved,
		CreatedAt: now,
	}
	if err := store.CreateAugment(ctx, augment); err != nil {
		t.Fatalf("failed to create augment: %v", err)
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	list, err := store.ListAugmentsByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list augments: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected cascade delete, got %d augments", len(list))
	}
}

// TestEventLog tests event appending and filtering
func TestEventLog(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	run := &Run{
		ID:           "run-1",
		ManifestPath: "build.cue",
		Status:       RunStatusRunning,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	events := []*Event{
		{RunID: strPtr("run-1"), Level: EventLevelInfo, Message: "run started", Timestamp: now},
		{RunID: strPtr("run-1"), Level: EventLevelWarning, Message: "check failed", Timestamp: now.Add(time.Second)},
		{RunID: strPtr("run-1"), Level: EventLevelInfo, Message: "run completed", Timestamp: now.Add(2 * time.Second)},
	}

	for _, ev := range events {
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if ev.ID == 0 {
			t.Error("event ID should be assigned on insert")
		}
	}

	all, err := store.GetEvents(ctx, strPtr("run-1"), nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	// Newest first
	if all[0].Message != "run completed" {
		t.Errorf("first event = %q, want 'run completed'", all[0].Message)
	}

	warnLevel := EventLevelWarning
	warnings, err := store.GetEvents(ctx, strPtr("run-1"), &warnLevel, 10, 0)
	if err != nil {
		t.Fatalf("failed to get warnings: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Message != "check failed" {
		t.Errorf("warning filter mismatch: %+v", warnings)
	}
}

// TestTransactions tests transaction support
func TestTransactions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, manifest_path, status, started_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"run-tx", "build.cue", RunStatusPending, now, now, now)
	if err != nil {
		t.Fatalf("failed to insert in transaction: %v", err)
	}

	if err := store.RollbackTx(tx); err != nil {
		t.Fatalf("failed to rollback: %v", err)
	}

	if _, err := store.GetRun(ctx, "run-tx"); err == nil {
		t.Error("rolled back run should not exist")
	}
}
