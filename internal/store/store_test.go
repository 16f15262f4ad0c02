package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "runs.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st, path
}

func testRun(id string, startedAt time.Time, sources ...SourceRun) Run {
	run := Run{ID: id, StartedAt: startedAt, Elapsed: 1500 * time.Millisecond, Sources: sources}
	for _, sr := range sources {
		run.NewEntries += sr.NewEntries
	}
	return run
}

func TestOpenAndMigrate(t *testing.T) {
	st, path := openTestStore(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}

	var version string
	if err := st.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != "2" {
		t.Fatalf("unexpected schema version: %s", version)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	for i := 0; i < 2; i++ {
		st, err := Open(path)
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		_ = st.Close()
	}
}

const schemaV1 = `
CREATE TABLE metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL);
CREATE TABLE runs (id TEXT PRIMARY KEY, started_at TEXT NOT NULL, elapsed_ms INTEGER NOT NULL, new_entries INTEGER NOT NULL);
CREATE TABLE source_runs (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	source TEXT NOT NULL,
	new_entries INTEGER NOT NULL,
	total_entries INTEGER NOT NULL,
	error TEXT,
	elapsed_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, source)
);
INSERT INTO metadata(key, value) VALUES('schema_version', '1');
INSERT INTO runs VALUES('old-run', '2026-02-01T10:00:00.000000000Z', 900, 4);
INSERT INTO source_runs VALUES('old-run', 'official_articles', 4, 12, NULL, 900);
`

func writeLedger(t *testing.T, path, ddl string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(ddl); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
}

func TestOpen_UpgradesVersion1Ledger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	writeLedger(t, path, schemaV1)

	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()

	var version string
	if err := st.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != "2" {
		t.Errorf("schema version = %s, want 2", version)
	}

	ctx := context.Background()
	runs, err := st.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 || len(runs[0].Sources) != 1 || runs[0].Sources[0].TotalEntries != 12 || runs[0].Sources[0].UpdatedEntries != 0 {
		t.Fatalf("old rows not readable after upgrade: %+v", runs)
	}

	next := testRun("new-run", time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC),
		SourceRun{Source: "official_articles", NewEntries: 1, UpdatedEntries: 2, TotalEntries: 13},
	)
	if err := st.RecordRun(ctx, next); err != nil {
		t.Fatalf("record run after upgrade: %v", err)
	}
	runs, err = st.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if runs[0].Sources[0].UpdatedEntries != 2 {
		t.Errorf("updated entries = %d, want 2", runs[0].Sources[0].UpdatedEntries)
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	writeLedger(t, path, `
CREATE TABLE metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL);
INSERT INTO metadata(key, value) VALUES('schema_version', '99');
`)
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for a ledger from a newer version")
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRecordRunAndRecentRuns(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC)
	first := testRun("run-1", t0,
		SourceRun{Source: "official_articles", NewEntries: 3, TotalEntries: 10, Elapsed: time.Second},
		SourceRun{Source: "league_dev_twitter", Error: "twitter: status 429"},
	)
	second := testRun("run-2", t0.Add(time.Hour),
		SourceRun{Source: "official_articles", NewEntries: 1, TotalEntries: 10},
	)

	for _, run := range []Run{first, second} {
		if err := st.RecordRun(ctx, run); err != nil {
			t.Fatalf("record run %s: %v", run.ID, err)
		}
	}

	runs, err := st.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("newest run = %s, want run-2", runs[0].ID)
	}

	got := runs[1]
	if !got.StartedAt.Equal(t0) || got.Elapsed != 1500*time.Millisecond || got.NewEntries != 3 {
		t.Errorf("run-1 = %+v", got)
	}
	if len(got.Sources) != 2 {
		t.Fatalf("run-1 sources = %d, want 2", len(got.Sources))
	}
	// ordered by source name
	if got.Sources[0].Source != "league_dev_twitter" || !got.Sources[0].Failed() {
		t.Errorf("failed source = %+v", got.Sources[0])
	}
	if got.Sources[1].Failed() || got.Sources[1].TotalEntries != 10 || got.Sources[1].Elapsed != time.Second {
		t.Errorf("ok source = %+v", got.Sources[1])
	}

	limited, err := st.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored: got %d runs", len(limited))
	}
}

func TestRecordRun_Validation(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name string
		run  Run
	}{
		{"missing id", Run{StartedAt: now}},
		{"missing start", Run{ID: "x"}},
		{"missing source", Run{ID: "y", StartedAt: now, Sources: []SourceRun{{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := st.RecordRun(ctx, tt.run); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	runs, err := st.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("invalid run left %d rows behind", len(runs))
	}
}

func TestRecordRun_DuplicateID(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	run := testRun("same", time.Now(), SourceRun{Source: "official_youtube"})

	if err := st.RecordRun(ctx, run); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if err := st.RecordRun(ctx, run); err == nil {
		t.Fatal("expected error for duplicate run id")
	}
}

func TestGetSourceStats(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	t0 := time.Now().UTC().Add(-3 * time.Hour)
	runs := []Run{
		testRun("r1", t0, SourceRun{Source: "a", NewEntries: 2}, SourceRun{Source: "b", Error: "boom"}),
		testRun("r2", t0.Add(time.Hour), SourceRun{Source: "a", NewEntries: 5}, SourceRun{Source: "b", NewEntries: 1}),
		testRun("r3", t0.Add(2*time.Hour), SourceRun{Source: "a", Error: "timeout"}),
		testRun("ancient", t0.Add(-30*24*time.Hour), SourceRun{Source: "a", NewEntries: 100}),
	}
	for _, run := range runs {
		if err := st.RecordRun(ctx, run); err != nil {
			t.Fatalf("record run: %v", err)
		}
	}

	stats, err := st.GetSourceStats(ctx, t0.Add(-time.Minute))
	if err != nil {
		t.Fatalf("source stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d sources, want 2", len(stats))
	}

	a, b := stats[0], stats[1]
	if a.Source != "a" || a.Runs != 3 || a.Failures != 1 || a.NewEntries != 7 {
		t.Errorf("a = %+v", a)
	}
	if a.LastError != "timeout" {
		t.Errorf("a last error = %q, want timeout", a.LastError)
	}
	if !a.LastSuccess.Equal(t0.Add(time.Hour)) {
		t.Errorf("a last success = %v, want %v", a.LastSuccess, t0.Add(time.Hour))
	}
	if !a.LastRun.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("a last run = %v", a.LastRun)
	}
	if b.Failures != 1 || b.LastError != "" {
		t.Errorf("b = %+v, want recovered source", b)
	}
}

func TestGetSourceStats_NeverSucceeded(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	if err := st.RecordRun(ctx, testRun("r1", time.Now(), SourceRun{Source: "a", Error: "boom"})); err != nil {
		t.Fatalf("record run: %v", err)
	}

	stats, err := st.GetSourceStats(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("source stats: %v", err)
	}
	if len(stats) != 1 || !stats[0].LastSuccess.IsZero() {
		t.Errorf("stats = %+v, want zero last success", stats)
	}
}

func TestPruneOld(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for _, run := range []Run{
		testRun("old", now.AddDate(0, 0, -100), SourceRun{Source: "a"}),
		testRun("new", now.Add(-time.Hour), SourceRun{Source: "a"}),
	} {
		if err := st.RecordRun(ctx, run); err != nil {
			t.Fatalf("record run: %v", err)
		}
	}

	n, err := st.PruneOld(ctx, 90)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d runs, want 1", n)
	}

	var orphans int
	if err := st.db.QueryRow("SELECT COUNT(*) FROM source_runs WHERE run_id = 'old'").Scan(&orphans); err != nil {
		t.Fatalf("count source runs: %v", err)
	}
	if orphans != 0 {
		t.Errorf("source runs not cascaded: %d left", orphans)
	}
}

func TestPruneOld_ZeroDays(t *testing.T) {
	st, _ := openTestStore(t)

	n, err := st.PruneOld(context.Background(), 0)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 0 {
		t.Errorf("pruned %d, want 0", n)
	}
}

func TestNilStore(t *testing.T) {
	var st *Store
	ctx := context.Background()

	if err := st.Close(); err != nil {
		t.Errorf("close nil store: %v", err)
	}
	if err := st.RecordRun(ctx, Run{}); err == nil {
		t.Error("expected error recording on nil store")
	}
	if _, err := st.RecentRuns(ctx, 1); err == nil {
		t.Error("expected error listing on nil store")
	}
	if _, err := st.GetSourceStats(ctx, time.Time{}); err == nil {
		t.Error("expected error for stats on nil store")
	}
}

func TestFormatTime_SortsAsText(t *testing.T) {
	a := formatTime(time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC))
	b := formatTime(time.Date(2026, 1, 1, 0, 0, 5, 500_000_000, time.UTC))
	if !(a < b) {
		t.Errorf("%q should sort before %q", a, b)
	}
	parsed, err := parseTime(b)
	if err != nil || parsed.Nanosecond() != 500_000_000 {
		t.Errorf("parse %q = %v, %v", b, parsed, err)
	}
}
