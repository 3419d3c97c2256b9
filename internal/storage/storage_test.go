package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "signalgen/pkg/logx"
)

func openTestStore(t *testing.T, driver string) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history", "fires.db")
	st, err := Open(Config{Driver: driver, Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if st != nil || err != nil {
			t.Fatalf("driver %q: st=%v err=%v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("file driver without path accepted")
	}
	if !ValidDriver("SQLite") || ValidDriver("redis") {
		t.Fatalf("ValidDriver mismatch")
	}
}

func TestStoreDrivers(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openTestStore(t, driver)
			ctx := context.Background()

			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				sig := "minute"
				if i%2 == 1 {
					sig = "second"
				}
				at := base.Add(time.Duration(i) * time.Minute)
				err := st.AppendFire(ctx, FireRecord{
					RunID:      "run-1",
					Signal:     sig,
					Step:       int64(100 + i),
					Boundary:   at.Add(10 * time.Millisecond),
					At:         at,
					LatenessMS: -10,
					Notified:   i,
				})
				if err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
			}

			got, err := st.RecentFires(ctx, "minute", 2)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(got) != 2 || got[0].Step != 104 || got[1].Step != 102 {
				t.Fatalf("recent minute=%+v", got)
			}
			if got[0].ID == "" || got[0].RunID != "run-1" || got[0].LatenessMS != -10 || got[0].Notified != 4 {
				t.Fatalf("record fields lost: %+v", got[0])
			}
			if !got[0].At.Equal(base.Add(4 * time.Minute)) {
				t.Fatalf("at=%v", got[0].At)
			}

			all, err := st.RecentFires(ctx, "", 10)
			if err != nil || len(all) != 5 {
				t.Fatalf("all=%d err=%v", len(all), err)
			}
			if none, _ := st.RecentFires(ctx, "minute", 0); len(none) != 0 {
				t.Fatalf("limit 0 returned %d", len(none))
			}

			n, err := st.PruneBefore(ctx, base.Add(2*time.Minute))
			if err != nil || n != 2 {
				t.Fatalf("prune n=%d err=%v", n, err)
			}
			all, _ = st.RecentFires(ctx, "", 10)
			if len(all) != 3 || all[len(all)-1].Step != 102 {
				t.Fatalf("after prune=%+v", all)
			}

			// Appends keep working after a prune rewrote the file.
			if err := st.AppendFire(ctx, FireRecord{Signal: "second", Step: 200, At: base.Add(time.Hour)}); err != nil {
				t.Fatalf("append after prune: %v", err)
			}
			latest, _ := st.RecentFires(ctx, "second", 1)
			if len(latest) != 1 || latest[0].Step != 200 {
				t.Fatalf("latest=%+v", latest)
			}
		})
	}
}

func TestFileStoreSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "fires.db")
	if err := os.WriteFile(filepath.Join(dir, "fires.fires.jsonl"), []byte("{not json\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	if err := st.AppendFire(context.Background(), FireRecord{Signal: "a", Step: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := st.RecentFires(context.Background(), "a", 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("got=%v err=%v", got, err)
	}

	_ = st.Close()
	if err := st.AppendFire(context.Background(), FireRecord{Signal: "a"}); err != ErrClosed {
		t.Fatalf("append after close err=%v", err)
	}
}
