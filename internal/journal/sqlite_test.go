//go:build sqlite

package journal

import (
	"context"
	"path/filepath"
	"testing"

	logx "crontick/pkg/logx"
)

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "journal.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	for _, name := range []string{"a", "b", "c"} {
		if err := st.Append(ctx, Entry{Trigger: name, Kind: KindFired, Calendar: "2024-03-01 12:00:00"}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}
	got, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(got) != 2 || got[0].Trigger != "c" || got[1].Trigger != "b" {
		t.Fatalf("Recent = %+v", got)
	}
	if got[0].At.IsZero() || got[0].Detail != "" {
		t.Fatalf("entry = %+v", got[0])
	}
}
