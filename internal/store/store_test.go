package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fluxcheck/internal/store"
	"fluxcheck/internal/testsupport"
	"fluxcheck/internal/track"
)

func fixedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestAddAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	st := testsupport.MustOpenStore(t, cfg, store.WithClock(clock))
	ctx := context.Background()

	pass := &store.Record{Image: "/images/a.ipf", Cylinder: 0, Head: 0, Capture: "/caps/a.flux", Matched: true, Ranges: 11, Checked: 11}
	fail := &store.Record{
		Image: "/images/b.ipf", ImageDigest: "abc", Cylinder: 40, Head: 1, Capture: "/caps/b.flux",
		Ranges: 11, Checked: 3, Failed: &track.Range{Start: 4096, Length: 8192},
	}
	for _, rec := range []*store.Record{pass, fail} {
		if err := st.Add(ctx, rec); err != nil {
			t.Fatalf("Add: %v", err)
		}
		if rec.ID == "" || rec.CreatedAt.IsZero() {
			t.Fatalf("expected id and timestamp to be assigned: %+v", rec)
		}
	}

	records, err := st.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	got := records[0]
	if got.ID != fail.ID {
		t.Fatalf("expected newest record first, got %s", got.ID)
	}
	if got.Matched || got.Checked != 3 || got.ImageDigest != "abc" {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Failed == nil || *got.Failed != (track.Range{Start: 4096, Length: 8192}) {
		t.Fatalf("unexpected failed range %v", got.Failed)
	}
	if !got.CreatedAt.Equal(fail.CreatedAt) {
		t.Fatalf("created_at round trip: got %v want %v", got.CreatedAt, fail.CreatedAt)
	}
	if records[1].Failed != nil || !records[1].Matched {
		t.Fatalf("unexpected passing record %+v", records[1])
	}

	limited, err := st.List(ctx, 1)
	if err != nil {
		t.Fatalf("List limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 record, got %d", len(limited))
	}

	byImage, err := st.ByImage(ctx, "/images/a.ipf", 0)
	if err != nil {
		t.Fatalf("ByImage: %v", err)
	}
	if len(byImage) != 1 || byImage[0].ID != pass.ID {
		t.Fatalf("unexpected ByImage result %+v", byImage)
	}
}

func TestWriterLockIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := testsupport.MustOpenStore(t, cfg)

	if _, err := store.Open(cfg); !errors.Is(err, store.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	reader := testsupport.MustOpenStore(t, cfg, store.ReadOnly())
	if err := reader.Add(context.Background(), &store.Record{Image: "x"}); err == nil {
		t.Fatal("expected read-only store to reject Add")
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("expected lock to be free after Close: %v", err)
	}
	_ = second.Close()
}

func TestReopenKeepsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Add(context.Background(), &store.Record{Image: "/images/a.ipf", Capture: "c"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg, store.ReadOnly())
	records, err := reopened.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected record to survive reopen, got %d", len(records))
	}
}

func TestAddRequiresImage(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if err := st.Add(context.Background(), &store.Record{}); err == nil {
		t.Fatal("expected error for missing image")
	}
	if err := st.Add(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}
