package store

import (
	"testing"
	"time"
)

func TestHandshakeRepository(t *testing.T) {
	s := newTestStore(t)
	if err := s.Profiles().Save(sampleProfile("p-1")); err != nil {
		t.Fatal(err)
	}
	repo := s.Handshakes()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	failed := &HandshakeRecord{Reason: "low confidence", Samples: 12, CreatedAt: base}
	ok := &HandshakeRecord{ProfileID: "p-1", Succeeded: true, Samples: 40, Scale: 2.1, CreatedAt: base.Add(time.Minute)}

	for _, h := range []*HandshakeRecord{failed, ok} {
		if err := repo.Record(h); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if h.ID == 0 {
			t.Error("Record should set the ID")
		}
	}

	records, err := repo.List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].Succeeded || records[0].ProfileID != "p-1" || records[0].Scale != 2.1 {
		t.Errorf("unexpected newest record %+v", records[0])
	}
	if records[1].Succeeded || records[1].Reason != "low confidence" || records[1].ProfileID != "" {
		t.Errorf("unexpected oldest record %+v", records[1])
	}
	if !records[1].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", records[1].CreatedAt, base)
	}

	limited, err := repo.List(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 record with limit, got %d", len(limited))
	}
}
