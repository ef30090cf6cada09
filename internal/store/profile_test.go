package store

import (
	"errors"
	"testing"
	"time"

	"github.com/ayusman/vtrack/internal/calibration"
	"github.com/ayusman/vtrack/internal/pose"
	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func sampleProfile(id string) calibration.Profile {
	p := calibration.Default()
	p.ID = id
	p.Name = "living room"
	p.Version = 7
	p.Offset = r3.Vec{X: 0.1, Y: 0.95, Z: -0.3}
	p.Rotation = pose.AxisAngle(r3.Vec{Y: 1}, 0.4)
	p.Scale = 2.25
	p.UpdatedAt = time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)
	return p
}

func TestProfileRepository_LoadEmpty(t *testing.T) {
	s := newTestStore(t)

	p, err := s.Profiles().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p != nil {
		t.Errorf("expected no profile, got %+v", p)
	}
}

func TestProfileRepository_SaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	want := sampleProfile("p-1")
	if err := repo.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatal("expected a profile after save")
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestProfileRepository_SaveUpdates(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	p := sampleProfile("p-1")
	if err := repo.Save(p); err != nil {
		t.Fatal(err)
	}
	p.Version++
	p.Scale = 1.5
	p.Rotation = quat.Number{Real: 1}
	delete(p.Roles, pose.Head)
	if err := repo.Save(p); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetByID("p-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 8 || got.Scale != 1.5 {
		t.Errorf("expected updated version and scale, got %d %v", got.Version, got.Scale)
	}
	if _, ok := got.Roles[pose.Head]; ok {
		t.Error("removed role came back")
	}

	all, err := repo.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected a single stored profile, got %d", len(all))
	}
}

func TestProfileRepository_ActiveFollowsLastSave(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	a := sampleProfile("a")
	b := sampleProfile("b")
	b.UpdatedAt = a.UpdatedAt.Add(time.Minute)
	if err := repo.Save(a); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(b); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "b" {
		t.Errorf("expected active profile b, got %s", got.ID)
	}

	all, err := repo.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != "b" {
		t.Errorf("expected newest first, got %d profiles", len(all))
	}

	if err := repo.Delete("b"); !errors.Is(err, ErrActiveProfile) {
		t.Errorf("deleting the active profile: expected ErrActiveProfile, got %v", err)
	}
	if err := repo.Delete("a"); err != nil {
		t.Errorf("Delete(a) error = %v", err)
	}
	if err := repo.Delete("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProfileRepository_GetByIDNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Profiles().GetByID("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProfileRepository_CalibrationStore(t *testing.T) {
	s := newTestStore(t)

	cal := calibration.NewStore(s.Profiles(), calibration.DefaultHandshakeConfig())
	applied, err := cal.Apply(calibration.Delta{Offset: r3.Vec{Y: 0.1}, Yaw: 15})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := cal.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded := calibration.NewStore(s.Profiles(), calibration.DefaultHandshakeConfig())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(applied, reloaded.Get()); diff != "" {
		t.Errorf("reloaded profile mismatch (-want +got):\n%s", diff)
	}
}
