package services

import (
	"context"
	"testing"
	"time"

	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
)

func TestFindCandidatesRanksByDistance(t *testing.T) {
	point := domain.Coordinates{Lat: 24.7100, Lon: 46.6740}
	near := testDriver("near", 24.7150, 46.6740)
	far := testDriver("far", 24.7300, 46.6740)
	env := newDispatchEnv(testConfig(), []*domain.Driver{far, near}, nil)

	got, err := env.directory.FindCandidates(context.Background(), point, DirectoryFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if got[0].Driver.ID != "near" || got[1].Driver.ID != "far" {
		t.Fatalf("order = [%s %s], want [near far]", got[0].Driver.ID, got[1].Driver.ID)
	}
	if got[0].DistanceKm >= got[1].DistanceKm {
		t.Fatalf("distances not ascending: %f >= %f", got[0].DistanceKm, got[1].DistanceKm)
	}
}

func TestFindCandidatesTieBreaks(t *testing.T) {
	point := domain.Coordinates{Lat: 24.7100, Lon: 46.6740}

	// Same position, different rating: higher rating wins.
	low := testDriver("low", 24.7150, 46.6740)
	low.Rating = 4.0
	high := testDriver("high", 24.7150, 46.6740)
	high.Rating = 4.9
	env := newDispatchEnv(testConfig(), []*domain.Driver{low, high}, nil)

	got, err := env.directory.FindCandidates(context.Background(), point, DirectoryFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Driver.ID != "high" {
		t.Fatalf("first = %s, want high (better rating)", got[0].Driver.ID)
	}

	// Same position and rating: the longer-idle driver wins.
	busy := testDriver("busy", 24.7150, 46.6740)
	busy.LastAssignedAt = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	idle := testDriver("idle", 24.7150, 46.6740)
	idle.LastAssignedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env = newDispatchEnv(testConfig(), []*domain.Driver{busy, idle}, nil)

	got, err = env.directory.FindCandidates(context.Background(), point, DirectoryFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Driver.ID != "idle" {
		t.Fatalf("first = %s, want idle (fairness)", got[0].Driver.ID)
	}
}

func TestFindCandidatesZonePriorityBeatsZoneless(t *testing.T) {
	point := domain.Coordinates{Lat: 24.7100, Lon: 46.6740}

	zoned := testDriver("zoned", 24.7150, 46.6740)
	zoned.Zones = []domain.WorkingZone{{
		ID:       "z1",
		DriverID: "zoned",
		Center:   point,
		RadiusKm: 5,
		Priority: 1,
	}}
	plain := testDriver("plain", 24.7150, 46.6740)
	env := newDispatchEnv(testConfig(), []*domain.Driver{plain, zoned}, nil)

	got, err := env.directory.FindCandidates(context.Background(), point, DirectoryFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Driver.ID != "zoned" {
		t.Fatalf("candidates = %+v, want zoned driver ranked first", got)
	}
}

func TestFindCandidatesFilters(t *testing.T) {
	point := domain.Coordinates{Lat: 24.7100, Lon: 46.6740}
	car := testDriver("car", 24.7150, 46.6740)
	bike := testDriver("bike", 24.7150, 46.6740)
	bike.Vehicle = domain.VehicleBike
	env := newDispatchEnv(testConfig(), []*domain.Driver{car, bike}, nil)

	got, err := env.directory.FindCandidates(context.Background(), point, DirectoryFilters{Vehicle: domain.VehicleBike})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Driver.ID != "bike" {
		t.Fatalf("candidates = %+v, want only the bike", got)
	}

	got, err = env.directory.FindCandidates(context.Background(), point, DirectoryFilters{ExcludeDriverIDs: []string{"car"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Driver.ID != "bike" {
		t.Fatalf("candidates = %+v, want car excluded", got)
	}
}

func TestFindCandidatesDistanceCutoff(t *testing.T) {
	point := domain.Coordinates{Lat: 24.7100, Lon: 46.6740}

	// ~22 km north: beyond the global cutoff for zone-less drivers.
	distant := testDriver("distant", 24.9100, 46.6740)

	// Same distance, but its working zone covers the point, so no cutoff.
	covered := testDriver("covered", 24.9100, 46.6740)
	covered.Zones = []domain.WorkingZone{{
		ID:       "z1",
		DriverID: "covered",
		Center:   point,
		RadiusKm: 3,
		Priority: 1,
	}}
	env := newDispatchEnv(testConfig(), []*domain.Driver{distant, covered}, nil)

	got, err := env.directory.FindCandidates(context.Background(), point, DirectoryFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Driver.ID != "covered" {
		t.Fatalf("candidates = %+v, want only the zone-covered driver", got)
	}

	// An explicit filter cutoff applies to everyone.
	got, err = env.directory.FindCandidates(context.Background(), point, DirectoryFilters{MaxDistanceKm: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("candidates = %+v, want none within 5 km", got)
	}
}

func TestFindCandidatesZoneHours(t *testing.T) {
	point := domain.Coordinates{Lat: 24.7100, Lon: 46.6740}
	d := testDriver("d1", 24.7150, 46.6740)
	d.Zones = []domain.WorkingZone{{
		ID:        "z1",
		DriverID:  "d1",
		Center:    point,
		RadiusKm:  5,
		HoursFrom: 8,
		HoursTo:   17,
		Priority:  1,
	}}
	env := newDispatchEnv(testConfig(), []*domain.Driver{d}, nil)

	// Test clock starts at 12:00: inside the window.
	got, err := env.directory.FindCandidates(context.Background(), point, DirectoryFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1 inside working hours", len(got))
	}

	env.clock.now = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	got, err = env.directory.FindCandidates(context.Background(), point, DirectoryFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("candidates = %d, want 0 outside working hours", len(got))
	}
}

func TestFindCandidatesPrefersFreshCachedPosition(t *testing.T) {
	point := domain.Coordinates{Lat: 24.7100, Lon: 46.6740}

	// Persisted position is out of range; the cache says the driver moved close.
	d := testDriver("d1", 24.9100, 46.6740)
	env := newDispatchEnv(testConfig(), []*domain.Driver{d}, nil)

	fresh := ports.CachedLocation{
		Position:   domain.Coordinates{Lat: 24.7150, Lon: 46.6740},
		RecordedAt: env.clock.Now(),
	}
	if err := env.locations.Set(context.Background(), "d1", fresh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := env.directory.FindCandidates(context.Background(), point, DirectoryFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1 via cached position", len(got))
	}
	if got[0].Position != fresh.Position {
		t.Fatalf("position = %+v, want cached %+v", got[0].Position, fresh.Position)
	}

	// A stale cache entry falls back to the persisted (distant) position.
	env.clock.Advance(env.cfg.LocationTTL + time.Minute)
	got, err = env.directory.FindCandidates(context.Background(), point, DirectoryFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("candidates = %d, want 0 once the cache entry expired", len(got))
	}
}
