package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to AssignmentStatus
		want     bool
	}{
		{StatusPending, StatusOffered, true},
		{StatusOffered, StatusOffered, true}, // re-offer after decline/timeout
		{StatusOffered, StatusAccepted, true},
		{StatusAccepted, StatusEnRouteToPickup, true},
		{StatusEnRouteToPickup, StatusPickedUp, true},
		{StatusPickedUp, StatusEnRouteToDelivery, true},
		{StatusEnRouteToDelivery, StatusDelivered, true},
		{StatusAccepted, StatusDelivered, false},
		{StatusOffered, StatusPickedUp, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusFailed, StatusOffered, false},
		{StatusPickedUp, StatusCancelled, true},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []AssignmentStatus{StatusDelivered, StatusFailed, StatusCancelled} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []AssignmentStatus{StatusPending, StatusOffered, StatusAccepted, StatusEnRouteToDelivery} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestCurrentOffer(t *testing.T) {
	a := &Assignment{}
	if a.CurrentOffer() != nil {
		t.Fatal("no offers: want nil")
	}

	a.Offers = append(a.Offers, OfferRecord{DriverID: "d1", Outcome: OfferDeclined})
	if a.CurrentOffer() != nil {
		t.Fatal("closed offer: want nil")
	}

	a.Offers = append(a.Offers, OfferRecord{DriverID: "d2", Outcome: OfferPending})
	offer := a.CurrentOffer()
	if offer == nil || offer.DriverID != "d2" {
		t.Fatalf("current offer = %+v, want pending d2", offer)
	}

	if got := a.OfferedDriverIDs(); len(got) != 2 || got[0] != "d1" || got[1] != "d2" {
		t.Fatalf("offered drivers = %v, want [d1 d2]", got)
	}
}

func TestWorkingZoneActiveAt(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2026, 3, 1, hour, 30, 0, 0, time.UTC)
	}

	always := WorkingZone{HoursFrom: 0, HoursTo: 0}
	if !always.ActiveAt(at(3)) {
		t.Fatal("equal bounds mean always open")
	}

	day := WorkingZone{HoursFrom: 8, HoursTo: 17}
	if !day.ActiveAt(at(8)) || day.ActiveAt(at(17)) || day.ActiveAt(at(22)) {
		t.Fatal("day window [8,17) misbehaved")
	}

	night := WorkingZone{HoursFrom: 18, HoursTo: 2}
	if !night.ActiveAt(at(23)) || !night.ActiveAt(at(1)) || night.ActiveAt(at(10)) {
		t.Fatal("midnight-wrapping window [18,2) misbehaved")
	}
}
