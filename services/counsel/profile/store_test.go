// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package profile

import (
	"context"
	"testing"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

func openTestDB(t *testing.T) *dgbadger.DB {
	t.Helper()
	opts := dgbadger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := dgbadger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	store := NewBadgerStore(openTestDB(t), 0, nil)
	ctx := context.Background()

	p := &Profile{
		UserID: "user-1",
		KnownGoals: []datatypes.Goal{{
			ID: "g1", Title: "ask for promotion", Domain: datatypes.DomainCareer,
			Urgency: 7, Impact: 9, Preference: 8, DependencyWeight: 6, ResourceAvailability: 8,
		}},
		ResolvedChoices: map[string]string{ChoiceKey("g2", "g1"): "g1"},
		ConfirmedPlans:  map[string]bool{ChoiceKey("g3", "g1"): true},
	}
	if err := store.SaveProfile(ctx, p); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.GetProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a profile, got nil")
	}
	if len(loaded.KnownGoals) != 1 || loaded.KnownGoals[0].ID != "g1" {
		t.Errorf("known goals lost in round trip: %+v", loaded.KnownGoals)
	}
	if loaded.ResolvedChoices["g1|g2"] != "g1" {
		t.Errorf("resolved choices lost: %+v", loaded.ResolvedChoices)
	}
	if !loaded.ConfirmedPlans["g1|g3"] {
		t.Errorf("confirmed plans lost: %+v", loaded.ConfirmedPlans)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt must be stamped on save")
	}
}

func TestBadgerStore_MissIsNotAnError(t *testing.T) {
	store := NewBadgerStore(openTestDB(t), 0, nil)
	p, err := store.GetProfile(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("miss must not be an error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil profile on miss, got %+v", p)
	}
}

func TestBadgerStore_SaveRequiresUserID(t *testing.T) {
	store := NewBadgerStore(openTestDB(t), 0, nil)
	if err := store.SaveProfile(context.Background(), &Profile{}); err == nil {
		t.Fatal("saving without a user id must fail")
	}
}

func TestBadgerStore_TTLExpiry(t *testing.T) {
	store := NewBadgerStore(openTestDB(t), 50*time.Millisecond, nil)
	ctx := context.Background()

	if err := store.SaveProfile(ctx, &Profile{UserID: "short-lived"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	p, err := store.GetProfile(ctx, "short-lived")
	if err != nil {
		t.Fatalf("expired entry must read as a miss: %v", err)
	}
	if p != nil {
		t.Error("expired profile must be invisible")
	}
}

func TestChoiceKey_Normalized(t *testing.T) {
	if ChoiceKey("b", "a") != ChoiceKey("a", "b") {
		t.Error("choice key must be order-independent")
	}
	if ChoiceKey("a", "b") != "a|b" {
		t.Errorf("unexpected key format: %s", ChoiceKey("a", "b"))
	}
}
