// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package profile persists lightweight per-user orchestration state between
// requests: previously surfaced goals and the answers to open conflict
// choices. The engine runs fine without it — a nil or empty store just means
// every request starts from scratch.
//
// Storage layout:
//
//	counsel/profile/v1/{userID}  →  gob-encoded Profile
//	                                 TTL: 30 days
package profile

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

// profileDefaultTTL is the lifetime of a stored profile. A month of
// inactivity means the context is stale anyway.
const profileDefaultTTL = 30 * 24 * time.Hour

// profileKeyPrefix is prepended to the user id to form the BadgerDB key.
// Versioned (v1) to allow future format changes without collision.
const profileKeyPrefix = "counsel/profile/v1/"

// errNotFound distinguishes "key absent" (a normal miss) from a genuine
// storage error.
var errNotFound = errors.New("profile not found")

// Profile is the durable per-user state the engine consults across turns.
type Profile struct {
	UserID string

	// KnownGoals are goals surfaced on earlier turns, kept so follow-up
	// requests can re-score instead of re-extract.
	KnownGoals []datatypes.Goal

	// ResolvedChoices maps a conflict pair key ("goalA|goalB", smaller id
	// first) to the goal id the user chose.
	ResolvedChoices map[string]string

	// ConfirmedPlans marks conflict pair keys whose phased plan the user has
	// confirmed; dispatch for those goals is held until the key is present.
	ConfirmedPlans map[string]bool

	UpdatedAt time.Time
}

// ChoiceKey builds the ResolvedChoices key for a conflict pair.
func ChoiceKey(goalA, goalB string) string {
	if goalA > goalB {
		goalA, goalB = goalB, goalA
	}
	return goalA + "|" + goalB
}

// Store persists user profiles across requests.
//
// # Description
//
// GetProfile returns (nil, nil) when no profile exists — absence is not an
// error. Callers must treat a nil Store the same way and skip persistence;
// that is the correct behavior for tests and stateless deployments.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
}

// BadgerStore implements Store backed by a BadgerDB instance.
//
// # Description
//
// Profiles are gob-encoded. TTL is enforced by BadgerDB's native GC;
// expired keys return ErrKeyNotFound, which this store treats as absence.
// The DB is opened by the caller and not owned by the store.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type BadgerStore struct {
	db     *dgbadger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerStore creates a BadgerStore over an opened DB.
//
// Inputs:
//   - db: Opened BadgerDB handle. Must not be nil.
//   - ttl: Profile lifetime. Pass 0 to use the default (30 days).
//   - logger: May be nil.
func NewBadgerStore(db *dgbadger.DB, ttl time.Duration, logger *slog.Logger) *BadgerStore {
	if db == nil {
		panic("NewBadgerStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = profileDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, ttl: ttl, logger: logger}
}

// GetProfile loads a user's profile.
//
// Outputs:
//   - *Profile: nil when absent or expired; absence is not an error.
//   - error: non-nil only on storage or decode failure.
func (s *BadgerStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := []byte(profileKeyPrefix + userID)

	var raw []byte
	err := s.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errNotFound
		}
		if err != nil {
			return fmt.Errorf("get profile key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errNotFound) {
		s.logger.Debug("profile store: miss", slog.String("user_id", userID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile load: %w", err)
	}

	var p Profile
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&p); err != nil {
		return nil, fmt.Errorf("profile decode: %w", err)
	}

	s.logger.Debug("profile store: hit",
		slog.String("user_id", userID),
		slog.Int("known_goals", len(p.KnownGoals)),
	)
	return &p, nil
}

// SaveProfile persists a profile with the configured TTL.
//
// Persistence failure is non-fatal for callers: the engine logs it as a
// warning and continues, losing only cross-turn memory.
func (s *BadgerStore) SaveProfile(ctx context.Context, p *Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.UserID == "" {
		return fmt.Errorf("profile save: missing user id")
	}

	p.UpdatedAt = time.Now().UTC()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return fmt.Errorf("profile encode: %w", err)
	}

	key := []byte(profileKeyPrefix + p.UserID)
	err := s.db.Update(func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, buf.Bytes()).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("profile save: %w", err)
	}

	s.logger.Debug("profile store: saved",
		slog.String("user_id", p.UserID),
		slog.Int("bytes", buf.Len()),
	)
	return nil
}
