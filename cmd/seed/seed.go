package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/josquinlarsen/tarpaulin/internal/model"
	"github.com/josquinlarsen/tarpaulin/internal/repository"
)

type entry struct {
	Sub  string     `json:"sub"`
	Role model.Role `json:"role"`
}

type result struct {
	created int
	skipped int
}

// parseEntries rejects the whole file on the first bad entry, before
// anything is written.
func parseEntries(r io.Reader) ([]entry, error) {
	var raw []struct {
		Sub  string `json:"sub"`
		Role string `json:"role"`
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}

	entries := make([]entry, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, e := range raw {
		sub := strings.TrimSpace(e.Sub)
		if sub == "" {
			return nil, fmt.Errorf("entry %d: sub is required", i)
		}
		if seen[sub] {
			return nil, fmt.Errorf("entry %d: duplicate sub %q", i, sub)
		}
		seen[sub] = true

		role, err := model.ParseRole(e.Role)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, entry{Sub: sub, Role: role})
	}
	return entries, nil
}

// seed inserts every entry whose sub is not yet in the store, in one
// transaction.
func seed(ctx context.Context, store repository.Store, entries []entry) (result, error) {
	var res result
	err := store.WithTx(ctx, func(tx repository.Store) error {
		res = result{}
		for _, e := range entries {
			existing, err := tx.Users().FindBySub(ctx, e.Sub)
			if err != nil {
				return fmt.Errorf("looking up %q: %w", e.Sub, err)
			}
			if len(existing) > 0 {
				res.skipped++
				continue
			}
			if err := tx.Users().Create(ctx, &model.User{Sub: e.Sub, Role: e.Role}); err != nil {
				return fmt.Errorf("creating %q: %w", e.Sub, err)
			}
			res.created++
		}
		return nil
	})
	return res, err
}
