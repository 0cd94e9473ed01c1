package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eve-atlas/internal/graph"
	"eve-atlas/internal/reach"
)

// ErrNoCache is returned by LoadReachability when nothing has been saved.
var ErrNoCache = errors.New("no reachability cache stored")

// ReachInfo describes the stored cache.
type ReachInfo struct {
	MaxHops     int    `json:"max_hops"`
	Fingerprint string `json:"fingerprint"`
	BuiltAt     string `json:"built_at"`
	Entries     int    `json:"entries"`
}

// SaveReachability replaces the stored cache. fingerprint identifies the
// stargate graph the cache was built from.
func (d *DB) SaveReachability(c *reach.Cache, fingerprint string) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("save reachability: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM reach_entries"); err != nil {
		return fmt.Errorf("save reachability: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO reach_meta (id, max_hops, fingerprint, built_at) VALUES (1, ?, ?, ?)",
		c.MaxHops(), fingerprint, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("save reachability: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO reach_entries (system, reachable, hops) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("save reachability: %w", err)
	}
	defer stmt.Close()
	for _, e := range c.Entries() {
		reachable, _ := json.Marshal(e.Reachable)
		hops, _ := json.Marshal(e.Hops)
		if _, err := stmt.Exec(e.System, string(reachable), string(hops)); err != nil {
			return fmt.Errorf("save reachability %s: %w", e.System, err)
		}
	}
	return tx.Commit()
}

// ReachabilityInfo returns metadata about the stored cache, or ErrNoCache.
func (d *DB) ReachabilityInfo() (*ReachInfo, error) {
	var info ReachInfo
	err := d.sql.QueryRow("SELECT max_hops, fingerprint, built_at FROM reach_meta WHERE id = 1").
		Scan(&info.MaxHops, &info.Fingerprint, &info.BuiltAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCache
	}
	if err != nil {
		return nil, fmt.Errorf("read reach meta: %w", err)
	}
	d.sql.QueryRow("SELECT COUNT(*) FROM reach_entries").Scan(&info.Entries)
	return &info, nil
}

// LoadReachability reads the stored cache and attaches u to it. The returned
// info lets the caller compare the fingerprint against the current graph.
func (d *DB) LoadReachability(u *graph.Universe) (*reach.Cache, *ReachInfo, error) {
	info, err := d.ReachabilityInfo()
	if err != nil {
		return nil, nil, err
	}

	rows, err := d.sql.Query("SELECT system, reachable, hops FROM reach_entries ORDER BY system")
	if err != nil {
		return nil, nil, fmt.Errorf("load reachability: %w", err)
	}
	defer rows.Close()

	var entries []reach.Entry
	for rows.Next() {
		var e reach.Entry
		var reachable, hops string
		if err := rows.Scan(&e.System, &reachable, &hops); err != nil {
			return nil, nil, fmt.Errorf("load reachability: %w", err)
		}
		if err := json.Unmarshal([]byte(reachable), &e.Reachable); err != nil {
			return nil, nil, fmt.Errorf("load reachability %s: %w", e.System, err)
		}
		if err := json.Unmarshal([]byte(hops), &e.Hops); err != nil {
			return nil, nil, fmt.Errorf("load reachability %s: %w", e.System, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("load reachability: %w", err)
	}

	c, err := reach.FromEntries(info.MaxHops, entries, u)
	if err != nil {
		return nil, nil, err
	}
	return c, info, nil
}
