package db

import (
	"fmt"
	"time"

	"eve-atlas/internal/graph"
)

// SaveBridges replaces the stored jump bridge list.
func (d *DB) SaveBridges(bridges []graph.Bridge) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("save bridges: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM jump_bridges"); err != nil {
		return fmt.Errorf("save bridges: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, b := range bridges {
		friendly := 0
		if b.Friendly {
			friendly = 1
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO jump_bridges (from_system, to_system, friendly, updated_at) VALUES (?, ?, ?, ?)",
			b.From, b.To, friendly, now,
		); err != nil {
			return fmt.Errorf("save bridge %s -> %s: %w", b.From, b.To, err)
		}
	}
	return tx.Commit()
}

// LoadBridges returns the stored jump bridges ordered by endpoints.
func (d *DB) LoadBridges() ([]graph.Bridge, error) {
	rows, err := d.sql.Query("SELECT from_system, to_system, friendly FROM jump_bridges ORDER BY from_system, to_system")
	if err != nil {
		return nil, fmt.Errorf("load bridges: %w", err)
	}
	defer rows.Close()

	bridges := []graph.Bridge{}
	for rows.Next() {
		var b graph.Bridge
		var friendly int
		if err := rows.Scan(&b.From, &b.To, &friendly); err != nil {
			return nil, fmt.Errorf("load bridges: %w", err)
		}
		b.Friendly = friendly != 0
		bridges = append(bridges, b)
	}
	return bridges, rows.Err()
}
