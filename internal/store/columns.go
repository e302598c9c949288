package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// itemTables is in board kind order: ties on position render in this order.
var itemTables = []itemTable{featureTable, bugTable, taskTable, pageTable}

// columnRow is one item of a status column, whatever its kind.
type columnRow struct {
	table    string
	rank     int
	uuid     string
	id       string
	position int
}

// loadColumn returns the product's items in status across every kind, in
// rendered order: position, then kind, then friendly ID.
func loadColumn(ctx context.Context, tx *sql.Tx, productUUID, status string) ([]columnRow, error) {
	var column []columnRow
	for rank, t := range itemTables {
		rows, err := tx.QueryContext(ctx, fmt.Sprintf(
			"SELECT uuid, id, position FROM %s WHERE product_uuid = ? AND %s = ?", t.name, t.statusColumn,
		), productUUID, status)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s column: %w", t.name, err)
		}
		for rows.Next() {
			r := columnRow{table: t.name, rank: rank}
			if err := rows.Scan(&r.uuid, &r.id, &r.position); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan %s row: %w", t.name, err)
			}
			column = append(column, r)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(column, func(i, j int) bool {
		a, b := column[i], column[j]
		if a.position != b.position {
			return a.position < b.position
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		return a.id < b.id
	})
	return column, nil
}

// placeInColumn makes room for itemUUID at index of column to and renumbers
// the other items of that column densely. When the item leaves column from,
// that column is closed up. A negative index keeps the item's slot when it
// stays and appends it otherwise. Returns the clamped index, which is the
// item's new position. Only positions of other rows are touched.
func placeInColumn(ctx context.Context, tx *sql.Tx, productUUID, itemUUID, from, to string, index int) (int, error) {
	dst, err := loadColumn(ctx, tx, productUUID, to)
	if err != nil {
		return 0, err
	}
	rest := make([]columnRow, 0, len(dst))
	current := -1
	for _, r := range dst {
		if r.uuid == itemUUID {
			current = len(rest)
			continue
		}
		rest = append(rest, r)
	}

	if index < 0 {
		index = len(rest)
		if current >= 0 {
			index = current
		}
	}
	if index > len(rest) {
		index = len(rest)
	}
	if err := renumber(ctx, tx, rest[:index], 0); err != nil {
		return 0, err
	}
	if err := renumber(ctx, tx, rest[index:], index+1); err != nil {
		return 0, err
	}

	if from != to {
		src, err := loadColumn(ctx, tx, productUUID, from)
		if err != nil {
			return 0, err
		}
		remaining := make([]columnRow, 0, len(src))
		for _, r := range src {
			if r.uuid != itemUUID {
				remaining = append(remaining, r)
			}
		}
		if err := renumber(ctx, tx, remaining, 0); err != nil {
			return 0, err
		}
	}
	return index, nil
}

// renumber gives rows the positions start, start+1, ... Rows already in place
// are not written. Etags stay as they are.
func renumber(ctx context.Context, tx *sql.Tx, rows []columnRow, start int) error {
	for i, r := range rows {
		want := start + i
		if r.position == want {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET position = ? WHERE uuid = ?", r.table), want, r.uuid); err != nil {
			return fmt.Errorf("failed to renumber %s: %w", r.id, err)
		}
	}
	return nil
}
