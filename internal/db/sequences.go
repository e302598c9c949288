package db

import (
	"database/sql"
	"fmt"
)

// SequenceSpec ties a friendly-ID prefix to the AUTOINCREMENT table that
// numbers it and the table whose id column carries the result.
type SequenceSpec struct {
	SeqTable    string
	EntityTable string
	Prefix      string
}

// SequenceDrift is a sequence whose counter is behind the highest stored ID,
// so the next allocation would collide.
type SequenceDrift struct {
	SeqTable    string
	EntityTable string
	MaxID       int
	SeqValue    int
}

func (d SequenceDrift) String() string {
	return fmt.Sprintf("%s: sequence %d, max id %d", d.EntityTable, d.SeqValue, d.MaxID)
}

type sqlExecutor interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

var (
	ProductSequence = SequenceSpec{SeqTable: "product_seq", EntityTable: "products", Prefix: "P-"}
	FeatureSequence = SequenceSpec{SeqTable: "feature_seq", EntityTable: "features", Prefix: "F-"}
	BugSequence     = SequenceSpec{SeqTable: "bug_seq", EntityTable: "bugs", Prefix: "B-"}
	TaskSequence    = SequenceSpec{SeqTable: "task_seq", EntityTable: "tasks", Prefix: "T-"}
	PageSequence    = SequenceSpec{SeqTable: "page_seq", EntityTable: "flow_pages", Prefix: "PG-"}
)

// DefaultSequenceSpecs returns the product sequence followed by one per item kind.
func DefaultSequenceSpecs() []SequenceSpec {
	return []SequenceSpec{ProductSequence, FeatureSequence, BugSequence, TaskSequence, PageSequence}
}

// Format renders n as a friendly ID, e.g. "F-00007".
func (s SequenceSpec) Format(n int64) string {
	return fmt.Sprintf("%s%05d", s.Prefix, n)
}

// NextID allocates the next friendly ID for spec.
func NextID(exec sqlExecutor, spec SequenceSpec) (string, error) {
	res, err := exec.Exec("INSERT INTO " + spec.SeqTable + " DEFAULT VALUES")
	if err != nil {
		return "", fmt.Errorf("failed to allocate %s id: %w", spec.EntityTable, err)
	}
	n, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read %s sequence: %w", spec.EntityTable, err)
	}
	return spec.Format(n), nil
}

func (s SequenceSpec) drift(exec sqlExecutor) (SequenceDrift, bool, error) {
	d := SequenceDrift{SeqTable: s.SeqTable, EntityTable: s.EntityTable}

	// IDs are PREFIX-NNNNN; the numeric part starts after the prefix.
	err := exec.QueryRow(
		fmt.Sprintf("SELECT COALESCE(MAX(CAST(SUBSTR(id, ?) AS INTEGER)), 0) FROM %s WHERE id LIKE ?", s.EntityTable),
		len(s.Prefix)+1, s.Prefix+"%",
	).Scan(&d.MaxID)
	if err != nil {
		return d, false, fmt.Errorf("failed to compute max ID for %s: %w", s.EntityTable, err)
	}

	var seq sql.NullInt64
	err = exec.QueryRow("SELECT seq FROM sqlite_sequence WHERE name = ?", s.SeqTable).Scan(&seq)
	if err != nil && err != sql.ErrNoRows {
		return d, false, fmt.Errorf("failed to read sqlite_sequence for %s: %w", s.SeqTable, err)
	}
	d.SeqValue = int(seq.Int64)
	return d, d.SeqValue < d.MaxID, nil
}

// SequenceDrifts returns the sequences that are behind their tables.
func SequenceDrifts(exec sqlExecutor, specs []SequenceSpec) ([]SequenceDrift, error) {
	drifts := []SequenceDrift{}
	for _, spec := range specs {
		d, behind, err := spec.drift(exec)
		if err != nil {
			return nil, err
		}
		if behind {
			drifts = append(drifts, d)
		}
	}
	return drifts, nil
}

// FixSequenceDrifts advances every drifted sequence to its table's max ID
// and returns what it changed.
func FixSequenceDrifts(exec sqlExecutor, specs []SequenceSpec) ([]SequenceDrift, error) {
	drifts, err := SequenceDrifts(exec, specs)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		if err := setSequence(exec, d.SeqTable, d.MaxID); err != nil {
			return nil, fmt.Errorf("failed to update sqlite_sequence for %s: %w", d.SeqTable, err)
		}
	}
	return drifts, nil
}

// sqlite_sequence has no unique key on name, so update first and insert
// only when no row exists yet.
func setSequence(exec sqlExecutor, seqTable string, value int) error {
	res, err := exec.Exec("UPDATE sqlite_sequence SET seq = ? WHERE name = ?", value, seqTable)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	_, err = exec.Exec("INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)", seqTable, value)
	return err
}
