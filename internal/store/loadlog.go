package store

import (
	"context"
	"fmt"

	"github.com/roach88/provgraph/internal/ir"
)

// RecordLoad implements loader.Recorder.
// Uses ON CONFLICT(request_token) DO NOTHING for idempotency.
func (s *Store) RecordLoad(ctx context.Context, rec ir.LoadRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO load_log
		(request_token, subject_id, collapsed, outcome, message, node_count, edge_count, graph_hash, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_token) DO NOTHING
	`,
		rec.RequestToken,
		rec.SubjectID,
		boolToInt(rec.Collapsed),
		string(rec.Outcome),
		rec.Message,
		rec.NodeCount,
		rec.EdgeCount,
		rec.GraphHash,
		rec.Seq,
	)
	if err != nil {
		return fmt.Errorf("record load %s: %w", rec.RequestToken, err)
	}
	return nil
}

// ReadLoadLog returns recorded load attempts ordered by seq. An empty
// subjectID returns every subject. Returns an empty slice (not nil) if
// nothing is recorded.
func (s *Store) ReadLoadLog(ctx context.Context, subjectID string) ([]ir.LoadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_token, subject_id, collapsed, outcome, message, node_count, edge_count, graph_hash, seq
		FROM load_log
		WHERE ? = '' OR subject_id = ?
		ORDER BY seq ASC, id ASC
	`, subjectID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query load log: %w", err)
	}
	defer rows.Close()

	records := []ir.LoadRecord{}
	for rows.Next() {
		var rec ir.LoadRecord
		var collapsed int
		var outcome string
		if err := rows.Scan(
			&rec.RequestToken,
			&rec.SubjectID,
			&collapsed,
			&outcome,
			&rec.Message,
			&rec.NodeCount,
			&rec.EdgeCount,
			&rec.GraphHash,
			&rec.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan load record: %w", err)
		}
		rec.Collapsed = collapsed == 1
		rec.Outcome = ir.LoadOutcome(outcome)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate load log: %w", err)
	}
	return records, nil
}
