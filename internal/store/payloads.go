package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/provgraph/internal/ingest"
	"github.com/roach88/provgraph/internal/ir"
)

// PutSteps stores the step payload served for (subjectID, collapsed),
// replacing any previous one.
//
// The payload is validated with ingest.Decode first; payloads that would
// fail to load are rejected here rather than at fetch time. Returns the
// number of step records stored.
func (s *Store) PutSteps(ctx context.Context, subjectID string, collapsed bool, payload []byte, seq int64) (int, error) {
	steps, err := ingest.Decode(payload)
	if err != nil {
		return 0, fmt.Errorf("put steps %s: %w", subjectID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO step_payloads
		(subject_id, collapsed, payload, payload_hash, step_count, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id, collapsed) DO UPDATE SET
			payload = excluded.payload,
			payload_hash = excluded.payload_hash,
			step_count = excluded.step_count,
			seq = excluded.seq
	`,
		subjectID,
		boolToInt(collapsed),
		string(payload),
		ir.PayloadHash(payload),
		len(steps),
		seq,
	)
	if err != nil {
		return 0, fmt.Errorf("put steps %s: %w", subjectID, err)
	}
	return len(steps), nil
}

// FetchSteps implements loader.Fetcher. A subject without a stored payload
// at the requested granularity has no provenance: the result is an empty
// list, not an error.
func (s *Store) FetchSteps(ctx context.Context, subjectID string, collapse bool) ([]ir.StepRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM step_payloads
		WHERE subject_id = ? AND collapsed = ?
	`, subjectID, boolToInt(collapse)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []ir.StepRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch steps %s: %w", subjectID, err)
	}

	steps, err := ingest.Decode([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("fetch steps %s: %w", subjectID, err)
	}
	return steps, nil
}

// PayloadInfo summarizes a stored step payload.
type PayloadInfo struct {
	SubjectID   string
	Collapsed   bool
	PayloadHash string
	StepCount   int
	Seq         int64
}

// ListPayloads returns every stored payload ordered by seq.
func (s *Store) ListPayloads(ctx context.Context) ([]PayloadInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, collapsed, payload_hash, step_count, seq
		FROM step_payloads
		ORDER BY seq ASC, subject_id COLLATE BINARY ASC, collapsed ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query payloads: %w", err)
	}
	defer rows.Close()

	infos := []PayloadInfo{}
	for rows.Next() {
		var info PayloadInfo
		var collapsed int
		if err := rows.Scan(&info.SubjectID, &collapsed, &info.PayloadHash, &info.StepCount, &info.Seq); err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		info.Collapsed = collapsed == 1
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payloads: %w", err)
	}
	return infos, nil
}

// PutAux replaces the subject's auxiliary collection for dir.
func (s *Store) PutAux(ctx context.Context, subjectID string, dir ir.Direction, refs []ir.EmbeddedRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put aux: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM aux_records WHERE subject_id = ? AND direction = ?
	`, subjectID, string(dir)); err != nil {
		return fmt.Errorf("put aux: clear: %w", err)
	}

	for i, ref := range refs {
		record, err := marshalRef(ref)
		if err != nil {
			return fmt.Errorf("put aux: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO aux_records (subject_id, direction, position, record)
			VALUES (?, ?, ?, ?)
		`, subjectID, string(dir), i, record); err != nil {
			return fmt.Errorf("put aux: insert %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put aux: commit: %w", err)
	}
	return nil
}

// ReadAux returns the subject's auxiliary collection for dir in stored
// order. Returns an empty slice (not nil) when none is stored.
func (s *Store) ReadAux(ctx context.Context, subjectID string, dir ir.Direction) ([]ir.EmbeddedRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM aux_records
		WHERE subject_id = ? AND direction = ?
		ORDER BY position ASC
	`, subjectID, string(dir))
	if err != nil {
		return nil, fmt.Errorf("query aux: %w", err)
	}
	defer rows.Close()

	refs := []ir.EmbeddedRef{}
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan aux: %w", err)
		}
		ref, err := unmarshalRef(record)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aux: %w", err)
	}
	return refs, nil
}
