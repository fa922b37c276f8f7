package sqlstore

import (
	"context"

	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/store"
)

var _ store.Recorder = (*Store)(nil)

// RecordRelease writes the slice_release row.
func (s *Store) RecordRelease(ctx context.Context, rec store.ReleaseRecord) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	query := s.db.Dialect.Rebind(`INSERT INTO slice_release (release_number, release_date, run_id, instance_count) VALUES (?, ?, ?, ?)`)
	if _, err := s.conn().ExecContext(ctx, query, rec.Number, rec.Date, rec.RunID, rec.InstanceCount); err != nil {
		return errors.Wrapf(err, "record release %d", rec.Number)
	}
	return nil
}

// RecordRevisions writes one slice_revision row per change action.
func (s *Store) RecordRevisions(ctx context.Context, release int, rows []store.RevisionRow) error {
	query := s.db.Dialect.Rebind(`INSERT INTO slice_revision (release_number, db_id, class_name, action_type, action_object) VALUES (?, ?, ?, ?, ?)`)
	for _, r := range rows {
		if err := s.wait(ctx); err != nil {
			return err
		}
		if _, err := s.conn().ExecContext(ctx, query, release, int64(r.Key), r.Class, r.ActionType, r.ActionObject); err != nil {
			return errors.Wrapf(err, "record revision %d %s(%s)", r.Key, r.ActionType, r.ActionObject)
		}
	}
	s.logger.Debugw("Recorded revisions", logger.FieldRelease, release, logger.FieldCount, len(rows))
	return nil
}

// Releases returns the release numbers recorded in this store, ascending.
func (s *Store) Releases(ctx context.Context) ([]int, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	rows, err := s.conn().QueryContext(ctx, `SELECT release_number FROM slice_release ORDER BY release_number`)
	if err != nil {
		return nil, errors.Wrap(err, "list releases")
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, errors.Wrap(err, "scan release")
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
