package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mmynk/quozen/internal/storage"
)

func encodeCells(row []string) (string, error) {
	if row == nil {
		row = []string{}
	}
	b, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("failed to encode row: %w", err)
	}
	return string(b), nil
}

func decodeCells(raw string) ([]string, error) {
	var row []string
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}
	return row, nil
}

// rowSeq maps a 1-based row position to the row's seq within its tab.
func rowSeq(ctx context.Context, q querier, op string, tabID int64, tab string, position int) (int64, error) {
	if position < 1 {
		return 0, storage.NotFound(op, "row %d not found in %s", position, tab)
	}
	var seq int64
	err := q.QueryRowContext(ctx,
		"SELECT seq FROM tab_rows WHERE tab_id = ? ORDER BY seq LIMIT 1 OFFSET ?", tabID, position-1,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, storage.NotFound(op, "row %d not found in %s", position, tab)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to locate row: %w", err)
	}
	return seq, nil
}

// ReadRange returns every data row of tab, header excluded.
func (s *SQLiteStore) ReadRange(ctx context.Context, fileID, tab string) ([][]string, error) {
	tabID, err := s.tabID(ctx, s.db, "ReadRange", fileID, tab)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT cells FROM tab_rows WHERE tab_id = ? ORDER BY seq LIMIT -1 OFFSET ?", tabID, storage.HeaderRows,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read range: %w", err)
	}
	defer rows.Close()

	out := [][]string{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row, err := decodeCells(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	if len(out) == 0 {
		// Release the connection before rechecking.
		rows.Close()
		if err := s.recheck(ctx, s.db, "ReadRange", fileID, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Initialize replaces the contents of each named tab, creating missing tabs.
func (s *SQLiteStore) Initialize(ctx context.Context, fileID string, tabs map[string][][]string) error {
	defer s.invalidate(fileID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.requireFile(ctx, tx, "Initialize", fileID); err != nil {
		return err
	}

	names := make([]string, 0, len(tabs))
	for name := range tabs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var tabID int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM tabs WHERE file_id = ? AND name = ?", fileID, name).Scan(&tabID)
		if err == sql.ErrNoRows {
			res, err := tx.ExecContext(ctx,
				"INSERT INTO tabs (file_id, name, ord) VALUES (?, ?, (SELECT COUNT(*) FROM tabs WHERE file_id = ?))",
				fileID, name, fileID,
			)
			if err != nil {
				return fmt.Errorf("failed to create tab %s: %w", name, err)
			}
			if tabID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get tab id: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up tab %s: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM tab_rows WHERE tab_id = ?", tabID); err != nil {
			return fmt.Errorf("failed to clear tab %s: %w", name, err)
		}
		for i, row := range tabs[name] {
			cells, err := encodeCells(row)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO tab_rows (tab_id, seq, cells) VALUES (?, ?, ?)", tabID, i+1, cells,
			); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.touch(ctx, fileID)
	return nil
}

// AppendRow adds a row at the end of tab and returns its position.
func (s *SQLiteStore) AppendRow(ctx context.Context, fileID, tab string, row []string) (int, error) {
	cells, err := encodeCells(row)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tabID, err := s.tabID(ctx, tx, "AppendRow", fileID, tab)
	if err != nil {
		return 0, err
	}

	var maxSeq int64
	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0), COUNT(*) FROM tab_rows WHERE tab_id = ?", tabID,
	).Scan(&maxSeq, &count); err != nil {
		return 0, fmt.Errorf("failed to read tab size: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO tab_rows (tab_id, seq, cells) VALUES (?, ?, ?)", tabID, maxSeq+1, cells,
	); err != nil {
		return 0, s.recheck(ctx, tx, "AppendRow", fileID, fmt.Errorf("failed to append row: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.touch(ctx, fileID)
	return count + 1, nil
}

// UpdateRow overwrites the row at position.
func (s *SQLiteStore) UpdateRow(ctx context.Context, fileID, tab string, position int, row []string) error {
	cells, err := encodeCells(row)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tabID, err := s.tabID(ctx, tx, "UpdateRow", fileID, tab)
	if err != nil {
		return err
	}
	seq, err := rowSeq(ctx, tx, "UpdateRow", tabID, tab, position)
	if err != nil {
		return s.recheck(ctx, tx, "UpdateRow", fileID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE tab_rows SET cells = ? WHERE tab_id = ? AND seq = ?", cells, tabID, seq,
	); err != nil {
		return fmt.Errorf("failed to update row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.touch(ctx, fileID)
	return nil
}

// DeleteRow removes the row at position. Later rows move up by one.
func (s *SQLiteStore) DeleteRow(ctx context.Context, fileID, tab string, position int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tabID, err := s.tabID(ctx, tx, "DeleteRow", fileID, tab)
	if err != nil {
		return err
	}
	seq, err := rowSeq(ctx, tx, "DeleteRow", tabID, tab, position)
	if err != nil {
		return s.recheck(ctx, tx, "DeleteRow", fileID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tab_rows WHERE tab_id = ? AND seq = ?", tabID, seq); err != nil {
		return fmt.Errorf("failed to delete row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.touch(ctx, fileID)
	return nil
}

// ReadRow returns the row at position.
func (s *SQLiteStore) ReadRow(ctx context.Context, fileID, tab string, position int) ([]string, error) {
	tabID, err := s.tabID(ctx, s.db, "ReadRow", fileID, tab)
	if err != nil {
		return nil, err
	}
	if position < 1 {
		return nil, storage.NotFound("ReadRow", "row %d not found in %s", position, tab)
	}

	var raw string
	err = s.db.QueryRowContext(ctx,
		"SELECT cells FROM tab_rows WHERE tab_id = ? ORDER BY seq LIMIT 1 OFFSET ?", tabID, position-1,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, s.recheck(ctx, s.db, "ReadRow", fileID, storage.NotFound("ReadRow", "row %d not found in %s", position, tab))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}
	return decodeCells(raw)
}
