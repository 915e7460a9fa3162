package store

import (
	"context"
	"database/sql"
)

// The request payload owns files, comments and generic-master blobs in
// places whose database identity is only known at flush time (surrogate
// comment and master ids, owner rows written earlier in the same
// transaction). These builders gather them during normalization and
// flush late, in dependency order.

// fileOwner pins a file association to exactly one owning row, or to
// the request-level default attachments with a repeat counter.
type fileOwner struct {
	customizedItemIdx any    // int index into customized_items
	expenseRow        any    // "specIdx-rowNumber"
	paymentRow        any    // "specIdx-rowNumber"
	ecRow             any    // "specIdx-rowNumber"
	approver          any    // "stepIdx-approverIdx"
	commentIdx        int    // index into CommentDataList, -1 when unset
	defaultCount      int64  // repeat counter for default attachments
}

type fileEntry struct {
	rec   Record
	owner fileOwner
}

// FileDataList accumulates file records and their association rows.
type FileDataList struct {
	entries []fileEntry
}

func (l *FileDataList) Add(rec Record, owner fileOwner) {
	if rec == nil {
		return
	}
	l.entries = append(l.entries, fileEntry{rec: rec, owner: owner})
}

// AddDefaults folds a repeated default-attachment list into counted
// entries, one per distinct file id in first-seen order.
func (l *FileDataList) AddDefaults(recs []Record) {
	counts := map[string]int{}
	var order []string
	byID := map[string]Record{}
	for _, rec := range recs {
		id := rec.StrVal("id")
		if _, seen := counts[id]; !seen {
			order = append(order, id)
			byID[id] = rec
		}
		counts[id]++
	}
	for _, id := range order {
		l.Add(byID[id], fileOwner{commentIdx: -1, defaultCount: int64(counts[id])})
	}
}

// Flush writes the file rows and their associations. Shared file rows
// update in place; REPLACE would break other requests' associations.
func (l *FileDataList) Flush(ctx context.Context, tx *sql.Conn, requestID string, commentIDs []int64) error {
	for _, e := range l.entries {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO files (id, name, type, user_name, date, deleted)
            VALUES (?, ?, ?, ?, ?, ?)
            ON CONFLICT (id) DO UPDATE SET
                name = excluded.name,
                type = excluded.type,
                user_name = excluded.user_name,
                date = excluded.date,
                deleted = excluded.deleted`,
			e.rec.StrVal("id"), e.rec.Str("name"), e.rec.Str("type"),
			e.rec.Str("user_name"), e.rec.Str("date"), e.rec.Bool("deleted"))
		if err != nil {
			return err
		}
		var commentID any
		if e.owner.commentIdx >= 0 && e.owner.commentIdx < len(commentIDs) {
			commentID = commentIDs[e.owner.commentIdx]
		}
		_, err = tx.ExecContext(ctx, `
            INSERT INTO file_associations
                (file_id, request_id, customized_item_idx, expense_row, payment_row,
                 ec_row, approver, comment_id, default_attachment)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.rec.StrVal("id"), requestID, e.owner.customizedItemIdx,
			e.owner.expenseRow, e.owner.paymentRow, e.owner.ecRow,
			e.owner.approver, commentID, e.owner.defaultCount)
		if err != nil {
			return err
		}
	}
	return nil
}

type commentEntry struct {
	rec             Record
	stepIdx         any // int when owned by an approval step
	afterCompletion bool
}

// CommentDataList accumulates comments whose owner resolves at flush.
type CommentDataList struct {
	entries []commentEntry
}

// Add records a comment and returns its index, used to late-bind file
// associations to the surrogate id.
func (l *CommentDataList) Add(rec Record, stepIdx any, afterCompletion bool) int {
	l.entries = append(l.entries, commentEntry{rec: rec, stepIdx: stepIdx, afterCompletion: afterCompletion})
	return len(l.entries) - 1
}

// Flush writes the comments and their association rows, returning the
// surrogate id per entry in Add order.
func (l *CommentDataList) Flush(ctx context.Context, tx *sql.Conn, requestID string) ([]int64, error) {
	ids := make([]int64, len(l.entries))
	for i, e := range l.entries {
		var id int64
		err := tx.QueryRowContext(ctx, `
            INSERT INTO comments (request_id, user_name, date, text, deleted)
            VALUES (?, ?, ?, ?, ?)
            ON CONFLICT (request_id, user_name, date, text) DO UPDATE SET
                deleted = excluded.deleted
            RETURNING id`,
			requestID, e.rec.Str("user_name"), e.rec.Str("date"),
			e.rec.Str("text"), e.rec.Bool("deleted")).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids[i] = id
		after := int64(0)
		if e.afterCompletion {
			after = 1
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT OR REPLACE INTO comment_associations
                (comment_id, request_id, step_idx, after_completion)
            VALUES (?, ?, ?, ?)`,
			id, requestID, e.stepIdx, after); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

type genericMasterEntry struct {
	itemIdx    int
	rec        Record
	additional []Record
}

// GenericMasterDataList accumulates generic-master blobs; additional
// items bind to the surrogate master id once the main row exists.
type GenericMasterDataList struct {
	entries []genericMasterEntry
}

func (l *GenericMasterDataList) Add(itemIdx int, rec Record) {
	if rec == nil {
		return
	}
	l.entries = append(l.entries, genericMasterEntry{
		itemIdx:    itemIdx,
		rec:        rec,
		additional: rec.List("additional_items"),
	})
}

func (l *GenericMasterDataList) Flush(ctx context.Context, tx *sql.Conn, requestID string) error {
	for _, e := range l.entries {
		var masterID int64
		err := tx.QueryRowContext(ctx, `
            INSERT INTO generic_masters (request_id, item_idx, record_id, code, name, content)
            VALUES (?, ?, ?, ?, ?, ?)
            ON CONFLICT (request_id, item_idx) DO UPDATE SET
                record_id = excluded.record_id,
                code = excluded.code,
                name = excluded.name,
                content = excluded.content
            RETURNING id`,
			requestID, e.itemIdx, e.rec.Int("record_id"), e.rec.Str("code"),
			e.rec.Str("name"), e.rec.Str("content")).Scan(&masterID)
		if err != nil {
			return err
		}
		for idx, item := range e.additional {
			_, err := tx.ExecContext(ctx, `
                INSERT INTO generic_master_additional_items
                    (generic_master_id, idx, title, content, item_type)
                VALUES (?, ?, ?, ?, ?)
                ON CONFLICT (generic_master_id, idx) DO UPDATE SET
                    title = excluded.title,
                    content = excluded.content,
                    item_type = excluded.item_type`,
				masterID, idx, item.Str("title"), item.Str("content"), item.Str("item_type"))
			if err != nil {
				return err
			}
		}
	}
	return nil
}
