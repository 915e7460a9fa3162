package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
)

// stmt is one deferred child insert, executed in append order so the
// flush respects foreign-key dependencies.
type stmt struct {
	query string
	args  []any
}

// requestData is the fully normalized form of one request payload:
// plain child rows in dependency order plus the late-binding builders.
type requestData struct {
	id       string
	mainArgs []any
	children []stmt

	files    FileDataList
	comments CommentDataList
	masters  GenericMasterDataList
}

func (d *requestData) add(query string, args ...any) {
	d.children = append(d.children, stmt{query: query, args: args})
}

// rowKey renders the composite owner key used by file associations.
func rowKey(specIdx, rowNumber int64) string {
	return fmt.Sprintf("%d-%d", specIdx, rowNumber)
}

// normalizeRequest flattens one nested request payload into requestData.
// Pure: no database access here, the flush happens in UpsertRequest.
func normalizeRequest(rec Record) (*requestData, error) {
	id := rec.StrVal("id")
	if id == "" {
		return nil, fmt.Errorf("request record without id")
	}
	d := &requestData{id: id}
	d.mainArgs = []any{
		id, rec.Str("title"), rec.Str("status"), rec.Int("form_id"),
		rec.Str("form_name"), rec.Str("form_type"), rec.Str("settlement_type"),
		rec.Str("applicant_code"), rec.Str("applicant_last_name"),
		rec.Str("applicant_first_name"), rec.Str("applicant_group_name"),
		rec.Str("applicant_group_code"), rec.Str("applicant_position_code"),
		rec.Str("proxy_applicant_last_name"), rec.Str("proxy_applicant_first_name"),
		rec.Str("group_name"), rec.Str("group_code"),
		rec.Str("project_name"), rec.Str("project_code"),
		rec.Str("flow_step_name"), rec.Bool("is_content_changed"),
		rec.Int("total_amount"), rec.Str("pay_at"),
		rec.Str("final_approval_period"), rec.Str("final_approved_date"),
		rec.Str("applied_date"),
	}

	d.normalizeCustomizedItems(rec)
	d.normalizeExpense(rec.Obj("expense"))
	d.normalizePayment(rec.Obj("payment"))
	d.normalizeEC(rec.Obj("ec"))
	d.normalizeApprovalProcess(rec.Obj("approval_process"))

	for idx, v := range rec.List("viewers") {
		d.add(`INSERT INTO viewers (request_id, idx, user_name, group_name, position_name)
               VALUES (?, ?, ?, ?, ?)`,
			id, idx, v.Str("user_name"), v.Str("group_name"), v.Str("position_name"))
	}

	for logIdx, log := range rec.List("modify_logs") {
		d.add(`INSERT INTO modify_logs (request_id, idx, date, user_name) VALUES (?, ?, ?, ?)`,
			id, logIdx, log.Str("date"), log.Str("user_name"))
		for detailIdx, detail := range log.List("details") {
			d.add(`INSERT INTO modify_log_details (request_id, log_idx, idx, title)
                   VALUES (?, ?, ?, ?)`,
				id, logIdx, detailIdx, detail.Str("title"))
			for idx, spec := range detail.List("specifics") {
				d.add(`INSERT INTO modify_log_detail_specifics
                           (request_id, log_idx, detail_idx, idx, old_value, new_value)
                       VALUES (?, ?, ?, ?, ?, ?)`,
					id, logIdx, detailIdx, idx, spec.Str("old_value"), spec.Str("new_value"))
			}
		}
	}

	d.files.AddDefaults(rec.List("default_attachment_files"))
	return d, nil
}

func (d *requestData) normalizeCustomizedItems(rec Record) {
	for itemIdx, item := range rec.List("customized_items") {
		d.add(`INSERT INTO customized_items (request_id, idx, title, content)
               VALUES (?, ?, ?, ?)`,
			d.id, itemIdx, item.Str("title"), item.Str("content"))
		for _, f := range item.List("file") {
			d.files.Add(f, fileOwner{customizedItemIdx: itemIdx, commentIdx: -1})
		}
		d.masters.Add(itemIdx, item.Obj("generic_master_record"))
		for rowIdx, row := range item.RawList("table_data") {
			cols, _ := row.([]any)
			for colIdx, cell := range cols {
				d.add(`INSERT INTO table_data (request_id, item_idx, row_idx, col_idx, value)
                       VALUES (?, ?, ?, ?, ?)`,
					d.id, itemIdx, rowIdx, colIdx, cellText(cell))
			}
		}
	}
}

func (d *requestData) normalizeExpense(exp Record) {
	if exp == nil {
		return
	}
	d.add(`INSERT INTO expense
               (request_id, amount, related_request_id, related_request_title,
                use_suspense_payment, content_description, advanced_payment,
                suspense_payment_amount)
           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.id, exp.Int("amount"), exp.Str("related_request_id"),
		exp.Str("related_request_title"), exp.Bool("use_suspense_payment"),
		exp.Str("content_description"), exp.Int("advanced_payment"),
		exp.Int("suspense_payment_amount"))
	for specIdx, spec := range exp.List("specifics") {
		d.add(`INSERT INTO expense_specifics (request_id, idx, type, col_number)
               VALUES (?, ?, ?, ?)`,
			d.id, specIdx, spec.Str("type"), spec.Int("col_number"))
		for rowIdx, row := range spec.List("rows") {
			rowNumber := rowNumberOf(row, rowIdx)
			d.add(`INSERT INTO expense_specific_rows
                       (request_id, specific_idx, row_number, use_date, group_name,
                        project_name, content_description, breakdown, amount)
                   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				d.id, specIdx, rowNumber, row.Str("use_date"), row.Str("group_name"),
				row.Str("project_name"), row.Str("content_description"),
				row.Str("breakdown"), row.Int("amount"))
			for _, f := range row.List("files") {
				d.files.Add(f, fileOwner{expenseRow: rowKey(int64(specIdx), rowNumber), commentIdx: -1})
			}
			d.normalizeCustomItems(specIdx, rowNumber, row.List("custom_items"))
		}
	}
}

func (d *requestData) normalizeCustomItems(specIdx int, rowNumber int64, items []Record) {
	for itemIdx, item := range items {
		d.add(`INSERT INTO custom_items
                   (request_id, specific_idx, row_number, idx, name, item_type)
               VALUES (?, ?, ?, ?, ?, ?)`,
			d.id, specIdx, rowNumber, itemIdx, item.Str("name"), item.Str("item_type"))
		for valueIdx, value := range item.List("values") {
			d.add(`INSERT INTO custom_item_values
                       (request_id, specific_idx, row_number, item_idx, idx, value)
                   VALUES (?, ?, ?, ?, ?, ?)`,
				d.id, specIdx, rowNumber, itemIdx, valueIdx, value.Str("value"))
			for extIdx, ext := range value.List("extension_items") {
				d.add(`INSERT INTO custom_item_value_extension_items
                           (request_id, specific_idx, row_number, item_idx, value_idx, idx,
                            title, content)
                       VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					d.id, specIdx, rowNumber, itemIdx, valueIdx, extIdx,
					ext.Str("title"), ext.Str("content"))
			}
		}
	}
}

func (d *requestData) normalizePayment(pay Record) {
	if pay == nil {
		return
	}
	d.add(`INSERT INTO payment
               (request_id, amount, content_description, related_request_id,
                related_request_title)
           VALUES (?, ?, ?, ?, ?)`,
		d.id, pay.Int("amount"), pay.Str("content_description"),
		pay.Str("related_request_id"), pay.Str("related_request_title"))
	for specIdx, spec := range pay.List("specifics") {
		d.add(`INSERT INTO payment_specifics
                   (request_id, idx, company_name, zip_code, address, bank_code,
                    bank_name, branch_code, branch_name, account_type, account_code,
                    account_name, amount)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.id, specIdx, spec.Str("company_name"), spec.Str("zip_code"),
			spec.Str("address"), spec.Str("bank_code"), spec.Str("bank_name"),
			spec.Str("branch_code"), spec.Str("branch_name"), spec.Str("account_type"),
			spec.Str("account_code"), spec.Str("account_name"), spec.Int("amount"))
		for rowIdx, row := range spec.List("rows") {
			rowNumber := rowNumberOf(row, rowIdx)
			d.add(`INSERT INTO payment_specific_rows
                       (request_id, specific_idx, row_number, use_date,
                        content_description, breakdown, amount)
                   VALUES (?, ?, ?, ?, ?, ?, ?)`,
				d.id, specIdx, rowNumber, row.Str("use_date"),
				row.Str("content_description"), row.Str("breakdown"), row.Int("amount"))
			for _, f := range row.List("files") {
				d.files.Add(f, fileOwner{paymentRow: rowKey(int64(specIdx), rowNumber), commentIdx: -1})
			}
		}
	}
}

func (d *requestData) normalizeEC(ec Record) {
	if ec == nil {
		return
	}
	d.add(`INSERT INTO ec
               (request_id, related_request_id, related_request_title,
                content_description, billing_destination)
           VALUES (?, ?, ?, ?, ?)`,
		d.id, ec.Str("related_request_id"), ec.Str("related_request_title"),
		ec.Str("content_description"), ec.Str("billing_destination"))
	for specIdx, spec := range ec.List("specifics") {
		d.add(`INSERT INTO ec_specifics (request_id, idx, item_name, item_url)
               VALUES (?, ?, ?, ?)`,
			d.id, specIdx, spec.Str("item_name"), spec.Str("item_url"))
		for rowIdx, row := range spec.List("rows") {
			rowNumber := rowNumberOf(row, rowIdx)
			d.add(`INSERT INTO ec_specific_rows
                       (request_id, specific_idx, row_number, content, quantity,
                        unit_price, amount)
                   VALUES (?, ?, ?, ?, ?, ?, ?)`,
				d.id, specIdx, rowNumber, row.Str("content"), row.Int("quantity"),
				row.Int("unit_price"), row.Int("amount"))
			for _, f := range row.List("files") {
				d.files.Add(f, fileOwner{ecRow: rowKey(int64(specIdx), rowNumber), commentIdx: -1})
			}
		}
	}
	if addr := ec.Obj("shipping_address"); addr != nil {
		d.add(`INSERT INTO shipping_address (request_id, name, zip_code, address, tel)
               VALUES (?, ?, ?, ?, ?)`,
			d.id, addr.Str("name"), addr.Str("zip_code"), addr.Str("address"), addr.Str("tel"))
	}
}

func (d *requestData) normalizeApprovalProcess(ap Record) {
	if ap == nil {
		return
	}
	d.add(`INSERT INTO approval_process (request_id, is_returned) VALUES (?, ?)`,
		d.id, ap.Bool("is_returned"))
	for idx, log := range ap.List("approval_route_modify_logs") {
		d.add(`INSERT INTO approval_route_modify_logs (request_id, idx, date, user_name)
               VALUES (?, ?, ?, ?)`,
			d.id, idx, log.Str("date"), log.Str("user_name"))
	}
	for stepIdx, step := range ap.List("steps") {
		d.add(`INSERT INTO approval_steps (request_id, step_idx, name, condition, status)
               VALUES (?, ?, ?, ?, ?)`,
			d.id, stepIdx, step.Str("name"), step.Str("condition"), step.Str("status"))
		for idx, approver := range step.List("approvers") {
			d.add(`INSERT INTO approvers
                       (request_id, step_idx, idx, status, approved_date, user_name)
                   VALUES (?, ?, ?, ?, ?, ?)`,
				d.id, stepIdx, idx, approver.Str("status"),
				approver.Str("approved_date"), approver.Str("user_name"))
			for _, f := range approver.List("files") {
				d.files.Add(f, fileOwner{approver: rowKey(int64(stepIdx), int64(idx)), commentIdx: -1})
			}
		}
		for _, comment := range step.List("comments") {
			ci := d.comments.Add(comment, stepIdx, false)
			for _, f := range comment.List("files") {
				d.files.Add(f, fileOwner{commentIdx: ci})
			}
		}
	}
	for _, comment := range ap.List("comments_after_completion") {
		ci := d.comments.Add(comment, nil, true)
		for _, f := range comment.List("files") {
			d.files.Add(f, fileOwner{commentIdx: ci})
		}
	}
}

// rowNumberOf prefers the payload's own row_number over the list index.
func rowNumberOf(row Record, idx int) int64 {
	if v := row.Int("row_number"); v != nil {
		return v.(int64)
	}
	return int64(idx)
}

// cellText renders a table cell scalar for storage.
func cellText(cell any) any {
	return Record{"v": cell}.Str("v")
}

// UpsertRequest stores one request detail atomically. The REPLACE on
// the parent row cascades away every previous child, so the tree is
// rewritten whole; failure rolls the whole payload back.
func (s *Store) UpsertRequest(ctx context.Context, rec Record) *dierr.Warning {
	data, err := normalizeRequest(rec)
	if err != nil {
		return storeWarning("requests", rec.StrVal("id"), err)
	}
	err = s.RunInTransaction(ctx, func(tx *sql.Conn) error {
		if _, err := tx.ExecContext(ctx, `
            INSERT OR REPLACE INTO requests
                (id, title, status, form_id, form_name, form_type, settlement_type,
                 applicant_code, applicant_last_name, applicant_first_name,
                 applicant_group_name, applicant_group_code, applicant_position_code,
                 proxy_applicant_last_name, proxy_applicant_first_name,
                 group_name, group_code, project_name, project_code,
                 flow_step_name, is_content_changed, total_amount, pay_at,
                 final_approval_period, final_approved_date, applied_date)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			data.mainArgs...); err != nil {
			return err
		}
		for _, st := range data.children {
			if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
				return err
			}
		}
		if err := data.masters.Flush(ctx, tx, data.id); err != nil {
			return err
		}
		commentIDs, err := data.comments.Flush(ctx, tx, data.id)
		if err != nil {
			return err
		}
		return data.files.Flush(ctx, tx, data.id, commentIDs)
	})
	if err != nil {
		return storeWarning("requests", data.id, err)
	}
	return nil
}

// InProgressRequests lists stored requests still awaiting a final
// state, grouped by form. The detail stage re-fetches these so status
// transitions made outside a run are not missed.
func (s *Store) InProgressRequests(ctx context.Context) (map[int][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT form_id, id FROM requests
        WHERE status NOT IN ('completed', 'rejected', 'canceled', 'canceled_after_completion')
        ORDER BY form_id, id`)
	if err != nil {
		return nil, fmt.Errorf("list in-progress requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[int][]string{}
	for rows.Next() {
		var formID int
		var id string
		if err := rows.Scan(&formID, &id); err != nil {
			return nil, err
		}
		out[formID] = append(out[formID], id)
	}
	return out, rows.Err()
}
