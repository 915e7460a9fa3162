package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// fileArray renders the JSON array of files matching one association
// condition. fa and f are in scope at every call site.
func fileArray(cond string) string {
	return `(
        SELECT COALESCE(json_group_array(json_object(
            'id', f.id,
            'name', f.name,
            'type', f.type,
            'user_name', f.user_name,
            'date', f.date,
            'deleted', ` + jsonBool("f.deleted") + `) ORDER BY fa.id), json('[]'))
        FROM file_associations fa JOIN files f ON f.id = fa.file_id
        WHERE ` + cond + `)`
}

// requestQuery rebuilds one request payload as a single JSON document.
// Scalar subqueries correlate on their parent alias; the recursive CTE
// binds the request id directly because FROM-clause subqueries cannot
// see outer columns in SQLite.
var requestQuery = `
SELECT json_object(
    'id', r.id,
    'title', r.title,
    'status', r.status,
    'form_id', r.form_id,
    'form_name', r.form_name,
    'form_type', r.form_type,
    'settlement_type', r.settlement_type,
    'applicant_code', r.applicant_code,
    'applicant_last_name', r.applicant_last_name,
    'applicant_first_name', r.applicant_first_name,
    'applicant_group_name', r.applicant_group_name,
    'applicant_group_code', r.applicant_group_code,
    'applicant_position_code', r.applicant_position_code,
    'proxy_applicant_last_name', r.proxy_applicant_last_name,
    'proxy_applicant_first_name', r.proxy_applicant_first_name,
    'group_name', r.group_name,
    'group_code', r.group_code,
    'project_name', r.project_name,
    'project_code', r.project_code,
    'flow_step_name', r.flow_step_name,
    'is_content_changed', ` + jsonBool("r.is_content_changed") + `,
    'total_amount', r.total_amount,
    'pay_at', r.pay_at,
    'final_approval_period', r.final_approval_period,
    'final_approved_date', r.final_approved_date,
    'applied_date', r.applied_date,
    'customized_items', (
        SELECT COALESCE(json_group_array(json_object(
            'title', ci.title,
            'content', ci.content,
            'file', ` + fileArray("fa.request_id = ci.request_id AND fa.customized_item_idx = ci.idx") + `,
            'generic_master_record', (
                SELECT json_object(
                    'record_id', gm.record_id,
                    'code', gm.code,
                    'name', gm.name,
                    'content', gm.content,
                    'additional_items', (
                        SELECT COALESCE(json_group_array(json_object(
                            'title', ai.title,
                            'content', ai.content,
                            'item_type', ai.item_type) ORDER BY ai.idx), json('[]'))
                        FROM generic_master_additional_items ai
                        WHERE ai.generic_master_id = gm.id))
                FROM generic_masters gm
                WHERE gm.request_id = ci.request_id AND gm.item_idx = ci.idx),
            'table_data', (
                SELECT COALESCE(json_group_array(json(td.row_doc) ORDER BY td.row_idx), json('[]'))
                FROM (
                    SELECT request_id, item_idx, row_idx,
                           json_group_array(value ORDER BY col_idx) AS row_doc
                    FROM table_data
                    GROUP BY request_id, item_idx, row_idx) td
                WHERE td.request_id = ci.request_id AND td.item_idx = ci.idx)
        ) ORDER BY ci.idx), json('[]'))
        FROM customized_items ci WHERE ci.request_id = r.id),
    'expense', (
        SELECT json_object(
            'amount', e.amount,
            'related_request_id', e.related_request_id,
            'related_request_title', e.related_request_title,
            'use_suspense_payment', ` + jsonBool("e.use_suspense_payment") + `,
            'content_description', e.content_description,
            'advanced_payment', e.advanced_payment,
            'suspense_payment_amount', e.suspense_payment_amount,
            'specifics', (
                SELECT COALESCE(json_group_array(json_object(
                    'type', es.type,
                    'col_number', es.col_number,
                    'rows', (
                        SELECT COALESCE(json_group_array(json_object(
                            'row_number', er.row_number,
                            'use_date', er.use_date,
                            'group_name', er.group_name,
                            'project_name', er.project_name,
                            'content_description', er.content_description,
                            'breakdown', er.breakdown,
                            'amount', er.amount,
                            'custom_items', (
                                SELECT COALESCE(json_group_array(json_object(
                                    'name', cu.name,
                                    'item_type', cu.item_type,
                                    'values', (
                                        SELECT COALESCE(json_group_array(json_object(
                                            'value', cv.value,
                                            'extension_items', (
                                                SELECT COALESCE(json_group_array(json_object(
                                                    'title', ce.title,
                                                    'content', ce.content) ORDER BY ce.idx), json('[]'))
                                                FROM custom_item_value_extension_items ce
                                                WHERE ce.request_id = cv.request_id
                                                  AND ce.specific_idx = cv.specific_idx
                                                  AND ce.row_number = cv.row_number
                                                  AND ce.item_idx = cv.item_idx
                                                  AND ce.value_idx = cv.idx)
                                        ) ORDER BY cv.idx), json('[]'))
                                        FROM custom_item_values cv
                                        WHERE cv.request_id = cu.request_id
                                          AND cv.specific_idx = cu.specific_idx
                                          AND cv.row_number = cu.row_number
                                          AND cv.item_idx = cu.idx)
                                ) ORDER BY cu.idx), json('[]'))
                                FROM custom_items cu
                                WHERE cu.request_id = er.request_id
                                  AND cu.specific_idx = er.specific_idx
                                  AND cu.row_number = er.row_number),
                            'files', ` + fileArray("fa.request_id = er.request_id AND fa.expense_row = (er.specific_idx || '-' || er.row_number)") + `
                        ) ORDER BY er.row_number), json('[]'))
                        FROM expense_specific_rows er
                        WHERE er.request_id = es.request_id AND er.specific_idx = es.idx)
                ) ORDER BY es.idx), json('[]'))
                FROM expense_specifics es WHERE es.request_id = e.request_id))
        FROM expense e WHERE e.request_id = r.id),
    'payment', (
        SELECT json_object(
            'amount', p.amount,
            'content_description', p.content_description,
            'related_request_id', p.related_request_id,
            'related_request_title', p.related_request_title,
            'specifics', (
                SELECT COALESCE(json_group_array(json_object(
                    'company_name', ps.company_name,
                    'zip_code', ps.zip_code,
                    'address', ps.address,
                    'bank_code', ps.bank_code,
                    'bank_name', ps.bank_name,
                    'branch_code', ps.branch_code,
                    'branch_name', ps.branch_name,
                    'account_type', ps.account_type,
                    'account_code', ps.account_code,
                    'account_name', ps.account_name,
                    'amount', ps.amount,
                    'rows', (
                        SELECT COALESCE(json_group_array(json_object(
                            'row_number', pr.row_number,
                            'use_date', pr.use_date,
                            'content_description', pr.content_description,
                            'breakdown', pr.breakdown,
                            'amount', pr.amount,
                            'files', ` + fileArray("fa.request_id = pr.request_id AND fa.payment_row = (pr.specific_idx || '-' || pr.row_number)") + `
                        ) ORDER BY pr.row_number), json('[]'))
                        FROM payment_specific_rows pr
                        WHERE pr.request_id = ps.request_id AND pr.specific_idx = ps.idx)
                ) ORDER BY ps.idx), json('[]'))
                FROM payment_specifics ps WHERE ps.request_id = p.request_id))
        FROM payment p WHERE p.request_id = r.id),
    'ec', (
        SELECT json_object(
            'related_request_id', ec.related_request_id,
            'related_request_title', ec.related_request_title,
            'content_description', ec.content_description,
            'billing_destination', ec.billing_destination,
            'specifics', (
                SELECT COALESCE(json_group_array(json_object(
                    'item_name', ecs.item_name,
                    'item_url', ecs.item_url,
                    'rows', (
                        SELECT COALESCE(json_group_array(json_object(
                            'row_number', ecr.row_number,
                            'content', ecr.content,
                            'quantity', ecr.quantity,
                            'unit_price', ecr.unit_price,
                            'amount', ecr.amount,
                            'files', ` + fileArray("fa.request_id = ecr.request_id AND fa.ec_row = (ecr.specific_idx || '-' || ecr.row_number)") + `
                        ) ORDER BY ecr.row_number), json('[]'))
                        FROM ec_specific_rows ecr
                        WHERE ecr.request_id = ecs.request_id AND ecr.specific_idx = ecs.idx)
                ) ORDER BY ecs.idx), json('[]'))
                FROM ec_specifics ecs WHERE ecs.request_id = ec.request_id),
            'shipping_address', (
                SELECT json_object(
                    'name', sa.name,
                    'zip_code', sa.zip_code,
                    'address', sa.address,
                    'tel', sa.tel)
                FROM shipping_address sa WHERE sa.request_id = ec.request_id))
        FROM ec WHERE ec.request_id = r.id),
    'approval_process', (
        SELECT json_object(
            'is_returned', ` + jsonBool("ap.is_returned") + `,
            'approval_route_modify_logs', (
                SELECT COALESCE(json_group_array(json_object(
                    'date', rl.date,
                    'user_name', rl.user_name) ORDER BY rl.idx), json('[]'))
                FROM approval_route_modify_logs rl WHERE rl.request_id = ap.request_id),
            'steps', (
                SELECT COALESCE(json_group_array(json_object(
                    'name', st.name,
                    'condition', st.condition,
                    'status', st.status,
                    'approvers', (
                        SELECT COALESCE(json_group_array(json_object(
                            'status', a.status,
                            'approved_date', a.approved_date,
                            'user_name', a.user_name,
                            'files', ` + fileArray("fa.request_id = a.request_id AND fa.approver = (a.step_idx || '-' || a.idx)") + `
                        ) ORDER BY a.idx), json('[]'))
                        FROM approvers a
                        WHERE a.request_id = st.request_id AND a.step_idx = st.step_idx),
                    'comments', (
                        SELECT COALESCE(json_group_array(json_object(
                            'user_name', c.user_name,
                            'date', c.date,
                            'text', c.text,
                            'deleted', ` + jsonBool("c.deleted") + `,
                            'files', ` + fileArray("fa.comment_id = c.id") + `
                        ) ORDER BY c.id), json('[]'))
                        FROM comments c JOIN comment_associations ca ON ca.comment_id = c.id
                        WHERE c.request_id = st.request_id
                          AND ca.step_idx = st.step_idx AND ca.after_completion = 0)
                ) ORDER BY st.step_idx), json('[]'))
                FROM approval_steps st WHERE st.request_id = ap.request_id),
            'comments_after_completion', (
                SELECT COALESCE(json_group_array(json_object(
                    'user_name', c.user_name,
                    'date', c.date,
                    'text', c.text,
                    'deleted', ` + jsonBool("c.deleted") + `,
                    'files', ` + fileArray("fa.comment_id = c.id") + `
                ) ORDER BY c.id), json('[]'))
                FROM comments c JOIN comment_associations ca ON ca.comment_id = c.id
                WHERE c.request_id = ap.request_id AND ca.after_completion = 1))
        FROM approval_process ap WHERE ap.request_id = r.id),
    'viewers', (
        SELECT COALESCE(json_group_array(json_object(
            'user_name', v.user_name,
            'group_name', v.group_name,
            'position_name', v.position_name) ORDER BY v.idx), json('[]'))
        FROM viewers v WHERE v.request_id = r.id),
    'modify_logs', (
        SELECT COALESCE(json_group_array(json_object(
            'date', ml.date,
            'user_name', ml.user_name,
            'details', (
                SELECT COALESCE(json_group_array(json_object(
                    'title', mld.title,
                    'specifics', (
                        SELECT COALESCE(json_group_array(json_object(
                            'old_value', mls.old_value,
                            'new_value', mls.new_value) ORDER BY mls.idx), json('[]'))
                        FROM modify_log_detail_specifics mls
                        WHERE mls.request_id = mld.request_id
                          AND mls.log_idx = mld.log_idx AND mls.detail_idx = mld.idx)
                ) ORDER BY mld.idx), json('[]'))
                FROM modify_log_details mld
                WHERE mld.request_id = ml.request_id AND mld.log_idx = ml.idx)
        ) ORDER BY ml.idx), json('[]'))
        FROM modify_logs ml WHERE ml.request_id = r.id),
    'default_attachment_files', (
        SELECT COALESCE(json_group_array(json(rep.doc)), json('[]'))
        FROM (
            WITH RECURSIVE rep(doc, n) AS (
                SELECT json_object(
                    'id', f.id,
                    'name', f.name,
                    'type', f.type,
                    'user_name', f.user_name,
                    'date', f.date,
                    'deleted', ` + jsonBool("f.deleted") + `), fa.default_attachment
                FROM file_associations fa JOIN files f ON f.id = fa.file_id
                WHERE fa.request_id = ? AND fa.default_attachment >= 1
                UNION ALL
                SELECT doc, n - 1 FROM rep WHERE n > 1
            )
            SELECT doc FROM rep
        ) rep)
)
FROM requests r WHERE r.id = ?`

// GetRequest rebuilds one stored request in its API shape. A missing
// id yields (nil, nil).
func (s *Store) GetRequest(ctx context.Context, id string) (Record, error) {
	args := make([]any, strings.Count(requestQuery, "?"))
	for i := range args {
		args[i] = id
	}
	var doc string
	err := s.db.QueryRowContext(ctx, requestQuery, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve request %s: %w", id, err)
	}
	return DecodeRecord([]byte(doc))
}

// GetRequests rebuilds a batch of requests, skipping unknown ids.
func (s *Store) GetRequests(ctx context.Context, ids ...string) ([]Record, error) {
	var out []Record
	for _, id := range ids {
		rec, err := s.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
