package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
)

// Update dispatches one result element of a basic endpoint to its
// table. The returned warning is a retryable DBUpdateFailed carrying
// the record's natural key.
func (s *Store) Update(ctx context.Context, apiType jobcan.APIType, rec Record) *dierr.Warning {
	switch apiType {
	case jobcan.UserV3:
		return s.UpsertUser(ctx, rec)
	case jobcan.Group:
		return s.UpsertGroup(ctx, rec)
	case jobcan.Position:
		return s.UpsertPosition(ctx, rec)
	case jobcan.Project:
		return s.UpsertProject(ctx, rec)
	case jobcan.Company:
		return s.UpsertCompany(ctx, rec)
	case jobcan.FixJournal:
		return s.UpsertFixJournal(ctx, rec)
	case jobcan.Form:
		return s.UpsertForm(ctx, rec)
	}
	return dierr.NewWarning(dierr.DBUpdateFailed).
		With("api_type", string(apiType)).
		With("error", "no table for endpoint")
}

// UpsertUser replaces one user and its child rows. INSERT OR REPLACE
// on the natural key cascades the old children away; the new ones are
// inserted fresh in index order.
func (s *Store) UpsertUser(ctx context.Context, rec Record) *dierr.Warning {
	key := rec.StrVal("user_code")
	err := s.RunInTransaction(ctx, func(tx *sql.Conn) error {
		_, err := tx.ExecContext(ctx, `
            INSERT OR REPLACE INTO users
                (user_code, email, last_name, first_name, user_role, memo, is_approver)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key, rec.Str("email"), rec.Str("last_name"), rec.Str("first_name"),
			rec.Str("user_role"), rec.Str("memo"), rec.Bool("is_approver"))
		if err != nil {
			return err
		}
		for idx, g := range rec.List("user_groups") {
			_, err := tx.ExecContext(ctx, `
                INSERT INTO user_groups (user_code, idx, group_code, group_name, position_code)
                VALUES (?, ?, ?, ?, ?)
                ON CONFLICT (user_code, idx) DO UPDATE SET
                    group_code = excluded.group_code,
                    group_name = excluded.group_name,
                    position_code = excluded.position_code`,
				key, idx, g.Str("group_code"), g.Str("group_name"), g.Str("position_code"))
			if err != nil {
				return err
			}
		}
		for idx, p := range rec.List("user_positions") {
			_, err := tx.ExecContext(ctx, `
                INSERT INTO user_positions (user_code, idx, position_code, position_name)
                VALUES (?, ?, ?, ?)
                ON CONFLICT (user_code, idx) DO UPDATE SET
                    position_code = excluded.position_code,
                    position_name = excluded.position_name`,
				key, idx, p.Str("position_code"), p.Str("position_name"))
			if err != nil {
				return err
			}
		}
		for idx, b := range rec.List("user_bank_accounts") {
			_, err := tx.ExecContext(ctx, `
                INSERT INTO user_bank_accounts
                    (user_code, idx, bank_code, bank_name, branch_code, branch_name,
                     account_type, account_number, account_holder)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT (user_code, idx) DO UPDATE SET
                    bank_code = excluded.bank_code,
                    bank_name = excluded.bank_name,
                    branch_code = excluded.branch_code,
                    branch_name = excluded.branch_name,
                    account_type = excluded.account_type,
                    account_number = excluded.account_number,
                    account_holder = excluded.account_holder`,
				key, idx, b.Str("bank_code"), b.Str("bank_name"), b.Str("branch_code"),
				b.Str("branch_name"), b.Str("account_type"), b.Str("account_number"),
				b.Str("account_holder"))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeWarning("users", key, err)
	}
	return nil
}

func (s *Store) UpsertGroup(ctx context.Context, rec Record) *dierr.Warning {
	key := rec.StrVal("group_code")
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO groups (group_code, group_name, parent_group_code, description)
        VALUES (?, ?, ?, ?)`,
		key, rec.Str("group_name"), rec.Str("parent_group_code"), rec.Str("description"))
	if err != nil {
		return storeWarning("groups", key, err)
	}
	return nil
}

func (s *Store) UpsertPosition(ctx context.Context, rec Record) *dierr.Warning {
	key := rec.StrVal("position_code")
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO positions (position_code, position_name, description)
        VALUES (?, ?, ?)`,
		key, rec.Str("position_name"), rec.Str("description"))
	if err != nil {
		return storeWarning("positions", key, err)
	}
	return nil
}

func (s *Store) UpsertProject(ctx context.Context, rec Record) *dierr.Warning {
	key := rec.StrVal("project_code")
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO projects (project_code, project_name)
        VALUES (?, ?)`,
		key, rec.Str("project_name"))
	if err != nil {
		return storeWarning("projects", key, err)
	}
	return nil
}

func (s *Store) UpsertCompany(ctx context.Context, rec Record) *dierr.Warning {
	key := rec.StrVal("company_code")
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO companies
            (company_code, company_name, zip_code, address, bank_code, bank_name,
             branch_code, branch_name, bank_account_type_code, bank_account_code,
             bank_account_name_kana)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, rec.Str("company_name"), rec.Str("zip_code"), rec.Str("address"),
		rec.Str("bank_code"), rec.Str("bank_name"), rec.Str("branch_code"),
		rec.Str("branch_name"), rec.Str("bank_account_type_code"),
		rec.Str("bank_account_code"), rec.Str("bank_account_name_kana"))
	if err != nil {
		return storeWarning("companies", key, err)
	}
	return nil
}

// UpsertFixJournal snapshots one unprinted journal row verbatim; the
// API offers no richer stable shape than its id plus the payload.
func (s *Store) UpsertFixJournal(ctx context.Context, rec Record) *dierr.Warning {
	key := rec.StrVal("id")
	payload, err := json.Marshal(map[string]any(rec))
	if err != nil {
		return storeWarning("fix_journals", key, err)
	}
	if _, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO fix_journals (id, journal) VALUES (?, ?)`,
		rec.Int("id"), string(payload)); err != nil {
		return storeWarning("fix_journals", key, err)
	}
	return nil
}

func (s *Store) UpsertForm(ctx context.Context, rec Record) *dierr.Warning {
	key := rec.StrVal("id")
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO forms
            (id, category, form_type, settlement_type, name, view_type, spending_unit, description)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Int("id"), rec.Str("category"), rec.Str("form_type"),
		rec.Str("settlement_type"), rec.Str("name"), rec.Str("view_type"),
		rec.Str("spending_unit"), rec.Str("description"))
	if err != nil {
		return storeWarning("forms", key, err)
	}
	return nil
}

// jsonBool renders a 0/1 column back into a JSON boolean.
func jsonBool(column string) string {
	return fmt.Sprintf("json(iif(%s, 'true', 'false'))", column)
}

// GetUsers rebuilds user records in their API shape. With no ids
// every user is returned, ordered by user_code.
func (s *Store) GetUsers(ctx context.Context, ids ...string) ([]Record, error) {
	query := `
        SELECT json_object(
            'user_code', u.user_code,
            'email', u.email,
            'last_name', u.last_name,
            'first_name', u.first_name,
            'user_role', u.user_role,
            'memo', u.memo,
            'is_approver', ` + jsonBool("u.is_approver") + `,
            'user_groups', (
                SELECT COALESCE(json_group_array(json_object(
                    'group_code', g.group_code,
                    'group_name', g.group_name,
                    'position_code', g.position_code) ORDER BY g.idx), json('[]'))
                FROM user_groups g WHERE g.user_code = u.user_code),
            'user_positions', (
                SELECT COALESCE(json_group_array(json_object(
                    'position_code', p.position_code,
                    'position_name', p.position_name) ORDER BY p.idx), json('[]'))
                FROM user_positions p WHERE p.user_code = u.user_code),
            'user_bank_accounts', (
                SELECT COALESCE(json_group_array(json_object(
                    'bank_code', b.bank_code,
                    'bank_name', b.bank_name,
                    'branch_code', b.branch_code,
                    'branch_name', b.branch_name,
                    'account_type', b.account_type,
                    'account_number', b.account_number,
                    'account_holder', b.account_holder) ORDER BY b.idx), json('[]'))
                FROM user_bank_accounts b WHERE b.user_code = u.user_code)
        )
        FROM users u`
	return s.queryRecords(ctx, query, "u.user_code", ids)
}

// GetGroups rebuilds group records.
func (s *Store) GetGroups(ctx context.Context, ids ...string) ([]Record, error) {
	query := `
        SELECT json_object(
            'group_code', g.group_code,
            'group_name', g.group_name,
            'parent_group_code', g.parent_group_code,
            'description', g.description)
        FROM groups g`
	return s.queryRecords(ctx, query, "g.group_code", ids)
}

// GetPositions rebuilds position records.
func (s *Store) GetPositions(ctx context.Context, ids ...string) ([]Record, error) {
	query := `
        SELECT json_object(
            'position_code', p.position_code,
            'position_name', p.position_name,
            'description', p.description)
        FROM positions p`
	return s.queryRecords(ctx, query, "p.position_code", ids)
}

// GetProjects rebuilds project records.
func (s *Store) GetProjects(ctx context.Context, ids ...string) ([]Record, error) {
	query := `
        SELECT json_object(
            'project_code', p.project_code,
            'project_name', p.project_name)
        FROM projects p`
	return s.queryRecords(ctx, query, "p.project_code", ids)
}

// GetCompanies rebuilds company records.
func (s *Store) GetCompanies(ctx context.Context, ids ...string) ([]Record, error) {
	query := `
        SELECT json_object(
            'company_code', c.company_code,
            'company_name', c.company_name,
            'zip_code', c.zip_code,
            'address', c.address,
            'bank_code', c.bank_code,
            'bank_name', c.bank_name,
            'branch_code', c.branch_code,
            'branch_name', c.branch_name,
            'bank_account_type_code', c.bank_account_type_code,
            'bank_account_code', c.bank_account_code,
            'bank_account_name_kana', c.bank_account_name_kana)
        FROM companies c`
	return s.queryRecords(ctx, query, "c.company_code", ids)
}

// GetForms rebuilds form records.
func (s *Store) GetForms(ctx context.Context, ids ...string) ([]Record, error) {
	query := `
        SELECT json_object(
            'id', f.id,
            'category', f.category,
            'form_type', f.form_type,
            'settlement_type', f.settlement_type,
            'name', f.name,
            'view_type', f.view_type,
            'spending_unit', f.spending_unit,
            'description', f.description)
        FROM forms f`
	return s.queryRecords(ctx, query, "f.id", ids)
}

// GetFixJournals returns the stored journal snapshots.
func (s *Store) GetFixJournals(ctx context.Context, ids ...string) ([]Record, error) {
	query := `SELECT f.journal FROM fix_journals f`
	return s.queryRecords(ctx, query, "f.id", ids)
}

// FormIDs lists every stored form id in ascending order.
func (s *Store) FormIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM forms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// queryRecords runs a json_object query, optionally filtered to a set
// of natural keys, and decodes each row back into a Record.
func (s *Store) queryRecords(ctx context.Context, query, keyColumn string, ids []string) ([]Record, error) {
	var args []any
	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		query += fmt.Sprintf(" WHERE %s IN (%s)", keyColumn, placeholders)
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += fmt.Sprintf(" ORDER BY %s", keyColumn)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("retrieve records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		rec, err := DecodeRecord([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
