package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, fatal := Open(context.Background(), filepath.Join(t.TempDir(), "jobcan.db"))
	require.Nil(t, fatal)
	t.Cleanup(func() { _ = s.Close() })
	require.Nil(t, s.CreateTables(context.Background()))
	return s
}

func count(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestUserRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	user := Record{
		"user_code":   "u001",
		"email":       "foo@example.com",
		"last_name":   "Yamada",
		"first_name":  "Taro",
		"user_role":   "admin",
		"memo":        nil,
		"is_approver": true,
		"user_groups": []any{
			map[string]any{"group_code": "g1", "group_name": "Sales", "position_code": "p1"},
			map[string]any{"group_code": "g2", "group_name": "Dev", "position_code": nil},
		},
		"user_positions": []any{
			map[string]any{"position_code": "p1", "position_name": "Manager"},
		},
		"user_bank_accounts": []any{},
	}
	require.Nil(t, s.UpsertUser(ctx, user))

	got, err := s.GetUsers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u001", got[0]["user_code"])
	assert.Equal(t, true, got[0]["is_approver"])
	assert.Nil(t, got[0]["memo"])

	groups := got[0].List("user_groups")
	require.Len(t, groups, 2)
	assert.Equal(t, "Sales", groups[0]["group_name"])
	assert.Equal(t, "Dev", groups[1]["group_name"])
	assert.Empty(t, got[0].RawList("user_bank_accounts"))
}

func TestUserUpsertIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	user := Record{
		"user_code": "u001",
		"email":     "foo@example.com",
		"user_groups": []any{
			map[string]any{"group_code": "g1"},
			map[string]any{"group_code": "g2"},
		},
	}
	require.Nil(t, s.UpsertUser(ctx, user))
	require.Nil(t, s.UpsertUser(ctx, user))
	assert.Equal(t, 1, count(t, s, "users"))
	assert.Equal(t, 2, count(t, s, "user_groups"))

	// A shrunk payload must not leave stale children behind.
	user["user_groups"] = []any{map[string]any{"group_code": "g3"}}
	require.Nil(t, s.UpsertUser(ctx, user))
	assert.Equal(t, 1, count(t, s, "user_groups"))
}

func TestBasicEndpoints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.Nil(t, s.UpsertGroup(ctx, Record{
		"group_code": "g1", "group_name": "Sales", "parent_group_code": nil, "description": "d",
	}))
	require.Nil(t, s.UpsertPosition(ctx, Record{
		"position_code": "p1", "position_name": "Manager", "description": nil,
	}))
	require.Nil(t, s.UpsertProject(ctx, Record{
		"project_code": "pr1", "project_name": "Apollo",
	}))
	require.Nil(t, s.UpsertCompany(ctx, Record{
		"company_code": "c1", "company_name": "Acme", "bank_code": "0001",
	}))
	require.Nil(t, s.UpsertForm(ctx, Record{
		"id": float64(10), "category": "expense", "form_type": "expense",
		"settlement_type": "transfer", "name": "Travel", "view_type": "all",
	}))
	require.Nil(t, s.UpsertFixJournal(ctx, Record{
		"id": float64(7), "view_date": "2024/01/01", "amount": float64(500),
	}))

	groups, err := s.GetGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Sales", groups[0]["group_name"])

	forms, err := s.GetForms(ctx, "10")
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, float64(10), forms[0]["id"])

	journals, err := s.GetFixJournals(ctx)
	require.NoError(t, err)
	require.Len(t, journals, 1)
	assert.Equal(t, float64(500), journals[0]["amount"])

	ids, err := s.FormIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, ids)
}

func sampleRequest() Record {
	return Record{
		"id":                 "sp-100",
		"title":              "Trip to Osaka",
		"status":             "in_progress",
		"form_id":            float64(10),
		"form_name":          "Travel",
		"form_type":          "expense",
		"settlement_type":    "transfer",
		"applicant_code":     "u001",
		"is_content_changed": false,
		"total_amount":       float64(5400),
		"applied_date":       "2024/05/01 09:00:00",
		"customized_items": []any{
			map[string]any{
				"title":   "Destination",
				"content": "Osaka",
				"file": []any{
					map[string]any{"id": "f1", "name": "ticket.pdf", "type": "pdf"},
				},
				"generic_master_record": map[string]any{
					"record_id": float64(3), "code": "GM3", "name": "Venue", "content": "Hall A",
					"additional_items": []any{
						map[string]any{"title": "floor", "content": "2F", "item_type": "text"},
					},
				},
				"table_data": []any{
					[]any{"a", "b"},
					[]any{"c", "d"},
				},
			},
		},
		"expense": map[string]any{
			"amount":               float64(5400),
			"use_suspense_payment": true,
			"specifics": []any{
				map[string]any{
					"type": "transportation", "col_number": float64(2),
					"rows": []any{
						map[string]any{
							"row_number": float64(1), "use_date": "2024/05/01",
							"content_description": "train", "amount": float64(5400),
							"custom_items": []any{
								map[string]any{
									"name": "route", "item_type": "text",
									"values": []any{
										map[string]any{
											"value": "Tokyo-Osaka",
											"extension_items": []any{
												map[string]any{"title": "seat", "content": "reserved"},
											},
										},
									},
								},
							},
							"files": []any{
								map[string]any{"id": "f2", "name": "receipt.jpg", "type": "image"},
							},
						},
					},
				},
			},
		},
		"approval_process": map[string]any{
			"is_returned": false,
			"steps": []any{
				map[string]any{
					"name": "Step 1", "status": "in_progress",
					"approvers": []any{
						map[string]any{"status": "pending", "user_name": "Suzuki"},
					},
					"comments": []any{
						map[string]any{"user_name": "Suzuki", "date": "2024/05/02 10:00:00", "text": "looks fine"},
					},
				},
			},
			"comments_after_completion": []any{
				map[string]any{"user_name": "Sato", "date": "2024/05/03 10:00:00", "text": "archived"},
			},
		},
		"viewers": []any{
			map[string]any{"user_name": "Tanaka", "group_name": "Sales"},
		},
		"modify_logs": []any{
			map[string]any{
				"date": "2024/05/01 12:00:00", "user_name": "Yamada",
				"details": []any{
					map[string]any{
						"title": "amount",
						"specifics": []any{
							map[string]any{"old_value": "5000", "new_value": "5400"},
						},
					},
				},
			},
		},
		"default_attachment_files": []any{
			map[string]any{"id": "f3", "name": "policy.pdf", "type": "pdf"},
			map[string]any{"id": "f3", "name": "policy.pdf", "type": "pdf"},
		},
	}
}

func TestRequestRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.Nil(t, s.UpsertRequest(ctx, sampleRequest()))

	got, err := s.GetRequest(ctx, "sp-100")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "Trip to Osaka", got["title"])
	assert.Equal(t, false, got["is_content_changed"])
	assert.Nil(t, got["payment"])
	assert.Nil(t, got["ec"])

	items := got.List("customized_items")
	require.Len(t, items, 1)
	assert.Equal(t, "Osaka", items[0]["content"])
	require.Len(t, items[0].List("file"), 1)
	assert.Equal(t, "f1", items[0].List("file")[0]["id"])

	gm := items[0].Obj("generic_master_record")
	require.NotNil(t, gm)
	assert.Equal(t, "Venue", gm["name"])
	require.Len(t, gm.List("additional_items"), 1)

	table := items[0].RawList("table_data")
	require.Len(t, table, 2)
	assert.Equal(t, []any{"a", "b"}, table[0])
	assert.Equal(t, []any{"c", "d"}, table[1])

	exp := got.Obj("expense")
	require.NotNil(t, exp)
	assert.Equal(t, true, exp["use_suspense_payment"])
	rows := exp.List("specifics")[0].List("rows")
	require.Len(t, rows, 1)
	values := rows[0].List("custom_items")[0].List("values")
	require.Len(t, values, 1)
	assert.Equal(t, "Tokyo-Osaka", values[0]["value"])
	assert.Equal(t, "reserved", values[0].List("extension_items")[0]["content"])
	assert.Equal(t, "f2", rows[0].List("files")[0]["id"])

	ap := got.Obj("approval_process")
	require.NotNil(t, ap)
	steps := ap.List("steps")
	require.Len(t, steps, 1)
	assert.Equal(t, "Suzuki", steps[0].List("approvers")[0]["user_name"])
	assert.Equal(t, "looks fine", steps[0].List("comments")[0]["text"])
	require.Len(t, ap.List("comments_after_completion"), 1)
	assert.Equal(t, "archived", ap.List("comments_after_completion")[0]["text"])

	logs := got.List("modify_logs")
	require.Len(t, logs, 1)
	specifics := logs[0].List("details")[0].List("specifics")
	assert.Equal(t, "5400", specifics[0]["new_value"])

	// Repeated by its counter.
	defaults := got.List("default_attachment_files")
	require.Len(t, defaults, 2)
	assert.Equal(t, "f3", defaults[0]["id"])
	assert.Equal(t, "f3", defaults[1]["id"])
}

func TestRequestUpsertIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.Nil(t, s.UpsertRequest(ctx, sampleRequest()))
	require.Nil(t, s.UpsertRequest(ctx, sampleRequest()))

	assert.Equal(t, 1, count(t, s, "requests"))
	assert.Equal(t, 1, count(t, s, "customized_items"))
	assert.Equal(t, 4, count(t, s, "table_data"))
	assert.Equal(t, 1, count(t, s, "expense_specific_rows"))
	assert.Equal(t, 1, count(t, s, "generic_masters"))
	assert.Equal(t, 2, count(t, s, "comments"))
	// f1 + f2 + counted f3 association.
	assert.Equal(t, 3, count(t, s, "file_associations"))
	assert.Equal(t, 3, count(t, s, "files"))
}

func TestGetRequestMissing(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetRequest(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInProgressRequests(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	open := sampleRequest()
	require.Nil(t, s.UpsertRequest(ctx, open))

	done := sampleRequest()
	done["id"] = "sp-101"
	done["status"] = "completed"
	require.Nil(t, s.UpsertRequest(ctx, done))

	got, err := s.InProgressRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int][]string{10: {"sp-100"}}, got)
}

func TestUpdateDispatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.Nil(t, s.Update(ctx, "user_v3", Record{"user_code": "u1"}))
	require.Nil(t, s.Update(ctx, "group", Record{"group_code": "g1"}))
	assert.Equal(t, 1, count(t, s, "users"))
	assert.Equal(t, 1, count(t, s, "groups"))

	warn := s.Update(ctx, "request_detail", Record{})
	require.NotNil(t, warn)
}
