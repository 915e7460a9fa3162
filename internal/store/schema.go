package store

// Table DDL for the normalized schema. Natural primary keys carry the
// upsert semantics; child tables key on (parent id, index) so a
// replayed update replaces exactly the rows it saw.

const schemaBasic = `
CREATE TABLE IF NOT EXISTS users (
    user_code TEXT PRIMARY KEY,
    email TEXT,
    last_name TEXT,
    first_name TEXT,
    user_role TEXT,
    memo TEXT,
    is_approver INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_groups (
    user_code TEXT NOT NULL,
    idx INTEGER NOT NULL,
    group_code TEXT,
    group_name TEXT,
    position_code TEXT,
    PRIMARY KEY (user_code, idx),
    FOREIGN KEY (user_code) REFERENCES users(user_code) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_positions (
    user_code TEXT NOT NULL,
    idx INTEGER NOT NULL,
    position_code TEXT,
    position_name TEXT,
    PRIMARY KEY (user_code, idx),
    FOREIGN KEY (user_code) REFERENCES users(user_code) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_bank_accounts (
    user_code TEXT NOT NULL,
    idx INTEGER NOT NULL,
    bank_code TEXT,
    bank_name TEXT,
    branch_code TEXT,
    branch_name TEXT,
    account_type TEXT,
    account_number TEXT,
    account_holder TEXT,
    PRIMARY KEY (user_code, idx),
    FOREIGN KEY (user_code) REFERENCES users(user_code) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS groups (
    group_code TEXT PRIMARY KEY,
    group_name TEXT,
    parent_group_code TEXT,
    description TEXT
);

CREATE TABLE IF NOT EXISTS positions (
    position_code TEXT PRIMARY KEY,
    position_name TEXT,
    description TEXT
);

CREATE TABLE IF NOT EXISTS projects (
    project_code TEXT PRIMARY KEY,
    project_name TEXT
);

CREATE TABLE IF NOT EXISTS companies (
    company_code TEXT PRIMARY KEY,
    company_name TEXT,
    zip_code TEXT,
    address TEXT,
    bank_code TEXT,
    bank_name TEXT,
    branch_code TEXT,
    branch_name TEXT,
    bank_account_type_code TEXT,
    bank_account_code TEXT,
    bank_account_name_kana TEXT
);

CREATE TABLE IF NOT EXISTS forms (
    id INTEGER PRIMARY KEY,
    category TEXT,
    form_type TEXT,
    settlement_type TEXT,
    name TEXT,
    view_type TEXT,
    spending_unit TEXT,
    description TEXT
);

CREATE TABLE IF NOT EXISTS fix_journals (
    id INTEGER PRIMARY KEY,
    journal TEXT
);
`

const schemaRequests = `
CREATE TABLE IF NOT EXISTS requests (
    id TEXT PRIMARY KEY,
    title TEXT,
    status TEXT,
    form_id INTEGER,
    form_name TEXT,
    form_type TEXT,
    settlement_type TEXT,
    applicant_code TEXT,
    applicant_last_name TEXT,
    applicant_first_name TEXT,
    applicant_group_name TEXT,
    applicant_group_code TEXT,
    applicant_position_code TEXT,
    proxy_applicant_last_name TEXT,
    proxy_applicant_first_name TEXT,
    group_name TEXT,
    group_code TEXT,
    project_name TEXT,
    project_code TEXT,
    flow_step_name TEXT,
    is_content_changed INTEGER NOT NULL DEFAULT 0,
    total_amount INTEGER,
    pay_at TEXT,
    final_approval_period TEXT,
    final_approved_date TEXT,
    applied_date TEXT
);

CREATE TABLE IF NOT EXISTS customized_items (
    request_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    title TEXT,
    content TEXT,
    PRIMARY KEY (request_id, idx),
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS table_data (
    request_id TEXT NOT NULL,
    item_idx INTEGER NOT NULL,
    row_idx INTEGER NOT NULL,
    col_idx INTEGER NOT NULL,
    value TEXT,
    PRIMARY KEY (request_id, item_idx, row_idx, col_idx),
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS generic_masters (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    item_idx INTEGER NOT NULL,
    record_id INTEGER,
    code TEXT,
    name TEXT,
    content TEXT,
    UNIQUE (request_id, item_idx),
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS generic_master_additional_items (
    generic_master_id INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    title TEXT,
    content TEXT,
    item_type TEXT,
    PRIMARY KEY (generic_master_id, idx),
    FOREIGN KEY (generic_master_id) REFERENCES generic_masters(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expense (
    request_id TEXT PRIMARY KEY,
    amount INTEGER,
    related_request_id TEXT,
    related_request_title TEXT,
    use_suspense_payment INTEGER NOT NULL DEFAULT 0,
    content_description TEXT,
    advanced_payment INTEGER,
    suspense_payment_amount INTEGER,
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expense_specifics (
    request_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    type TEXT,
    col_number INTEGER,
    PRIMARY KEY (request_id, idx),
    FOREIGN KEY (request_id) REFERENCES expense(request_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expense_specific_rows (
    request_id TEXT NOT NULL,
    specific_idx INTEGER NOT NULL,
    row_number INTEGER NOT NULL,
    use_date TEXT,
    group_name TEXT,
    project_name TEXT,
    content_description TEXT,
    breakdown TEXT,
    amount INTEGER,
    PRIMARY KEY (request_id, specific_idx, row_number),
    FOREIGN KEY (request_id, specific_idx) REFERENCES expense_specifics(request_id, idx) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS custom_items (
    request_id TEXT NOT NULL,
    specific_idx INTEGER NOT NULL,
    row_number INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    name TEXT,
    item_type TEXT,
    PRIMARY KEY (request_id, specific_idx, row_number, idx),
    FOREIGN KEY (request_id, specific_idx, row_number)
        REFERENCES expense_specific_rows(request_id, specific_idx, row_number) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS custom_item_values (
    request_id TEXT NOT NULL,
    specific_idx INTEGER NOT NULL,
    row_number INTEGER NOT NULL,
    item_idx INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    value TEXT,
    PRIMARY KEY (request_id, specific_idx, row_number, item_idx, idx),
    FOREIGN KEY (request_id, specific_idx, row_number, item_idx)
        REFERENCES custom_items(request_id, specific_idx, row_number, idx) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS custom_item_value_extension_items (
    request_id TEXT NOT NULL,
    specific_idx INTEGER NOT NULL,
    row_number INTEGER NOT NULL,
    item_idx INTEGER NOT NULL,
    value_idx INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    title TEXT,
    content TEXT,
    PRIMARY KEY (request_id, specific_idx, row_number, item_idx, value_idx, idx),
    FOREIGN KEY (request_id, specific_idx, row_number, item_idx, value_idx)
        REFERENCES custom_item_values(request_id, specific_idx, row_number, item_idx, idx) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS payment (
    request_id TEXT PRIMARY KEY,
    amount INTEGER,
    content_description TEXT,
    related_request_id TEXT,
    related_request_title TEXT,
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS payment_specifics (
    request_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    company_name TEXT,
    zip_code TEXT,
    address TEXT,
    bank_code TEXT,
    bank_name TEXT,
    branch_code TEXT,
    branch_name TEXT,
    account_type TEXT,
    account_code TEXT,
    account_name TEXT,
    amount INTEGER,
    PRIMARY KEY (request_id, idx),
    FOREIGN KEY (request_id) REFERENCES payment(request_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS payment_specific_rows (
    request_id TEXT NOT NULL,
    specific_idx INTEGER NOT NULL,
    row_number INTEGER NOT NULL,
    use_date TEXT,
    content_description TEXT,
    breakdown TEXT,
    amount INTEGER,
    PRIMARY KEY (request_id, specific_idx, row_number),
    FOREIGN KEY (request_id, specific_idx) REFERENCES payment_specifics(request_id, idx) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS ec (
    request_id TEXT PRIMARY KEY,
    related_request_id TEXT,
    related_request_title TEXT,
    content_description TEXT,
    billing_destination TEXT,
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS ec_specifics (
    request_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    item_name TEXT,
    item_url TEXT,
    PRIMARY KEY (request_id, idx),
    FOREIGN KEY (request_id) REFERENCES ec(request_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS ec_specific_rows (
    request_id TEXT NOT NULL,
    specific_idx INTEGER NOT NULL,
    row_number INTEGER NOT NULL,
    content TEXT,
    quantity INTEGER,
    unit_price INTEGER,
    amount INTEGER,
    PRIMARY KEY (request_id, specific_idx, row_number),
    FOREIGN KEY (request_id, specific_idx) REFERENCES ec_specifics(request_id, idx) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS shipping_address (
    request_id TEXT PRIMARY KEY,
    name TEXT,
    zip_code TEXT,
    address TEXT,
    tel TEXT,
    FOREIGN KEY (request_id) REFERENCES ec(request_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS approval_process (
    request_id TEXT PRIMARY KEY,
    is_returned INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS approval_route_modify_logs (
    request_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    date TEXT,
    user_name TEXT,
    PRIMARY KEY (request_id, idx),
    FOREIGN KEY (request_id) REFERENCES approval_process(request_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS approval_steps (
    request_id TEXT NOT NULL,
    step_idx INTEGER NOT NULL,
    name TEXT,
    condition TEXT,
    status TEXT,
    PRIMARY KEY (request_id, step_idx),
    FOREIGN KEY (request_id) REFERENCES approval_process(request_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS approvers (
    request_id TEXT NOT NULL,
    step_idx INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    status TEXT,
    approved_date TEXT,
    user_name TEXT,
    PRIMARY KEY (request_id, step_idx, idx),
    FOREIGN KEY (request_id, step_idx) REFERENCES approval_steps(request_id, step_idx) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS comments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    user_name TEXT,
    date TEXT,
    text TEXT,
    deleted INTEGER NOT NULL DEFAULT 0,
    UNIQUE (request_id, user_name, date, text),
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS comment_associations (
    comment_id INTEGER PRIMARY KEY,
    request_id TEXT NOT NULL,
    step_idx INTEGER,
    after_completion INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (comment_id) REFERENCES comments(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS viewers (
    request_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    user_name TEXT,
    group_name TEXT,
    position_name TEXT,
    PRIMARY KEY (request_id, idx),
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS modify_logs (
    request_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    date TEXT,
    user_name TEXT,
    PRIMARY KEY (request_id, idx),
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS modify_log_details (
    request_id TEXT NOT NULL,
    log_idx INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    title TEXT,
    PRIMARY KEY (request_id, log_idx, idx),
    FOREIGN KEY (request_id, log_idx) REFERENCES modify_logs(request_id, idx) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS modify_log_detail_specifics (
    request_id TEXT NOT NULL,
    log_idx INTEGER NOT NULL,
    detail_idx INTEGER NOT NULL,
    idx INTEGER NOT NULL,
    old_value TEXT,
    new_value TEXT,
    PRIMARY KEY (request_id, log_idx, detail_idx, idx),
    FOREIGN KEY (request_id, log_idx, detail_idx) REFERENCES modify_log_details(request_id, log_idx, idx) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS files (
    id TEXT PRIMARY KEY,
    name TEXT,
    type TEXT,
    user_name TEXT,
    date TEXT,
    deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS file_associations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id TEXT NOT NULL,
    request_id TEXT NOT NULL,
    customized_item_idx INTEGER,
    expense_row TEXT,
    payment_row TEXT,
    ec_row TEXT,
    approver TEXT,
    comment_id INTEGER,
    default_attachment INTEGER NOT NULL DEFAULT 0,
    UNIQUE (file_id, request_id, customized_item_idx, expense_row, payment_row, ec_row, approver, comment_id),
    FOREIGN KEY (file_id) REFERENCES files(id),
    FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE,
    CHECK (
        (customized_item_idx IS NOT NULL)
      + (expense_row IS NOT NULL)
      + (payment_row IS NOT NULL)
      + (ec_row IS NOT NULL)
      + (approver IS NOT NULL)
      + (comment_id IS NOT NULL)
      + (default_attachment >= 1) = 1
    )
);
`
