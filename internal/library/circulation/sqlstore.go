package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"LIBRA-backend/internal/platform/db"
)

// dialect covers the few places where MySQL and SQLite disagree.
type dialect struct {
	timeType  string
	moneyType string
	forUpdate string
	// inlineIndexes: MySQL takes KEY clauses in CREATE TABLE, SQLite needs
	// separate CREATE INDEX statements.
	inlineIndexes bool
	tableOptions  string
}

var (
	mysqlDialect = dialect{
		timeType:      "DATETIME(6)",
		moneyType:     "DECIMAL(12,2)",
		forUpdate:     " FOR UPDATE",
		inlineIndexes: true,
		tableOptions:  " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
	}
	// go-sqlite3 only converts columns declared exactly DATETIME back into
	// time.Time. Money is kept as TEXT so amounts round-trip exactly.
	sqliteDialect = dialect{
		timeType:  "DATETIME",
		moneyType: "TEXT",
	}
)

// SQLStore persists circulation data through database/sql.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// NewSQLStore picks the SQL dialect from driver (db.DriverMySQL or
// db.DriverSQLite).
func NewSQLStore(conn *sql.DB, driver string) (*SQLStore, error) {
	switch driver {
	case db.DriverMySQL, "":
		return &SQLStore{db: conn, d: mysqlDialect}, nil
	case db.DriverSQLite:
		return &SQLStore{db: conn, d: sqliteDialect}, nil
	default:
		return nil, fmt.Errorf("circulation: unsupported driver %q", driver)
	}
}

func (s *SQLStore) RunInTx(ctx context.Context, fn func(ctx context.Context, r Repo) error) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, &sqlRepo{q: tx, d: s.d})
	})
}

func (s *SQLStore) ReadOnly(ctx context.Context, fn func(ctx context.Context, r Repo) error) error {
	return db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, &sqlRepo{q: tx, d: s.d})
	})
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// Migrate creates the circulation tables if they do not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, stmt := range s.d.schema() {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return nil
	})
}

func (d dialect) schema() []string {
	type table struct {
		name    string
		columns []string
		indexes map[string]string
	}
	tables := []table{
		{
			name: "items",
			columns: []string{
				"id VARCHAR(26) NOT NULL PRIMARY KEY",
				"title VARCHAR(255) NOT NULL",
				"author VARCHAR(255) NOT NULL DEFAULT ''",
				"isbn VARCHAR(13) NOT NULL DEFAULT ''",
				"barcode VARCHAR(64) NOT NULL DEFAULT ''",
				"loanable BOOLEAN NOT NULL DEFAULT 1",
				"item_condition INT NOT NULL DEFAULT 4",
				"current_member_id VARCHAR(26) NULL",
				"current_loan_id VARCHAR(26) NULL",
				"created_at " + d.timeType + " NOT NULL",
			},
		},
		{
			name: "members",
			columns: []string{
				"id VARCHAR(26) NOT NULL PRIMARY KEY",
				"name VARCHAR(255) NOT NULL",
				"email VARCHAR(255) NOT NULL DEFAULT ''",
				"phone VARCHAR(32) NOT NULL DEFAULT ''",
				"archived BOOLEAN NOT NULL DEFAULT 0",
				"owed " + d.moneyType + " NOT NULL",
				"created_at " + d.timeType + " NOT NULL",
			},
		},
		{
			name: "loans",
			columns: []string{
				"id VARCHAR(26) NOT NULL PRIMARY KEY",
				"item_id VARCHAR(26) NOT NULL",
				"member_id VARCHAR(26) NOT NULL",
				"start_at " + d.timeType + " NOT NULL",
				"end_at " + d.timeType + " NOT NULL",
				"loaned_at " + d.timeType + " NULL",
				"returned_at " + d.timeType + " NULL",
				"status INT NOT NULL",
				"fine_id VARCHAR(26) NULL",
				"created_at " + d.timeType + " NOT NULL",
			},
			indexes: map[string]string{
				"idx_loans_item":   "item_id",
				"idx_loans_member": "member_id",
			},
		},
		{
			name: "loan_renewals",
			columns: []string{
				"loan_id VARCHAR(26) NOT NULL",
				"seq INT NOT NULL",
				"renewed_at " + d.timeType + " NOT NULL",
				"previous_end " + d.timeType + " NOT NULL",
				"PRIMARY KEY (loan_id, seq)",
			},
		},
		{
			name: "fines",
			columns: []string{
				"id VARCHAR(26) NOT NULL PRIMARY KEY",
				"item_id VARCHAR(26) NOT NULL",
				"loan_id VARCHAR(26) NOT NULL",
				"member_id VARCHAR(26) NOT NULL",
				"amount " + d.moneyType + " NOT NULL",
				"status INT NOT NULL",
				"created_at " + d.timeType + " NOT NULL",
			},
			indexes: map[string]string{
				"idx_fines_member": "member_id",
			},
		},
	}

	var stmts []string
	for _, t := range tables {
		cols := t.columns
		if d.inlineIndexes {
			for name, col := range t.indexes {
				cols = append(cols, fmt.Sprintf("KEY %s (%s)", name, col))
			}
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)%s",
			t.name, strings.Join(cols, ",\n\t"), d.tableOptions))
		if !d.inlineIndexes {
			for name, col := range t.indexes {
				stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, t.name, col))
			}
		}
	}
	return stmts
}

// ---------------------------------------------------------------------------
// Repo
// ---------------------------------------------------------------------------

type sqlRepo struct {
	q db.DBTX
	d dialect
}

type rowScanner interface {
	Scan(dest ...any) error
}

func insertErr(kind ObjectKind, id string, err error) error {
	if db.IsDuplicateKey(err) {
		return NewInvalidArgumentError(fmt.Sprintf("duplicate %s id %s", kind, id))
	}
	return fmt.Errorf("insert %s: %w", kind, err)
}

// oneAffected turns "no row matched" into a not-found error.
func oneAffected(res sql.Result, kind ObjectKind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return NewNotFoundError(kind, id)
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}

// ===== items =====

const itemColumns = `id, title, author, isbn, barcode, loanable, item_condition, current_member_id, current_loan_id, created_at`

func scanItem(row rowScanner) (*Item, error) {
	var (
		it          Item
		holder, lid sql.NullString
	)
	if err := row.Scan(&it.ID, &it.Title, &it.Author, &it.ISBN, &it.Barcode, &it.Loanable,
		&it.Condition, &holder, &lid, &it.CreatedAt); err != nil {
		return nil, err
	}
	it.CurrentMemberID = stringPtr(holder)
	it.CurrentLoanID = stringPtr(lid)
	it.CreatedAt = it.CreatedAt.UTC()
	return &it, nil
}

func (r *sqlRepo) getItem(ctx context.Context, id, suffix string) (*Item, error) {
	q := `SELECT ` + itemColumns + ` FROM items WHERE id = ?` + suffix
	it, err := scanItem(r.q.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewNotFoundError(KindItem, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

func (r *sqlRepo) LockItem(ctx context.Context, id string) (*Item, error) {
	return r.getItem(ctx, id, r.d.forUpdate)
}

func (r *sqlRepo) GetItem(ctx context.Context, id string) (*Item, error) {
	return r.getItem(ctx, id, "")
}

func (r *sqlRepo) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *sqlRepo) InsertItem(ctx context.Context, it *Item) error {
	const q = `INSERT INTO items (` + itemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q, it.ID, it.Title, it.Author, it.ISBN, it.Barcode, it.Loanable,
		int(it.Condition), nullString(it.CurrentMemberID), nullString(it.CurrentLoanID), it.CreatedAt.UTC())
	if err != nil {
		return insertErr(KindItem, it.ID, err)
	}
	return nil
}

func (r *sqlRepo) UpdateItem(ctx context.Context, it *Item) error {
	const q = `
		UPDATE items
		SET title = ?, author = ?, isbn = ?, barcode = ?, loanable = ?, item_condition = ?,
		    current_member_id = ?, current_loan_id = ?
		WHERE id = ?`
	res, err := r.q.ExecContext(ctx, q, it.Title, it.Author, it.ISBN, it.Barcode, it.Loanable,
		int(it.Condition), nullString(it.CurrentMemberID), nullString(it.CurrentLoanID), it.ID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return r.existsAfter(ctx, res, "items", KindItem, it.ID)
}

func (r *sqlRepo) DeleteItem(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return oneAffected(res, KindItem, id)
}

// existsAfter handles MySQL reporting 0 affected rows for an UPDATE that
// changed nothing: only a missing row is an error.
func (r *sqlRepo) existsAfter(ctx context.Context, res sql.Result, table string, kind ObjectKind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = r.q.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return NewNotFoundError(kind, id)
	}
	return err
}

// ===== members =====

const memberColumns = `id, name, email, phone, archived, owed, created_at`

func scanMember(row rowScanner) (*Member, error) {
	var m Member
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Archived, &m.Owed, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (r *sqlRepo) GetMember(ctx context.Context, id string) (*Member, error) {
	m, err := scanMember(r.q.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewNotFoundError(KindMember, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (r *sqlRepo) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *sqlRepo) InsertMember(ctx context.Context, m *Member) error {
	const q = `INSERT INTO members (` + memberColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q, m.ID, m.Name, m.Email, m.Phone, m.Archived, m.Owed.String(), m.CreatedAt.UTC())
	if err != nil {
		return insertErr(KindMember, m.ID, err)
	}
	return nil
}

func (r *sqlRepo) UpdateMember(ctx context.Context, m *Member) error {
	const q = `UPDATE members SET name = ?, email = ?, phone = ?, archived = ?, owed = ? WHERE id = ?`
	res, err := r.q.ExecContext(ctx, q, m.Name, m.Email, m.Phone, m.Archived, m.Owed.String(), m.ID)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return r.existsAfter(ctx, res, "members", KindMember, m.ID)
}

func (r *sqlRepo) DeleteMember(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return oneAffected(res, KindMember, id)
}

// ===== loans =====

const loanColumns = `id, item_id, member_id, start_at, end_at, loaned_at, returned_at, status, fine_id, created_at`

func scanLoan(row rowScanner) (*Loan, error) {
	var (
		l                  Loan
		loanedAt, returned sql.NullTime
		fineID             sql.NullString
	)
	if err := row.Scan(&l.ID, &l.ItemID, &l.MemberID, &l.Start, &l.End, &loanedAt, &returned,
		&l.Status, &fineID, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Start = l.Start.UTC()
	l.End = l.End.UTC()
	l.CreatedAt = l.CreatedAt.UTC()
	l.LoanedAt = timePtr(loanedAt)
	l.ReturnedAt = timePtr(returned)
	l.FineID = stringPtr(fineID)
	return &l, nil
}

func (r *sqlRepo) GetLoan(ctx context.Context, id string) (*Loan, error) {
	loans, err := r.queryLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, NewNotFoundError(KindLoan, id)
	}
	return &loans[0], nil
}

func (r *sqlRepo) LoansByItem(ctx context.Context, itemID string) ([]Loan, error) {
	return r.queryLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE item_id = ? ORDER BY id`, itemID)
}

func (r *sqlRepo) LoansByMember(ctx context.Context, memberID string) ([]Loan, error) {
	return r.queryLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE member_id = ? ORDER BY id`, memberID)
}

func (r *sqlRepo) queryLoans(ctx context.Context, q string, args ...any) ([]Loan, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := r.attachRenewals(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachRenewals loads the renewal history of every loan in one query.
func (r *sqlRepo) attachRenewals(ctx context.Context, loans []Loan) error {
	if len(loans) == 0 {
		return nil
	}
	pos := make(map[string]int, len(loans))
	args := make([]any, 0, len(loans))
	for i := range loans {
		pos[loans[i].ID] = i
		args = append(args, loans[i].ID)
	}
	q := `SELECT loan_id, renewed_at, previous_end FROM loan_renewals WHERE loan_id IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(args)), ",") + `) ORDER BY loan_id, seq`

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("query renewals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			loanID string
			rn     Renewal
		)
		if err := rows.Scan(&loanID, &rn.RenewedAt, &rn.PreviousEnd); err != nil {
			return err
		}
		rn.RenewedAt = rn.RenewedAt.UTC()
		rn.PreviousEnd = rn.PreviousEnd.UTC()
		i := pos[loanID]
		loans[i].Renewals = append(loans[i].Renewals, rn)
	}
	return rows.Err()
}

func (r *sqlRepo) InsertLoan(ctx context.Context, l *Loan) error {
	const q = `INSERT INTO loans (` + loanColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q, l.ID, l.ItemID, l.MemberID, l.Start.UTC(), l.End.UTC(),
		nullTime(l.LoanedAt), nullTime(l.ReturnedAt), int(l.Status), nullString(l.FineID), l.CreatedAt.UTC())
	if err != nil {
		return insertErr(KindLoan, l.ID, err)
	}
	return r.writeRenewals(ctx, l)
}

func (r *sqlRepo) UpdateLoan(ctx context.Context, l *Loan) error {
	const q = `
		UPDATE loans
		SET start_at = ?, end_at = ?, loaned_at = ?, returned_at = ?, status = ?, fine_id = ?
		WHERE id = ?`
	res, err := r.q.ExecContext(ctx, q, l.Start.UTC(), l.End.UTC(), nullTime(l.LoanedAt), nullTime(l.ReturnedAt),
		int(l.Status), nullString(l.FineID), l.ID)
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}
	if err := r.existsAfter(ctx, res, "loans", KindLoan, l.ID); err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM loan_renewals WHERE loan_id = ?`, l.ID); err != nil {
		return fmt.Errorf("clear renewals: %w", err)
	}
	return r.writeRenewals(ctx, l)
}

func (r *sqlRepo) writeRenewals(ctx context.Context, l *Loan) error {
	const q = `INSERT INTO loan_renewals (loan_id, seq, renewed_at, previous_end) VALUES (?, ?, ?, ?)`
	for i, rn := range l.Renewals {
		if _, err := r.q.ExecContext(ctx, q, l.ID, i, rn.RenewedAt.UTC(), rn.PreviousEnd.UTC()); err != nil {
			return fmt.Errorf("insert renewal: %w", err)
		}
	}
	return nil
}

func (r *sqlRepo) DeleteLoan(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM loan_renewals WHERE loan_id = ?`, id); err != nil {
		return fmt.Errorf("delete renewals: %w", err)
	}
	res, err := r.q.ExecContext(ctx, `DELETE FROM loans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	return oneAffected(res, KindLoan, id)
}

// ===== fines =====

const fineColumns = `id, item_id, loan_id, member_id, amount, status, created_at`

func scanFine(row rowScanner) (*Fine, error) {
	var f Fine
	if err := row.Scan(&f.ID, &f.ItemID, &f.LoanID, &f.MemberID, &f.Amount, &f.Status, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}

func (r *sqlRepo) GetFine(ctx context.Context, id string) (*Fine, error) {
	f, err := scanFine(r.q.QueryRowContext(ctx, `SELECT `+fineColumns+` FROM fines WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewNotFoundError(KindFine, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get fine: %w", err)
	}
	return f, nil
}

func (r *sqlRepo) FinesByMember(ctx context.Context, memberID string) ([]Fine, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+fineColumns+` FROM fines WHERE member_id = ? ORDER BY id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list fines: %w", err)
	}
	defer rows.Close()

	var out []Fine
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *sqlRepo) InsertFine(ctx context.Context, f *Fine) error {
	const q = `INSERT INTO fines (` + fineColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q, f.ID, f.ItemID, f.LoanID, f.MemberID, f.Amount.String(), int(f.Status), f.CreatedAt.UTC())
	if err != nil {
		return insertErr(KindFine, f.ID, err)
	}
	return nil
}

func (r *sqlRepo) UpdateFine(ctx context.Context, f *Fine) error {
	res, err := r.q.ExecContext(ctx, `UPDATE fines SET amount = ?, status = ? WHERE id = ?`, f.Amount.String(), int(f.Status), f.ID)
	if err != nil {
		return fmt.Errorf("update fine: %w", err)
	}
	return r.existsAfter(ctx, res, "fines", KindFine, f.ID)
}

func (r *sqlRepo) DeleteFine(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM fines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete fine: %w", err)
	}
	return oneAffected(res, KindFine, id)
}
