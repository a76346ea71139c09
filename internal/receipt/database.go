package receipt

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// dateLayout is the ISO-8601 text form of Receipt.Date in the receipts table
const dateLayout = "2006-01-02T15:04:05"

const uncategorized = "Uncategorized"

// ErrInvalidSort is returned for an unknown sort field or order
var ErrInvalidSort = errors.New("invalid sorting parameters")

// CategoryTotal is the summed spend of one category
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// MonthTotal is the summed spend of one calendar month (YYYY-MM)
type MonthTotal struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

// DB defines the interface for receipt persistence and queries
type DB interface {
	// InsertReceipt appends a validated receipt and returns its id
	InsertReceipt(receipt *Receipt) (int64, error)

	// GetReceipt retrieves a receipt by id
	GetReceipt(id int64) (*Record, error)

	// ListReceipts returns all receipts, newest first
	ListReceipts() ([]*Record, error)

	// DeleteReceipt removes a receipt
	DeleteReceipt(id int64) error

	// SearchReceipts returns receipts whose vendor contains keyword, ignoring case
	SearchReceipts(keyword string) ([]*Record, error)

	// FilterByDateRange returns receipts dated between start and end inclusive
	FilterByDateRange(start, end time.Time) ([]*Record, error)

	// SortReceipts returns all receipts ordered by field ("date" or "amount")
	// in order ("asc" or "desc")
	SortReceipts(field, order string) ([]*Record, error)

	// AggregateByCategory sums amounts per category
	AggregateByCategory() ([]CategoryTotal, error)

	// AggregateByMonth sums amounts per month
	AggregateByMonth() ([]MonthTotal, error)

	// Close closes the database connection
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS receipts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	vendor TEXT NOT NULL,
	date TEXT NOT NULL,
	amount REAL NOT NULL,
	category TEXT
);
CREATE INDEX IF NOT EXISTS idx_vendor ON receipts(vendor);
CREATE INDEX IF NOT EXISTS idx_date ON receipts(date);
`

const selectColumns = `SELECT id, vendor, date, amount, category FROM receipts`

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) the database at path and ensures the schema exists
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// SQLite allows a single writer; one connection keeps writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// InsertReceipt saves a receipt and returns the generated id
func (s *SQLiteDB) InsertReceipt(receipt *Receipt) (int64, error) {
	if err := receipt.Validate(); err != nil {
		return 0, err
	}

	res, err := s.db.Exec(
		`INSERT INTO receipts (vendor, date, amount, category) VALUES (?, ?, ?, ?)`,
		receipt.Vendor,
		receipt.Date.Format(dateLayout),
		receipt.Amount,
		nullableCategory(receipt.Category),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting receipt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading receipt id: %w", err)
	}
	return id, nil
}

// GetReceipt retrieves a receipt by id
func (s *SQLiteDB) GetReceipt(id int64) (*Record, error) {
	row := s.db.QueryRow(selectColumns+` WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListReceipts returns all receipts, newest first
func (s *SQLiteDB) ListReceipts() ([]*Record, error) {
	return s.query(selectColumns + ` ORDER BY date DESC, id DESC`)
}

// DeleteReceipt removes a receipt; deleting a missing id is not an error
func (s *SQLiteDB) DeleteReceipt(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM receipts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	return nil
}

// SearchReceipts returns receipts whose vendor contains keyword
func (s *SQLiteDB) SearchReceipts(keyword string) ([]*Record, error) {
	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"
	return s.query(selectColumns+` WHERE LOWER(vendor) LIKE ? ESCAPE '\' ORDER BY id`, pattern)
}

// FilterByDateRange returns receipts with start <= date <= end
func (s *SQLiteDB) FilterByDateRange(start, end time.Time) ([]*Record, error) {
	return s.query(
		selectColumns+` WHERE date BETWEEN ? AND ? ORDER BY date, id`,
		normalizeDate(start).Format(dateLayout),
		normalizeDate(end).Format(dateLayout),
	)
}

// SortReceipts returns all receipts ordered by date or amount
func (s *SQLiteDB) SortReceipts(field, order string) ([]*Record, error) {
	if field != "date" && field != "amount" {
		return nil, fmt.Errorf("%w: field %q", ErrInvalidSort, field)
	}
	if order != "asc" && order != "desc" {
		return nil, fmt.Errorf("%w: order %q", ErrInvalidSort, order)
	}
	// field and order are whitelisted above
	return s.query(fmt.Sprintf(`%s ORDER BY %s %s, id`, selectColumns, field, strings.ToUpper(order)))
}

// AggregateByCategory sums amounts per category, largest total first.
// Receipts without a category are reported as "Uncategorized".
func (s *SQLiteDB) AggregateByCategory() ([]CategoryTotal, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(category, ?) AS cat, SUM(amount) AS total
		FROM receipts GROUP BY cat ORDER BY total DESC, cat`, uncategorized)
	if err != nil {
		return nil, fmt.Errorf("aggregating by category: %w", err)
	}
	defer rows.Close()

	totals := make([]CategoryTotal, 0)
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.Category, &t.Total); err != nil {
			return nil, fmt.Errorf("scanning category total: %w", err)
		}
		t.Total = roundCents(t.Total)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// AggregateByMonth sums amounts per YYYY-MM, oldest month first
func (s *SQLiteDB) AggregateByMonth() ([]MonthTotal, error) {
	rows, err := s.db.Query(`
		SELECT strftime('%Y-%m', date) AS month, SUM(amount)
		FROM receipts GROUP BY month ORDER BY month`)
	if err != nil {
		return nil, fmt.Errorf("aggregating by month: %w", err)
	}
	defer rows.Close()

	totals := make([]MonthTotal, 0)
	for rows.Next() {
		var t MonthTotal
		if err := rows.Scan(&t.Month, &t.Total); err != nil {
			return nil, fmt.Errorf("scanning month total: %w", err)
		}
		t.Total = roundCents(t.Total)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) query(q string, args ...any) ([]*Record, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receipts: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record   Record
		date     string
		category sql.NullString
	)
	if err := row.Scan(&record.ID, &record.Vendor, &date, &record.Amount, &category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parsing stored date %q: %w", date, err)
	}
	record.Date = parsed
	record.Category = category.String
	return &record, nil
}

func nullableCategory(category string) sql.NullString {
	return sql.NullString{String: category, Valid: category != ""}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
