// Package lawdb stores the Criminal Law of the PRC in SQLite and answers
// lookups by article number, paragraph, cause of action and content.
package lawdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Article is one article with its paragraphs in order.
type Article struct {
	Code       int      `yaml:"code" json:"code"`
	Cause      string   `yaml:"cause,omitempty" json:"cause,omitempty"`
	Paragraphs []string `yaml:"paragraphs" json:"paragraphs"`
}

// Store SQLite-backed article store
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the store at dbPath.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}
	return store, nil
}

func (s *Store) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS paragraphs (
			article_code INTEGER NOT NULL,
			paragraph_code INTEGER NOT NULL,
			cause TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			PRIMARY KEY (article_code, paragraph_code)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_paragraphs_cause ON paragraphs(cause)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %s, error: %w", query, err)
		}
	}
	return nil
}

// Upsert writes articles, replacing existing paragraphs of the same articles.
func (s *Store) Upsert(ctx context.Context, articles []Article) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	del, err := tx.PrepareContext(ctx, "DELETE FROM paragraphs WHERE article_code = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx,
		"INSERT INTO paragraphs (article_code, paragraph_code, cause, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer ins.Close()

	for _, a := range articles {
		if a.Code <= 0 {
			return fmt.Errorf("invalid article code %d", a.Code)
		}
		if len(a.Paragraphs) == 0 {
			return fmt.Errorf("article %d has no paragraphs", a.Code)
		}
		if _, err := del.ExecContext(ctx, a.Code); err != nil {
			return fmt.Errorf("failed to replace article %d: %w", a.Code, err)
		}
		for i, p := range a.Paragraphs {
			if _, err := ins.ExecContext(ctx, a.Code, i+1, strings.TrimSpace(a.Cause), strings.TrimSpace(p)); err != nil {
				return fmt.Errorf("failed to save article %d: %w", a.Code, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Count returns the number of stored articles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT article_code) FROM paragraphs").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return n, nil
}

// Article returns a whole article, or nil when it does not exist.
func (s *Store) Article(ctx context.Context, code int) (*Article, error) {
	articles, err := s.query(ctx, "WHERE article_code = ?", code)
	if err != nil || len(articles) == 0 {
		return nil, err
	}
	return articles[0], nil
}

// Paragraph returns one paragraph of an article, or "" when absent.
func (s *Store) Paragraph(ctx context.Context, code, paragraph int) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM paragraphs WHERE article_code = ? AND paragraph_code = ?",
		code, paragraph,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get paragraph: %w", err)
	}
	return content, nil
}

// ByCause returns the articles whose cause of action equals name.
func (s *Store) ByCause(ctx context.Context, name string) ([]*Article, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return s.query(ctx, "WHERE article_code IN (SELECT article_code FROM paragraphs WHERE cause = ?)", name)
}

// SearchContent returns articles containing term. With vague set any
// substring match counts; otherwise the term must equal a paragraph or the
// article's cause of action.
func (s *Store) SearchContent(ctx context.Context, term string, vague bool) ([]*Article, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	if vague {
		like := "%" + escapeLike(term) + "%"
		return s.query(ctx,
			`WHERE article_code IN (SELECT article_code FROM paragraphs
			 WHERE content LIKE ? ESCAPE '\' OR cause LIKE ? ESCAPE '\')`, like, like)
	}
	return s.query(ctx,
		"WHERE article_code IN (SELECT article_code FROM paragraphs WHERE content = ? OR cause = ?)", term, term)
}

// All returns every article in code order.
func (s *Store) All(ctx context.Context) ([]*Article, error) {
	return s.query(ctx, "")
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]*Article, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT article_code, paragraph_code, cause, content FROM paragraphs "+where+
			" ORDER BY article_code, paragraph_code", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []*Article
	var current *Article
	for rows.Next() {
		var code, paragraph int
		var cause, content string
		if err := rows.Scan(&code, &paragraph, &cause, &content); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		if current == nil || current.Code != code {
			current = &Article{Code: code, Cause: cause}
			articles = append(articles, current)
		}
		current.Paragraphs = append(current.Paragraphs, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read articles: %w", err)
	}
	return articles, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Format renders an article: heading line, then its paragraphs.
func Format(a *Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "第%s条", Numeral(a.Code))
	if a.Cause != "" {
		fmt.Fprintf(&b, "【%s】", a.Cause)
	}
	for _, p := range a.Paragraphs {
		b.WriteString("\n")
		b.WriteString(p)
	}
	return b.String()
}
