// Package postgres provides the Postgres-backed persistence sink.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weapply/jobharvest/internal/model"
	"github.com/weapply/jobharvest/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store writes normalized job records into Postgres.
type Store struct {
	pool dbPool
}

// NewStore connects a pool and verifies the database is reachable. An
// unreachable destination at startup is an unrecoverable configuration
// error and must abort the run.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a Store from an existing pool (primarily for
// testing with pgxmock).
func NewStoreWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Setup provisions the destination schema without fetching anything.
func (s *Store) Setup(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// JobCount returns the number of persisted parent rows.
func (s *Store) JobCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM weapply.jobs").Scan(&count); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return count, nil
}

const upsertJobSQL = `
INSERT INTO weapply.jobs (
	id, title, slug, is_new, is_favorite, is_vip, created_at, deadline_at,
	salary_amount, salary_text, hide_company, view_count, phone,
	company_id, company_title, company_slug, company_logo, company_logo_mini,
	company_first_char, company_has_story, company_summary, company_text,
	company_address, company_vacancy_count, company_cover, company_lat, company_lng,
	category_id, category_title, category_image_mini,
	text_content, text_content_clean, request_type, direct_apply,
	apply_link, has_company_info
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
	$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36
)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	slug = EXCLUDED.slug,
	is_new = EXCLUDED.is_new,
	is_favorite = EXCLUDED.is_favorite,
	is_vip = EXCLUDED.is_vip,
	created_at = EXCLUDED.created_at,
	deadline_at = EXCLUDED.deadline_at,
	salary_amount = EXCLUDED.salary_amount,
	salary_text = EXCLUDED.salary_text,
	hide_company = EXCLUDED.hide_company,
	view_count = EXCLUDED.view_count,
	phone = EXCLUDED.phone,
	company_id = EXCLUDED.company_id,
	company_title = EXCLUDED.company_title,
	company_slug = EXCLUDED.company_slug,
	company_logo = EXCLUDED.company_logo,
	company_logo_mini = EXCLUDED.company_logo_mini,
	company_first_char = EXCLUDED.company_first_char,
	company_has_story = EXCLUDED.company_has_story,
	company_summary = EXCLUDED.company_summary,
	company_text = EXCLUDED.company_text,
	company_address = EXCLUDED.company_address,
	company_vacancy_count = EXCLUDED.company_vacancy_count,
	company_cover = EXCLUDED.company_cover,
	company_lat = EXCLUDED.company_lat,
	company_lng = EXCLUDED.company_lng,
	category_id = EXCLUDED.category_id,
	category_title = EXCLUDED.category_title,
	category_image_mini = EXCLUDED.category_image_mini,
	text_content = EXCLUDED.text_content,
	text_content_clean = EXCLUDED.text_content_clean,
	request_type = EXCLUDED.request_type,
	direct_apply = EXCLUDED.direct_apply,
	apply_link = EXCLUDED.apply_link,
	has_company_info = EXCLUDED.has_company_info,
	updated_at = NOW()`

// UpsertJob writes the parent row and replaces every child collection in a
// single transaction. Any failure rolls the whole unit back and is reported
// as a per-record PersistError.
func (s *Store) UpsertJob(ctx context.Context, rec model.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres store is not configured")
	}
	job := rec.Job
	if job.ID <= 0 {
		return &storage.PersistError{JobID: job.ID, Err: fmt.Errorf("job id must be positive")}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &storage.PersistError{JobID: job.ID, Err: fmt.Errorf("begin: %w", err)}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertJobSQL,
		job.ID, job.Title, job.Slug, job.IsNew, job.IsFavorite, job.IsVip,
		job.CreatedAt, job.DeadlineAt, job.SalaryAmount, job.SalaryText,
		job.HideCompany, job.ViewCount, job.Phone,
		job.CompanyID, job.CompanyTitle, job.CompanySlug, job.CompanyLogo,
		job.CompanyLogoMini, job.CompanyFirstChar, job.CompanyHasStory,
		job.CompanySummary, job.CompanyText, job.CompanyAddress,
		job.CompanyVacancyCount, job.CompanyCover, job.CompanyLat, job.CompanyLng,
		job.CategoryID, job.CategoryTitle, job.CategoryImageMini,
		job.TextContent, job.TextContentClean, job.RequestType, job.DirectApply,
		job.ApplyLink, job.HasCompanyInfo,
	); err != nil {
		return &storage.PersistError{JobID: job.ID, Err: fmt.Errorf("upsert parent: %w", err)}
	}

	if err := s.replaceChildren(ctx, tx, job.ID, rec.Children); err != nil {
		return &storage.PersistError{JobID: job.ID, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &storage.PersistError{JobID: job.ID, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// replaceChildren deletes every existing child row for the parent and
// inserts the current set: replace semantics, never merge.
func (s *Store) replaceChildren(ctx context.Context, tx pgx.Tx, jobID int, children model.Children) error {
	for _, table := range []string{
		"weapply.company_phones",
		"weapply.company_websites",
		"weapply.company_emails",
		"weapply.company_industries",
		"weapply.company_gallery",
		"weapply.job_files",
	} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE job_id = $1", jobID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, p := range children.Phones {
		if _, err := tx.Exec(ctx,
			"INSERT INTO weapply.company_phones (job_id, phone) VALUES ($1, $2)",
			jobID, p.Phone); err != nil {
			return fmt.Errorf("insert phone: %w", err)
		}
	}
	for _, w := range children.Websites {
		if _, err := tx.Exec(ctx,
			"INSERT INTO weapply.company_websites (job_id, url, title) VALUES ($1, $2, $3)",
			jobID, w.URL, w.Title); err != nil {
			return fmt.Errorf("insert website: %w", err)
		}
	}
	for _, e := range children.Emails {
		if _, err := tx.Exec(ctx,
			"INSERT INTO weapply.company_emails (job_id, email) VALUES ($1, $2)",
			jobID, e.Email); err != nil {
			return fmt.Errorf("insert email: %w", err)
		}
	}
	for _, ind := range children.Industries {
		if _, err := tx.Exec(ctx,
			"INSERT INTO weapply.company_industries (job_id, industry_id, industry_title, industry_image_mini) VALUES ($1, $2, $3, $4)",
			jobID, ind.ID, ind.Title, ind.ImageMini); err != nil {
			return fmt.Errorf("insert industry: %w", err)
		}
	}
	for _, img := range children.Gallery {
		if _, err := tx.Exec(ctx,
			"INSERT INTO weapply.company_gallery (job_id, image_url) VALUES ($1, $2)",
			jobID, img.URL); err != nil {
			return fmt.Errorf("insert gallery image: %w", err)
		}
	}
	for _, f := range children.Files {
		if _, err := tx.Exec(ctx,
			"INSERT INTO weapply.job_files (job_id, file_url, file_name, file_type) VALUES ($1, $2, $3, $4)",
			jobID, f.URL, f.Name, f.Type); err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
	}
	return nil
}
