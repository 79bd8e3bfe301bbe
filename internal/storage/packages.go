package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sgamolt/clawmarket/internal/model"
)

const pkgColumns = `id, name, version, description, category, author_id, status,
	review_status, review_note, security_score, agent_summary,
	pipeline_status, pipeline_error, pipeline_completed_at,
	enhanced_description, tools_summary, auto_category,
	card_image_base64, logo_base64,
	tools_count, downloads, credentials, sha256, published_at`

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (model.Package, error) {
	var (
		p             model.Package
		toolsSummary  []byte
		credentials   []byte
		reviewStatus  string
		pipelineState string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Version, &p.Description, &p.Category, &p.AuthorID, &p.Status,
		&reviewStatus, &p.ReviewNote, &p.SecurityScore, &p.AgentSummary,
		&pipelineState, &p.PipelineError, &p.PipelineCompletedAt,
		&p.EnhancedDescription, &toolsSummary, &p.AutoCategory,
		&p.CardImageBase64, &p.LogoBase64,
		&p.ToolsCount, &p.Downloads, &credentials, &p.SHA256, &p.PublishedAt,
	)
	if err != nil {
		return model.Package{}, err
	}
	p.ReviewStatus = model.ReviewStatus(reviewStatus)
	p.PipelineStatus = model.PipelineStatus(pipelineState)
	if len(toolsSummary) > 0 {
		if err := json.Unmarshal(toolsSummary, &p.ToolsSummary); err != nil {
			return model.Package{}, fmt.Errorf("storage: decode tools summary: %w", err)
		}
	}
	if len(credentials) > 0 {
		if err := json.Unmarshal(credentials, &p.Credentials); err != nil {
			return model.Package{}, fmt.Errorf("storage: decode credentials: %w", err)
		}
	}
	return p, nil
}

func collectPackages(rows pgx.Rows) ([]model.Package, error) {
	defer rows.Close()
	var pkgs []model.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan package: %w", err)
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, rows.Err()
}

// CreatePackage inserts a new package and returns it.
func (db *DB) CreatePackage(ctx context.Context, p model.Package) (model.Package, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	if p.ReviewStatus == "" {
		p.ReviewStatus = model.ReviewPending
	}
	if p.PipelineStatus == "" {
		p.PipelineStatus = model.PipelinePending
	}
	if p.Status == "" {
		p.Status = "published"
	}

	var credentials any
	if p.Credentials != nil {
		b, err := json.Marshal(p.Credentials)
		if err != nil {
			return model.Package{}, fmt.Errorf("storage: encode credentials: %w", err)
		}
		credentials = b
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO packages (id, name, version, description, category, author_id, status,
			review_status, security_score, pipeline_status, tools_count, downloads,
			credentials, sha256, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Name, p.Version, p.Description, p.Category, p.AuthorID, p.Status,
		string(p.ReviewStatus), p.SecurityScore, string(p.PipelineStatus),
		p.ToolsCount, p.Downloads, credentials, p.SHA256, p.PublishedAt,
	)
	if err != nil {
		return model.Package{}, fmt.Errorf("storage: create package: %w", err)
	}
	return p, nil
}

// GetPackage retrieves a package by ID.
func (db *DB) GetPackage(ctx context.Context, id uuid.UUID) (model.Package, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+pkgColumns+` FROM packages WHERE id = $1`, id)
	p, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Package{}, ErrNotFound
		}
		return model.Package{}, fmt.Errorf("storage: get package: %w", err)
	}
	return p, nil
}

// ListPackages returns approved packages, newest first, optionally filtered by
// a name/description substring and a category.
func (db *DB) ListPackages(ctx context.Context, query, category string) ([]model.Package, error) {
	sql := `SELECT ` + pkgColumns + ` FROM packages WHERE review_status = 'approved'`
	args := []any{}
	if query != "" {
		args = append(args, "%"+query+"%")
		sql += fmt.Sprintf(` AND (name ILIKE $%d OR description ILIKE $%d)`, len(args), len(args))
	}
	if category != "" {
		args = append(args, category)
		sql += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	sql += ` ORDER BY published_at DESC`

	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list packages: %w", err)
	}
	return collectPackages(rows)
}

// ListPackagesByReviewStatus returns all packages with the given review status,
// oldest first so the pipeline sweep processes submissions in arrival order.
func (db *DB) ListPackagesByReviewStatus(ctx context.Context, status model.ReviewStatus) ([]model.Package, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+pkgColumns+` FROM packages WHERE review_status = $1 ORDER BY published_at ASC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("storage: list packages by review status: %w", err)
	}
	return collectPackages(rows)
}

// ListReviewQueue returns packages awaiting attention (pending or flagged),
// newest first, optionally narrowed to a single status.
func (db *DB) ListReviewQueue(ctx context.Context, status string) ([]model.Package, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = db.pool.Query(ctx,
			`SELECT `+pkgColumns+` FROM packages WHERE review_status = $1 ORDER BY published_at DESC`, status)
	} else {
		rows, err = db.pool.Query(ctx,
			`SELECT `+pkgColumns+` FROM packages
			 WHERE review_status IN ('pending_review', 'needs_human_review')
			 ORDER BY published_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list review queue: %w", err)
	}
	return collectPackages(rows)
}

// ListOtherPackageNames returns the names of all packages except the given one.
func (db *DB) ListOtherPackageNames(ctx context.Context, exclude uuid.UUID) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT name FROM packages WHERE id <> $1`, exclude)
	if err != nil {
		return nil, fmt.Errorf("storage: list package names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("storage: scan package name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// SetPipelineStatus persists the stage the pipeline is about to execute.
func (db *DB) SetPipelineStatus(ctx context.Context, id uuid.UUID, status model.PipelineStatus) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE packages SET pipeline_status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("storage: set pipeline status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompletePipeline marks the pipeline finished, clearing any previous error.
func (db *DB) CompletePipeline(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE packages SET pipeline_status = 'completed', pipeline_error = NULL,
			pipeline_completed_at = $1 WHERE id = $2`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("storage: complete pipeline: %w", err)
	}
	return nil
}

// FailPipeline marks the pipeline failed with the given error message.
func (db *DB) FailPipeline(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE packages SET pipeline_status = 'failed', pipeline_error = $1 WHERE id = $2`,
		msg, id)
	if err != nil {
		return fmt.Errorf("storage: fail pipeline: %w", err)
	}
	return nil
}

// UpdateReviewResult persists the outcome of the review stage.
func (db *DB) UpdateReviewResult(ctx context.Context, id uuid.UUID, status model.ReviewStatus, score int, note, summary string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE packages SET review_status = $1, security_score = $2, review_note = $3,
			agent_summary = $4 WHERE id = $5`,
		string(status), score, note, summary, id)
	if err != nil {
		return fmt.Errorf("storage: update review result: %w", err)
	}
	return nil
}

// UpdateClassification records the suggested category. The primary category is
// only replaced when apply is true; the raw suggestion is always kept.
func (db *DB) UpdateClassification(ctx context.Context, id uuid.UUID, suggestion string, apply bool) error {
	var err error
	if apply {
		_, err = db.pool.Exec(ctx,
			`UPDATE packages SET category = $1, auto_category = $1 WHERE id = $2`, suggestion, id)
	} else {
		_, err = db.pool.Exec(ctx,
			`UPDATE packages SET auto_category = $1 WHERE id = $2`, suggestion, id)
	}
	if err != nil {
		return fmt.Errorf("storage: update classification: %w", err)
	}
	return nil
}

// UpdateEnhancement persists the enhanced description and tool summaries.
func (db *DB) UpdateEnhancement(ctx context.Context, id uuid.UUID, description string, tools []model.ToolSummaryItem) error {
	b, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("storage: encode tools summary: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`UPDATE packages SET enhanced_description = $1, tools_summary = $2 WHERE id = $3`,
		description, b, id)
	if err != nil {
		return fmt.Errorf("storage: update enhancement: %w", err)
	}
	return nil
}

// UpdateLogo stores the generated logo data URI, or NULL when nil.
func (db *DB) UpdateLogo(ctx context.Context, id uuid.UUID, dataURI *string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE packages SET logo_base64 = $1 WHERE id = $2`, dataURI, id)
	if err != nil {
		return fmt.Errorf("storage: update logo: %w", err)
	}
	return nil
}

// UpdateCardImage stores the generated card banner data URI, or NULL when nil.
func (db *DB) UpdateCardImage(ctx context.Context, id uuid.UUID, dataURI *string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE packages SET card_image_base64 = $1 WHERE id = $2`, dataURI, id)
	if err != nil {
		return fmt.Errorf("storage: update card image: %w", err)
	}
	return nil
}

// SetReviewDecision applies a manual admin approve/reject decision.
func (db *DB) SetReviewDecision(ctx context.Context, id uuid.UUID, status model.ReviewStatus, reason *string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE packages SET review_status = $1, review_note = $2 WHERE id = $3`,
		string(status), reason, id)
	if err != nil {
		return fmt.Errorf("storage: set review decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementDownloads adds one download and returns the new total.
func (db *DB) IncrementDownloads(ctx context.Context, id uuid.UUID) (int, error) {
	var downloads int
	err := db.pool.QueryRow(ctx,
		`UPDATE packages SET downloads = downloads + 1 WHERE id = $1 RETURNING downloads`, id,
	).Scan(&downloads)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("storage: increment downloads: %w", err)
	}
	return downloads, nil
}

// CountPackagesByAuthor returns the number of packages a user has published.
func (db *DB) CountPackagesByAuthor(ctx context.Context, authorID uuid.UUID) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM packages WHERE author_id = $1`, authorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count packages by author: %w", err)
	}
	return n, nil
}

// CountPackagesByReviewStatus returns the number of packages in a review state.
func (db *DB) CountPackagesByReviewStatus(ctx context.Context, status model.ReviewStatus) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM packages WHERE review_status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count packages by review status: %w", err)
	}
	return n, nil
}

// CountPackagesPublishedSince returns the number of packages published after t.
func (db *DB) CountPackagesPublishedSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM packages WHERE published_at > $1`, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count packages published since: %w", err)
	}
	return n, nil
}

// SumDownloads returns the total downloads across all packages.
func (db *DB) SumDownloads(ctx context.Context) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(downloads), 0) FROM packages`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: sum downloads: %w", err)
	}
	return n, nil
}

// SumToolsCount returns the total tool count across approved packages.
func (db *DB) SumToolsCount(ctx context.Context) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(tools_count), 0) FROM packages WHERE review_status = 'approved'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: sum tools count: %w", err)
	}
	return n, nil
}

// TopPackagesByDownloads returns the n approved packages with the most downloads.
func (db *DB) TopPackagesByDownloads(ctx context.Context, n int) ([]model.Package, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+pkgColumns+` FROM packages WHERE review_status = 'approved'
		 ORDER BY downloads DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("storage: top packages by downloads: %w", err)
	}
	return collectPackages(rows)
}

// LatestApprovedPackage returns the most recently published approved package.
func (db *DB) LatestApprovedPackage(ctx context.Context) (model.Package, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+pkgColumns+` FROM packages WHERE review_status = 'approved'
		 ORDER BY published_at DESC LIMIT 1`)
	p, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Package{}, ErrNotFound
		}
		return model.Package{}, fmt.Errorf("storage: latest approved package: %w", err)
	}
	return p, nil
}

// TrendingPackage returns the approved package published after `since` with the
// most downloads, provided it exceeds minDownloads.
func (db *DB) TrendingPackage(ctx context.Context, since time.Time, minDownloads int) (model.Package, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+pkgColumns+` FROM packages
		 WHERE review_status = 'approved' AND published_at > $1 AND downloads > $2
		 ORDER BY downloads DESC LIMIT 1`, since, minDownloads)
	p, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Package{}, ErrNotFound
		}
		return model.Package{}, fmt.Errorf("storage: trending package: %w", err)
	}
	return p, nil
}

// StaleApprovedPackages returns approved packages published before the cutoff
// with no newer same-name version, oldest first, capped at limit.
func (db *DB) StaleApprovedPackages(ctx context.Context, cutoff time.Time, limit int) ([]model.Package, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+pkgColumns+` FROM packages p
		 WHERE p.review_status = 'approved' AND p.published_at < $1
		   AND NOT EXISTS (
			SELECT 1 FROM packages q
			WHERE q.name = p.name AND q.published_at > p.published_at
		   )
		 ORDER BY p.published_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: stale approved packages: %w", err)
	}
	return collectPackages(rows)
}
