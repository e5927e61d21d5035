package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/model"
)

// ProjectRepo covers the external gig side of `projects` and the click log.
type ProjectRepo struct{ DB *sql.DB }

func NewProjectRepo(db *sql.DB) *ProjectRepo { return &ProjectRepo{DB: db} }

const projectColumns = `id,creator_id,title,description,status,project_origin,external_url,expires_at,source_name,currency,
budget_min,budget_max,delivery_time_min,delivery_time_max,skills_required,industries,deleted_at,created_at,updated_at`

func scanProject(s rowScanner) (model.Project, error) {
	var p model.Project
	var creator, desc, url, source, currency sql.NullString
	var expires, deleted sql.NullTime
	var bmin, bmax sql.NullFloat64
	var dmin, dmax sql.NullInt64
	var status string
	err := s.Scan(&p.ID, &creator, &p.Title, &desc, &status, &p.ProjectOrigin, &url, &expires, &source, &currency,
		&bmin, &bmax, &dmin, &dmax, &p.SkillsRequired, &p.Industries, &deleted, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Status = model.ProjectStatus(status)
	p.CreatorID, p.Description, p.ExternalURL = nullStr(creator), nullStr(desc), nullStr(url)
	p.SourceName, p.Currency = nullStr(source), nullStr(currency)
	p.ExpiresAt, p.DeletedAt = nullTime(expires), nullTime(deleted)
	p.BudgetMin, p.BudgetMax = nullFloat(bmin), nullFloat(bmax)
	p.DeliveryTimeMin, p.DeliveryTimeMax = nullInt(dmin), nullInt(dmax)
	return p, nil
}

// ExternalFilter narrows the staff listing of external gigs.
type ExternalFilter struct {
	Statuses []model.ProjectStatus
	// Expiry is "active", "expired" or "" for both.
	Expiry string
	Search string
	Now    time.Time
}

// ListExternal returns live (not soft-deleted) external gigs, most
// recently updated first.
func (r *ProjectRepo) ListExternal(ctx context.Context, f ExternalFilter) ([]model.Project, error) {
	var b strings.Builder
	b.WriteString("SELECT " + projectColumns + " FROM projects WHERE project_origin='external' AND deleted_at IS NULL")
	args := []any{}
	if len(f.Statuses) > 0 {
		b.WriteString(" AND status IN (" + placeholders(len(f.Statuses)) + ")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	switch f.Expiry {
	case "active":
		b.WriteString(" AND (expires_at IS NULL OR expires_at > ?)")
		args = append(args, f.Now)
	case "expired":
		b.WriteString(" AND expires_at IS NOT NULL AND expires_at <= ?")
		args = append(args, f.Now)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + escapeLike(s) + "%"
		b.WriteString(" AND (title LIKE ? OR description LIKE ? OR source_name LIKE ?)")
		args = append(args, like, like, like)
	}
	b.WriteString(" ORDER BY updated_at DESC")

	rows, err := r.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// GetByID returns the project or ErrNotFound.
func (r *ProjectRepo) GetByID(ctx context.Context, id uint64) (model.Project, error) {
	p, err := scanProject(r.DB.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// CreateExternal inserts an external gig without a creator.
func (r *ProjectRepo) CreateExternal(ctx context.Context, p *model.Project) error {
	now := time.Now().UTC()
	p.ProjectOrigin = model.OriginExternal
	p.CreatorID = nil
	if p.SkillsRequired == nil {
		p.SkillsRequired = model.IntList{}
	}
	if p.Industries == nil {
		p.Industries = model.IntList{}
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO projects (creator_id, title, description, status, project_origin, external_url, expires_at, source_name,
		 currency, budget_min, budget_max, delivery_time_min, delivery_time_max, skills_required, industries, created_at, updated_at)
		 VALUES (NULL,?,?,?,'external',?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.Title, ptrOrNil(p.Description), string(p.Status), ptrOrNil(p.ExternalURL), ptrOrNil(p.ExpiresAt),
		ptrOrNil(p.SourceName), ptrOrNil(p.Currency), ptrOrNil(p.BudgetMin), ptrOrNil(p.BudgetMax),
		ptrOrNil(p.DeliveryTimeMin), ptrOrNil(p.DeliveryTimeMax), p.SkillsRequired, p.Industries, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

// UpdateExternal applies the given column values to an external gig and
// returns the updated row.  Keys must be column names; callers validate
// them.
func (r *ProjectRepo) UpdateExternal(ctx context.Context, id uint64, fields map[string]any, order []string) (model.Project, error) {
	if _, err := r.getExternal(ctx, id); err != nil {
		return model.Project{}, err
	}
	sets, args := "", []any{}
	for _, col := range order {
		v, ok := fields[col]
		if !ok {
			continue
		}
		sets += col + "=?, "
		args = append(args, v)
	}
	args = append(args, time.Now().UTC(), id)
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE projects SET "+sets+"updated_at=? WHERE id=? AND project_origin='external'", args...); err != nil {
		return model.Project{}, err
	}
	return r.GetByID(ctx, id)
}

// SoftDelete cancels an external gig and stamps deleted_at.
func (r *ProjectRepo) SoftDelete(ctx context.Context, id uint64) (time.Time, error) {
	if _, err := r.getExternal(ctx, id); err != nil {
		return time.Time{}, err
	}
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		"UPDATE projects SET status='cancelled', deleted_at=?, updated_at=? WHERE id=? AND project_origin='external'",
		now, now, id)
	return now, err
}

func (r *ProjectRepo) getExternal(ctx context.Context, id uint64) (model.Project, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return p, err
	}
	if p.ProjectOrigin != model.OriginExternal {
		return p, ErrNotFound
	}
	return p, nil
}

// InsertClick appends to the click log and returns the new id.
func (r *ProjectRepo) InsertClick(ctx context.Context, projectID uint64, userID string, src model.ClickSource) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO external_gig_clicks (project_id, user_id, click_source, created_at) VALUES (?,?,?,?)",
		projectID, userID, string(src), time.Now().UTC())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

// ClickRange bounds click queries by created_at; zero values are open.
type ClickRange struct {
	From time.Time
	To   time.Time
}

func (cr ClickRange) where(b *strings.Builder, args []any) []any {
	if !cr.From.IsZero() {
		b.WriteString(" AND c.created_at >= ?")
		args = append(args, cr.From)
	}
	if !cr.To.IsZero() {
		b.WriteString(" AND c.created_at <= ?")
		args = append(args, cr.To)
	}
	return args
}

// ClickerRecord is one click joined with the clicking user.
type ClickerRecord struct {
	UserID      string
	FirstName   *string
	LastName    *string
	Email       *string
	ClickSource model.ClickSource
	CreatedAt   time.Time
}

// ClicksForProject returns every click on a project, oldest first.
func (r *ProjectRepo) ClicksForProject(ctx context.Context, projectID uint64, cr ClickRange) ([]ClickerRecord, error) {
	var b strings.Builder
	b.WriteString(`SELECT c.user_id, u.first_name, u.last_name, u.email, c.click_source, c.created_at
		FROM external_gig_clicks c LEFT JOIN users u ON u.id = c.user_id WHERE c.project_id=?`)
	args := cr.where(&b, []any{projectID})
	b.WriteString(" ORDER BY c.created_at ASC")
	rows, err := r.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ClickerRecord{}
	for rows.Next() {
		var c ClickerRecord
		var first, last, email sql.NullString
		var src string
		if err := rows.Scan(&c.UserID, &first, &last, &email, &src, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.FirstName, c.LastName, c.Email = nullStr(first), nullStr(last), nullStr(email)
		c.ClickSource = model.ClickSource(src)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClickSummary aggregates clicks for one project.
type ClickSummary struct {
	ProjectID        uint64 `json:"project_id"`
	ProjectTitle     string `json:"project_title"`
	UniqueClickCount int    `json:"unique_click_count"`
	TotalClicks      int    `json:"total_clicks"`
}

// ClickSummaries aggregates clicks per project, most unique clickers first.
func (r *ProjectRepo) ClickSummaries(ctx context.Context, cr ClickRange) ([]ClickSummary, error) {
	var b strings.Builder
	b.WriteString(`SELECT c.project_id, COALESCE(p.title, ''), COUNT(DISTINCT c.user_id), COUNT(*)
		FROM external_gig_clicks c LEFT JOIN projects p ON p.id = c.project_id WHERE 1=1`)
	args := cr.where(&b, nil)
	b.WriteString(" GROUP BY c.project_id, p.title ORDER BY COUNT(DISTINCT c.user_id) DESC, c.project_id ASC")
	rows, err := r.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ClickSummary{}
	for rows.Next() {
		var s ClickSummary
		if err := rows.Scan(&s.ProjectID, &s.ProjectTitle, &s.UniqueClickCount, &s.TotalClicks); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
