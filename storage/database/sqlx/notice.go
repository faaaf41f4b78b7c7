package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/prsonline/core/notice"
)

const (
	selectPracticeReviews = `
SELECT pr.id, pr.pr_number, pr.start_date, pr.contact_name, pr.contact_email, pr.review_type, pr.has_increased_risk,
       f.id AS firm_id, f.name AS firm_name
FROM practice_reviews pr
JOIN firms f ON f.id = pr.firm_id`

	selectNotices = `
SELECT n.id, n.notes, n.notice_html, n.is_generated, n.is_modified, n.is_reviewed_at_generate_stage,
       n.is_reviewed_at_approval_stage, n.is_released_for_approval, n.is_approved, n.generated_at, n.approved_at,
       n.created_at, n.updated_at,
       pr.id AS pr_id, pr.pr_number, pr.start_date, pr.contact_name, pr.contact_email, pr.review_type,
       pr.has_increased_risk, f.id AS firm_id, f.name AS firm_name
FROM upcoming_review_notices n
JOIN practice_reviews pr ON pr.id = n.practice_review_id
JOIN firms f ON f.id = pr.firm_id`

	orderByStartDate = " ORDER BY pr.start_date, n.id"
)

type dbPracticeReview struct {
	ID               int       `db:"id"`
	PRNumber         string    `db:"pr_number"`
	StartDate        time.Time `db:"start_date"`
	ContactName      string    `db:"contact_name"`
	ContactEmail     string    `db:"contact_email"`
	ReviewType       string    `db:"review_type"`
	HasIncreasedRisk bool      `db:"has_increased_risk"`
	FirmID           int       `db:"firm_id"`
	FirmName         string    `db:"firm_name"`
}

func (pr dbPracticeReview) toPracticeReview() notice.PracticeReview {
	y, m, d := pr.StartDate.Date()
	return notice.PracticeReview{
		ID:               pr.ID,
		PRNumber:         pr.PRNumber,
		StartDate:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		ContactName:      pr.ContactName,
		ContactEmail:     pr.ContactEmail,
		ReviewType:       pr.ReviewType,
		HasIncreasedRisk: pr.HasIncreasedRisk,
		Firm:             notice.Firm{ID: pr.FirmID, Name: pr.FirmName},
	}
}

type dbNotice struct {
	ID                        int       `db:"id"`
	Notes                     string    `db:"notes"`
	NoticeHTML                string    `db:"notice_html"`
	IsGenerated               bool      `db:"is_generated"`
	IsModified                bool      `db:"is_modified"`
	IsReviewedAtGenerateStage bool      `db:"is_reviewed_at_generate_stage"`
	IsReviewedAtApprovalStage bool      `db:"is_reviewed_at_approval_stage"`
	IsReleasedForApproval     bool      `db:"is_released_for_approval"`
	IsApproved                bool      `db:"is_approved"`
	GeneratedAt               null.Time `db:"generated_at"`
	ApprovedAt                null.Time `db:"approved_at"`
	CreatedAt                 time.Time `db:"created_at"`
	UpdatedAt                 time.Time `db:"updated_at"`

	PRID             int       `db:"pr_id"`
	PRNumber         string    `db:"pr_number"`
	StartDate        time.Time `db:"start_date"`
	ContactName      string    `db:"contact_name"`
	ContactEmail     string    `db:"contact_email"`
	ReviewType       string    `db:"review_type"`
	HasIncreasedRisk bool      `db:"has_increased_risk"`
	FirmID           int       `db:"firm_id"`
	FirmName         string    `db:"firm_name"`
}

func (n dbNotice) toNotice() notice.Notice {
	pr := dbPracticeReview{
		ID:               n.PRID,
		PRNumber:         n.PRNumber,
		StartDate:        n.StartDate,
		ContactName:      n.ContactName,
		ContactEmail:     n.ContactEmail,
		ReviewType:       n.ReviewType,
		HasIncreasedRisk: n.HasIncreasedRisk,
		FirmID:           n.FirmID,
		FirmName:         n.FirmName,
	}
	utc := func(t null.Time) time.Time {
		if !t.Valid {
			return time.Time{}
		}
		return t.Time.UTC()
	}
	return notice.Notice{
		ID:                        n.ID,
		PracticeReview:            pr.toPracticeReview(),
		Notes:                     n.Notes,
		NoticeHTML:                n.NoticeHTML,
		IsGenerated:               n.IsGenerated,
		IsModified:                n.IsModified,
		IsReviewedAtGenerateStage: n.IsReviewedAtGenerateStage,
		IsReviewedAtApprovalStage: n.IsReviewedAtApprovalStage,
		IsReleasedForApproval:     n.IsReleasedForApproval,
		IsApproved:                n.IsApproved,
		GeneratedAt:               utc(n.GeneratedAt),
		ApprovedAt:                utc(n.ApprovedAt),
		CreatedAt:                 n.CreatedAt.UTC(),
		UpdatedAt:                 n.UpdatedAt.UTC(),
	}
}

func toNotices(rows []dbNotice) []notice.Notice {
	notices := make([]notice.Notice, 0, len(rows))
	for _, r := range rows {
		notices = append(notices, r.toNotice())
	}
	return notices
}

type NoticeRepository struct {
	db *sqlx.DB
}

var _ notice.Repository = (*NoticeRepository)(nil)

func NewNoticeRepository(db *sqlx.DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// stageCondition returns the SQL condition selecting the notices in stage.
func stageCondition(stage notice.Stage) string {
	switch stage {
	case notice.StageGenerate:
		return "NOT n.is_released_for_approval AND NOT n.is_approved"
	case notice.StageApprove:
		return "n.is_released_for_approval AND NOT n.is_approved"
	}
	return ""
}

func (repo *NoticeRepository) QueryNotices(ctx context.Context, filter notice.QueryFilter) ([]notice.Notice, error) {
	var conds []string
	var args []interface{}
	if cond := stageCondition(filter.Stage); cond != "" {
		conds = append(conds, cond)
	}
	if filter.IDs != nil {
		args = append(args, pq.Array(filter.IDs))
		conds = append(conds, "n.id = ANY($1)")
	}

	q := selectNotices
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	var rows []dbNotice
	if err := repo.db.SelectContext(ctx, &rows, q+orderByStartDate, args...); err != nil {
		return nil, errors.Wrap(err, "selecting notices")
	}
	return toNotices(rows), nil
}

func (repo *NoticeRepository) GetNotice(ctx context.Context, id int) (notice.Notice, error) {
	var row dbNotice
	err := repo.db.GetContext(ctx, &row, selectNotices+" WHERE n.id = $1", id)
	if err == sql.ErrNoRows {
		return notice.Notice{}, notice.ErrNotFound
	} else if err != nil {
		return notice.Notice{}, errors.Wrap(err, "selecting notice")
	}
	return row.toNotice(), nil
}

func (repo *NoticeRepository) UpdateNotices(ctx context.Context, ids []int, fn func(n *notice.Notice) (bool, error)) ([]notice.Notice, error) {
	if len(ids) == 0 {
		return []notice.Notice{}, nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	var rows []dbNotice
	q := selectNotices + " WHERE n.id = ANY($1)" + orderByStartDate + " FOR UPDATE OF n"
	if err := tx.SelectContext(ctx, &rows, q, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "locking notices")
	}

	changed := make([]notice.Notice, 0, len(rows))
	for _, n := range toNotices(rows) {
		n := n
		ok, err := fn(&n)
		if err != nil {
			return nil, err
		}
		if ok {
			changed = append(changed, n)
		}
	}

	upd := `UPDATE upcoming_review_notices
	        SET notes = $2, notice_html = $3, is_generated = $4, is_modified = $5, is_reviewed_at_generate_stage = $6,
	            is_reviewed_at_approval_stage = $7, is_released_for_approval = $8, is_approved = $9,
	            generated_at = $10, approved_at = $11, updated_at = $12
	        WHERE id = $1`
	for _, n := range changed {
		_, err := tx.ExecContext(ctx, upd,
			n.ID, n.Notes, n.NoticeHTML, n.IsGenerated, n.IsModified, n.IsReviewedAtGenerateStage,
			n.IsReviewedAtApprovalStage, n.IsReleasedForApproval, n.IsApproved,
			null.NewTime(n.GeneratedAt, !n.GeneratedAt.IsZero()),
			null.NewTime(n.ApprovedAt, !n.ApprovedAt.IsZero()),
			n.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "updating notice %d", n.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing notices")
	}
	return changed, nil
}

func (repo *NoticeRepository) CreateNotices(ctx context.Context, prIDs []int) (int, error) {
	if len(prIDs) == 0 {
		return 0, nil
	}
	q := `INSERT INTO upcoming_review_notices (practice_review_id)
	      SELECT pr.id FROM practice_reviews pr WHERE pr.id = ANY($1)
	      ON CONFLICT (practice_review_id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, q, pq.Array(prIDs))
	if err != nil {
		return 0, errors.Wrap(err, "inserting notices")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "inserting notices")
	}
	return int(n), nil
}

func (repo *NoticeRepository) QueryPracticeReviews(ctx context.Context, filter notice.PracticeReviewFilter) ([]notice.PracticeReview, error) {
	var conds []string
	var args []interface{}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, "pr.start_date >= $1")
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("pr.start_date <= $%d", len(args)))
	}
	if filter.WithoutNotice {
		conds = append(conds, "NOT EXISTS (SELECT 1 FROM upcoming_review_notices n WHERE n.practice_review_id = pr.id)")
	}

	q := selectPracticeReviews
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	var rows []dbPracticeReview
	if err := repo.db.SelectContext(ctx, &rows, q+" ORDER BY pr.start_date, pr.id", args...); err != nil {
		return nil, errors.Wrap(err, "selecting practice reviews")
	}
	prs := make([]notice.PracticeReview, 0, len(rows))
	for _, r := range rows {
		prs = append(prs, r.toPracticeReview())
	}
	return prs, nil
}

// CreateFirm and CreatePracticeReview are seeding helpers.

func (repo *NoticeRepository) CreateFirm(ctx context.Context, name string) (notice.Firm, error) {
	f := notice.Firm{Name: name}
	if err := repo.db.QueryRowxContext(ctx, "INSERT INTO firms (name) VALUES ($1) RETURNING id", name).Scan(&f.ID); err != nil {
		return notice.Firm{}, errors.Wrap(err, "inserting firm")
	}
	return f, nil
}

func (repo *NoticeRepository) CreatePracticeReview(ctx context.Context, pr notice.PracticeReview) (notice.PracticeReview, error) {
	q := `INSERT INTO practice_reviews (pr_number, firm_id, start_date, contact_name, contact_email, review_type, has_increased_risk)
	      VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := repo.db.QueryRowxContext(ctx, q,
		pr.PRNumber, pr.Firm.ID, pr.StartDate.Format("2006-01-02"), pr.ContactName, pr.ContactEmail, pr.ReviewType,
		pr.HasIncreasedRisk,
	).Scan(&pr.ID)
	if err != nil {
		return notice.PracticeReview{}, errors.Wrap(err, "inserting practice review")
	}
	return pr, nil
}
