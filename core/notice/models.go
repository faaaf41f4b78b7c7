package notice

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Stage of the upcoming review notice workflow.
type Stage string

const (
	StageGenerate Stage = "GenerateNotices"
	StageApprove  Stage = "ApproveNotices"
)

var (
	Stages = []Stage{StageGenerate, StageApprove}

	emailValidate = validator.New()
)

func ParseStage(s string) (Stage, error) {
	for _, stage := range Stages {
		if string(stage) == s {
			return stage, nil
		}
	}
	return "", errors.Wrapf(ErrInvalidStage, "%q", s)
}

type Firm struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type PracticeReview struct {
	ID               int       `json:"id"`
	PRNumber         string    `json:"prNumber"`
	StartDate        time.Time `json:"startDate"`
	ContactName      string    `json:"contactName"`
	ContactEmail     string    `json:"contactEmail"`
	ReviewType       string    `json:"reviewType"`
	HasIncreasedRisk bool      `json:"hasIncreasedRisk"`
	Firm             Firm      `json:"firm"`
}

func (pr PracticeReview) HasValidContactEmail() bool {
	email := strings.TrimSpace(pr.ContactEmail)
	return email != "" && emailValidate.Var(email, "email") == nil
}

type Notice struct {
	ID                        int            `json:"id"`
	PracticeReview            PracticeReview `json:"practiceReview"`
	Notes                     string         `json:"notes"`
	NoticeHTML                string         `json:"noticeHtml"`
	IsGenerated               bool           `json:"isGenerated"`
	IsModified                bool           `json:"isModified"`
	IsReviewedAtGenerateStage bool           `json:"isReviewedAtGenerateStage"`
	IsReviewedAtApprovalStage bool           `json:"isReviewedAtApprovalStage"`
	IsReleasedForApproval     bool           `json:"isReleasedForApproval"`
	IsApproved                bool           `json:"isApproved"`
	GeneratedAt               time.Time      `json:"generatedAt"` // UTC; zero until generated
	ApprovedAt                time.Time      `json:"approvedAt"`  // UTC; zero until approved
	CreatedAt                 time.Time      `json:"createdAt"`
	UpdatedAt                 time.Time      `json:"updatedAt"`
}

// Stage returns the stage the notice is in; approved notices are in none.
func (n Notice) Stage() Stage {
	switch {
	case n.IsApproved:
		return ""
	case n.IsReleasedForApproval:
		return StageApprove
	default:
		return StageGenerate
	}
}

func (n Notice) IsReviewedAt(stage Stage) bool {
	if stage == StageApprove {
		return n.IsReviewedAtApprovalStage
	}
	return n.IsReviewedAtGenerateStage
}

func (n *Notice) setReviewedAt(stage Stage, reviewed bool) {
	if stage == StageApprove {
		n.IsReviewedAtApprovalStage = reviewed
	} else {
		n.IsReviewedAtGenerateStage = reviewed
	}
}

// checkEditable checks that n may be modified in stage.
func (n Notice) checkEditable(stage Stage) error {
	if n.IsApproved {
		return ErrApproved
	}
	if !n.IsGenerated {
		return ErrNotGenerated
	}
	if n.Stage() != stage {
		return ErrWrongStage
	}
	return nil
}

// QueryFilter applies AND operation on the set fields.
type QueryFilter struct {
	Stage Stage
	IDs   []int // nil matches any ID
}

type PracticeReviewFilter struct {
	From          time.Time
	To            time.Time
	WithoutNotice bool
}

// GenerateRequest selects the notices to generate; no IDs selects every notice of the Generate stage.
type GenerateRequest struct {
	IDs      []int
	FromDate time.Time `json:"fromDate" validate:"required"`
	ToDate   time.Time `json:"toDate" validate:"required,gtefield=FromDate"`
}

// UpdateNotice defines what may be edited on a generated notice.
type UpdateNotice struct {
	Stage      Stage
	NoticeHTML *string
	Notes      *string
}

// dateOnly truncates t to its day (UTC).
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func inRange(t, from, to time.Time) bool {
	day := dateOnly(t)
	return !day.Before(dateOnly(from)) && !day.After(dateOnly(to))
}
