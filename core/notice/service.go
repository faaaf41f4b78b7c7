package notice

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/prsonline/core"
)

type (
	Repository interface {
		// QueryNotices returns the notices matching the filter, ordered by practice review start date.
		QueryNotices(ctx context.Context, filter QueryFilter) ([]Notice, error)
		GetNotice(ctx context.Context, id int) (Notice, error)
		// UpdateNotices locks the notices with the given IDs for the duration of a transaction and calls
		// fn on each of them; those for which fn returns true are saved. An error from fn rolls back.
		// It returns the saved notices ordered by practice review start date.
		UpdateNotices(ctx context.Context, ids []int, fn func(n *Notice) (bool, error)) ([]Notice, error)
		// CreateNotices creates a notice for each of the practice reviews; returns the number created.
		CreateNotices(ctx context.Context, prIDs []int) (int, error)
		QueryPracticeReviews(ctx context.Context, filter PracticeReviewFilter) ([]PracticeReview, error)
	}

	// Observer is notified of the workflow transitions (ex: metrics).
	Observer interface {
		ObserveNoticeTransition(action string, count int)
	}

	Service struct {
		repo     Repository
		renderer *Renderer
		mailSvc  core.EmailService
		validate *validator.Validate
		logger   core.Logger
		observer Observer
		workers  int
	}
)

var NowFunc = time.Now // mockable

func NewService(
	conf *core.Config,
	repo Repository,
	renderer *Renderer,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
	observer Observer,
) *Service {
	workers := conf.Notices.GenerateWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		repo:     repo,
		renderer: renderer,
		mailSvc:  mailSvc,
		validate: validate,
		logger:   logger,
		observer: observer,
		workers:  workers,
	}
}

func (svc *Service) observe(action string, count int) {
	if svc.observer != nil && count > 0 {
		svc.observer.ObserveNoticeTransition(action, count)
	}
}

// List returns the notices currently in stage.
func (svc *Service) List(ctx context.Context, stage Stage) ([]Notice, error) {
	if _, err := ParseStage(string(stage)); err != nil {
		return nil, err
	}
	return svc.repo.QueryNotices(ctx, QueryFilter{Stage: stage})
}

func (svc *Service) Get(ctx context.Context, id int) (Notice, error) {
	return svc.repo.GetNotice(ctx, id)
}

// Generate renders the letters of the selected Generate stage notices whose practice review starts
// within [FromDate, ToDate]. Generated notices need a new review.
func (svc *Service) Generate(ctx context.Context, req GenerateRequest) ([]Notice, error) {
	if err := svc.validate.Struct(req); err != nil {
		return nil, err
	}

	filter := QueryFilter{Stage: StageGenerate}
	if len(req.IDs) > 0 {
		filter.IDs = req.IDs
	}
	candidates, err := svc.repo.QueryNotices(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying notices")
	}
	selected := make([]Notice, 0, len(candidates))
	for _, n := range candidates {
		if inRange(n.PracticeReview.StartDate, req.FromDate, req.ToDate) {
			selected = append(selected, n)
		}
	}
	if len(selected) == 0 {
		return []Notice{}, nil
	}

	rendered, err := svc.renderAll(ctx, selected)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(selected))
	for _, n := range selected {
		ids = append(ids, n.ID)
	}
	now := NowFunc().UTC()
	generated, err := svc.repo.UpdateNotices(ctx, ids, func(n *Notice) (bool, error) {
		html, ok := rendered[n.ID]
		if !ok || n.Stage() != StageGenerate {
			return false, nil
		}
		n.NoticeHTML = html
		n.IsGenerated = true
		n.IsModified = false
		n.IsReviewedAtGenerateStage = false
		n.GeneratedAt = now
		n.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "saving generated notices")
	}
	svc.observe("generate", len(generated))
	return generated, nil
}

// renderAll renders the notices concurrently, with at most svc.workers renderings at a time.
func (svc *Service) renderAll(ctx context.Context, notices []Notice) (map[int]string, error) {
	var mu sync.Mutex
	rendered := make(map[int]string, len(notices))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.workers)
	for _, n := range notices {
		n := n
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			html, err := svc.renderer.Render(n)
			if err != nil {
				return err
			}
			mu.Lock()
			rendered[n.ID] = html
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "rendering notices")
	}
	return rendered, nil
}

// ToggleReviewed flips the reviewed checkbox of a generated notice in its current stage.
func (svc *Service) ToggleReviewed(ctx context.Context, id int, stage Stage) (Notice, error) {
	if _, err := ParseStage(string(stage)); err != nil {
		return Notice{}, err
	}
	updated, err := svc.repo.UpdateNotices(ctx, []int{id}, func(n *Notice) (bool, error) {
		if err := n.checkEditable(stage); err != nil {
			return false, err
		}
		n.setReviewedAt(stage, !n.IsReviewedAt(stage))
		n.UpdatedAt = NowFunc().UTC()
		return true, nil
	})
	if err != nil {
		return Notice{}, err
	}
	if len(updated) == 0 {
		return Notice{}, ErrNotFound
	}
	svc.observe("toggle_reviewed", 1)
	return updated[0], nil
}

// ReleaseForApproval moves the generated and reviewed notices among ids to the Approve stage.
// Other notices are left untouched.
func (svc *Service) ReleaseForApproval(ctx context.Context, ids []int) ([]Notice, error) {
	if len(ids) == 0 {
		return []Notice{}, nil
	}
	now := NowFunc().UTC()
	released, err := svc.repo.UpdateNotices(ctx, ids, func(n *Notice) (bool, error) {
		if n.Stage() != StageGenerate || !n.IsGenerated || !n.IsReviewedAtGenerateStage {
			return false, nil
		}
		n.IsReleasedForApproval = true
		n.IsReviewedAtApprovalStage = false
		n.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "releasing notices")
	}
	svc.observe("release", len(released))
	return released, nil
}

// Approve approves the released notices among ids that were reviewed at the Approve stage and sends
// each of them to its practice review contact. Other notices are left untouched.
func (svc *Service) Approve(ctx context.Context, ids []int) ([]Notice, error) {
	if len(ids) == 0 {
		return []Notice{}, nil
	}
	now := NowFunc().UTC()
	approved, err := svc.repo.UpdateNotices(ctx, ids, func(n *Notice) (bool, error) {
		if n.Stage() != StageApprove || !n.IsReviewedAtApprovalStage {
			return false, nil
		}
		n.IsApproved = true
		n.ApprovedAt = now
		n.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "approving notices")
	}
	svc.observe("approve", len(approved))
	svc.sendNotices(approved)
	return approved, nil
}

type reviewNoticeMailData struct {
	ContactName string
	PRNumber    string
	FirmName    string
	StartDate   string
}

func (svc *Service) sendNotices(notices []Notice) {
	messages := make([]*core.EmailMessage, 0, len(notices))
	for _, n := range notices {
		pr := n.PracticeReview
		if !pr.HasValidContactEmail() {
			svc.logger.Warn(fmt.Sprintf("notice %d approved without a valid contact email", n.ID),
				map[string]interface{}{"pr": pr.PRNumber, "email": pr.ContactEmail})
			continue
		}
		msg := &core.EmailMessage{
			To:           []mail.Address{{Name: pr.ContactName, Address: strings.TrimSpace(pr.ContactEmail)}},
			Subject:      fmt.Sprintf("Upcoming practice review %s", pr.PRNumber),
			TemplateName: "review_notice",
			TemplateData: reviewNoticeMailData{
				ContactName: pr.ContactName,
				PRNumber:    pr.PRNumber,
				FirmName:    pr.Firm.Name,
				StartDate:   pr.StartDate.Format("January 2, 2006"),
			},
		}
		filename := fmt.Sprintf("notice-%s.html", pr.PRNumber)
		if err := msg.Attach(strings.NewReader(n.NoticeHTML), filename, "text/html"); err != nil {
			svc.logger.Error(fmt.Sprintf("attaching notice %d: %v", n.ID, err), err)
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}

// Update edits a generated notice in its current stage. Changing the letter marks the notice as modified;
// any edit clears the reviewed checkbox of the stage.
func (svc *Service) Update(ctx context.Context, id int, un UpdateNotice) (Notice, error) {
	if _, err := ParseStage(string(un.Stage)); err != nil {
		return Notice{}, err
	}
	updated, err := svc.repo.UpdateNotices(ctx, []int{id}, func(n *Notice) (bool, error) {
		if err := n.checkEditable(un.Stage); err != nil {
			return false, err
		}
		if un.NoticeHTML != nil && *un.NoticeHTML != n.NoticeHTML {
			n.NoticeHTML = *un.NoticeHTML
			n.IsModified = true
		}
		if un.Notes != nil {
			n.Notes = *un.Notes
		}
		n.setReviewedAt(un.Stage, false)
		n.UpdatedAt = NowFunc().UTC()
		return true, nil
	})
	if err != nil {
		return Notice{}, err
	}
	if len(updated) == 0 {
		return Notice{}, ErrNotFound
	}
	svc.observe("update", 1)
	return updated[0], nil
}

// Schedule creates the notices of the practice reviews starting within [from, to] that have none.
func (svc *Service) Schedule(ctx context.Context, from, to time.Time) (int, error) {
	if from.After(to) {
		return 0, core.NewFieldError("to", "must be after from")
	}
	prs, err := svc.repo.QueryPracticeReviews(ctx, PracticeReviewFilter{
		From:          dateOnly(from),
		To:            dateOnly(to),
		WithoutNotice: true,
	})
	if err != nil {
		return 0, errors.Wrap(err, "querying practice reviews")
	}
	if len(prs) == 0 {
		return 0, nil
	}
	prIDs := make([]int, 0, len(prs))
	for _, pr := range prs {
		prIDs = append(prIDs, pr.ID)
	}
	n, err := svc.repo.CreateNotices(ctx, prIDs)
	if err != nil {
		return 0, errors.Wrap(err, "creating notices")
	}
	svc.observe("schedule", n)
	return n, nil
}
