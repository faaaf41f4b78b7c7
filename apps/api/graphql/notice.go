package gqlapi

import (
	"context"
	"time"

	"github.com/graph-gophers/graphql-go"
	"github.com/pkg/errors"

	"github.com/trezcool/prsonline/core/notice"
)

// Queries

func (r *Resolver) UpcomingReviewNotices(ctx context.Context, args struct{ NoticeStage string }) ([]*noticeResolver, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	stage, err := notice.ParseStage(args.NoticeStage)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	notices, err := r.notices.List(ctx, stage)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return noticeList(notices), nil
}

func (r *Resolver) UpcomingReviewNoticeByID(ctx context.Context, args struct{ ID int32 }) (*noticeResolver, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	n, err := r.notices.Get(ctx, int(args.ID))
	if err != nil {
		if errors.Is(err, notice.ErrNotFound) {
			return nil, nil
		}
		return nil, r.fail(ctx, err)
	}
	return &noticeResolver{n}, nil
}

// Mutations

// UpcomingReviewNotice is the namespace of the notice workflow mutations.
func (r *Resolver) UpcomingReviewNotice(ctx context.Context) (*noticeMutation, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return &noticeMutation{r}, nil
}

type noticeMutation struct {
	r *Resolver
}

type noticeIDsArgs struct {
	UpcomingReviewNoticeIDs []*int32
}

// toIDs drops the null IDs of a list argument.
func toIDs(list []*int32) []int {
	ids := make([]int, 0, len(list))
	for _, id := range list {
		if id != nil {
			ids = append(ids, int(*id))
		}
	}
	return ids
}

type generateArgs struct {
	UpcomingReviewNoticeIDs []*int32
	FromDate                Date
	ToDate                  Date
}

func (m *noticeMutation) Generate(ctx context.Context, args generateArgs) ([]*noticeResolver, error) {
	notices, err := m.r.notices.Generate(ctx, notice.GenerateRequest{
		IDs:      toIDs(args.UpcomingReviewNoticeIDs),
		FromDate: args.FromDate.Time,
		ToDate:   args.ToDate.Time,
	})
	if err != nil {
		return nil, m.r.fail(ctx, err)
	}
	return noticeList(notices), nil
}

func (m *noticeMutation) ReleaseForApproval(ctx context.Context, args noticeIDsArgs) ([]*noticeResolver, error) {
	notices, err := m.r.notices.ReleaseForApproval(ctx, toIDs(args.UpcomingReviewNoticeIDs))
	if err != nil {
		return nil, m.r.fail(ctx, err)
	}
	return noticeList(notices), nil
}

func (m *noticeMutation) ApproveNotices(ctx context.Context, args noticeIDsArgs) ([]*noticeResolver, error) {
	notices, err := m.r.notices.Approve(ctx, toIDs(args.UpcomingReviewNoticeIDs))
	if err != nil {
		return nil, m.r.fail(ctx, err)
	}
	return noticeList(notices), nil
}

type toggleReviewedArgs struct {
	UpcomingReviewNoticeID int32
	NoticeStage            string
}

func (m *noticeMutation) ToggleReviewed(ctx context.Context, args toggleReviewedArgs) (*noticeResolver, error) {
	n, err := m.r.notices.ToggleReviewed(ctx, int(args.UpcomingReviewNoticeID), notice.Stage(args.NoticeStage))
	if err != nil {
		return nil, m.r.fail(ctx, err)
	}
	return &noticeResolver{n}, nil
}

type updateNoticeArgs struct {
	UpcomingReviewNoticeID int32
	NoticeStage            string
	NoticeHTML             *string
	Notes                  *string
}

func (m *noticeMutation) Update(ctx context.Context, args updateNoticeArgs) (*noticeResolver, error) {
	n, err := m.r.notices.Update(ctx, int(args.UpcomingReviewNoticeID), notice.UpdateNotice{
		Stage:      notice.Stage(args.NoticeStage),
		NoticeHTML: args.NoticeHTML,
		Notes:      args.Notes,
	})
	if err != nil {
		return nil, m.r.fail(ctx, err)
	}
	return &noticeResolver{n}, nil
}

// Types

type noticeResolver struct {
	n notice.Notice
}

func noticeList(notices []notice.Notice) []*noticeResolver {
	res := make([]*noticeResolver, 0, len(notices))
	for _, n := range notices {
		res = append(res, &noticeResolver{n})
	}
	return res
}

func (n *noticeResolver) ID() int32                       { return int32(n.n.ID) }
func (n *noticeResolver) Notes() string                   { return n.n.Notes }
func (n *noticeResolver) NoticeHTML() string              { return n.n.NoticeHTML }
func (n *noticeResolver) IsGenerated() bool               { return n.n.IsGenerated }
func (n *noticeResolver) IsModified() bool                { return n.n.IsModified }
func (n *noticeResolver) IsReviewedAtGenerateStage() bool { return n.n.IsReviewedAtGenerateStage }
func (n *noticeResolver) IsReviewedAtApprovalStage() bool { return n.n.IsReviewedAtApprovalStage }
func (n *noticeResolver) IsReleasedForApproval() bool     { return n.n.IsReleasedForApproval }
func (n *noticeResolver) IsApproved() bool                { return n.n.IsApproved }
func (n *noticeResolver) GeneratedAt() *graphql.Time      { return optTime(n.n.GeneratedAt) }
func (n *noticeResolver) ApprovedAt() *graphql.Time       { return optTime(n.n.ApprovedAt) }

func (n *noticeResolver) PracticeReview() *practiceReviewResolver {
	return &practiceReviewResolver{n.n.PracticeReview}
}

type practiceReviewResolver struct {
	pr notice.PracticeReview
}

func (p *practiceReviewResolver) ID() int32                  { return int32(p.pr.ID) }
func (p *practiceReviewResolver) PrNumber() string           { return p.pr.PRNumber }
func (p *practiceReviewResolver) StartDate() Date            { return Date{p.pr.StartDate} }
func (p *practiceReviewResolver) ContactName() string        { return p.pr.ContactName }
func (p *practiceReviewResolver) ContactEmail() string       { return p.pr.ContactEmail }
func (p *practiceReviewResolver) HasValidContactEmail() bool { return p.pr.HasValidContactEmail() }
func (p *practiceReviewResolver) ReviewType() string         { return p.pr.ReviewType }
func (p *practiceReviewResolver) HasIncreasedRisk() bool     { return p.pr.HasIncreasedRisk }
func (p *practiceReviewResolver) Firm() *firmResolver        { return &firmResolver{p.pr.Firm} }

type firmResolver struct {
	f notice.Firm
}

func (f *firmResolver) ID() int32    { return int32(f.f.ID) }
func (f *firmResolver) Name() string { return f.f.Name }

func optTime(t time.Time) *graphql.Time {
	if t.IsZero() {
		return nil
	}
	return &graphql.Time{Time: t}
}
