package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/prsonline/core/notice"
)

type NoticeRepository struct {
	db *DB
}

var _ notice.Repository = (*NoticeRepository)(nil)

func NewNoticeRepository(db *DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// CreateFirm is a seeding helper.
func (repo *NoticeRepository) CreateFirm(name string) notice.Firm {
	repo.db.Lock()
	defer repo.db.Unlock()

	f := notice.Firm{ID: repo.db.nextPK(), Name: name}
	repo.db.firms[f.ID] = &f
	return f
}

// CreatePracticeReview is a seeding helper; pr.Firm must have been created with CreateFirm.
func (repo *NoticeRepository) CreatePracticeReview(pr notice.PracticeReview) notice.PracticeReview {
	repo.db.Lock()
	defer repo.db.Unlock()

	pr.ID = repo.db.nextPK()
	repo.db.prs[pr.ID] = &pr
	return pr
}

// load must be called with the lock held.
func (repo *NoticeRepository) load(row *noticeRow) notice.Notice {
	n := row.Notice
	if pr, ok := repo.db.prs[row.prID]; ok {
		n.PracticeReview = *pr
		if f, ok := repo.db.firms[pr.Firm.ID]; ok {
			n.PracticeReview.Firm = *f
		}
	}
	return n
}

func sortByStartDate(notices []notice.Notice) {
	sort.SliceStable(notices, func(i, j int) bool {
		di, dj := notices[i].PracticeReview.StartDate, notices[j].PracticeReview.StartDate
		if di.Equal(dj) {
			return notices[i].ID < notices[j].ID
		}
		return di.Before(dj)
	})
}

func (repo *NoticeRepository) QueryNotices(_ context.Context, filter notice.QueryFilter) ([]notice.Notice, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var ids map[int]bool
	if filter.IDs != nil {
		ids = make(map[int]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	notices := make([]notice.Notice, 0)
	for _, row := range repo.db.notices {
		if ids != nil && !ids[row.ID] {
			continue
		}
		n := repo.load(row)
		if filter.Stage != "" && n.Stage() != filter.Stage {
			continue
		}
		notices = append(notices, n)
	}
	sortByStartDate(notices)
	return notices, nil
}

func (repo *NoticeRepository) GetNotice(_ context.Context, id int) (notice.Notice, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	row, ok := repo.db.notices[id]
	if !ok {
		return notice.Notice{}, notice.ErrNotFound
	}
	return repo.load(row), nil
}

func (repo *NoticeRepository) UpdateNotices(_ context.Context, ids []int, fn func(n *notice.Notice) (bool, error)) ([]notice.Notice, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	locked := make([]notice.Notice, 0, len(ids))
	for _, id := range ids {
		if row, ok := repo.db.notices[id]; ok {
			locked = append(locked, repo.load(row))
		}
	}
	sortByStartDate(locked)

	// apply every change before saving any, to roll back on error
	changed := make([]notice.Notice, 0, len(locked))
	for _, n := range locked {
		n := n
		ok, err := fn(&n)
		if err != nil {
			return nil, err
		}
		if ok {
			changed = append(changed, n)
		}
	}
	for _, n := range changed {
		row := repo.db.notices[n.ID]
		row.Notice = n
	}
	return changed, nil
}

func (repo *NoticeRepository) CreateNotices(_ context.Context, prIDs []int) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing := make(map[int]bool, len(repo.db.notices))
	for _, row := range repo.db.notices {
		existing[row.prID] = true
	}
	var created int
	for _, prID := range prIDs {
		if existing[prID] {
			continue
		}
		if _, ok := repo.db.prs[prID]; !ok {
			continue
		}
		id := repo.db.nextPK()
		repo.db.notices[id] = &noticeRow{Notice: notice.Notice{ID: id}, prID: prID}
		existing[prID] = true
		created++
	}
	return created, nil
}

func (repo *NoticeRepository) QueryPracticeReviews(_ context.Context, filter notice.PracticeReviewFilter) ([]notice.PracticeReview, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	withNotice := make(map[int]bool, len(repo.db.notices))
	for _, row := range repo.db.notices {
		withNotice[row.prID] = true
	}

	prs := make([]notice.PracticeReview, 0)
	for _, pr := range repo.db.prs {
		if !filter.From.IsZero() && pr.StartDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && pr.StartDate.After(filter.To) {
			continue
		}
		if filter.WithoutNotice && withNotice[pr.ID] {
			continue
		}
		p := *pr
		if f, ok := repo.db.firms[pr.Firm.ID]; ok {
			p.Firm = *f
		}
		prs = append(prs, p)
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].StartDate.Before(prs[j].StartDate) })
	return prs, nil
}
