// Package inmemdb is an in-memory implementation of the repositories, used by tests and local demos.
package inmemdb

import (
	"sync"

	"github.com/trezcool/prsonline/core/country"
	"github.com/trezcool/prsonline/core/notice"
	"github.com/trezcool/prsonline/core/user"
)

type (
	DB struct {
		sync.RWMutex
		pkCount int

		users     map[int]*user.User
		profiles  map[int]*user.Profile // by user ID
		countries map[string]*country.Country
		firms     map[int]*notice.Firm
		prs       map[int]*notice.PracticeReview
		notices   map[int]*noticeRow
	}

	noticeRow struct {
		notice.Notice
		prID int
	}
)

func Open() *DB {
	return &DB{
		users:     make(map[int]*user.User),
		profiles:  make(map[int]*user.Profile),
		countries: make(map[string]*country.Country),
		firms:     make(map[int]*notice.Firm),
		prs:       make(map[int]*notice.PracticeReview),
		notices:   make(map[int]*noticeRow),
	}
}

// nextPK must be called with the lock held.
func (db *DB) nextPK() int {
	db.pkCount++
	return db.pkCount
}
