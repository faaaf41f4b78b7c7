package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/prsonline/core/country"
)

type countryRepository struct {
	db *DB
}

var _ country.Repository = (*countryRepository)(nil)

func NewCountryRepository(db *DB) country.Repository {
	return &countryRepository{db: db}
}

func (repo *countryRepository) GetCountryByCode(_ context.Context, code string) (country.Country, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.countries[code]; ok {
		return *c, nil
	}
	return country.Country{}, country.ErrNotFound
}

func (repo *countryRepository) QueryCountries(_ context.Context) ([]country.Country, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	countries := make([]country.Country, 0, len(repo.db.countries))
	for _, c := range repo.db.countries {
		countries = append(countries, *c)
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Code < countries[j].Code })
	return countries, nil
}

func (repo *countryRepository) UpsertCountries(_ context.Context, countries []country.Country) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, c := range countries {
		if orig, ok := repo.db.countries[c.Code]; ok {
			orig.Name = c.Name
			continue
		}
		c := c
		c.ID = repo.db.nextPK()
		repo.db.countries[c.Code] = &c
	}
	return len(countries), nil
}
