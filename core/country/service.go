package country

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/pariz/gountries"
)

var ErrNotFound = errors.New("country not found")

type Repository interface {
	GetCountryByCode(ctx context.Context, code string) (Country, error)
	QueryCountries(ctx context.Context) ([]Country, error)
	// UpsertCountries inserts the countries, updating the name of those whose code exists; returns the number written.
	UpsertCountries(ctx context.Context, countries []Country) (int, error)
}

type Service struct {
	repo    Repository
	catalog *gountries.Query
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, catalog: gountries.New()}
}

// GetByCode finds a country by its code, falling back on the ISO 3166 catalog when the table lacks it.
func (svc *Service) GetByCode(ctx context.Context, code string) (Country, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Country{}, ErrNotFound
	}

	c, err := svc.repo.GetCountryByCode(ctx, code)
	if err == nil {
		return c, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Country{}, err
	}

	gc, err := svc.catalog.FindCountryByAlpha(code)
	if err != nil {
		return Country{}, ErrNotFound
	}
	return Country{Code: code, Name: gc.Name.Common}, nil
}

func (svc *Service) List(ctx context.Context) ([]Country, error) {
	return svc.repo.QueryCountries(ctx)
}

// Seed fills the countries table from the ISO 3166 catalog (alpha-2 codes).
func (svc *Service) Seed(ctx context.Context) (int, error) {
	all := svc.catalog.FindAllCountries()
	countries := make([]Country, 0, len(all))
	for _, gc := range all {
		if gc.Codes.Alpha2 == "" {
			continue
		}
		countries = append(countries, Country{Code: gc.Codes.Alpha2, Name: gc.Name.Common})
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Code < countries[j].Code })
	return svc.repo.UpsertCountries(ctx, countries)
}
