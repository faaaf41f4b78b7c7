package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/prsonline/core/country"
)

type countryRepository struct {
	db *sqlx.DB
}

var _ country.Repository = (*countryRepository)(nil)

func NewCountryRepository(db *sqlx.DB) country.Repository {
	return &countryRepository{db: db}
}

func (repo *countryRepository) GetCountryByCode(ctx context.Context, code string) (country.Country, error) {
	var c country.Country
	err := repo.db.GetContext(ctx, &c, "SELECT id, code, name FROM countries WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return country.Country{}, country.ErrNotFound
	} else if err != nil {
		return country.Country{}, errors.Wrap(err, "selecting country")
	}
	return c, nil
}

func (repo *countryRepository) QueryCountries(ctx context.Context) ([]country.Country, error) {
	countries := make([]country.Country, 0)
	if err := repo.db.SelectContext(ctx, &countries, "SELECT id, code, name FROM countries ORDER BY code"); err != nil {
		return nil, errors.Wrap(err, "selecting countries")
	}
	return countries, nil
}

func (repo *countryRepository) UpsertCountries(ctx context.Context, countries []country.Country) (int, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	q := `INSERT INTO countries (code, name) VALUES (:code, :name)
	      ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`
	stmt, err := tx.PrepareNamedContext(ctx, q)
	if err != nil {
		return 0, errors.Wrap(err, "preparing upsert")
	}
	defer stmt.Close()

	for _, c := range countries {
		if _, err := stmt.ExecContext(ctx, c); err != nil {
			return 0, errors.Wrapf(err, "upserting country %s", c.Code)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing countries")
	}
	return len(countries), nil
}
