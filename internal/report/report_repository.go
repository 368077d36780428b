// Package report exposes read-only reporting endpoints over the
// epidemiological time-series tables. Nothing in here writes; the
// schema and its seed rows are owned by the migrations.
package report

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// DiseaseStats summarizes the stored records for one disease
type DiseaseStats struct {
	Disease      string     `db:"disease" json:"disease"`
	RecordCount  int64      `db:"record_count" json:"record_count"`
	CountryCount int64      `db:"country_count" json:"country_count"`
	FirstDate    *time.Time `db:"first_date" json:"first_date"`
	LastDate     *time.Time `db:"last_date" json:"last_date"`
}

// CountryInfo describes a country that has data for a disease
type CountryInfo struct {
	Name       string `db:"name" json:"name"`
	Continent  string `db:"continent" json:"continent"`
	Population int64  `db:"population" json:"population"`
}

// EvolutionPoint is one day of a country's time series. The source
// data carries NaN markers in the numeric columns; the queries coerce
// them to zero before they reach the API.
type EvolutionPoint struct {
	Date        time.Time `db:"stat_date" json:"date"`
	TotalCases  int64     `db:"total_cases" json:"total_cases"`
	NewCases    int64     `db:"new_cases" json:"new_cases"`
	TotalDeaths int64     `db:"total_deaths" json:"total_deaths"`
	NewDeaths   int64     `db:"new_deaths" json:"new_deaths"`
}

// TopCountry is a ranking entry of the countries most affected by a disease
type TopCountry struct {
	Name      string `db:"name" json:"name"`
	Continent string `db:"continent" json:"continent"`
	MaxCases  int64  `db:"max_cases" json:"max_cases"`
	MaxDeaths int64  `db:"max_deaths" json:"max_deaths"`
}

// RecentRecord is a recent data point across all countries for a disease
type RecentRecord struct {
	Date        time.Time `db:"stat_date" json:"date"`
	Country     string    `db:"country" json:"country"`
	Continent   string    `db:"continent" json:"continent"`
	TotalCases  *float64  `db:"total_cases" json:"total_cases"`
	NewCases    *float64  `db:"new_cases" json:"new_cases"`
	TotalDeaths *float64  `db:"total_deaths" json:"total_deaths"`
}

// Repository defines the reporting read interface
type Repository interface {
	Stats(ctx context.Context) ([]DiseaseStats, error)
	CountriesForDisease(ctx context.Context, disease string) ([]CountryInfo, error)
	Evolution(ctx context.Context, disease, country string, limit int) ([]EvolutionPoint, error)
	TopCountries(ctx context.Context, disease string, limit int) ([]TopCountry, error)
	Recent(ctx context.Context, disease string, days int) ([]RecentRecord, error)
}

// repository implements Repository over a sqlx handle
type repository struct {
	db *sqlx.DB
}

// NewRepository creates a new reporting repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// Stats returns per-disease record counts and date ranges
func (r *repository) Stats(ctx context.Context) ([]DiseaseStats, error) {
	query := `
		SELECT d.name AS disease,
		       COUNT(*) AS record_count,
		       COUNT(DISTINCT s.country_id) AS country_count,
		       MIN(s.stat_date) AS first_date,
		       MAX(s.stat_date) AS last_date
		FROM statistics s
		JOIN diseases d ON d.id = s.disease_id
		GROUP BY d.name
		ORDER BY d.name
	`

	var stats []DiseaseStats
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, err
	}
	return stats, nil
}

// CountriesForDisease lists the countries that have records for a disease
func (r *repository) CountriesForDisease(ctx context.Context, disease string) ([]CountryInfo, error) {
	query := `
		SELECT DISTINCT c.name, c.continent, c.population
		FROM countries c
		JOIN statistics s ON s.country_id = c.id
		JOIN diseases d ON d.id = s.disease_id
		WHERE d.name = $1
		ORDER BY c.name
	`

	var countries []CountryInfo
	if err := r.db.SelectContext(ctx, &countries, query, disease); err != nil {
		return nil, err
	}
	return countries, nil
}

// Evolution returns the most recent daily points for one country and disease
func (r *repository) Evolution(ctx context.Context, disease, country string, limit int) ([]EvolutionPoint, error) {
	query := `
		SELECT s.stat_date,
		       CASE WHEN s.total_cases IS NULL OR s.total_cases = 'NaN'::float8 THEN 0
		            ELSE s.total_cases::bigint END AS total_cases,
		       CASE WHEN s.new_cases IS NULL OR s.new_cases = 'NaN'::float8 THEN 0
		            ELSE s.new_cases::bigint END AS new_cases,
		       CASE WHEN s.total_deaths IS NULL OR s.total_deaths = 'NaN'::float8 THEN 0
		            ELSE s.total_deaths::bigint END AS total_deaths,
		       CASE WHEN s.new_deaths IS NULL OR s.new_deaths = 'NaN'::float8 THEN 0
		            ELSE s.new_deaths::bigint END AS new_deaths
		FROM statistics s
		JOIN countries c ON c.id = s.country_id
		JOIN diseases d ON d.id = s.disease_id
		WHERE d.name = $1 AND c.name = $2
		ORDER BY s.stat_date DESC
		LIMIT $3
	`

	var points []EvolutionPoint
	if err := r.db.SelectContext(ctx, &points, query, disease, country, limit); err != nil {
		return nil, err
	}
	return points, nil
}

// TopCountries ranks countries by peak case count for a disease
func (r *repository) TopCountries(ctx context.Context, disease string, limit int) ([]TopCountry, error) {
	query := `
		SELECT c.name,
		       c.continent,
		       MAX(CASE WHEN s.total_cases IS NULL OR s.total_cases = 'NaN'::float8 THEN 0
		                ELSE s.total_cases::bigint END) AS max_cases,
		       MAX(CASE WHEN s.total_deaths IS NULL OR s.total_deaths = 'NaN'::float8 THEN 0
		                ELSE s.total_deaths::bigint END) AS max_deaths
		FROM statistics s
		JOIN countries c ON c.id = s.country_id
		JOIN diseases d ON d.id = s.disease_id
		WHERE d.name = $1 AND s.total_cases IS NOT NULL
		GROUP BY c.name, c.continent
		ORDER BY max_cases DESC
		LIMIT $2
	`

	var top []TopCountry
	if err := r.db.SelectContext(ctx, &top, query, disease, limit); err != nil {
		return nil, err
	}
	return top, nil
}

// Recent returns the last N days of records for a disease across all
// countries, relative to the newest stored date rather than the wall
// clock, so stale datasets still answer.
func (r *repository) Recent(ctx context.Context, disease string, days int) ([]RecentRecord, error) {
	query := `
		SELECT s.stat_date,
		       c.name AS country,
		       c.continent,
		       s.total_cases,
		       s.new_cases,
		       s.total_deaths
		FROM statistics s
		JOIN countries c ON c.id = s.country_id
		JOIN diseases d ON d.id = s.disease_id
		WHERE d.name = $1
		AND s.stat_date >= (
			SELECT MAX(s2.stat_date) - ($2 || ' days')::interval
			FROM statistics s2
			JOIN diseases d2 ON d2.id = s2.disease_id
			WHERE d2.name = $1
		)
		ORDER BY s.stat_date DESC, s.total_cases DESC
		LIMIT 100
	`

	var records []RecentRecord
	if err := r.db.SelectContext(ctx, &records, query, disease, days); err != nil {
		return nil, err
	}
	return records, nil
}
