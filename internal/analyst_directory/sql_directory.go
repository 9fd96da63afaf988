package analyst_directory

import (
	"context"
	"database/sql"
	"time"

	"github.com/clearco/calendar-connector/internal/config"
	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sqlLookupAnalystsDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "calendar_connector_sql_lookup_analysts_duration",
	Help: "The amount of time it took to load the analyst directory from the db",
})

// SqlAnalystDirectory loads the tracked-analyst set from the analysts table.
type SqlAnalystDirectory struct {
	database     *sql.DB
	queryTimeout time.Duration
}

func NewSqlAnalystDirectory(cfg *config.Config, database *sql.DB) (*SqlAnalystDirectory, error) {
	return &SqlAnalystDirectory{
		database:     database,
		queryTimeout: cfg.DatabaseQueryTimeout,
	}, nil
}

func (sad *SqlAnalystDirectory) GetAnalystIndex(ctx context.Context) (domain.AnalystIndex, error) {

	callDurationTimer := prometheus.NewTimer(sqlLookupAnalystsDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, sad.queryTimeout)
	defer cancel()

	rows, err := sad.database.QueryContext(ctx,
		`SELECT id, display_name, email, company, company_domain FROM analysts`)
	if err != nil {
		logger.LogError("SQL query failed while loading the analyst directory", err)
		return domain.AnalystIndex{}, err
	}
	defer rows.Close()

	var analysts []domain.Analyst

	for rows.Next() {
		var analyst domain.Analyst
		var company sql.NullString
		var companyDomain sql.NullString

		if err := rows.Scan(&analyst.ID, &analyst.DisplayName, &analyst.Email, &company, &companyDomain); err != nil {
			logger.LogError("SQL scan failed while loading the analyst directory", err)
			return domain.AnalystIndex{}, err
		}

		analyst.Company = company.String
		analyst.CompanyDomain = companyDomain.String

		analysts = append(analysts, analyst)
	}

	if err := rows.Err(); err != nil {
		logger.LogError("SQL iteration failed while loading the analyst directory", err)
		return domain.AnalystIndex{}, err
	}

	return BuildIndex(analysts), nil
}
