package analyst_directory

import (
	"sort"

	"github.com/clearco/calendar-connector/internal/domain"
	"github.com/clearco/calendar-connector/internal/matcher"
)

// BuildIndex turns a list of analysts into the lookup structure the matcher
// consumes.  Email and domain keys are normalized; per-domain analyst lists
// are sorted by id so domain-fallback matching is deterministic regardless
// of the order the directory returned its rows in.
func BuildIndex(analysts []domain.Analyst) domain.AnalystIndex {

	index := domain.AnalystIndex{
		ByEmail:  make(map[string]domain.Analyst),
		ByDomain: make(map[string][]domain.Analyst),
	}

	for _, analyst := range analysts {
		email := matcher.NormalizeEmail(analyst.Email)
		if email != "" {
			index.ByEmail[email] = analyst
		}

		companyDomain := matcher.NormalizeEmail(analyst.CompanyDomain)
		if companyDomain == "" {
			companyDomain = matcher.EmailDomain(analyst.Email)
		}
		if companyDomain != "" {
			index.ByDomain[companyDomain] = append(index.ByDomain[companyDomain], analyst)
		}
	}

	for _, analysts := range index.ByDomain {
		sort.Slice(analysts, func(i, j int) bool {
			return analysts[i].ID < analysts[j].ID
		})
	}

	return index
}
