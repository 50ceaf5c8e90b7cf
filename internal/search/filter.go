package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

type FilterParams struct {
	Query              string
	City               string
	VerificationStatus []string
	AvailabilityStatus string
	MaxReliability     *float64
	MinReliability     *float64
	VerifiedBeforeUnix *int64
	SortBy             string
	Limit              int64
	Offset             int64
}

// FilterResult is one page of trust documents
type FilterResult struct {
	Hits           []TrustDocument `json:"hits"`
	TotalHits      int64           `json:"total_hits"`
	ProcessingTime int64           `json:"processing_time_ms"`
}

var sortable = map[string]string{
	"reliability_asc":    "reliability_score:asc",
	"reliability_desc":   "reliability_score:desc",
	"last_verified_asc":  "last_verified_at:asc",
	"last_verified_desc": "last_verified_at:desc",
}

// BuildFilter turns params into a Meilisearch filter expression
func BuildFilter(params FilterParams) string {
	var filters []string

	if params.City != "" {
		filters = append(filters, fmt.Sprintf("city = %s", quote(params.City)))
	}

	if len(params.VerificationStatus) > 0 {
		statusFilters := make([]string, len(params.VerificationStatus))
		for i, status := range params.VerificationStatus {
			statusFilters[i] = fmt.Sprintf("verification_status = %s", quote(status))
		}
		filters = append(filters, fmt.Sprintf("(%s)", strings.Join(statusFilters, " OR ")))
	}

	if params.AvailabilityStatus != "" {
		filters = append(filters, fmt.Sprintf("availability_status = %s", quote(params.AvailabilityStatus)))
	}

	if params.MinReliability != nil {
		filters = append(filters, fmt.Sprintf("reliability_score >= %g", *params.MinReliability))
	}
	if params.MaxReliability != nil {
		filters = append(filters, fmt.Sprintf("reliability_score <= %g", *params.MaxReliability))
	}

	if params.VerifiedBeforeUnix != nil {
		filters = append(filters, fmt.Sprintf("last_verified_at < %d", *params.VerifiedBeforeUnix))
	}

	return strings.Join(filters, " AND ")
}

func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
}

// FilterSearch searches the trust index
func (s *TrustClient) FilterSearch(params FilterParams) (*FilterResult, error) {
	if params.Limit == 0 {
		params.Limit = 20
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:  params.Limit,
		Offset: params.Offset,
	}

	if filterStr := BuildFilter(params); filterStr != "" {
		searchReq.Filter = filterStr
	}

	if sort, ok := sortable[params.SortBy]; ok {
		searchReq.Sort = []string{sort}
	}

	searchRes, err := s.client.Index(s.index).Search(params.Query, searchReq)
	if err != nil {
		return nil, err
	}

	result := &FilterResult{
		Hits:           make([]TrustDocument, 0, len(searchRes.Hits)),
		TotalHits:      searchRes.EstimatedTotalHits,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}
	for _, hit := range searchRes.Hits {
		// Convert hit to JSON then to TrustDocument
		hitJSON, err := json.Marshal(hit)
		if err != nil {
			continue
		}

		var doc TrustDocument
		if err := json.Unmarshal(hitJSON, &doc); err != nil {
			continue
		}

		result.Hits = append(result.Hits, doc)
	}

	return result, nil
}
