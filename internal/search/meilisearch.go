package search

import (
	"context"
	"strings"

	"github.com/meilisearch/meilisearch-go"

	"rental-marketplace/internal/models"
)

// TrustClient keeps a Meilisearch index of each property's verification
// signals so listings can be ranked and filtered by reliability.
type TrustClient struct {
	client *meilisearch.Client
	index  string
}

func NewTrustClient(host, apiKey, index string) *TrustClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "property_trust"
	}

	return &TrustClient{
		client: client,
		index:  index,
	}
}

// TrustDocument is the indexed shape of a property's trust signals.
// Timestamps are unix seconds so they can be filtered and sorted.
type TrustDocument struct {
	ID                 uint    `json:"id"`
	OwnerID            uint    `json:"owner_id"`
	Title              string  `json:"title"`
	Address            string  `json:"address"`
	City               string  `json:"city"`
	AvailabilityStatus string  `json:"availability_status"`
	VerificationStatus string  `json:"verification_status"`
	ReliabilityScore   float64 `json:"reliability_score"`
	LastVerifiedAt     int64   `json:"last_verified_at"`
	VerifiedUntil      int64   `json:"verified_until"`
}

// NewTrustDocument converts a property summary into its index document
func NewTrustDocument(s models.PropertySummary) TrustDocument {
	doc := TrustDocument{
		ID:                 s.ID,
		OwnerID:            s.OwnerID,
		Title:              s.Title,
		Address:            s.Address,
		City:               s.City,
		AvailabilityStatus: string(s.AvailabilityStatus),
		VerificationStatus: string(s.VerificationStatus),
		ReliabilityScore:   s.ReliabilityScore,
	}
	if s.LastVerified != nil {
		doc.LastVerifiedAt = s.LastVerified.Unix()
	}
	if s.ExpirationDate != nil {
		doc.VerifiedUntil = s.ExpirationDate.Unix()
	}
	return doc
}

// InitIndex initializes the Meilisearch index
func (s *TrustClient) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && !strings.Contains(err.Error(), "index_already_exists") {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"title",
		"address",
		"city",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"id",
		"owner_id",
		"city",
		"availability_status",
		"verification_status",
		"reliability_score",
		"last_verified_at",
		"verified_until",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"reliability_score",
		"last_verified_at",
		"verified_until",
	})
	return err
}

// IndexProperty upserts one property's trust document
func (s *TrustClient) IndexProperty(_ context.Context, summary models.PropertySummary) error {
	_, err := s.client.Index(s.index).AddDocuments([]TrustDocument{NewTrustDocument(summary)}, "id")
	return err
}

// IndexProperties upserts many documents in one task
func (s *TrustClient) IndexProperties(_ context.Context, summaries []models.PropertySummary) error {
	if len(summaries) == 0 {
		return nil
	}
	docs := make([]TrustDocument, 0, len(summaries))
	for _, summary := range summaries {
		docs = append(docs, NewTrustDocument(summary))
	}
	_, err := s.client.Index(s.index).AddDocuments(docs, "id")
	return err
}
