package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-investigator/internal/cache"
	"github.com/miradorstack/mirador-investigator/internal/models"
)

const (
	recordClass  = "RCARecord"
	patternClass = "FailurePattern"
)

// WeaviateRepo indexes RCA records and failure patterns in Weaviate. With no
// endpoint configured writes are dropped and reads return nothing.
type WeaviateRepo struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      cache.Provider
	similarTTL time.Duration
	patternTTL time.Duration
}

// NewWeaviateRepo constructs a Weaviate client.
func NewWeaviateRepo(endpoint, apiKey string, timeout time.Duration, cacheProvider cache.Provider, similarTTL, patternTTL time.Duration) *WeaviateRepo {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if similarTTL < 0 {
		similarTTL = 0
	}
	if patternTTL < 0 {
		patternTTL = 0
	}
	return &WeaviateRepo{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		similarTTL: similarTTL,
		patternTTL: patternTTL,
	}
}

// objectID derives a stable Weaviate UUID so re-saving an alert overwrites it.
func objectID(kind, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+":"+key)).String()
}

// Save indexes the entry under a UUID derived from its alert id.
func (r *WeaviateRepo) Save(ctx context.Context, entry models.HistoryEntry) error {
	if r == nil {
		return fmt.Errorf("weaviate repo not initialised")
	}
	if r.endpoint == "" {
		return nil
	}
	body, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	payload := map[string]any{
		"class": recordClass,
		"id":    objectID("rca", entry.AlertID),
		"properties": map[string]any{
			"alertId":    entry.AlertID,
			"service":    entry.Service,
			"category":   entry.Category,
			"confidence": entry.Record.MostLikelyRootCause.Confidence,
			"degraded":   entry.Degraded,
			"recordJson": string(body),
			"createdAt":  created.Format(time.RFC3339),
		},
	}
	if err := r.post(ctx, "/v1/objects", payload, nil); err != nil {
		return fmt.Errorf("weaviate store record: %w", err)
	}
	return nil
}

// Similar returns non-degraded records sharing service and category. Results
// are cached for the similar TTL.
func (r *WeaviateRepo) Similar(ctx context.Context, service, category string, limit int) ([]models.HistoryEntry, error) {
	if r == nil {
		return nil, fmt.Errorf("weaviate repo not initialised")
	}
	if r.endpoint == "" {
		return nil, nil
	}
	limit = normaliseLimit(limit)

	cacheKey := ""
	if r.similarTTL > 0 {
		cacheKey = fmt.Sprintf("weaviate:similar:%s:%s:%d", service, category, limit)
		if data, err := r.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.HistoryEntry
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	where := fmt.Sprintf(`where: {
        operator: And
        operands: [
          {path: ["service"], operator: Equal, valueString: %q}
          {path: ["category"], operator: Equal, valueString: %q}
          {path: ["degraded"], operator: Equal, valueBoolean: false}
        ]
      }
      sort: [{path: ["confidence"], order: desc}]`, service, category)
	entries, err := r.getRecords(ctx, limit, where)
	if err != nil {
		return nil, err
	}

	if cacheKey != "" && len(entries) > 0 {
		if payload, err := json.Marshal(entries); err == nil {
			_ = r.cache.Set(ctx, cacheKey, payload, r.similarTTL)
		}
	}
	return entries, nil
}

// ListByService returns the newest records for service.
func (r *WeaviateRepo) ListByService(ctx context.Context, service string, limit int) ([]models.HistoryEntry, error) {
	if r == nil {
		return nil, fmt.Errorf("weaviate repo not initialised")
	}
	if r.endpoint == "" {
		return nil, nil
	}
	where := fmt.Sprintf(`where: {path: ["service"], operator: Equal, valueString: %q}
      sort: [{path: ["createdAt"], order: desc}]`, service)
	return r.getRecords(ctx, normaliseLimit(limit), where)
}

// Recent returns the newest records across services.
func (r *WeaviateRepo) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if r == nil {
		return nil, fmt.Errorf("weaviate repo not initialised")
	}
	if r.endpoint == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return r.getRecords(ctx, limit, `sort: [{path: ["createdAt"], order: desc}]`)
}

func (r *WeaviateRepo) getRecords(ctx context.Context, limit int, clauses string) ([]models.HistoryEntry, error) {
	gql := map[string]any{
		"query": fmt.Sprintf(`{
  Get {
    %s(
      limit: %d
      %s
    ) {
      alertId
      service
      category
      degraded
      recordJson
      createdAt
    }
  }
}`, recordClass, limit, clauses),
	}

	var response struct {
		Data struct {
			Get map[string][]struct {
				AlertID    string `json:"alertId"`
				Service    string `json:"service"`
				Category   string `json:"category"`
				Degraded   bool   `json:"degraded"`
				RecordJSON string `json:"recordJson"`
				CreatedAt  string `json:"createdAt"`
			} `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := r.post(ctx, "/v1/graphql", gql, &response); err != nil {
		return nil, fmt.Errorf("weaviate query records: %w", err)
	}
	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query records: %s", response.Errors[0].Message)
	}

	rows := response.Data.Get[recordClass]
	entries := make([]models.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry := models.HistoryEntry{
			AlertID:  row.AlertID,
			Service:  row.Service,
			Category: row.Category,
			Degraded: row.Degraded,
		}
		if err := json.Unmarshal([]byte(row.RecordJSON), &entry.Record); err != nil {
			continue
		}
		entry.CreatedAt, _ = time.Parse(time.RFC3339, row.CreatedAt)
		entries = append(entries, entry)
	}
	return entries, nil
}

// StorePatterns indexes mined failure patterns.
func (r *WeaviateRepo) StorePatterns(ctx context.Context, patterns []models.FailurePattern) error {
	if r == nil {
		return fmt.Errorf("weaviate repo not initialised")
	}
	if r.endpoint == "" {
		return nil
	}
	for _, pattern := range patterns {
		body, err := json.Marshal(pattern)
		if err != nil {
			return err
		}
		payload := map[string]any{
			"class": patternClass,
			"id":    objectID("pattern", pattern.ID),
			"properties": map[string]any{
				"patternId":   pattern.ID,
				"service":     pattern.Service,
				"category":    pattern.Category,
				"prevalence":  pattern.Prevalence,
				"patternJson": string(body),
			},
		}
		if err := r.post(ctx, "/v1/objects", payload, nil); err != nil {
			return fmt.Errorf("store pattern failed: %w", err)
		}
	}
	return nil
}

// FetchPatterns retrieves failure patterns, optionally for one service.
func (r *WeaviateRepo) FetchPatterns(ctx context.Context, service string) ([]models.FailurePattern, error) {
	if r == nil {
		return nil, fmt.Errorf("weaviate repo not initialised")
	}
	if r.endpoint == "" {
		return nil, nil
	}

	cacheKey := ""
	if r.patternTTL > 0 {
		cacheKey = "weaviate:patterns:" + service
		if data, err := r.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.FailurePattern
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	where := ""
	if service != "" {
		where = fmt.Sprintf(`where: {path: ["service"], operator: Equal, valueString: %q}`, service)
	}
	gql := map[string]any{
		"query": fmt.Sprintf(`{
  Get {
    %s(
      %s
      sort: [{path: ["prevalence"], order: desc}]
    ) {
      patternJson
    }
  }
}`, patternClass, where),
	}

	var response struct {
		Data struct {
			Get map[string][]struct {
				PatternJSON string `json:"patternJson"`
			} `json:"Get"`
		} `json:"data"`
	}
	if err := r.post(ctx, "/v1/graphql", gql, &response); err != nil {
		return nil, fmt.Errorf("weaviate query patterns: %w", err)
	}

	rows := response.Data.Get[patternClass]
	patterns := make([]models.FailurePattern, 0, len(rows))
	for _, row := range rows {
		var p models.FailurePattern
		if err := json.Unmarshal([]byte(row.PatternJSON), &p); err != nil {
			continue
		}
		patterns = append(patterns, p)
	}

	if cacheKey != "" && len(patterns) > 0 {
		if payload, err := json.Marshal(patterns); err == nil {
			_ = r.cache.Set(ctx, cacheKey, payload, r.patternTTL)
		}
	}
	return patterns, nil
}

func (r *WeaviateRepo) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
