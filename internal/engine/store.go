package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"truckvoice-backend/internal/models"
)

// RecordStore is the engine's view of durable storage. The production
// implementation talks to the backend's REST API; tests substitute an
// in-memory fake.
type RecordStore interface {
	GetSessionStatus(ctx context.Context, driverID string) (models.SessionStatus, error)
	PutSessionStatus(ctx context.Context, status models.SessionStatus) error
	UpsertDailyRecord(ctx context.Context, driverID string, record models.DailyRecord) error
	GetDailyRecords(ctx context.Context, driverID string, days int) ([]models.DailyRecord, error)
}

// HTTPStore implements RecordStore against the backend's REST API.
type HTTPStore struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

var _ RecordStore = (*HTTPStore)(nil)

func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPStore) GetSessionStatus(ctx context.Context, driverID string) (models.SessionStatus, error) {
	var status models.SessionStatus
	err := s.do(ctx, http.MethodGet, "/api/driving-status/"+driverID, nil, &status)
	return status, err
}

func (s *HTTPStore) PutSessionStatus(ctx context.Context, status models.SessionStatus) error {
	return s.do(ctx, http.MethodPut, "/api/driving-status/"+status.DriverID, status, nil)
}

func (s *HTTPStore) UpsertDailyRecord(ctx context.Context, driverID string, record models.DailyRecord) error {
	return s.do(ctx, http.MethodPost, "/api/daily-records/"+driverID, record, nil)
}

func (s *HTTPStore) GetDailyRecords(ctx context.Context, driverID string, days int) ([]models.DailyRecord, error) {
	var records []models.DailyRecord
	err := s.do(ctx, http.MethodGet, fmt.Sprintf("/api/daily-records/%s?days=%d", driverID, days), nil, &records)
	return records, err
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
