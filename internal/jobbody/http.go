package jobbody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout = 90 * time.Second
	maxResponseBody    = 1 * 1024 * 1024 // 1 MB
)

// HTTPBody — production job body: POST к downstream пайплайну.
//
// Пайплайн (article fetch, summarization, audio synthesis, push delivery)
// живёт за пределами координатора; для нас это одна непрозрачная
// операция, которая либо завершается 2xx, либо считается ошибкой.
//
// Запрос:
//
//	POST {url}
//	{"subject_id": "U1", "job_id": "daily-digest", "period": "2026-01-03"}
type HTTPBody struct {
	client *http.Client
	url    string
	jobID  string

	// period вычисляется на каждый вызов
	periodFn func() string
}

// NewHTTPBody создаёт HTTPBody.
// periodFn возвращает текущий период планирования (например, дату).
func NewHTTPBody(url, jobID string, periodFn func() string) *HTTPBody {
	return &HTTPBody{
		client: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		url:      url,
		jobID:    jobID,
		periodFn: periodFn,
	}
}

type httpBodyRequest struct {
	SubjectID string `json:"subject_id"`
	JobID     string `json:"job_id"`
	Period    string `json:"period"`
}

// Execute выполняет запрос к пайплайну.
func (b *HTTPBody) Execute(ctx context.Context, subjectID string) error {
	payload, err := json.Marshal(httpBodyRequest{
		SubjectID: subjectID,
		JobID:     b.jobID,
		Period:    b.periodFn(),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("call pipeline: %w", err)
	}
	defer resp.Body.Close()

	// Читаем ограниченно: тело нужно только для диагностики
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("pipeline returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
