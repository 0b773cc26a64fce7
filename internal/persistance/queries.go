package persistance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type QueryExecutor struct {
	baseURL  string
	client   *http.Client
	username string
	password string
}

func NewQueryExecutor(baseURL string, client *http.Client) *QueryExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &QueryExecutor{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (q *QueryExecutor) SetBasicAuth(username, password string) {
	q.username, q.password = username, password
}

type execResponse struct {
	Columns []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"columns"`
	Dataset [][]json.Number `json:"dataset"`
	Error   string          `json:"error"`
}

// CountTrackRows returns how many rows of the table belong to trackName.
func (q *QueryExecutor) CountTrackRows(ctx context.Context, table, trackName string) (int64, error) {
	query := fmt.Sprintf(`SELECT count() FROM %s WHERE name = '%s'`,
		table, strings.ReplaceAll(trackName, "'", "''"))

	result, err := q.executeSelectQuery(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(result.Dataset) == 0 || len(result.Dataset[0]) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}

	return result.Dataset[0][0].Int64()
}

func (q *QueryExecutor) executeSelectQuery(ctx context.Context, query string) (*execResponse, error) {
	endpoint := fmt.Sprintf("%s/exec?query=%s", q.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if q.username != "" {
		req.SetBasicAuth(q.username, q.password)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("questdb query failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read questdb response: %w", err)
	}

	var result execResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode questdb response (status %d): %w", resp.StatusCode, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("questdb query error: %s", result.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query failed with status %d", resp.StatusCode)
	}

	return &result, nil
}
