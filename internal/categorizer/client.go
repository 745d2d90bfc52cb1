// Package categorizer talks to the categorization service. It is strictly
// best-effort: a prediction that fails or finds nothing never blocks a
// ledger operation, and training calls swallow their own errors upstream.
package categorizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"conti/internal/core"
)

// CategoryFinder resolves a predicted category name against the stored
// categories of an owner (including system defaults).
type CategoryFinder interface {
	FindCategoryByName(ctx context.Context, ownerID, name string) (*core.Category, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	categories CategoryFinder
}

// NewClient builds a client with a short request timeout; the timeout is
// what bounds how long a ledger create can wait on categorization.
func NewClient(baseURL string, timeout time.Duration, categories CategoryFinder) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		categories: categories,
	}
}

type categorizeRequest struct {
	Description string `json:"description"`
}

type categorizeResponse struct {
	Category string `json:"category"`
}

type trainRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Predict asks the service for a category name and matches it against the
// owner's stored categories. A miss on either step yields Found=false
// with a nil error; only transport failures surface as errors.
func (c *Client) Predict(ctx context.Context, ownerID, description string) (core.Prediction, error) {
	var resp categorizeResponse
	if err := c.post(ctx, "/categorize", categorizeRequest{Description: description}, &resp); err != nil {
		return core.Prediction{}, fmt.Errorf("categorize %q: %w", description, err)
	}

	name := strings.TrimSpace(resp.Category)
	if name == "" {
		return core.Prediction{}, nil
	}

	category, err := c.categories.FindCategoryByName(ctx, ownerID, name)
	if errors.Is(err, core.ErrNotFound) {
		slog.DebugContext(ctx, "Predicted category is not registered",
			"description", description, "suggested", name)
		return core.Prediction{}, nil
	}
	if err != nil {
		return core.Prediction{}, fmt.Errorf("look up category %q: %w", name, err)
	}

	return core.Prediction{Found: true, Category: category}, nil
}

// Learn sends a corrected description/category pair for retraining.
// Descriptions too short to carry signal are skipped.
func (c *Client) Learn(ctx context.Context, description, categoryName string) error {
	description = strings.TrimSpace(description)
	if len(description) < 3 {
		return nil
	}

	slog.InfoContext(ctx, "Training categorizer",
		"description", description, "category", categoryName)

	if err := c.post(ctx, "/train", trainRequest{Description: description, Category: categoryName}, nil); err != nil {
		return fmt.Errorf("train %q: %w", description, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
