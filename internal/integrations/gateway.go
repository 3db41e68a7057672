package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"hooked-notifications-worker/internal/config"
	"hooked-notifications-worker/internal/models"
	"hooked-notifications-worker/internal/services"
)

// gatewayResponse is the envelope the push gateway answers with. results is
// positional: results[i] reports the outcome for request message i.
type gatewayResponse struct {
	Status  string              `json:"status"`
	Results []models.PushResult `json:"results"`
}

// PushGatewayClient delivers batches of push messages to the HTTP push
// gateway, chunked to the gateway's per-request limit. The gateway reports
// failures per-batch in the common case, so any transport or envelope error
// fails the whole send.
type PushGatewayClient struct {
	httpClient *http.Client
	baseURL    string
	batchSize  int
	timeout    time.Duration
	limiter    *rate.Limiter
	metrics    *services.Metrics
}

func NewPushGatewayClient(metrics *services.Metrics) *PushGatewayClient {
	return &PushGatewayClient{
		httpClient: &http.Client{},
		baseURL:    config.PushGatewayURL,
		batchSize:  config.PushBatchSize,
		timeout:    time.Duration(config.PushTimeoutSeconds) * time.Second,
		limiter:    rate.NewLimiter(rate.Limit(config.PushRateLimit), config.PushRateLimit),
		metrics:    metrics,
	}
}

// SendBatch posts messages to the gateway in chunks of at most batchSize and
// returns one result per message, in request order.
func (c *PushGatewayClient) SendBatch(ctx context.Context, messages []models.PushMessage) ([]models.PushResult, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	startTime := time.Now()
	results := make([]models.PushResult, 0, len(messages))

	for start := 0; start < len(messages); start += c.batchSize {
		end := start + c.batchSize
		if end > len(messages) {
			end = len(messages)
		}

		chunk, err := c.postChunk(ctx, messages[start:end])
		if err != nil {
			c.metrics.PushErrors.Add(1)
			return nil, err
		}
		results = append(results, chunk...)
	}

	c.metrics.TotalPushProcessingTimeMs.Add(time.Since(startTime).Milliseconds())
	return results, nil
}

func (c *PushGatewayClient) postChunk(ctx context.Context, messages []models.PushMessage) ([]models.PushResult, error) {
	// Limit the rate globally
	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.RateLimitErrors.Add(1)
		return nil, err
	}
	c.metrics.GatewayBatches.Add(1)

	body, err := json.Marshal(messages)
	if err != nil {
		return nil, err
	}

	// Bound how long one batch can hold up the drain cycle
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("push gateway response decode: %w", err)
	}
	if len(parsed.Results) != len(messages) {
		return nil, fmt.Errorf("push gateway returned %d results for %d messages", len(parsed.Results), len(messages))
	}

	log.Printf("Gateway batch sent: %d messages\n", len(messages))
	return parsed.Results, nil
}
