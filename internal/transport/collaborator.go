// Package transport bridges the engine to the delivery collaborator
// service. The collaborator owns the actual LinkedIn and email
// automation; this package only ships rendered messages to it and maps
// its responses onto dispatch outcomes.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/pkg/httpretry"
	"github.com/ignite/outreach-engine/internal/worker"
)

// Client talks to the collaborator's HTTP API. It satisfies both
// worker.Transport and worker.SentimentAnalyzer.
type Client struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
}

// NewClient creates a collaborator client. Transient collaborator
// errors (429, 5xx, connection resets) are retried up to maxRetries
// times with backoff before the dispatcher sees a failure.
func NewClient(baseURL, apiKey string, maxRetries int) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: httpretry.NewRetryClient(&http.Client{
			Timeout: 25 * time.Second,
		}, maxRetries),
	}
}

type sendPayload struct {
	AccountID   string `json:"account_id"`
	AccountKind string `json:"account_kind"`
	StepType    string `json:"step_type"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body"`
	Lead        struct {
		Email       string `json:"email,omitempty"`
		LinkedInURL string `json:"linkedin_url,omitempty"`
		FullName    string `json:"full_name,omitempty"`
	} `json:"lead"`
}

type sendResponse struct {
	Status    string `json:"status"`
	ReplyText string `json:"reply_text,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Send submits one action to the collaborator and maps its verdict.
// An unrecognized status is treated as a transient failure so the
// contact stays retryable.
func (c *Client) Send(ctx context.Context, req worker.SendRequest) (worker.SendResult, error) {
	payload := sendPayload{
		AccountID:   req.Account.ID.String(),
		AccountKind: req.Account.Kind,
		StepType:    string(req.Step.Type),
		Subject:     req.Subject,
		Body:        req.Body,
	}
	if req.Contact.Lead != nil {
		payload.Lead.Email = req.Contact.Lead.Email
		payload.Lead.LinkedInURL = req.Contact.Lead.LinkedInURL
		payload.Lead.FullName = req.Contact.Lead.FullName()
	}

	var resp sendResponse
	if err := c.post(ctx, "/v1/send", payload, &resp); err != nil {
		return worker.SendResult{}, err
	}

	switch resp.Status {
	case "sent":
		return worker.SendResult{Status: worker.SendSent}, nil
	case "reply_detected":
		return worker.SendResult{Status: worker.SendReplyDetected, ReplyText: resp.ReplyText}, nil
	case "permanent_failure":
		return worker.SendResult{Status: worker.SendPermanentFailure, Detail: resp.Detail}, nil
	case "unsubscribed":
		return worker.SendResult{Status: worker.SendUnsubscribed}, nil
	default:
		return worker.SendResult{Status: worker.SendTransientFailure, Detail: resp.Detail}, nil
	}
}

type analyzeResponse struct {
	Sentiment string   `json:"sentiment"`
	Keywords  []string `json:"keywords"`
}

// Analyze classifies reply text through the collaborator's sentiment
// endpoint.
func (c *Client) Analyze(ctx context.Context, text string) (campaign.Sentiment, []string, error) {
	var resp analyzeResponse
	err := c.post(ctx, "/v1/analyze", map[string]string{"text": text}, &resp)
	if err != nil {
		return campaign.SentimentNeutral, nil, err
	}

	switch campaign.Sentiment(resp.Sentiment) {
	case campaign.SentimentPositive, campaign.SentimentNegative, campaign.SentimentNeutral:
		return campaign.Sentiment(resp.Sentiment), resp.Keywords, nil
	default:
		return campaign.SentimentNeutral, resp.Keywords, nil
	}
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("collaborator %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collaborator %s returned %d: %s", path, resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
