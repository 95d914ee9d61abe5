package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/worker"
)

func testSendRequest() worker.SendRequest {
	return worker.SendRequest{
		Account: &campaign.SenderAccount{ID: uuid.New(), Kind: "linkedin"},
		Contact: &campaign.Contact{
			ID: uuid.New(),
			Lead: &campaign.Lead{
				FirstName:   "Ada",
				LastName:    "Lovelace",
				Email:       "ada@example.com",
				LinkedInURL: "https://linkedin.com/in/ada",
			},
		},
		Step:    &campaign.Step{ID: uuid.New(), Position: 1, Type: campaign.StepMessage},
		Subject: "Hello",
		Body:    "Hi Ada",
	}
}

func TestSendMapsCollaboratorStatus(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		wantStatus worker.SendStatus
		wantReply  string
	}{
		{"sent", `{"status":"sent"}`, worker.SendSent, ""},
		{"reply", `{"status":"reply_detected","reply_text":"interested"}`, worker.SendReplyDetected, "interested"},
		{"permanent", `{"status":"permanent_failure","detail":"profile gone"}`, worker.SendPermanentFailure, ""},
		{"unsubscribed", `{"status":"unsubscribed"}`, worker.SendUnsubscribed, ""},
		{"unknown status is transient", `{"status":"weird"}`, worker.SendTransientFailure, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/send" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
					t.Errorf("Authorization = %q", got)
				}
				var payload sendPayload
				if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
					t.Fatalf("decode payload: %v", err)
				}
				if payload.Lead.FullName != "Ada Lovelace" {
					t.Errorf("lead full name = %q", payload.Lead.FullName)
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "test-key", 1)
			result, err := client.Send(context.Background(), testSendRequest())
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", result.Status, tt.wantStatus)
			}
			if result.ReplyText != tt.wantReply {
				t.Errorf("reply text = %q, want %q", result.ReplyText, tt.wantReply)
			}
		})
	}
}

func TestSendRetriesTransientServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"sent"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 2)
	result, err := client.Send(context.Background(), testSendRequest())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Status != worker.SendSent {
		t.Errorf("status = %s, want sent", result.Status)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestSendClientErrorIsNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("missing body"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 3)
	_, err := client.Send(context.Background(), testSendRequest())
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/analyze" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"sentiment":"positive","keywords":["pricing","demo"]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 1)
	sentiment, keywords, err := client.Analyze(context.Background(), "tell me about pricing")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if sentiment != campaign.SentimentPositive {
		t.Errorf("sentiment = %s", sentiment)
	}
	if len(keywords) != 2 || keywords[0] != "pricing" {
		t.Errorf("keywords = %v", keywords)
	}
}

func TestAnalyzeUnknownSentimentFallsBackToNeutral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sentiment":"ecstatic","keywords":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 1)
	sentiment, _, err := client.Analyze(context.Background(), "wow")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if sentiment != campaign.SentimentNeutral {
		t.Errorf("sentiment = %s, want neutral", sentiment)
	}
}
