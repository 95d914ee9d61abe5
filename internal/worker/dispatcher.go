package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/message"
)

// SendStatus is the transport's verdict for one send attempt.
type SendStatus string

const (
	SendSent             SendStatus = "sent"
	SendReplyDetected    SendStatus = "reply_detected"
	SendTransientFailure SendStatus = "transient_failure"
	SendPermanentFailure SendStatus = "permanent_failure"
	SendUnsubscribed     SendStatus = "unsubscribed"
)

// SendRequest is what the transport needs to perform one action.
type SendRequest struct {
	Account *campaign.SenderAccount
	Contact *campaign.Contact
	Step    *campaign.Step
	Subject string
	Body    string
}

// SendResult is the transport's answer. ReplyText is set when the
// status is reply_detected; Detail carries the failure description.
type SendResult struct {
	Status    SendStatus
	ReplyText string
	Detail    string
}

// Transport performs the actual LinkedIn or email send. Implemented
// elsewhere; the engine only interprets its result.
type Transport interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// SentimentAnalyzer classifies reply text and extracts keywords.
// Implemented elsewhere.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text string) (campaign.Sentiment, []string, error)
}

// Dispatcher renders the step template, hands the action to the
// transport under a timeout, and classifies the result into an
// outcome. It never touches contact state; that is the machine's job.
type Dispatcher struct {
	transport Transport
	analyzer  SentimentAnalyzer
	renderer  *message.Renderer
	timeout   time.Duration
}

// NewDispatcher creates a dispatcher. analyzer may be nil; replies are
// then recorded with neutral sentiment and no keywords.
func NewDispatcher(transport Transport, analyzer SentimentAnalyzer, renderer *message.Renderer, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		transport: transport,
		analyzer:  analyzer,
		renderer:  renderer,
		timeout:   timeout,
	}
}

// Dispatch executes one due step for one contact and returns the
// outcome. The rate limiter slot was consumed before this call and is
// never refunded: a timeout here is a transient failure, not a free
// retry against the daily cap.
func (d *Dispatcher) Dispatch(ctx context.Context, acct *campaign.SenderAccount, camp *campaign.Campaign, c *campaign.Contact, step *campaign.Step) campaign.Outcome {
	now := time.Now().UTC()
	out := campaign.Outcome{
		CampaignID: camp.ID,
		ContactID:  c.ID,
		StepOrder:  step.Position,
		StepType:   step.Type,
		OccurredAt: now,
	}

	subject, body, err := d.render(camp, c, step)
	if err != nil {
		// A template that fails to render will fail every retry.
		out.Result = campaign.ResultPermanentFailure
		out.Error = err.Error()
		return out
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := d.transport.Send(sendCtx, SendRequest{
		Account: acct,
		Contact: c,
		Step:    step,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		out.Result = campaign.ResultTransientFailure
		if errors.Is(err, context.DeadlineExceeded) {
			out.Error = "send timed out"
		} else {
			out.Error = err.Error()
		}
		return out
	}

	switch result.Status {
	case SendSent:
		out.Result = campaign.ResultSent

	case SendReplyDetected:
		out.Result = campaign.ResultReply
		out.ReplyText = result.ReplyText
		out.Sentiment, out.Keywords = d.analyze(ctx, result.ReplyText)

	case SendPermanentFailure:
		out.Result = campaign.ResultPermanentFailure
		out.Error = result.Detail

	case SendUnsubscribed:
		out.Result = campaign.ResultUnsubscribed

	default:
		out.Result = campaign.ResultTransientFailure
		out.Error = result.Detail
	}
	return out
}

func (d *Dispatcher) render(camp *campaign.Campaign, c *campaign.Contact, step *campaign.Step) (string, string, error) {
	subjectTmpl, bodyTmpl := step.Template()
	bindings := message.Bindings(c.Lead)
	cacheKey := camp.ID.String() + ":" + step.ID.String()

	body, err := d.renderer.Render(cacheKey, bodyTmpl, bindings)
	if err != nil {
		return "", "", err
	}
	subject, err := d.renderer.Render(cacheKey+":subject", subjectTmpl, bindings)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func (d *Dispatcher) analyze(ctx context.Context, text string) (campaign.Sentiment, []string) {
	if d.analyzer == nil || text == "" {
		return campaign.SentimentNeutral, nil
	}
	sentiment, keywords, err := d.analyzer.Analyze(ctx, text)
	if err != nil {
		log.Printf("[Dispatcher] Sentiment analysis failed, recording neutral: %v", err)
		return campaign.SentimentNeutral, nil
	}
	return sentiment, keywords
}
