// Package insights computes the read-only campaign projections:
// per-day stats, per-step performance and reply analysis. Everything
// here is derived from the outcome log and the contact table, never
// mutated directly, and tolerates being queried mid-run because
// outcome writes are transactional.
package insights

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/campaign"
)

// cacheTTL is short: insights are dashboard reads, and a minute of
// staleness is invisible next to a 15s scheduler tick.
const cacheTTL = 60 * time.Second

// Service answers insight queries with a Redis cache in front of the
// aggregate SQL. The Redis client is optional; without it every read
// hits postgres.
type Service struct {
	db    *sql.DB
	redis *redis.Client
}

// NewService creates an insights service. redisClient may be nil.
func NewService(db *sql.DB, redisClient *redis.Client) *Service {
	return &Service{db: db, redis: redisClient}
}

// cached runs fn on cache miss and stores its JSON result under key.
func cached[T any](ctx context.Context, s *Service, key string, out *T, fn func() (T, error)) error {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, key).Bytes()
		if err == nil {
			if json.Unmarshal(raw, out) == nil {
				return nil
			}
		}
	}

	val, err := fn()
	if err != nil {
		return err
	}
	*out = val

	if s.redis != nil {
		if raw, err := json.Marshal(val); err == nil {
			s.redis.Set(ctx, key, raw, cacheTTL)
		}
	}
	return nil
}

// Invalidate drops a campaign's cached projections, used after
// lifecycle commands that change what the dashboard should see.
func (s *Service) Invalidate(ctx context.Context, campaignID uuid.UUID) {
	if s.redis == nil {
		return
	}
	iter := s.redis.Scan(ctx, 0, fmt.Sprintf("outreach:insights:*:%s*", campaignID), 100).Iterator()
	for iter.Next(ctx) {
		s.redis.Del(ctx, iter.Val())
	}
}

// DailyStats returns per-day send/reply/error counts over the last
// `days` days, newest last. Days with no activity are omitted.
func (s *Service) DailyStats(ctx context.Context, campaignID uuid.UUID, days int) ([]campaign.DailyStats, error) {
	if days <= 0 {
		days = 30
	}

	var stats []campaign.DailyStats
	key := fmt.Sprintf("outreach:insights:daily:%s:%d", campaignID, days)
	err := cached(ctx, s, key, &stats, func() ([]campaign.DailyStats, error) {
		return s.queryDailyStats(ctx, campaignID, days)
	})
	return stats, err
}

func (s *Service) queryDailyStats(ctx context.Context, campaignID uuid.UUID, days int) ([]campaign.DailyStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(occurred_at::date, 'YYYY-MM-DD') AS day,
		       COUNT(*) FILTER (WHERE result = 'sent' AND step_type = 'invitation') AS invitations,
		       COUNT(*) FILTER (WHERE result = 'sent' AND step_type = 'message') AS messages,
		       COUNT(*) FILTER (WHERE result = 'sent' AND step_type = 'email') AS emails,
		       COUNT(*) FILTER (WHERE result = 'reply') AS replies,
		       COUNT(*) FILTER (WHERE result = 'permanent_failure') AS errors
		FROM outreach_outcomes
		WHERE campaign_id = $1 AND occurred_at >= NOW() - make_interval(days => $2)
		GROUP BY occurred_at::date
		ORDER BY occurred_at::date ASC
	`, campaignID, days)
	if err != nil {
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	defer rows.Close()

	var stats []campaign.DailyStats
	for rows.Next() {
		var d campaign.DailyStats
		if err := rows.Scan(&d.Day, &d.InvitationsSent, &d.MessagesSent, &d.EmailsSent, &d.RepliesReceived, &d.Errors); err != nil {
			return nil, err
		}
		stats = append(stats, d)
	}
	return stats, rows.Err()
}

// StepPerformance returns per-step sent/replied/accepted counts with
// the reply rate. Accepted counts the contacts that advanced past the
// step, which for invitations approximates accepted connections.
func (s *Service) StepPerformance(ctx context.Context, campaignID uuid.UUID) ([]campaign.StepPerformance, error) {
	var perf []campaign.StepPerformance
	key := fmt.Sprintf("outreach:insights:steps:%s", campaignID)
	err := cached(ctx, s, key, &perf, func() ([]campaign.StepPerformance, error) {
		return s.queryStepPerformance(ctx, campaignID)
	})
	return perf, err
}

func (s *Service) queryStepPerformance(ctx context.Context, campaignID uuid.UUID) ([]campaign.StepPerformance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.position, s.type,
		       COUNT(o.id) FILTER (WHERE o.result = 'sent') AS sent,
		       COUNT(o.id) FILTER (WHERE o.result = 'reply') AS replied
		FROM outreach_steps s
		LEFT JOIN outreach_outcomes o
		  ON o.campaign_id = s.campaign_id AND o.step_order = s.position
		WHERE s.campaign_id = $1
		GROUP BY s.position, s.type
		ORDER BY s.position ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("step performance: %w", err)
	}
	defer rows.Close()

	var perf []campaign.StepPerformance
	for rows.Next() {
		var p campaign.StepPerformance
		if err := rows.Scan(&p.StepOrder, &p.StepType, &p.Sent, &p.Replied); err != nil {
			return nil, err
		}
		if p.Sent > 0 {
			p.ReplyRate = float64(p.Replied) / float64(p.Sent)
		}
		perf = append(perf, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range perf {
		var accepted int
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM outreach_contacts
			WHERE campaign_id = $1 AND current_step_order > $2
		`, campaignID, perf[i].StepOrder).Scan(&accepted)
		if err != nil {
			return nil, fmt.Errorf("step advancement: %w", err)
		}
		perf[i].Accepted = accepted
	}
	return perf, nil
}

// ReplyAnalysis returns the sentiment histogram and the most frequent
// reply keywords for a campaign.
func (s *Service) ReplyAnalysis(ctx context.Context, campaignID uuid.UUID) (campaign.ReplyAnalysis, error) {
	var analysis campaign.ReplyAnalysis
	key := fmt.Sprintf("outreach:insights:replies:%s", campaignID)
	err := cached(ctx, s, key, &analysis, func() (campaign.ReplyAnalysis, error) {
		return s.queryReplyAnalysis(ctx, campaignID)
	})
	return analysis, err
}

func (s *Service) queryReplyAnalysis(ctx context.Context, campaignID uuid.UUID) (campaign.ReplyAnalysis, error) {
	analysis := campaign.ReplyAnalysis{Sentiments: make(map[campaign.Sentiment]int)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(sentiment, 'neutral'), COUNT(*)
		FROM outreach_replies
		WHERE campaign_id = $1
		GROUP BY sentiment
	`, campaignID)
	if err != nil {
		return analysis, fmt.Errorf("reply sentiments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sentiment string
		var count int
		if err := rows.Scan(&sentiment, &count); err != nil {
			return analysis, err
		}
		analysis.Sentiments[campaign.Sentiment(sentiment)] = count
		analysis.TotalReplies += count
	}
	if err := rows.Err(); err != nil {
		return analysis, err
	}

	kwRows, err := s.db.QueryContext(ctx, `
		SELECT kw, COUNT(*) AS freq
		FROM outreach_replies, unnest(keywords) AS kw
		WHERE campaign_id = $1
		GROUP BY kw
		ORDER BY freq DESC, kw ASC
		LIMIT 20
	`, campaignID)
	if err != nil {
		return analysis, fmt.Errorf("reply keywords: %w", err)
	}
	defer kwRows.Close()

	for kwRows.Next() {
		var k campaign.KeywordCount
		if err := kwRows.Scan(&k.Keyword, &k.Count); err != nil {
			return analysis, err
		}
		analysis.Keywords = append(analysis.Keywords, k)
	}
	return analysis, kwRows.Err()
}
