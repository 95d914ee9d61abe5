package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/schedule"
)

// RateLimiter enforces daily action caps using atomic Redis Lua scripts.
// Plain GET → check → INCR patterns race when several account workers
// admit for the same campaign at once; the Lua script checks every
// limit and increments every counter in one Redis round trip.
type RateLimiter struct {
	redis *redis.Client

	admitScript *redis.Script
}

// Admission is the limiter's decision for one due action. When denied,
// DeniedBy names the exhausted scope ("campaign" or "account") and the
// caller defers the action to the next open window instead of failing it.
type Admission struct {
	Allowed  bool
	Count    int64 // campaign-scope count after increment, or current on denial
	DeniedBy string
}

// counterTTL keeps day buckets alive past midnight in every timezone
// we schedule for, then lets Redis reclaim them.
const counterTTL = 48 * time.Hour

// Lua script for dual-scope admission. Checks the campaign cap and the
// sender-account cap BEFORE incrementing, and only increments both
// counters when both pass. A limit of 0 means uncapped for that scope.
const admitLuaScript = `
local campaignKey = KEYS[1]
local accountKey = KEYS[2]
local increment = tonumber(ARGV[1])
local campaignLimit = tonumber(ARGV[2])
local accountLimit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local campCurrent = tonumber(redis.call("GET", campaignKey) or "0")
local acctCurrent = tonumber(redis.call("GET", accountKey) or "0")

if campaignLimit > 0 and campCurrent + increment > campaignLimit then
    return {0, 1, campCurrent}
end
if accountLimit > 0 and acctCurrent + increment > accountLimit then
    return {0, 2, acctCurrent}
end

local newCamp = redis.call("INCRBY", campaignKey, increment)
if newCamp == increment then
    redis.call("EXPIRE", campaignKey, ttl)
end

local newAcct = redis.call("INCRBY", accountKey, increment)
if newAcct == increment then
    redis.call("EXPIRE", accountKey, ttl)
end

return {1, 0, newCamp}
`

// NewRateLimiter creates a limiter with the admission script pre-compiled.
func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:       redisClient,
		admitScript: redis.NewScript(admitLuaScript),
	}
}

// NewRateLimiterFromURL creates a limiter by connecting to Redis.
func NewRateLimiterFromURL(redisURL string) (*RateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[RateLimiter] Connected to Redis")

	return NewRateLimiter(client), nil
}

func campaignCounterKey(campaignID uuid.UUID, kind campaign.StepType, day string) string {
	return fmt.Sprintf("outreach:ratelimit:campaign:%s:%s:%s", campaignID, kind, day)
}

func accountCounterKey(accountID uuid.UUID, day string) string {
	return fmt.Sprintf("outreach:ratelimit:account:%s:%s", accountID, day)
}

// TryAdmit atomically checks and increments the day counters for one
// action. now must already be localized to the campaign's timezone so
// the day bucket rolls over at the campaign's midnight. A denied
// admission consumed nothing; an allowed one is consumed permanently,
// even if the dispatch that follows it fails.
func (l *RateLimiter) TryAdmit(ctx context.Context, campaignID, accountID uuid.UUID, kind campaign.StepType, campaignLimit, accountLimit int, now time.Time) (Admission, error) {
	day := now.Format("2006-01-02")

	result, err := l.admitScript.Run(ctx, l.redis,
		[]string{
			campaignCounterKey(campaignID, kind, day),
			accountCounterKey(accountID, day),
		},
		1,
		campaignLimit,
		accountLimit,
		int(counterTTL.Seconds()),
	).Slice()

	if err != nil {
		return Admission{}, fmt.Errorf("admission check failed: %w", err)
	}

	allowed := result[0].(int64) == 1
	deniedScope := result[1].(int64)
	count := result[2].(int64)

	adm := Admission{Allowed: allowed, Count: count}
	if !allowed {
		switch deniedScope {
		case 1:
			adm.DeniedBy = "campaign"
		case 2:
			adm.DeniedBy = "account"
		}
	}
	return adm, nil
}

// Usage returns the current day's counter values for a campaign.
func (l *RateLimiter) Usage(ctx context.Context, campaignID uuid.UUID, now time.Time) (map[string]int64, error) {
	day := now.Format("2006-01-02")

	pipe := l.redis.Pipeline()
	invCmd := pipe.Get(ctx, campaignCounterKey(campaignID, campaign.StepInvitation, day))
	msgCmd := pipe.Get(ctx, campaignCounterKey(campaignID, campaign.StepMessage, day))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("usage read failed: %w", err)
	}

	inv, _ := invCmd.Int64()
	msg, _ := msgCmd.Int64()

	return map[string]int64{
		"invitations": inv,
		"messages":    msg,
	}, nil
}

// NextAdmissionAt computes when a deferred action becomes eligible
// again: the opening of the window on the next send day, never today.
// Returns the zero time when the window has no send days.
func NextAdmissionAt(now time.Time, win schedule.Window) time.Time {
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return win.NextOpen(tomorrow)
}

// Close closes the Redis connection.
func (l *RateLimiter) Close() error {
	return l.redis.Close()
}
