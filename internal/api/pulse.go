package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"sc2-custom-tracker/internal/config"
	"sc2-custom-tracker/internal/constants"
	"sc2-custom-tracker/internal/domain"
)

const (
	maxRetries     = 3
	retryBaseDelay = 500 * time.Millisecond

	// Upstream allows roughly 10 req/s per client; stay well under it.
	requestsPerSecond = 5
	requestBurst      = 5
)

// PulseClient talks to the upstream ladder-statistics service. Retry on
// 429/5xx and client-side pacing live here so callers can treat a fetch as a
// single fallible operation.
type PulseClient struct {
	baseURL     string
	apiKey      string
	client      *fasthttp.Client
	limiter     *rate.Limiter
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     int       `json:"reset"`
	UpdatedAt time.Time `json:"updated_at"`
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream error: %d", e.code)
}

func NewPulseClient(cfg *config.Config) *PulseClient {
	return &PulseClient{
		baseURL: cfg.PulseBaseURL,
		apiKey:  cfg.PulseAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		rateLimit: RateLimitInfo{
			Limit:     requestsPerSecond,
			Remaining: requestsPerSecond,
			Reset:     1,
			UpdatedAt: time.Now(),
		},
	}
}

func (c *PulseClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *PulseClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

// GetCharacterMatches fetches recent matches for a ladder character,
// optionally filtered by match type (empty string means all types).
func (c *PulseClient) GetCharacterMatches(ctx context.Context, characterID int64, matchType string, limit int) (*CharacterMatchesResponse, error) {
	q := url.Values{}
	q.Set("characterId", strconv.FormatInt(characterID, 10))
	q.Set("limit", strconv.Itoa(limit))
	if matchType != "" {
		q.Set("type", matchType)
	}
	u := fmt.Sprintf("%s/character-matches?%s", c.baseURL, q.Encode())
	return doRequest[CharacterMatchesResponse](ctx, c, u)
}

// GetCharacter fetches display metadata for a single ladder character.
func (c *PulseClient) GetCharacter(ctx context.Context, characterID int64) (*CharacterResponse, error) {
	u := fmt.Sprintf("%s/character/%d", c.baseURL, characterID)
	return doRequest[CharacterResponse](ctx, c, u)
}

func doRequest[T any](ctx context.Context, client *PulseClient, url string) (*T, error) {
	var result *T

	backoff := retry.WithMaxRetries(maxRetries, retry.NewFibonacci(retryBaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.limiter.Wait(ctx); err != nil {
			return err
		}

		body, err := client.fetch(ctx, url)
		if err != nil {
			if isRetryableStatus(err) {
				return retry.RetryableError(err)
			}
			return err
		}

		var decoded T
		if err := json.Unmarshal(body, &decoded); err != nil {
			return fmt.Errorf("decode upstream response: %w", err)
		}
		result = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isRetryableStatus(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.code == fasthttp.StatusTooManyRequests || se.code >= 500
}

func (c *PulseClient) fetch(ctx context.Context, url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := c.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	c.updateRateLimit(resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &statusError{code: resp.StatusCode()}
	}

	// Body is pooled by fasthttp; copy before release.
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}

// --------------------------------------------------------------------------
// Response payloads — the typed boundary for upstream data. Parsing failures
// surface as errors from the fetch, never as loosely-typed values downstream.
// --------------------------------------------------------------------------

type CharacterMatchesResponse struct {
	Result []CharacterMatch `json:"result"`
}

type CharacterMatch struct {
	Match        PulseMatch         `json:"match"`
	Map          PulseMap           `json:"map"`
	Participants []PulseParticipant `json:"participants"`
}

type PulseMatch struct {
	ID       int64     `json:"id"`
	Date     time.Time `json:"date"`
	Type     string    `json:"type"`
	MapID    int64     `json:"mapId"`
	Duration *int      `json:"duration"`
}

type PulseMap struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type PulseParticipant struct {
	MatchID           int64  `json:"matchId"`
	PlayerCharacterID *int64 `json:"playerCharacterId"`
	Decision          string `json:"decision"`
	RatingChange      *int   `json:"ratingChange"`
}

type CharacterResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	BattleTag string `json:"battleTag"`
	Rating    *int   `json:"rating"`
}

// ToRawMatch converts one upstream record into the pipeline's raw match
// shape. Unrecognized decisions map to observer so they can never count as
// competitive.
func (m CharacterMatch) ToRawMatch() domain.RawMatch {
	participants := make([]domain.RawParticipant, 0, len(m.Participants))
	for _, p := range m.Participants {
		participants = append(participants, domain.RawParticipant{
			PlayerCharacterID: p.PlayerCharacterID,
			Decision:          parseDecision(p.Decision),
		})
	}
	return domain.RawMatch{
		MatchID:         m.Match.ID,
		Date:            m.Match.Date,
		Type:            domain.MatchType(m.Match.Type),
		MapID:           m.Map.ID,
		MapName:         m.Map.Name,
		DurationSeconds: m.Match.Duration,
		Participants:    participants,
	}
}

func parseDecision(s string) domain.ParticipantDecision {
	switch domain.ParticipantDecision(s) {
	case domain.DecisionWin, domain.DecisionLoss, domain.DecisionTie, domain.DecisionObserver:
		return domain.ParticipantDecision(s)
	}
	return domain.DecisionObserver
}
