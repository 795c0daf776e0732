package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/KingHarry001/portfolio/internal/domain"
	apperrors "github.com/KingHarry001/portfolio/pkg/errors"
	"github.com/KingHarry001/portfolio/pkg/httpclient"
)

const (
	profileServiceName = "identity-profiles"
	maxProfileLookups  = 8
	maxProfileBody     = 64 << 10
)

type profilePayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// ProfileClient resolves author display profiles from the identity
// provider through a retrying, circuit-broken HTTP client.
type ProfileClient struct {
	client  *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewProfileClient creates a client for GET {baseURL}/{userID}. serviceKey,
// when set, is sent both as apikey and as a bearer token.
func NewProfileClient(baseURL, serviceKey string, logger *slog.Logger) *ProfileClient {
	cfg := httpclient.DefaultConfig()
	if serviceKey != "" {
		cfg.Header = http.Header{
			"Apikey":        []string{serviceKey},
			"Authorization": []string{"Bearer " + serviceKey},
		}
	}
	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg),
		httpclient.DefaultCircuitBreakerConfig(profileServiceName),
		logger,
	)
	return newProfileClient(cb, baseURL, logger)
}

func newProfileClient(cb *httpclient.CircuitBreakerClient, baseURL string, logger *slog.Logger) *ProfileClient {
	return &ProfileClient{
		client:  cb.WithFallback(profilesUnavailable),
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// profilesUnavailable answers for the provider while its breaker is open.
func profilesUnavailable(_ context.Context, err error) (*http.Response, error) {
	return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrServiceUnavail, profileServiceName, err)
}

// Profile fetches one author's profile. An unknown user yields a NotFound
// AppError.
func (c *ProfileClient) Profile(ctx context.Context, userID string) (domain.AuthorProfile, error) {
	resp, err := c.client.Get(ctx, c.baseURL+"/"+url.PathEscape(userID))
	if err != nil {
		return domain.AuthorProfile{}, fmt.Errorf("fetch profile %s: %w", userID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.AuthorProfile{}, httpclient.ParseResponseError(resp, profileServiceName)
	}
	defer func() { _ = resp.Body.Close() }()

	var p profilePayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBody)).Decode(&p); err != nil {
		return domain.AuthorProfile{}, fmt.Errorf("decode profile %s: %w", userID, err)
	}

	profile := domain.AuthorProfile{ID: userID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
	if profile.DisplayName == "" {
		profile.DisplayName = domain.AnonymousProfile(userID).DisplayName
	}
	return profile, nil
}

// Profiles resolves every id concurrently. Lookups that fail fall back to
// the anonymous profile, so the result always has an entry per id.
func (c *ProfileClient) Profiles(ctx context.Context, ids []string) map[string]domain.AuthorProfile {
	out := make(map[string]domain.AuthorProfile, len(ids))
	if len(ids) == 0 {
		return out
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxProfileLookups)
	)
	for _, id := range uniq(ids) {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer func() {
				<-sem
				wg.Done()
			}()

			p, err := c.Profile(ctx, id)
			if err != nil {
				c.logFailure(ctx, id, err)
				p = domain.AnonymousProfile(id)
			}
			mu.Lock()
			out[id] = p
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

func (c *ProfileClient) logFailure(ctx context.Context, id string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return
	case errors.Is(err, apperrors.ErrServiceUnavail), errors.Is(err, context.Canceled):
		c.logger.DebugContext(ctx, "profile lookup skipped",
			slog.String("author_id", id),
			slog.String("error", err.Error()),
		)
	default:
		c.logger.WarnContext(ctx, "profile lookup failed, using anonymous profile",
			slog.String("author_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
