package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pagoda/harvester/internal/domain"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

// Replayer re-issues a captured product-search request with a substituted
// keyword. One real UI search primes the seed exchange; every further keyword
// can then go straight to the API with the app's own headers and body shape,
// paced so the backend sees nothing unusual.
type Replayer struct {
	http *resty.Client
	rl   ratelimit.Limiter
}

func NewReplayer(maxRequestsPerSecond int) *Replayer {
	if maxRequestsPerSecond <= 0 {
		maxRequestsPerSecond = 2
	}
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Replayer{
		http: client,
		rl:   ratelimit.New(maxRequestsPerSecond),
	}
}

// Replay swaps term into the seed request's keywords field and re-issues it.
// The result is a synthetic exchange shaped exactly like a captured one, so
// the extractor treats both the same.
func (r *Replayer) Replay(ctx context.Context, seed domain.Exchange, term domain.SearchTerm) (domain.Exchange, error) {
	body, err := substituteKeyword(seed.RequestBody, term)
	if err != nil {
		return domain.Exchange{}, err
	}

	r.rl.Take()

	req := r.http.R().
		SetContext(ctx).
		SetBody(body)
	for k, v := range seed.RequestHeaders {
		req.SetHeader(k, v)
	}

	resp, err := req.Execute(seed.Method, seed.URL)
	if err != nil {
		return domain.Exchange{}, &domain.APIError{URL: seed.URL, Reason: err}
	}
	if resp.IsError() {
		return domain.Exchange{}, &domain.APIError{URL: seed.URL, Status: resp.StatusCode()}
	}

	log.Debugf("Replayed search for %q against %s", term, seed.URL)
	return domain.Exchange{
		Method:         seed.Method,
		URL:            seed.URL,
		RequestHeaders: seed.RequestHeaders,
		RequestBody:    body,
		Status:         resp.StatusCode(),
		ResponseBody:   resp.String(),
		Timestamp:      time.Now(),
	}, nil
}

func substituteKeyword(seedBody string, term domain.SearchTerm) (string, error) {
	if seedBody == "" {
		return "", fmt.Errorf("seed exchange has no request body")
	}
	var body map[string]interface{}
	if err := json.Unmarshal([]byte(seedBody), &body); err != nil {
		return "", fmt.Errorf("seed request body is not JSON: %w", err)
	}
	body["keywords"] = term.String()
	out, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to rebuild request body: %w", err)
	}
	return string(out), nil
}
