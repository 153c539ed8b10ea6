package driver

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pagoda/harvester/internal/config"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// AgentSession drives the app through a UiAutomator2-style automation agent
// over its REST protocol. One session maps to one app instance on the
// emulator.
type AgentSession struct {
	http      *resty.Client
	cfg       config.AgentConfig
	sessionID string
}

type valueEnvelope struct {
	Value map[string]interface{} `json:"value"`
}

// NewAgentSession creates the agent session and launches the app. Failure
// here is fatal to the run; there is nothing to drive without a session.
func NewAgentSession(ctx context.Context, cfg config.AgentConfig) (*AgentSession, error) {
	client := resty.New().
		SetBaseURL(cfg.BaseURL()).
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2*time.Second).
		SetRetryMaxWaitTime(10*time.Second).
		SetHeader("Content-Type", "application/json")

	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": map[string]interface{}{
				"platformName":           "Android",
				"appium:automationName":  "UiAutomator2",
				"appium:appPackage":      cfg.AppPackage,
				"appium:appActivity":     cfg.AppActivity,
				"appium:noReset":         true,
				"appium:settings[imageMatchThreshold]": cfg.ImageMatch,
			},
		},
	}

	var out valueEnvelope
	resp, err := client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/session")
	if err != nil {
		return nil, fmt.Errorf("failed to create agent session: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("agent rejected session: %d %s", resp.StatusCode(), resp.String())
	}

	id, _ := out.Value["sessionId"].(string)
	if id == "" {
		return nil, fmt.Errorf("agent session response missing sessionId")
	}

	log.Infof("Agent session %s created for %s", id, cfg.AppPackage)
	return &AgentSession{http: client, cfg: cfg, sessionID: id}, nil
}

func (s *AgentSession) url(format string, args ...interface{}) string {
	return fmt.Sprintf("/session/%s", s.sessionID) + fmt.Sprintf(format, args...)
}

// LocateByImage asks the agent's image-recognition plugin to find a region
// matching the named signature asset. The matching itself is a black box; the
// agent answers with a bounding region or not-found.
func (s *AgentSession) LocateByImage(ctx context.Context, asset string) (Element, error) {
	path := filepath.Join(s.cfg.AssetsDir, asset)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Element{}, fmt.Errorf("failed to read image signature %s: %w", asset, err)
	}

	var out valueEnvelope
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"using": "-image",
			"value": base64.StdEncoding.EncodeToString(raw),
		}).
		SetResult(&out).
		Post(s.url("/element"))
	if err != nil {
		return Element{}, fmt.Errorf("image locate request failed: %w", err)
	}
	if resp.StatusCode() == 404 {
		return Element{}, ErrNotFound
	}
	if resp.IsError() {
		return Element{}, fmt.Errorf("image locate failed: %d %s", resp.StatusCode(), resp.String())
	}

	id := elementID(out.Value)
	if id == "" {
		return Element{}, ErrNotFound
	}
	log.Debugf("Image signature %s matched as %s", asset, id)
	return Element{ID: id}, nil
}

// LocateByText probes the current UI hierarchy dump for the text before
// asking the agent for an element handle. The probe keeps misses cheap: a
// direct find would block for the agent's full implicit wait.
func (s *AgentSession) LocateByText(ctx context.Context, text string) (Element, error) {
	src, err := s.CurrentScreen(ctx)
	if err != nil {
		return Element{}, err
	}

	bounds, ok, err := findTextBounds(src, text)
	if err != nil {
		return Element{}, fmt.Errorf("failed to scan UI hierarchy: %w", err)
	}
	if !ok {
		return Element{}, ErrNotFound
	}

	var out valueEnvelope
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"using": "xpath",
			"value": fmt.Sprintf(`//*[@text=%q or @content-desc=%q]`, text, text),
		}).
		SetResult(&out).
		Post(s.url("/element"))
	if err != nil {
		return Element{}, fmt.Errorf("text locate request failed: %w", err)
	}
	if resp.StatusCode() == 404 {
		// Hierarchy had it but the screen moved on; treat as a miss.
		return Element{}, ErrNotFound
	}
	if resp.IsError() {
		return Element{}, fmt.Errorf("text locate failed: %d %s", resp.StatusCode(), resp.String())
	}

	return Element{ID: elementID(out.Value), Bounds: bounds}, nil
}

func (s *AgentSession) Tap(ctx context.Context, el Element) error {
	if el.ID != "" {
		resp, err := s.http.R().
			SetContext(ctx).
			SetBody(map[string]string{}).
			Post(s.url("/element/%s/click", el.ID))
		if err != nil {
			return fmt.Errorf("tap request failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("tap on %s failed: %d %s", el, resp.StatusCode(), resp.String())
		}
		return nil
	}

	x, y := el.Bounds.Center()
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"script": "mobile: clickGesture",
			"args":   []interface{}{map[string]int{"x": x, "y": y}},
		}).
		Post(s.url("/execute/sync"))
	if err != nil {
		return fmt.Errorf("coordinate tap request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("coordinate tap at (%d,%d) failed: %d %s", x, y, resp.StatusCode(), resp.String())
	}
	return nil
}

func (s *AgentSession) Clear(ctx context.Context, el Element) error {
	if el.ID == "" {
		return fmt.Errorf("cannot clear %s: no element handle", el)
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]string{}).
		Post(s.url("/element/%s/clear", el.ID))
	if err != nil {
		return fmt.Errorf("clear request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("clear on %s failed: %d %s", el, resp.StatusCode(), resp.String())
	}
	return nil
}

func (s *AgentSession) Type(ctx context.Context, el Element, text string) error {
	if el.ID == "" {
		return fmt.Errorf("cannot type into %s: no element handle", el)
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		Post(s.url("/element/%s/value", el.ID))
	if err != nil {
		return fmt.Errorf("type request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("type into %s failed: %d %s", el, resp.StatusCode(), resp.String())
	}
	return nil
}

func (s *AgentSession) CurrentScreen(ctx context.Context) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(s.url("/source"))
	if err != nil {
		return "", fmt.Errorf("source request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("source fetch failed: %d %s", resp.StatusCode(), resp.String())
	}
	return out.Value, nil
}

func (s *AgentSession) Close(ctx context.Context) error {
	resp, err := s.http.R().
		SetContext(ctx).
		Delete(s.url(""))
	if err != nil {
		return fmt.Errorf("session delete failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("session delete failed: %d %s", resp.StatusCode(), resp.String())
	}
	log.Infof("Agent session %s closed", s.sessionID)
	return nil
}

// elementID digs the element handle out of a find response; the agent may use
// the W3C key or the legacy one.
func elementID(value map[string]interface{}) string {
	for _, key := range []string{"element-6066-11e4-a52e-4f735466cecf", "ELEMENT"} {
		if id, ok := value[key].(string); ok && id != "" {
			return id
		}
	}
	return ""
}
