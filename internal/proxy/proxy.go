// Package proxy is the client library embedded in the API process. It
// speaks to the model host only through the ipc mailbox, enforces one
// request in flight, times out instead of blocking on a dead peer, and
// degrades to a canned answer when the host is unreachable.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lexd/internal/ipc"
	"lexd/pkg/types"
)

// FallbackAnswer is returned by GenerateWithFallback whenever the host
// cannot serve. It is deliberately static and clearly marked so callers
// and users can tell degraded output from model output.
const FallbackAnswer = "[degraded mode] The research assistant is temporarily " +
	"unavailable. Your query was received but could not be answered by the " +
	"language model; please retry shortly or consult the cited source documents directly."

// Defaults applied when corresponding Config fields are unset.
const (
	defaultLoadTimeout    = 120 * time.Second
	defaultRequestTimeout = 15 * time.Second
	defaultPollEvery      = 50 * time.Millisecond
	defaultHeartbeatTTL   = 30 * time.Second
)

// Config tunes the proxy.
type Config struct {
	Mailbox ipc.Mailbox
	// LoadTimeout bounds model load round trips (cold downloads included).
	LoadTimeout time.Duration
	// RequestTimeout bounds inference and status round trips.
	RequestTimeout time.Duration
	// PollEvery is the response polling interval.
	PollEvery time.Duration
	// HeartbeatTTL is the liveness freshness window.
	HeartbeatTTL time.Duration
	Logger       zerolog.Logger
	// now is injectable for staleness tests.
	Now func() time.Time
}

// Client is safe for concurrent use; a mutex serializes round trips so at
// most one request is ever in flight on the channel.
type Client struct {
	cfg Config
	log zerolog.Logger

	mu            sync.Mutex
	lastRequestID string

	fallbackMode atomic.Bool
}

// New constructs a Client, filling unset Config fields with defaults.
func New(cfg Config) *Client {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = defaultPollEvery
	}
	if cfg.HeartbeatTTL <= 0 {
		cfg.HeartbeatTTL = defaultHeartbeatTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{cfg: cfg, log: cfg.Logger}
}

// FallbackMode reports whether the last generation degraded to the canned
// answer. Surfaced to operators via the API process.
func (c *Client) FallbackMode() bool { return c.fallbackMode.Load() }

// LastRequestID returns the correlation token of the most recent request.
func (c *Client) LastRequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequestID
}

// Liveness returns the host's latest report without consuming it.
func (c *Client) Liveness() (types.LivenessReport, bool) {
	rep, ok, err := c.cfg.Mailbox.ReadLiveness()
	if err != nil || !ok {
		return types.LivenessReport{}, false
	}
	return rep, true
}

// EnsureReady makes sure the slot's model is resident. A stale or absent
// liveness report declares the host unavailable immediately, without
// posting a request, so callers never block on a dead peer.
func (c *Client) EnsureReady(ctx context.Context, slot types.Slot) error {
	rep, ok := c.Liveness()
	if !ok || rep.Stale(c.cfg.Now(), c.cfg.HeartbeatTTL) {
		return hostUnavailableError{reason: "liveness report stale or missing"}
	}
	if rep.ModelStates[slot] == types.StateReady {
		return nil
	}
	resp, err := c.roundTrip(ctx, types.LoadActionFor(slot), nil, c.cfg.LoadTimeout)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("load %s: %s", slot, resp.Error)
	}
	return nil
}

// Generate runs a completion on the given slot, ensuring residency first.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int, slot types.Slot) (types.GenerateResult, error) {
	if slot == "" {
		slot = types.SlotUtility
	}
	if err := c.EnsureReady(ctx, slot); err != nil {
		return types.GenerateResult{}, err
	}
	payload, err := types.MarshalPayload(types.GeneratePayload{Prompt: prompt, MaxTokens: maxTokens, Slot: slot})
	if err != nil {
		return types.GenerateResult{}, err
	}
	resp, err := c.roundTrip(ctx, types.ActionGenerate, payload, c.cfg.RequestTimeout)
	if err != nil {
		return types.GenerateResult{}, err
	}
	if !resp.Success {
		return types.GenerateResult{}, fmt.Errorf("generate: %s", resp.Error)
	}
	var res types.GenerateResult
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		return types.GenerateResult{}, fmt.Errorf("decode generate result: %w", err)
	}
	return res, nil
}

// GenerateWithFallback never fails: any error path returns the canned
// degraded-mode answer and flips fallback mode on. A successful round
// trip clears it.
func (c *Client) GenerateWithFallback(ctx context.Context, prompt string) string {
	res, err := c.Generate(ctx, prompt, 0, types.SlotUtility)
	if err != nil {
		c.log.Warn().Err(err).Msg("generation degraded to fallback")
		c.fallbackMode.Store(true)
		fallbacksTotal.Inc()
		return FallbackAnswer
	}
	c.fallbackMode.Store(false)
	return res.Text
}

// Embed encodes texts with the always-resident embedding model.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.EnsureReady(ctx, types.SlotEmbedder); err != nil {
		return nil, err
	}
	payload, err := types.MarshalPayload(types.EmbedPayload{Texts: texts})
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, types.ActionEmbed, payload, c.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("embed: %s", resp.Error)
	}
	var res types.EmbedResult
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		return nil, fmt.Errorf("decode embed result: %w", err)
	}
	return res.Vectors, nil
}

// Status fetches the host's operator snapshot.
func (c *Client) Status(ctx context.Context) (types.StatusResult, error) {
	resp, err := c.roundTrip(ctx, types.ActionStatus, nil, c.cfg.RequestTimeout)
	if err != nil {
		return types.StatusResult{}, err
	}
	if !resp.Success {
		return types.StatusResult{}, fmt.Errorf("status: %s", resp.Error)
	}
	var res types.StatusResult
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		return types.StatusResult{}, fmt.Errorf("decode status: %w", err)
	}
	return res, nil
}

// UnloadAll asks the host to release every resident model.
func (c *Client) UnloadAll(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, types.ActionUnloadAll, nil, c.cfg.RequestTimeout)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("unload all: %s", resp.Error)
	}
	return nil
}

// roundTrip posts one request and polls for its response until timeout.
// Responses carrying any other correlation token are stale leftovers from
// a superseded request and are discarded.
func (c *Client) roundTrip(ctx context.Context, action types.Action, payload json.RawMessage, timeout time.Duration) (types.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := types.Request{
		ID:       uuid.NewString(),
		Action:   action,
		Payload:  payload,
		IssuedAt: c.cfg.Now(),
	}
	c.lastRequestID = req.ID
	if err := c.cfg.Mailbox.PostRequest(req); err != nil {
		return types.Response{}, fmt.Errorf("post request: %w", err)
	}

	deadline := c.cfg.Now().Add(timeout)
	for {
		resp, ok, err := c.cfg.Mailbox.TakeResponse()
		if err == nil && ok {
			if resp.RequestID == req.ID {
				return resp, nil
			}
			staleResponsesTotal.Inc()
			c.log.Debug().Str("got", resp.RequestID).Str("want", req.ID).Msg("discarding stale response")
		}
		if c.cfg.Now().After(deadline) {
			return types.Response{}, requestTimeoutError{action: string(action), timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return types.Response{}, ctx.Err()
		case <-time.After(c.cfg.PollEvery):
		}
	}
}
