package netclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pubkey-quest/engine/internal/wire"
)

const defaultTimeout = 8 * time.Second

// ErrNoSession is returned when an operation needs identity credentials
// that have not been configured yet.
var ErrNoSession = errors.New("netclient: session credentials not set")

// Session identifies the player and save every request acts on.
type Session struct {
	Npub   string
	SaveID string
}

// Valid reports whether both credential halves are present.
func (s Session) Valid() bool {
	return s.Npub != "" && s.SaveID != ""
}

// Client speaks the quest-server wire contract over HTTP. It is safe
// for concurrent use; the synchronizer's single-flight guard is what
// keeps tick traffic serialized, not the client.
type Client struct {
	baseURL string
	http    *http.Client
	session Session
}

// New constructs a client for the given base URL. A zero timeout falls
// back to the default.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		session: Session{},
	}
}

// WithSession returns a copy of the client bound to the given
// credentials.
func (c *Client) WithSession(session Session) *Client {
	clone := *c
	clone.session = session
	return &clone
}

// Session returns the bound credentials.
func (c *Client) Session() Session {
	return c.session
}

// Tick posts the interpolated clock reading and returns the server's
// correction and delta.
func (c *Client) Tick(ctx context.Context, req wire.TickRequestV1) (wire.TickResponseV1, error) {
	var resp wire.TickResponseV1
	if !c.session.Valid() {
		return resp, ErrNoSession
	}
	body, err := c.post(ctx, c.sessionURL(wire.PathTick), req)
	if err != nil {
		return resp, fmt.Errorf("tick: %w", err)
	}
	return wire.DecodeTickResponse(body)
}

// CombatStart opens a combat session.
func (c *Client) CombatStart(ctx context.Context) (wire.CombatResponseV1, error) {
	return c.combatPost(ctx, wire.PathCombatStart, wire.CombatRequestV1{Npub: c.session.Npub, SaveID: c.session.SaveID})
}

// CombatAction resolves the action turn phase with an attack, bonus
// attack, or flee attempt.
func (c *Client) CombatAction(ctx context.Context, action string) (wire.CombatResponseV1, error) {
	return c.combatPost(ctx, wire.PathCombatAction, wire.CombatActionRequestV1{
		CombatRequestV1: wire.CombatRequestV1{Npub: c.session.Npub, SaveID: c.session.SaveID},
		Action:          action,
	})
}

// CombatMove resolves the move turn phase. dir follows the wire
// convention: -1 advance, 0 hold, +1 retreat.
func (c *Client) CombatMove(ctx context.Context, dir int) (wire.CombatResponseV1, error) {
	return c.combatPost(ctx, wire.PathCombatMove, wire.CombatMoveRequestV1{
		CombatRequestV1: wire.CombatRequestV1{Npub: c.session.Npub, SaveID: c.session.SaveID},
		MoveDir:         dir,
	})
}

// CombatPass forfeits the player's offense this round.
func (c *Client) CombatPass(ctx context.Context) (wire.CombatResponseV1, error) {
	return c.combatPost(ctx, wire.PathCombatPass, wire.CombatRequestV1{Npub: c.session.Npub, SaveID: c.session.SaveID})
}

// CombatDeathSave rolls one death save as a single atomic round-trip.
func (c *Client) CombatDeathSave(ctx context.Context) (wire.CombatResponseV1, error) {
	return c.combatPost(ctx, wire.PathCombatDeathSave, wire.CombatRequestV1{Npub: c.session.Npub, SaveID: c.session.SaveID})
}

// CombatEnd dismisses a finished session server-side.
func (c *Client) CombatEnd(ctx context.Context) (wire.CombatResponseV1, error) {
	return c.combatPost(ctx, wire.PathCombatEnd, wire.CombatRequestV1{Npub: c.session.Npub, SaveID: c.session.SaveID})
}

// ActiveCombat queries whether a combat session already exists for the
// bound save. An empty phase in the answer means none does.
func (c *Client) ActiveCombat(ctx context.Context) (wire.ActiveCombatResponseV1, error) {
	var resp wire.ActiveCombatResponseV1
	if !c.session.Valid() {
		return resp, ErrNoSession
	}
	body, err := c.get(ctx, c.sessionURL(wire.PathCombatActive))
	if err != nil {
		return resp, fmt.Errorf("active combat: %w", err)
	}
	return wire.DecodeActiveCombat(body)
}

func (c *Client) combatPost(ctx context.Context, path string, payload any) (wire.CombatResponseV1, error) {
	var resp wire.CombatResponseV1
	if !c.session.Valid() {
		return resp, ErrNoSession
	}
	body, err := c.post(ctx, c.baseURL+path, payload)
	if err != nil {
		return resp, fmt.Errorf("combat %s: %w", strings.TrimPrefix(path, "/api/combat/"), err)
	}
	return wire.DecodeCombatResponse(body)
}

// sessionURL appends the identity pair as query parameters for
// endpoints whose body does not carry them.
func (c *Client) sessionURL(path string) string {
	query := url.Values{}
	query.Set("npub", c.session.Npub)
	query.Set("save_id", c.session.SaveID)
	return c.baseURL + path + "?" + query.Encode()
}

func (c *Client) post(ctx context.Context, rawURL string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server status %d", resp.StatusCode)
	}
	return body, nil
}
