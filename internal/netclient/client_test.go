package netclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pubkey-quest/engine/internal/wire"
)

func TestTickRoundTrip(t *testing.T) {
	var gotPath string
	var gotBody wire.TickRequestV1

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Query().Get("npub") != "npub1abc" || r.URL.Query().Get("save_id") != "save-1" {
			t.Errorf("expected session query params, got %q", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"delta":{"fatigue":5}}`))
	}))
	defer server.Close()

	client := New(server.URL, 0).WithSession(Session{Npub: "npub1abc", SaveID: "save-1"})
	resp, err := client.Tick(context.Background(), wire.TickRequestV1{TimeOfDayMinutes: 700, CurrentDay: 3})
	if err != nil {
		t.Fatalf("unexpected tick error: %v", err)
	}

	if gotPath != wire.PathTick {
		t.Fatalf("expected tick path, got %q", gotPath)
	}
	if gotBody.TimeOfDayMinutes != 700 || gotBody.CurrentDay != 3 {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
	if resp.Delta == nil || resp.Delta.Fatigue == nil || resp.Delta.Fatigue.Int() != 5 {
		t.Fatalf("expected fatigue delta 5, got %+v", resp.Delta)
	}
}

func TestTickRequiresSession(t *testing.T) {
	client := New("http://localhost:0", 0)
	if _, err := client.Tick(context.Background(), wire.TickRequestV1{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestCombatMoveBody(t *testing.T) {
	var gotBody wire.CombatMoveRequestV1

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wire.PathCombatMove {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Write([]byte(`{"success":true,"phase":"active","turn_phase":"action","range":2,"player":{"hp":10,"max_hp":10}}`))
	}))
	defer server.Close()

	client := New(server.URL, 0).WithSession(Session{Npub: "npub1abc", SaveID: "save-1"})
	resp, err := client.CombatMove(context.Background(), wire.MoveAdvance)
	if err != nil {
		t.Fatalf("unexpected move error: %v", err)
	}

	if gotBody.Npub != "npub1abc" || gotBody.SaveID != "save-1" {
		t.Fatalf("expected identity in body, got %+v", gotBody)
	}
	if gotBody.MoveDir != wire.MoveAdvance {
		t.Fatalf("expected advance dir, got %d", gotBody.MoveDir)
	}
	if resp.TurnPhase != wire.TurnPhaseAction {
		t.Fatalf("expected action turn phase, got %q", resp.TurnPhase)
	}
}

func TestServerErrorStatusSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, 0).WithSession(Session{Npub: "npub1abc", SaveID: "save-1"})
	if _, err := client.CombatStart(context.Background()); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestActiveCombatAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(server.URL, 0).WithSession(Session{Npub: "npub1abc", SaveID: "save-1"})
	resp, err := client.ActiveCombat(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Active() {
		t.Fatalf("expected no active combat")
	}
}
