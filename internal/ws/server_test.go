package ws

import "testing"

func TestSubscribeUnsubscribe(t *testing.T) {
	s := &Server{clients: make(map[int64]map[*wsClient]struct{})}

	first := &wsClient{}
	second := &wsClient{}
	unsubFirst := s.subscribe(7, first)
	unsubSecond := s.subscribe(7, second)

	if len(s.clients[7]) != 2 {
		t.Fatalf("expected 2 connections for driver 7, got %d", len(s.clients[7]))
	}

	unsubFirst()
	if len(s.clients[7]) != 1 {
		t.Fatalf("expected 1 connection after unsubscribe, got %d", len(s.clients[7]))
	}

	unsubSecond()
	if _, ok := s.clients[7]; ok {
		t.Fatal("driver entry should be dropped once its last connection closes")
	}
}

func TestNotifyDriverNoConnections(t *testing.T) {
	s := &Server{clients: make(map[int64]map[*wsClient]struct{})}
	// Must not panic or create an entry for an unknown driver.
	s.NotifyDriver(42, map[string]any{"type": "dispatch.remove"})
	if len(s.clients) != 0 {
		t.Fatalf("notify must not register drivers, got %d entries", len(s.clients))
	}

	var nilServer *Server
	nilServer.NotifyDriver(42, nil)
}
