package transcript

import "testing"

func TestAggregator_RemoteFragments(t *testing.T) {
	a := NewAggregator()

	a.Append(Remote, "Hel")
	a.Append(Remote, "lo ")
	a.Append(Remote, "world")

	local, remote := a.CompleteTurn()
	if local != nil {
		t.Errorf("Expected no local turn, got %+v", local)
	}
	if remote == nil {
		t.Fatal("Expected a remote turn")
	}
	if remote.Text != "Hello world" {
		t.Errorf("Expected 'Hello world', got %q", remote.Text)
	}
	if remote.Speaker != Remote || !remote.Complete || remote.ID == "" {
		t.Errorf("Unexpected turn: %+v", remote)
	}
}

func TestAggregator_LocalOnly(t *testing.T) {
	a := NewAggregator()
	a.Append(Local, "what's the news")

	local, remote := a.CompleteTurn()
	if local == nil || local.Text != "what's the news" || local.Speaker != Local {
		t.Errorf("Expected one local turn, got %+v", local)
	}
	if remote != nil {
		t.Errorf("Expected no remote turn, got %+v", remote)
	}
}

func TestAggregator_Empty(t *testing.T) {
	a := NewAggregator()

	local, remote := a.CompleteTurn()
	if local != nil || remote != nil {
		t.Errorf("Expected no turns, got %+v %+v", local, remote)
	}

	a.Append(Local, "")
	a.Append(Remote, "")
	local, remote = a.CompleteTurn()
	if local != nil || remote != nil {
		t.Errorf("Expected empty fragments to emit nothing, got %+v %+v", local, remote)
	}
}

func TestAggregator_OrderLocalFirst(t *testing.T) {
	a := NewAggregator()

	a.Append(Remote, "answer")
	a.Append(Local, "question")
	local, remote := a.CompleteTurn()

	if local.Order >= remote.Order {
		t.Errorf("Expected local order < remote order, got %d >= %d", local.Order, remote.Order)
	}

	a.Append(Remote, "more")
	_, next := a.CompleteTurn()
	if next.Order <= remote.Order {
		t.Errorf("Expected order to keep increasing, got %d after %d", next.Order, remote.Order)
	}
	if next.ID == remote.ID {
		t.Error("Expected unique turn ids")
	}
}

func TestAggregator_ClearsAfterComplete(t *testing.T) {
	a := NewAggregator()
	a.Append(Local, "a")
	a.Append(Remote, "b")
	a.CompleteTurn()

	if a.Pending(Local) != "" || a.Pending(Remote) != "" {
		t.Error("Expected accumulators to be cleared after completion")
	}
}

func TestAggregator_DiscardRemote(t *testing.T) {
	a := NewAggregator()
	a.Append(Local, "stop")
	a.Append(Remote, "Par")

	a.DiscardRemote()

	if a.Pending(Remote) != "" {
		t.Errorf("Expected remote cleared, got %q", a.Pending(Remote))
	}
	if a.Pending(Local) != "stop" {
		t.Errorf("Expected local kept, got %q", a.Pending(Local))
	}

	_, remote := a.CompleteTurn()
	if remote != nil {
		t.Errorf("Expected no remote turn after discard, got %+v", remote)
	}
}

func TestAggregator_Reset(t *testing.T) {
	a := NewAggregator()
	a.Append(Local, "x")
	a.Append(Remote, "y")
	a.Reset()

	local, remote := a.CompleteTurn()
	if local != nil || remote != nil {
		t.Error("Expected reset to drop both accumulators")
	}
}

func TestAggregator_UnknownSpeaker(t *testing.T) {
	a := NewAggregator()
	a.Append(Speaker("narrator"), "ignored")

	local, remote := a.CompleteTurn()
	if local != nil || remote != nil {
		t.Error("Expected unknown speaker to be ignored")
	}
	if Speaker("narrator").Valid() || !Local.Valid() || !Remote.Valid() {
		t.Error("Unexpected Valid result")
	}
}
