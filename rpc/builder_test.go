package rpc

import "testing"

func TestBuilderAutoBoolField(t *testing.T) {
	b := NewBuilder()
	b.Register("stop", "stop")

	msg, err := b.Build("stop", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if v, ok := msg.Args["stop"]; !ok || v != true {
		t.Errorf("expected auto bool field stop=true, got %v", msg.Args)
	}
}

func TestBuilderExplicitArgsOverrideAutoBool(t *testing.T) {
	b := NewBuilder()
	b.Register("move", "move")

	msg, err := b.Build("move", map[string]any{"x": 1.0})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := msg.Args["move"]; ok {
		t.Error("auto bool field should not be set when explicit args are given")
	}
	if msg.Args["x"] != 1.0 {
		t.Errorf("expected explicit arg x=1.0, got %v", msg.Args)
	}
}

func TestBuilderUnknownVariant(t *testing.T) {
	b := NewBuilder()
	if _, err := b.Build("bogus", nil); err == nil {
		t.Error("expected error for unregistered variant")
	}
}
