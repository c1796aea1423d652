package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWait_UnknownIsUnlimited(t *testing.T) {
	m := NewMap()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Wait(ctx, "unknown"); err != nil {
		t.Errorf("expected unknown upstream to be unlimited, got %v", err)
	}
}

func TestWait_KnownHonorsContext(t *testing.T) {
	m := NewMap()
	m.Set("slow", 0.001)
	if err := m.Wait(context.Background(), "slow"); err != nil {
		t.Fatalf("first Wait should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx, "slow"); err == nil {
		t.Error("expected second Wait to fail once the context expires")
	}
}

func TestDefaults(t *testing.T) {
	m := NewMap()
	for _, name := range []string{Spotify, Deezer, Gemini, OpenAI, GoogleVision} {
		if err := m.Wait(context.Background(), name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}
