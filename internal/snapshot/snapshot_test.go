package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/rehearse/pkg/types"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, ttl), mini
}

func sample(id string) Snapshot {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return Snapshot{
		SessionID: id,
		Messages: []types.ConversationMessage{
			{Role: types.RoleInterviewer, Content: "Tell me about yourself.", Timestamp: ts},
			{Role: types.RoleCandidate, Content: "I build backends.", Timestamp: ts.Add(20 * time.Second), Duration: 4 * time.Second},
		},
		LastUpdated: ts.Add(20 * time.Second),
	}
}

func TestStores(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore(time.Hour) },
		"redis": func(t *testing.T) Store {
			s, _ := newRedisStore(t, time.Hour)
			return s
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("load missing returns nil", func(t *testing.T) {
				s := newStore(t)
				got, err := s.Load(ctx, "nope")
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				if got != nil {
					t.Fatalf("Load = %+v, want nil", got)
				}
			})

			t.Run("save then load", func(t *testing.T) {
				s := newStore(t)
				want := sample("s1")
				if err := s.Save(ctx, want); err != nil {
					t.Fatalf("Save: %v", err)
				}
				got, err := s.Load(ctx, "s1")
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				if got == nil {
					t.Fatal("Load returned nil")
				}
				if len(got.Messages) != 2 || got.Messages[1].Content != "I build backends." {
					t.Errorf("Messages = %+v", got.Messages)
				}
				if got.Messages[1].Duration != 4*time.Second {
					t.Errorf("Duration = %v, want 4s", got.Messages[1].Duration)
				}
				if !got.LastUpdated.Equal(want.LastUpdated) {
					t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, want.LastUpdated)
				}
			})

			t.Run("save replaces", func(t *testing.T) {
				s := newStore(t)
				first := sample("s1")
				_ = s.Save(ctx, first)
				second := first
				second.Messages = first.Messages[:1]
				if err := s.Save(ctx, second); err != nil {
					t.Fatalf("Save: %v", err)
				}
				got, _ := s.Load(ctx, "s1")
				if got == nil || len(got.Messages) != 1 {
					t.Fatalf("Load = %+v, want one message", got)
				}
			})

			t.Run("delete", func(t *testing.T) {
				s := newStore(t)
				_ = s.Save(ctx, sample("s1"))
				if err := s.Delete(ctx, "s1"); err != nil {
					t.Fatalf("Delete: %v", err)
				}
				if err := s.Delete(ctx, "s1"); err != nil {
					t.Fatalf("second Delete: %v", err)
				}
				got, _ := s.Load(ctx, "s1")
				if got != nil {
					t.Fatalf("Load after Delete = %+v, want nil", got)
				}
			})
		})
	}
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	_ = s.Save(ctx, sample("s1"))

	got, _ := s.Load(ctx, "s1")
	got.Messages[0].Content = "mutated"

	again, _ := s.Load(ctx, "s1")
	if again.Messages[0].Content == "mutated" {
		t.Fatal("mutating a loaded snapshot changed the stored one")
	}
}

func TestRedisStore_Expires(t *testing.T) {
	s, mini := newRedisStore(t, time.Minute)
	ctx := context.Background()
	_ = s.Save(ctx, sample("s1"))

	if ttl := mini.TTL(defaultKeyPrefix + ":s1"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}
	mini.FastForward(2 * time.Minute)

	got, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatalf("Load after expiry = %+v, want nil", got)
	}
}

func TestRedisStore_Ping(t *testing.T) {
	s, mini := newRedisStore(t, time.Minute)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mini.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("Ping after close: want error")
	}
}

func TestValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{SessionID: "s1", LastUpdated: now.Add(-time.Hour)}

	tests := []struct {
		name string
		snap *Snapshot
		id   string
		ttl  time.Duration
		want bool
	}{
		{"fresh", snap, "s1", 2 * time.Hour, true},
		{"nil", nil, "s1", 2 * time.Hour, false},
		{"other session", snap, "s2", 2 * time.Hour, false},
		{"stale", snap, "s1", 30 * time.Minute, false},
		{"exactly at ttl", snap, "s1", time.Hour, true},
		{"zero ttl uses default", snap, "s1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.snap, tt.id, now, tt.ttl); got != tt.want {
				t.Errorf("Valid = %v, want %v", got, tt.want)
			}
		})
	}
}
