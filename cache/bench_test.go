package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func BenchmarkMemoryCache_GetHit(b *testing.B) {
	c := NewMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "key", []byte("value"), time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(ctx, "key")
	}
}

func BenchmarkDefaultKeyer_Key(b *testing.B) {
	k := NewDefaultKeyer()
	args := json.RawMessage(`{"tenant_id":"acme","channel_id":"c1","limit":50}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = k.Key("get_messages", "acme", args)
	}
}

func BenchmarkLoader_Hit(b *testing.B) {
	l, _ := NewLoader(NewMemoryCache(), nil, DefaultPolicy())
	ctx := context.Background()
	load := func(context.Context) ([]byte, error) { return []byte(`{}`), nil }
	_, _, _ = l.Load(ctx, "get_channel_info", "acme", nil, load)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = l.Load(ctx, "get_channel_info", "acme", nil, load)
	}
}
