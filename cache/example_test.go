package cache_test

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonwraymond/botops/cache"
)

func ExampleLoader_Load() {
	loader, _ := cache.NewLoader(cache.NewMemoryCache(), nil, cache.DefaultPolicy())
	ctx := context.Background()
	args := json.RawMessage(`{"tenant_id":"acme","channel_id":"c1"}`)

	fetch := func(context.Context) ([]byte, error) {
		return []byte(`{"id":"c1","name":"general"}`), nil
	}

	_, hit, _ := loader.Load(ctx, "get_channel_info", "acme", args, fetch)
	fmt.Println("first hit:", hit)
	v, hit, _ := loader.Load(ctx, "get_channel_info", "acme", args, fetch)
	fmt.Println("second hit:", hit, string(v))
	// Output:
	// first hit: false
	// second hit: true {"id":"c1","name":"general"}
}

func ExampleDefaultKeyer_Key() {
	k := cache.NewDefaultKeyer()
	a, _ := k.Key("get_guild_info", "acme", json.RawMessage(`{"b":1,"a":2}`))
	b, _ := k.Key("get_guild_info", "acme", json.RawMessage(`{"a":2,"b":1}`))
	fmt.Println(a == b)
	// Output:
	// true
}
