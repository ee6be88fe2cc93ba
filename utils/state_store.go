package utils

import (
	"context"
	"sync"
	"time"
)

// stateEntry tracks one outstanding GitHub authorization round-trip.
type stateEntry struct {
	expiresAt time.Time
}

var (
	stateStore   = map[string]stateEntry{}
	stateStoreMu sync.Mutex
)

// SaveState records the state nonce sent along with a GitHub
// authorization redirect. The callback must present it back within the TTL,
// which ties the callback to a login this app actually started.
func SaveState(state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	// Prefer Redis for distributed consistency
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rc.Set(ctx, "oauth:state:"+state, "1", ttl).Err()
		return
	}
	// Fallback to in-memory (single-instance only)
	stateStoreMu.Lock()
	stateStore[state] = stateEntry{expiresAt: time.Now().Add(ttl)}
	stateStoreMu.Unlock()
}

// ConsumeState validates and removes a state nonce returned by the GitHub
// callback. Single-use: a second callback with the same state fails.
func ConsumeState(state string) bool {
	// Prefer Redis: GETDEL to ensure single-use
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		key := "oauth:state:" + state
		if v, err := rc.GetDel(ctx, key).Result(); err == nil {
			return v != ""
		}
		// Fallback to Lua to attempt atomic get+del when GETDEL not available
		script := `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`
		if res, err := rc.Eval(ctx, script, []string{key}).Result(); err == nil {
			return res != nil
		}
		return false
	}
	// Fallback to in-memory
	stateStoreMu.Lock()
	entry, ok := stateStore[state]
	if ok {
		delete(stateStore, state)
	}
	stateStoreMu.Unlock()
	if !ok {
		return false
	}
	return time.Now().Before(entry.expiresAt)
}
