package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// OptionTotal é o total apostado por opção dentro do snapshot.
type OptionTotal struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Total       int64  `json:"total"`
}

// Snapshot é a visão da aposta corrente publicada no Redis depois de cada
// mudança de estado. Camadas de exibição (chat, overlay) só leem daqui.
type Snapshot struct {
	BetID     string        `json:"bet_id"`
	Status    string        `json:"status"`
	Pool      int64         `json:"pool"`
	Options   []OptionTotal `json:"options"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type Cache struct{ R *redis.Client }

func New(r *redis.Client) *Cache { return &Cache{R: r} }

// Set publica o snapshot; ttl zero mantém a chave sem expiração.
func (c *Cache) Set(ctx context.Context, key string, s Snapshot, ttl time.Duration) error {
	s.UpdatedAt = time.Now()
	b, _ := json.Marshal(s)
	return c.R.Set(ctx, key, b, ttl).Err()
}

// Get carrega o snapshot corrente; found=false quando a chave não existe.
func (c *Cache) Get(ctx context.Context, key string) (Snapshot, bool, error) {
	var s Snapshot
	b, err := c.R.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return s, false, nil
	}
	if err != nil {
		return s, false, err
	}
	return s, true, json.Unmarshal(b, &s)
}
