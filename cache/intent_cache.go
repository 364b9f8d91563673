package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// IssuedIntent 已签发的支付意图记录
type IssuedIntent struct {
	Handle      string    `json:"handle"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Placeholder bool      `json:"placeholder"`
	IssuedAt    time.Time `json:"issuedAt"`
}

// IntentLog records payment intents issued to clients. It is an audit trail
// only; entries are not checked against it.
type IntentLog struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIntentLog returns a log that keeps each record for ttl.
func NewIntentLog(client *redis.Client, ttl time.Duration) *IntentLog {
	return &IntentLog{client: client, ttl: ttl}
}

// GetIntentKey 根据支付句柄生成Redis键
func GetIntentKey(handle string) string {
	return fmt.Sprintf("payment_intent:%s", handle)
}

// Record 保存一条签发记录
func (l *IntentLog) Record(ctx context.Context, intent IssuedIntent) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}
	if err := l.client.Set(ctx, GetIntentKey(intent.Handle), data, l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record intent: %w", err)
	}
	return nil
}

// Lookup 查询签发记录，不存在时返回 (nil, nil)
func (l *IntentLog) Lookup(ctx context.Context, handle string) (*IssuedIntent, error) {
	if l == nil || l.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	data, err := l.client.Get(ctx, GetIntentKey(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}
	var intent IssuedIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
	}
	return &intent, nil
}
