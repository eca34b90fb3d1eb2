package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// EnvLock 按(app_id, environment)粒度的咨询锁。
// 认领动作前先拿锁，防止同一环境上的并发动作交错执行
// （比如同时下发start和stop）。锁带TTL，持有方崩溃后自动过期。
type EnvLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEnvLock 创建环境锁
func NewEnvLock(client *redis.Client, ttl time.Duration) *EnvLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &EnvLock{client: client, ttl: ttl}
}

func envLockKey(appID, environment string) string {
	return fmt.Sprintf("mxops:envlock:%s:%s", appID, strings.ToLower(environment))
}

// Acquire 尝试拿锁，返回释放用的token。拿不到返回("", false)。
func (l *EnvLock) Acquire(ctx context.Context, appID, environment string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, envLockKey(appID, environment), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire env lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// releaseScript 比较token后删除，避免释放掉别人续拿的锁
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Release 用token释放锁。token不匹配（锁已过期被他人持有）时不动。
func (l *EnvLock) Release(ctx context.Context, appID, environment, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{envLockKey(appID, environment)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release env lock: %w", err)
	}
	return nil
}
