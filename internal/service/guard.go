package service

import (
	"context"
	"fmt"
	"time"

	"study_ai_backend/internal/util"
	"study_ai_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// generationGuardTTL 生成类操作锁的存活时间，防止异常退出后锁悬挂
const generationGuardTTL = 30 * time.Second

// acquireGenerationGuard 同一资源上的AI生成操作加短锁，双击或并发请求直接报冲突。
// redis 未配置时不做保护，数据库唯一索引仍然兜底
func acquireGenerationGuard(ctx context.Context, rdb *redis.Client, kind string, id uint) (func(), error) {
	if rdb == nil {
		return func() {}, nil
	}

	key := fmt.Sprintf("genlock:%s:%d", kind, id)
	ok, err := rdb.SetNX(ctx, key, 1, generationGuardTTL).Result()
	if err != nil {
		// redis故障不阻塞业务
		logger.Log.Warn("生成锁获取失败", zap.String("key", key), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, util.ErrConcurrencyConflict
	}

	release := func() {
		if err := rdb.Del(context.Background(), key).Err(); err != nil {
			logger.Log.Warn("生成锁释放失败", zap.String("key", key), zap.Error(err))
		}
	}
	return release, nil
}
