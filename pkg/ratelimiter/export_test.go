package ratelimiter

import "time"

func SetRedisClock(s *RedisStore, now func() time.Time) {
	s.now = now
}
