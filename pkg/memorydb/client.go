package memorydb

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect opens a redis connection and verifies it with a ping.
// UniversalClient works with both standalone and cluster deployments.
func Connect(ctx context.Context, addr, username, password string) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{addr},
		Username:     username,
		Password:     password,
		ReadTimeout:  time.Second * 5,
		WriteTimeout: time.Second * 5,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
