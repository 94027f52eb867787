package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient("redis://localhost:6379/0", time.Hour)
	assert.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewRedisClient("not-a-url", time.Hour)
	assert.Error(t, err)
}

func TestRedisClient_IsCompleted(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &redisClient{client: db, ttl: time.Hour}
	ctx := context.TODO()

	mock.ExpectExists("analysis:completed:msg-1").SetVal(1)
	done, err := client.IsCompleted(ctx, "msg-1")
	assert.NoError(t, err)
	assert.True(t, done)

	mock.ExpectExists("analysis:completed:msg-2").SetVal(0)
	done, err = client.IsCompleted(ctx, "msg-2")
	assert.NoError(t, err)
	assert.False(t, done)

	mock.ExpectExists("analysis:completed:msg-3").SetErr(errors.New("redis error"))
	_, err = client.IsCompleted(ctx, "msg-3")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis exists failure")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedisClient_MarkCompleted(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &redisClient{client: db, ttl: time.Hour}
	ctx := context.TODO()

	mock.ExpectSet("analysis:completed:msg-1", "1", time.Hour).SetVal("OK")
	assert.NoError(t, client.MarkCompleted(ctx, "msg-1"))

	mock.ExpectSet("analysis:completed:msg-1", "1", time.Hour).SetErr(errors.New("redis error"))
	err := client.MarkCompleted(ctx, "msg-1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis set failure")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
