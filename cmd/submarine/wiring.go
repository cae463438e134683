package main

import (
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zadorian/submarine/internal/eventbus"
	"github.com/zadorian/submarine/internal/ruleexec"
)

func newRedisMirror(addr, channel string) (*eventbus.RedisMirror, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return eventbus.NewRedisMirror(client, channel), nil
}

func ruleexecNew(baseURL string, log *logrus.Entry) *ruleexec.HTTPExecutor {
	return ruleexec.NewHTTPExecutor(baseURL, 30, 2, log)
}
