// Package redis provides a Redis-backed storage.TokenStore built on go-redis.
//
// It supports a single node, a cluster (several Addrs) or Sentinel failover
// (MasterName set). Keys and values use the same layout as the valkey backend.
package redis
