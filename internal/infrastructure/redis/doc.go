// Package redis provides the Redis pub/sub connection used as a messaging
// transport. Every gateway sharing a permission store publishes to and
// subscribes on one channel (luckperms:update by default).
package redis
