package redis

import "strings"

const (
	defaultNamespace = "dl"

	cartPrefix        = "cart"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	lockPrefix        = "lock"
)

// Keyspace builds colon separated keys under one namespace so several
// environments can share a Redis instance.
type Keyspace struct {
	namespace string
}

func NewKeyspace(namespace string) Keyspace {
	return Keyspace{namespace: strings.Trim(strings.TrimSpace(namespace), ":")}
}

func (k Keyspace) Cart(sessionKey string) string {
	return k.build(cartPrefix, sessionKey)
}

func (k Keyspace) Idempotency(scope, id string) string {
	return k.build(idempotencyPrefix, scope, id)
}

func (k Keyspace) RateLimit(scope string) string {
	return k.build(rateLimitPrefix, scope)
}

func (k Keyspace) Lock(name string) string {
	return k.build(lockPrefix, name)
}

func (k Keyspace) build(parts ...string) string {
	ns := k.namespace
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
