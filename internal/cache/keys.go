// This file defines the relay's cache key namespace: a small set of
// resources worth caching ahead of the store (§5, §8) — verified bearer
// tokens, session listings, and session message listings.
package cache

import "fmt"

const (
	PrefixToken    = "token"
	PrefixSession  = "session"
	PrefixMessages = "messages"
)

// TokenKey caches the claims a verified bearer token resolves to, so a
// repeat verification skips parsing and signature checking.
func TokenKey(token string) string {
	return fmt.Sprintf("%s:%s", PrefixToken, token)
}

// AccountSessionsKey caches the session list for an account.
func AccountSessionsKey(accountID string) string {
	return fmt.Sprintf("%s:account:%s:list", PrefixSession, accountID)
}

// SessionKey caches a single session's metadata.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", PrefixSession, sessionID)
}

// SessionMessagesKey caches the message history for a session, keyed by
// the pagination cursor so distinct pages don't collide.
func SessionMessagesKey(sessionID string, afterSeq int64) string {
	return fmt.Sprintf("%s:session:%s:after:%d", PrefixMessages, sessionID, afterSeq)
}

// SessionPattern matches every cached key for one session, used to
// invalidate both its metadata and its message pages on mutation.
func SessionPattern(sessionID string) string {
	return fmt.Sprintf("*:%s*", sessionID)
}

// AccountSessionsPattern matches an account's cached session list.
func AccountSessionsPattern(accountID string) string {
	return fmt.Sprintf("%s:account:%s:*", PrefixSession, accountID)
}
