// ABOUTME: Tests for the ticket dedupe cache: TTL expiry, capacity eviction, fingerprinting
// ABOUTME: Uses short TTLs so expiry is observable without a mock clock

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeen_FirstTimeIsNew(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.Seen("key-1"))
	assert.True(t, c.Seen("key-1"))
}

func TestSeen_ExpiredKeyIsNewAgain(t *testing.T) {
	c := New(20*time.Millisecond, 10)
	defer c.Close()

	assert.False(t, c.Seen("key-1"))
	time.Sleep(40 * time.Millisecond)
	assert.False(t, c.Seen("key-1"), "expired key should be treated as new")
}

func TestSeen_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Close()

	assert.False(t, c.Seen("a"))
	assert.False(t, c.Seen("b"))
	assert.False(t, c.Seen("c")) // evicts a

	assert.False(t, c.Seen("a"), "evicted key should be new again")
}

func TestSeen_Concurrent(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				c.Seen(fmt.Sprintf("key-%d-%d", n, j))
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

func TestFingerprint_NormalizesCaseAndWhitespace(t *testing.T) {
	a := Fingerprint("bug", "  Database Timeout in prod ")
	b := Fingerprint("bug", "database timeout in prod")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Fingerprint("feature", "database timeout in prod"),
		"category distinguishes findings")
	assert.NotEqual(t, a, Fingerprint("bug", "disk full in prod"))
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
