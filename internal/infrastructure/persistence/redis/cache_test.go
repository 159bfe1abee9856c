package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_KeyPrefix(t *testing.T) {
	assert.Equal(t, "paper:cost:gen:g-1", NewCache(nil, "paper").key("cost:gen:g-1"))
	assert.Equal(t, "cost:gen:g-1", NewCache(nil, "").key("cost:gen:g-1"))
}

func TestBuildRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:10.0.0.1:/api/v1/generations", BuildRateLimitKey("10.0.0.1", "/api/v1/generations"))
}
