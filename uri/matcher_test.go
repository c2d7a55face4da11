package uri

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiteralMatch(t *testing.T) {
	assert.True(t, Match("/hello", "/hello"))
	assert.False(t, Match("/hello", "/hello2"))
}

func TestStarMatchesAnyTailIncludingEmpty(t *testing.T) {
	assert.True(t, Match("/api/*", "/api/"))
	assert.True(t, Match("/api/*", "/api/users"))
	assert.True(t, Match("/api*", "/api"))
	assert.False(t, Match("/api/*", "/other"))
}

func TestQuestionMarkMatchesZeroOrOneTrailingChar(t *testing.T) {
	assert.True(t, Match("/api/?", "/api"))
	assert.True(t, Match("/api/?", "/api/"))
	assert.False(t, Match("/api/?", "/api/x"))
	assert.False(t, Match("/api/?", "/apiX"))
}

func TestQuestionStarMatchesEmptyOneOrLonger(t *testing.T) {
	assert.True(t, Match("/api?*", "/api"))
	assert.True(t, Match("/api?*", "/apiX"))
	assert.True(t, Match("/api?*", "/apiXYZ"))
	assert.False(t, Match("/api?*", "/other"))
}

func TestDivergenceBeforeWildcardFails(t *testing.T) {
	assert.False(t, Match("/users/*", "/groups/1"))
}
