package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserBlockFilter(t *testing.T) {
	f, err := ParseUserBlockFilter("")
	require.NoError(t, err)
	assert.Equal(t, UserBlockFilterAll, f)

	f, err = ParseUserBlockFilter(" Blocked ")
	require.NoError(t, err)
	assert.Equal(t, UserBlockFilterBlocked, f)

	_, err = ParseUserBlockFilter("banned")
	assert.Error(t, err)
}

func TestUserBlockFilter_Match(t *testing.T) {
	assert.True(t, UserBlockFilterAll.Match(true))
	assert.True(t, UserBlockFilterAll.Match(false))
	assert.True(t, UserBlockFilterBlocked.Match(true))
	assert.False(t, UserBlockFilterBlocked.Match(false))
	assert.True(t, UserBlockFilterUnblocked.Match(false))
	assert.False(t, UserBlockFilterUnblocked.Match(true))
}

func TestUser_DisplayName(t *testing.T) {
	assert.Equal(t, "John Smith (@js)", User{ID: 1, FirstName: "John", LastName: "Smith", Username: "js"}.DisplayName())
	assert.Equal(t, "@js", User{ID: 1, Username: "js"}.DisplayName())
	assert.Equal(t, "15", User{ID: 15}.DisplayName())
}
