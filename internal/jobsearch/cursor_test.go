package jobsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNextCursor(t *testing.T) {
	t.Parallel()

	cursor, ok, err := ParseNextCursor("https://www.jobsearch.az/api-az/vacancies-az?hl=az&page=2&ignore=a1&ignore_hash=b2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, cursor.Page)
	assert.Equal(t, "a1", cursor.Ignore)
	assert.Equal(t, "b2", cursor.IgnoreHash)
}

func TestParseNextCursorExhausted(t *testing.T) {
	t.Parallel()

	_, ok, err := ParseNextCursor("")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseNextCursorMissingPage(t *testing.T) {
	t.Parallel()

	_, _, err := ParseNextCursor("https://www.jobsearch.az/api-az/vacancies-az?hl=az")
	require.Error(t, err)
}

func TestCursorZeroValueIsFirstPage(t *testing.T) {
	t.Parallel()

	var c Cursor
	assert.True(t, c.IsZero())
	assert.Equal(t, "page=1", c.String())

	c.Page = 5
	assert.False(t, c.IsZero())
	assert.Equal(t, "page=5", c.String())
}

func TestListingItemValid(t *testing.T) {
	t.Parallel()

	assert.True(t, ListingItem{ID: 1, Title: "t", Slug: "s"}.Valid())
	assert.False(t, ListingItem{Title: "t", Slug: "s"}.Valid())
	assert.False(t, ListingItem{ID: 1, Slug: "s"}.Valid())
	assert.False(t, ListingItem{ID: 1, Title: "t"}.Valid())
}
