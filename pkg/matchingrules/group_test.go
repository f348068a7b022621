package matchingrules_test

import (
	"testing"

	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryKeepsPathsSorted(t *testing.T) {
	c := matchingrules.NewCategory(matchingrules.CategoryBody)
	require.NoError(t, c.Add("$.b", matchingrules.Type()))
	require.NoError(t, c.Add("$.a", matchingrules.Integer()))
	require.NoError(t, c.Add("$.b", matchingrules.Regex(`\w+`, "x")))

	assert.Equal(t, []string{"$.a", "$.b"}, c.Keys())
	g, ok := c.Group("$.b")
	require.True(t, ok)
	assert.Len(t, g.Rules, 2)
	assert.Equal(t, matchingrules.CombineAnd, g.Combine)
}

func TestCategoryAddRejectsInvalidBodyPath(t *testing.T) {
	c := matchingrules.NewCategory(matchingrules.CategoryBody)
	err := c.Add("items[0", matchingrules.Type())
	assert.True(t, errors.Is(err, matchingrules.ErrInvalidPath))

	headers := matchingrules.NewCategory(matchingrules.CategoryHeader)
	assert.NoError(t, headers.Add("Content-Type", matchingrules.Regex("application/.*", "application/json")))
}

func TestCategoryBestPrefersMostSpecificPath(t *testing.T) {
	c := matchingrules.NewCategory(matchingrules.CategoryBody)
	require.NoError(t, c.Add("$.items", matchingrules.MinType(1)))
	require.NoError(t, c.Add("$.items[*].id", matchingrules.Integer()))
	require.NoError(t, c.Add("$.items[*].*", matchingrules.Type()))
	require.NoError(t, c.Add("$.items[0].id", matchingrules.Regex(`\d+`, "1")))

	id := func(i int) []matchingrules.Segment {
		return matchingrules.WithField(matchingrules.WithIndex(matchingrules.WithField(matchingrules.Root(), "items"), i), "id")
	}

	m, ok := c.Best(id(0))
	require.True(t, ok)
	assert.Equal(t, "$.items[0].id", m.Path)

	m, ok = c.Best(id(5))
	require.True(t, ok)
	assert.Equal(t, "$.items[*].id", m.Path)

	name := matchingrules.WithField(matchingrules.WithIndex(matchingrules.WithField(matchingrules.Root(), "items"), 5), "name")
	m, ok = c.Best(name)
	require.True(t, ok)
	assert.Equal(t, "$.items[*].*", m.Path)

	_, ok = c.Best(matchingrules.WithField(matchingrules.Root(), "other"))
	assert.False(t, ok)
}

func TestCategoryRebase(t *testing.T) {
	c := matchingrules.NewCategory(matchingrules.CategoryBody)
	require.NoError(t, c.Add("$.name", matchingrules.Type()))
	require.NoError(t, c.Add("$.tags[*]", matchingrules.Regex("[a-z]+", "a")))

	rebased := c.Rebase("$", "$.items[*]")
	assert.Equal(t, []string{"$.items[*].name", "$.items[*].tags[*]"}, rebased.Keys())

	only := c.Rebase("$.tags", "$.labels")
	assert.Equal(t, []string{"$.labels[*]"}, only.Keys())
}

func TestRuleSetIsNilSafe(t *testing.T) {
	var rs *matchingrules.RuleSet
	assert.Nil(t, rs.RulesFor(matchingrules.CategoryBody))
	assert.True(t, rs.IsEmpty())
	assert.True(t, rs.RulesFor(matchingrules.CategoryBody).IsEmpty())

	_, ok := rs.RulesFor(matchingrules.CategoryBody).Best(matchingrules.Root())
	assert.False(t, ok)
}

func TestCategoryForName(t *testing.T) {
	c := matchingrules.NewCategory(matchingrules.CategoryHeader)
	require.NoError(t, c.Add("Content-Type", matchingrules.Regex("application/.*", "")))

	_, ok := c.ForName("content-type", false)
	assert.False(t, ok)
	_, ok = c.ForName("content-type", true)
	assert.True(t, ok)
}
