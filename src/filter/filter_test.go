package filter_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steplov/pvtools/src/filter"
)

func TestInScope_EmptyPrefixesAllowsAll(t *testing.T) {
	for _, name := range []string{"vm-1-disk", "anything", ""} {
		assert.True(t, filter.InScope(name, nil, nil), "name %q", name)
	}
}

func TestInScope_EmptyPrefixesStillSubjectToExclude(t *testing.T) {
	re := regexp.MustCompile("tmp$")
	assert.False(t, filter.InScope("scratch-tmp", nil, re))
	assert.True(t, filter.InScope("scratch", nil, re))
}

func TestInScope_PrefixAndExcludeTruthTable(t *testing.T) {
	re := regexp.MustCompile("tmp$")
	prefixes := []string{"vm-", "pvc-"}
	cases := []struct {
		name string
		want bool
	}{
		{"vm-100-disk-0", true},
		{"pvc-4f21", true},
		{"vm-100-tmp", false},   // excluded
		{"srv-100-disk", false}, // no prefix
		{"tmp", false},          // no prefix, also excluded
	}
	for _, c := range cases {
		got := filter.InScope(c.name, prefixes, re)
		assert.Equalf(t, c.want, got, "InScope(%q)", c.name)
	}
}

// Selection is exactly prefix-match AND NOT exclude-match.
func TestInScope_MatchesDecomposition(t *testing.T) {
	re := regexp.MustCompile("-disk-[0-9]+$")
	prefixes := []string{"vm-9"}
	names := []string{"vm-9-disk-0", "vm-9-root", "vm-1-disk-0", "vm-9-disk-x", ""}
	for _, n := range names {
		expected := strings.HasPrefix(n, "vm-9") && !re.MatchString(n)
		assert.Equalf(t, expected, filter.InScope(n, prefixes, re), "InScope(%q)", n)
	}
}

func TestRule_InScope_Scenario(t *testing.T) {
	rule := filter.Rule{
		Prefixes: []string{"vm-9999-"},
		Exclude:  regexp.MustCompile("tmp$"),
	}
	volumes := []string{"vm-9999-disk1", "vm-9999-disk-tmp", "vm-7777-disk1"}
	var selected []string
	for _, v := range volumes {
		if rule.InScope(v) {
			selected = append(selected, v)
		}
	}
	require.Equal(t, []string{"vm-9999-disk1"}, selected)
}
