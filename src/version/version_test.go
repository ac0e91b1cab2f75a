package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steplov/pvtools/src/version"
)

func TestVersionIsSet(t *testing.T) {
	assert.NotEmpty(t, version.Version)
}
