package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	v, c, d := Info()
	assert.Equal(t, Version, v)
	assert.NotEmpty(t, c)
	assert.Equal(t, BuildDate, d)
}

func TestString(t *testing.T) {
	s := String()
	assert.True(t, strings.HasPrefix(s, "netthinne "+Version))
	assert.Contains(t, s, "built "+BuildDate)
}
