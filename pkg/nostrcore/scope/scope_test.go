package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIsZeroValue(t *testing.T) {
	var z T
	assert.True(t, z.Equal(Default))
	assert.True(t, z.IsDefault())
}

func TestNamedNotEqualDefault(t *testing.T) {
	n := Named("")
	assert.False(t, n.Equal(Default))
	assert.False(t, n.IsDefault())
}

func TestNamedEquality(t *testing.T) {
	assert.True(t, Named("acme").Equal(Named("acme")))
	assert.False(t, Named("acme").Equal(Named("other")))
}

func TestString(t *testing.T) {
	assert.Equal(t, "default", Default.String())
	assert.Equal(t, "named:acme", Named("acme").String())
}
