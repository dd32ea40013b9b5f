package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvironment(t *testing.T) {
	assert.Equal(t, Production, ParseEnvironment(" PROD "))
	assert.Equal(t, Testing, ParseEnvironment("ci"))
	assert.Equal(t, Development, ParseEnvironment("local"))
	assert.Equal(t, Development, ParseEnvironment("staging"))

	assert.True(t, Production.IsProduction())
	assert.False(t, Production.Verbose())
	assert.True(t, Development.Verbose())
	assert.False(t, Testing.Verbose())
}
