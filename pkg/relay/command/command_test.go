package command

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"orly.dev/relaycore/pkg/nostrcore/scope"
)

func TestCommandScope(t *testing.T) {
	named := scope.Named("acme")

	var cmds []Command = []Command{
		&SaveUnsigned{Scp: named},
		&SaveSigned{Scp: named},
		&Delete{Scp: named},
	}
	for _, c := range cmds {
		assert.True(t, c.Scope().Equal(named))
	}
}
