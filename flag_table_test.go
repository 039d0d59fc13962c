package actionqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagTableRegisterAndLookup(t *testing.T) {
	table := NewFlagTable(map[string]Flags{"Open": Creational})
	require.NoError(t, table.Register("close", Terminating))

	assert.Equal(t, Creational, table.Flags("open"))
	assert.Equal(t, Terminating, table.Flags(" CLOSE "))
	assert.Equal(t, None, table.Flags("unknown"))
	assert.Equal(t, []string{"close", "open"}, table.Kinds())

	err := table.Register("open", Blocking)
	require.Error(t, err)
	assert.True(t, IsAlreadySet(err))

	assert.True(t, IsConfigInvalid(table.Register(" ", None)))
}

func TestFlagTableOptionResolvesFlags(t *testing.T) {
	table := NewFlagTable(map[string]Flags{"close": Terminating})
	a := NewAction("doc", nil, false, table.Option("close"))

	assert.Equal(t, "close", a.Kind())
	assert.True(t, a.Flags().Has(Terminating))
}
