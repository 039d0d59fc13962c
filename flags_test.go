package actionqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminatingImpliesBlocking(t *testing.T) {
	assert.True(t, Terminating.Has(Blocking))
	assert.False(t, Blocking.Has(Terminating))
	assert.False(t, Creational.Has(Blocking))
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "terminating", Terminating.String())
	assert.Equal(t, "creational|blocking", (Creational | Blocking).String())
	assert.Equal(t, "unqueued|0x80", (Unqueued | Flags(0x80)).String())
}

func TestParseFlags(t *testing.T) {
	f, err := ParseFlags("creational | Terminating")
	require.NoError(t, err)
	assert.Equal(t, Creational|Terminating, f)

	f, err = ParseFlags("")
	require.NoError(t, err)
	assert.Equal(t, None, f)

	_, err = ParseFlags("blocking,exploding")
	require.Error(t, err)
	assert.True(t, IsConfigInvalid(err))
}

func TestPriorityOrdering(t *testing.T) {
	assert.Less(t, Lowest, BelowNormal)
	assert.Less(t, BelowNormal, Normal)
	assert.Less(t, Normal, AboveNormal)
	assert.Less(t, AboveNormal, Highest)
	assert.Equal(t, "above_normal", AboveNormal.String())
}
