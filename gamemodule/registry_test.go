package gamemodule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinModules(t *testing.T) {
	ids := IDs()
	assert.Contains(t, ids, "custom")
	assert.Contains(t, ids, "minecraft.vanilla")
	assert.NotContains(t, ids, "minecraft")

	id, err := Resolve("minecraft")
	require.NoError(t, err)
	assert.Equal(t, "minecraft.vanilla", id)

	m, err := Lookup("minecraft")
	require.NoError(t, err)
	assert.IsType(t, &Vanilla{}, m)

	_, err = Lookup("factorio")
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestRegisterPanics(t *testing.T) {
	assert.Panics(t, func() { Register("Bad-ID", func() Module { return &Custom{} }) })
	assert.Panics(t, func() { Register("custom", func() Module { return &Custom{} }) })
	assert.Panics(t, func() { Alias("", "custom") })
}
