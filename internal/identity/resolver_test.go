package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "talentgate/pkg/domain-errors"
)

func TestResolve_URLNormalization(t *testing.T) {
	a, err := Resolve("providerX", "https://Example.com/in/Jane/", "")
	require.NoError(t, err)
	b, err := Resolve("providerX", "https://example.com/in/jane", "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "https://example.com/in/jane", a)
}

func TestResolve_StripsQueryAndFragment(t *testing.T) {
	got, err := Resolve("", "https://example.com/in/jane?utm_source=feed#section", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/in/jane", got)
}

func TestResolve_URLTakesPrecedenceOverProviderID(t *testing.T) {
	got, err := Resolve("providerX", "https://example.com/in/jane", "123")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/in/jane", got)
}

func TestResolve_ProviderIDFallbackIsStable(t *testing.T) {
	first, err := Resolve("providerX", "", "123")
	require.NoError(t, err)
	second, err := Resolve("providerX", "", "123")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "providerX:123", first)
}

func TestResolve_DifferentProvidersNeverMerge(t *testing.T) {
	a, err := Resolve("providerX", "", "123")
	require.NoError(t, err)
	b, err := Resolve("providerY", "", "123")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestResolve_InvalidInput(t *testing.T) {
	t.Run("nothing provided", func(t *testing.T) {
		_, err := Resolve("providerX", "", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("relative URL", func(t *testing.T) {
		_, err := Resolve("providerX", "/in/jane", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("provider ID without provider", func(t *testing.T) {
		_, err := Resolve("", "", "123")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
