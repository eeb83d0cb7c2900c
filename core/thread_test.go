package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveThreadName(t *testing.T) {
	short := "Plan my weekend trip"
	assert.Equal(t, short, DeriveThreadName(short))

	exactly50 := strings.Repeat("a", 50)
	assert.Equal(t, exactly50, DeriveThreadName(exactly50))

	over := strings.Repeat("a", 51)
	got := DeriveThreadName(over)
	assert.Equal(t, strings.Repeat("a", 50)+"...", got)

	// Rune counting: 50 multi-byte characters fit unmodified.
	unicode := strings.Repeat("ü", 50)
	assert.Equal(t, unicode, DeriveThreadName(unicode))
	assert.Equal(t, strings.Repeat("ü", 50)+"...", DeriveThreadName(strings.Repeat("ü", 51)))
}

func TestNewThreadID(t *testing.T) {
	a := NewThreadID()
	b := NewThreadID()
	require.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestErrorTaxonomyUnwrap(t *testing.T) {
	base := errors.New("connection refused")

	var provErr ProviderError
	err := fmt.Errorf("turn failed: %w", ProviderError{Err: base})
	require.ErrorAs(t, err, &provErr)
	assert.ErrorIs(t, provErr, base)

	var loopErr LoopLimitError
	err = fmt.Errorf("turn failed: %w", LoopLimitError{Limit: 8})
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, 8, loopErr.Limit)

	var persistErr PersistenceError
	err = fmt.Errorf("turn failed: %w", PersistenceError{Err: base})
	require.ErrorAs(t, err, &persistErr)
	assert.ErrorIs(t, persistErr, base)
}
