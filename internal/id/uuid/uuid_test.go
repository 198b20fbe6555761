package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := NewUUIDGenerator()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
	require.True(t, Valid(id1))
}

func TestValid(t *testing.T) {
	t.Parallel()

	require.True(t, Valid("0190b7e6-4c2b-7c3e-9a53-3d1f6b2f1a10"))
	for _, bad := range []string{"", "chapter-1", "1234"} {
		require.False(t, Valid(bad), bad)
	}
}
