package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSearch(t *testing.T) {
	require.Equal(t, "azucar", NormalizeSearch("  Azúcar "))
	require.Equal(t, "pina colada", NormalizeSearch("Piña Colada"))
	require.Equal(t, "cafe", NormalizeSearch("CAFÉ"))
	require.Equal(t, "", NormalizeSearch("   "))
}
