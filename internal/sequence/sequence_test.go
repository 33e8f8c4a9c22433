package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "PO-000001", Format(PrefixPurchaseOrder, 1))
	require.Equal(t, "ADJ-000042", Format(PrefixAdjustment, 42))
	require.Equal(t, "CNT-999999", Format(PrefixCountBatch, 999999))
	require.Equal(t, "TR-1000000", Format(PrefixTransfer, 1000000), "seven digits widen instead of truncating")
}

func TestPrefixPattern(t *testing.T) {
	for _, valid := range []string{"PO", "GR", "TR", "ADJ", "CNT", "INVOICES"} {
		require.True(t, prefixPattern.MatchString(valid), valid)
	}
	for _, invalid := range []string{"", "po", "P O", "PO-", "TOOLONGPREFIX", "1A"} {
		require.False(t, prefixPattern.MatchString(invalid), invalid)
	}
}
