package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestAnalysisMetricsRegisterOnce(t *testing.T) {
	a := NewDefaultAnalysisMetrics("test_wallets")
	b := NewDefaultAnalysisMetrics("test_wallets")

	a.Activities(ActivityNativeTransfer).Inc()
	b.Activities(ActivityNativeTransfer).Inc()
	b.Activities(ActivitySkippedUnmatched).Inc()
	require.Equal(t, 2.0, testutil.ToFloat64(a.Activities(ActivityNativeTransfer)))
	require.Equal(t, 1.0, testutil.ToFloat64(a.Activities(ActivitySkippedUnmatched)))

	a.ProcessedHeight().Set(42)
	require.Equal(t, 42.0, testutil.ToFloat64(b.ProcessedHeight()))

	a.LocalCacheReads(CacheReadStatusHit).Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(b.LocalCacheReads(CacheReadStatusHit)))
}
