package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLendingMetricsRecord(t *testing.T) {
	m := Lending()
	require.Same(t, m, Lending())

	before := testutil.ToFloat64(m.actions.WithLabelValues("borrow", "rejected"))
	m.ObserveAction("borrow", errors.New("insufficient collateral"), time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.actions.WithLabelValues("borrow", "rejected")))

	m.SetPool(PoolSnapshot{Asset: "DOT", TotalSupply: 800, TotalBorrow: 200, Utilization: 0.2})
	require.Equal(t, 0.2, testutil.ToFloat64(m.utilization.WithLabelValues("DOT")))
	require.Equal(t, 800.0, testutil.ToFloat64(m.totalSupply.WithLabelValues("DOT")))

	m.ObserveLiquidation("Settled")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.liquidations.WithLabelValues("settled")), 1.0)

	m.SetLiquidatable(3)
	require.Equal(t, 3.0, testutil.ToFloat64(m.atRisk))
}

func TestNilLendingMetricsIsSafe(t *testing.T) {
	var m *LendingMetrics
	m.ObserveAction("supply", nil, time.Second)
	m.ObserveLiquidation("settled")
	m.SetPool(PoolSnapshot{Asset: "DOT"})
	m.SetLiquidatable(1)
	m.SetDay(1)
}
