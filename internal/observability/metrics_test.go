package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.ORBOutcomes.WithLabelValues("0900", "WIN").Inc()
	m.ORBOutcomes.WithLabelValues("0900", "WIN").Inc()
	m.SyncGuardRuns.WithLabelValues("fail").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ORBOutcomes.WithLabelValues("0900", "WIN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncGuardRuns.WithLabelValues("fail")))

	n, err := testutil.GatherAndCount(reg, "test_features_orb_outcomes_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.DataGaps.WithLabelValues("0030"))
	RecordORBOutcome("0030", "NO_TRADE", true)
	assert.Equal(t, before+1, testutil.ToFloat64(DefaultMetrics.DataGaps.WithLabelValues("0030")))

	RecordSyncGuard(false, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(DefaultMetrics.SyncGuardMismatches))

	RecordEvaluationCycle(0.001, 2, 1_767_916_800)
	assert.Equal(t, 2.0, testutil.ToFloat64(DefaultMetrics.ActionableSignals))
}

func TestObserveDBQuery_CountsErrors(t *testing.T) {
	errs := DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "test_query")
	before := testutil.ToFloat64(errs)

	query := func(fail bool) (err error) {
		defer ObserveDBQuery("postgres", "test_query", time.Now(), &err)
		if fail {
			return errors.New("connection reset")
		}
		return nil
	}

	assert.NoError(t, query(false))
	assert.Equal(t, before, testutil.ToFloat64(errs))
	assert.Error(t, query(true))
	assert.Equal(t, before+1, testutil.ToFloat64(errs))

	n := testutil.CollectAndCount(DefaultMetrics.DBQueryDuration, "orb_lab_database_query_duration_seconds")
	assert.GreaterOrEqual(t, n, 1)
}
