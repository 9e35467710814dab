package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalPulse/internal/domain/models"
	"SignalPulse/pkg/logger"
	"SignalPulse/pkg/metrics"
)

func testLearning() LearningParams {
	return LearningParams{LearningRate: 0.02, Floor: 0.01, ThresholdStep: 1, ThresholdMin: 80, ThresholdMax: 95}
}

func newWeights(opts ...WeightsOption) *AdaptiveWeights {
	return NewAdaptiveWeights(testLearning(), nil, 80, metrics.Nop{}, logger.Nop(), opts...)
}

func sum(w map[models.IndicatorName]float64) float64 {
	s := 0.0
	for _, v := range w {
		s += v
	}
	return s
}

func outcome(lockID string, class models.Classification, realized models.Direction, votes ...models.DirectionVote) models.OutcomeRecord {
	return models.OutcomeRecord{
		LockID:            lockID,
		InstrumentID:      "BTCUSDT",
		SignalDirection:   models.DirectionBullish,
		RealizedDirection: realized,
		Classification:    class,
		Votes:             votes,
	}
}

func vote(name models.IndicatorName, dir models.Direction, strength float64) models.DirectionVote {
	return models.DirectionVote{Indicator: name, Direction: dir, Strength: strength}
}

func TestWinRewardsAlignedVotes(t *testing.T) {
	w := newWeights()
	before := w.Weights()

	ok := w.Update(outcome("L1", models.OutcomeWin, models.DirectionBullish,
		vote(models.IndicatorRSI, models.DirectionBullish, 1),
		vote(models.IndicatorMACD, models.DirectionBearish, 1),
		vote(models.IndicatorBollinger, models.DirectionNeutral, 0)))
	require.True(t, ok)

	after := w.Weights()
	assert.Greater(t, after[models.IndicatorRSI], before[models.IndicatorRSI])
	assert.Less(t, after[models.IndicatorMACD], before[models.IndicatorMACD])
	assert.InDelta(t, 1.0, sum(after), 1e-9)
	assert.Equal(t, 80.0, w.Threshold(), "threshold floor holds at 80")
}

func TestLossPenalizesSignalVotesAndRaisesThreshold(t *testing.T) {
	w := newWeights()
	before := w.Weights()

	w.Update(outcome("L1", models.OutcomeLoss, models.DirectionBearish,
		vote(models.IndicatorStochastic, models.DirectionBullish, 1)))

	after := w.Weights()
	assert.Less(t, after[models.IndicatorStochastic], before[models.IndicatorStochastic])
	assert.Equal(t, 81.0, w.Threshold())

	for i := 0; i < 30; i++ {
		w.Update(outcome(fmt.Sprintf("X%d", i), models.OutcomeLoss, models.DirectionBearish))
	}
	assert.Equal(t, 95.0, w.Threshold())
}

func TestInconclusiveOnlyCounts(t *testing.T) {
	w := newWeights()
	before := w.Weights()
	w.Update(outcome("L1", models.OutcomeInconclusive, models.DirectionNeutral,
		vote(models.IndicatorRSI, models.DirectionBullish, 1)))
	assert.Equal(t, before, w.Weights())
	assert.Equal(t, int64(1), w.Snapshot().Performance.Inconclusive)
}

func TestUpdateIsIdempotentPerLock(t *testing.T) {
	w := newWeights()
	rec := outcome("L1", models.OutcomeWin, models.DirectionBullish, vote(models.IndicatorRSI, models.DirectionBullish, 1))
	require.True(t, w.Update(rec))
	once := w.Weights()
	assert.False(t, w.Update(rec))
	assert.Equal(t, once, w.Weights())
	assert.Equal(t, int64(1), w.Snapshot().Performance.Total)
}

func TestWeightsStayAboveFloorAndSumToOne(t *testing.T) {
	w := newWeights()
	for i := 0; i < 500; i++ {
		w.Update(outcome(fmt.Sprintf("L%d", i), models.OutcomeLoss, models.DirectionBearish,
			vote(models.IndicatorRSI, models.DirectionBullish, 1),
			vote(models.IndicatorMACD, models.DirectionBullish, 1),
			vote(models.IndicatorWilliamsR, models.DirectionBearish, 0.7)))

		cur := w.Weights()
		require.InDelta(t, 1.0, sum(cur), 1e-9)
		for name, v := range cur {
			require.GreaterOrEqual(t, v, 0.01-1e-12, "%s", name)
		}
	}
	cur := w.Weights()
	assert.InDelta(t, 0.01, cur[models.IndicatorRSI], 1e-9)
	assert.Greater(t, cur[models.IndicatorWilliamsR], 0.5)
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   map[models.IndicatorName]float64
	}{
		{"already normal", DefaultIndicatorWeights()},
		{"all zero", map[models.IndicatorName]float64{"a": 0, "b": 0, "c": 0}},
		{"negative", map[models.IndicatorName]float64{"a": -0.5, "b": 1, "c": 2}},
		{"nan", map[models.IndicatorName]float64{"a": math.NaN(), "b": 1}},
		{"dominant", map[models.IndicatorName]float64{"a": 1000, "b": 0.001, "c": 0.002, "d": 0.003}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			normalize(tc.in, 0.01)
			assert.InDelta(t, 1.0, sum(tc.in), 1e-9)
			for _, v := range tc.in {
				assert.GreaterOrEqual(t, v, 0.01-1e-12)
			}
		})
	}
}

type memStore struct {
	st      *models.WeightState
	saveErr error
	saves   int
}

func (m *memStore) Load(context.Context) (models.WeightState, error) {
	if m.st == nil {
		return models.WeightState{}, models.ErrNoData
	}
	return *m.st, nil
}

func (m *memStore) Save(_ context.Context, st models.WeightState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.st = &st
	return nil
}

func (m *memStore) Close() error { return nil }

func TestCheckpointAndRestore(t *testing.T) {
	store := &memStore{}
	w := newWeights(WithWeightStore(store))
	require.NoError(t, w.Load(context.Background()), "empty store is not an error")

	require.NoError(t, w.Checkpoint(context.Background()))
	assert.Equal(t, 0, store.saves, "nothing changed yet")

	w.Update(outcome("L1", models.OutcomeLoss, models.DirectionBearish, vote(models.IndicatorRSI, models.DirectionBullish, 1)))
	require.NoError(t, w.Checkpoint(context.Background()))
	require.NoError(t, w.Checkpoint(context.Background()))
	assert.Equal(t, 1, store.saves)

	restored := newWeights(WithWeightStore(store))
	require.NoError(t, restored.Load(context.Background()))
	assert.InDeltaMapValues(t, w.Weights(), restored.Weights(), 1e-12)
	assert.Equal(t, w.Threshold(), restored.Threshold())
	assert.Equal(t, int64(1), restored.Snapshot().PerInstrument["BTCUSDT"].Losses)
}

func TestCheckpointKeepsDirtyOnError(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	w := newWeights(WithWeightStore(store))
	w.Update(outcome("L1", models.OutcomeWin, models.DirectionBullish))
	assert.Error(t, w.Checkpoint(context.Background()))

	store.saveErr = nil
	require.NoError(t, w.Checkpoint(context.Background()))
	assert.Equal(t, 1, store.saves)
}
