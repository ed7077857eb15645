package runner

import (
	"context"
	"testing"
	"time"

	"dca-grid-backtest-go/internal/backtest"
	"dca-grid-backtest-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatJob(symbol string, days int) Job {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, days)
	for i := range bars {
		bars[i] = models.Bar{Date: start.AddDate(0, 0, i), Open: 100, High: 100, Low: 100, Close: 100}
	}
	return Job{
		Request: backtest.Request{
			Symbol: symbol,
			Start:  start,
			End:    bars[len(bars)-1].Date,
			Config: models.DefaultStrategyConfig(),
		},
		Bars: bars,
	}
}

func TestRunAllKeepsJobOrder(t *testing.T) {
	jobs := []Job{flatJob("AAA", 5), flatJob("BBB", 5), flatJob("CCC", 5)}

	results, err := RunAll(context.Background(), jobs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "AAA", results[0].Symbol)
	assert.Equal(t, "BBB", results[1].Symbol)
	assert.Equal(t, "CCC", results[2].Symbol)
}

func TestRunAllPropagatesErrors(t *testing.T) {
	bad := flatJob("AAA", 5)
	bad.Request.Config.GridIntervalPercent = 0

	_, err := RunAll(context.Background(), []Job{flatJob("BBB", 5), bad}, 2)
	require.Error(t, err)

	var paramErr *models.ParameterError
	assert.ErrorAs(t, err, &paramErr)
}

func TestRunAllHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunAll(ctx, []Job{flatJob("AAA", 5)}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAllEmptyJobs(t *testing.T) {
	results, err := RunAll(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
