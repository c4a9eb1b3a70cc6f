package funding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"traderwatch/store"
)

func TestClassifyRate_Short(t *testing.T) {
	assert.Equal(t, store.FundingFavorable, ClassifyRate(0.0002, store.Short, defaultThreshold))
	assert.Equal(t, store.FundingUnfavorable, ClassifyRate(-0.0002, store.Short, defaultThreshold))
	assert.Equal(t, store.FundingNeutral, ClassifyRate(0.00005, store.Short, defaultThreshold))
}

func TestClassifyRate_Long(t *testing.T) {
	assert.Equal(t, store.FundingFavorable, ClassifyRate(-0.0002, store.Long, defaultThreshold))
	assert.Equal(t, store.FundingUnfavorable, ClassifyRate(0.0002, store.Long, defaultThreshold))
	assert.Equal(t, store.FundingNeutral, ClassifyRate(-0.00005, store.Long, defaultThreshold))
}

func TestClassifyRate_AtThresholdIsNeutral(t *testing.T) {
	assert.Equal(t, store.FundingNeutral, ClassifyRate(defaultThreshold, store.Short, defaultThreshold))
	assert.Equal(t, store.FundingNeutral, ClassifyRate(-defaultThreshold, store.Long, defaultThreshold))
}
