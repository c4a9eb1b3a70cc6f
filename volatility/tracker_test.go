package volatility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"traderwatch/store"
)

func TestPercentileRank_SingleValueIsZero(t *testing.T) {
	assert.Equal(t, []float64{0}, percentileRank([]float64{5}))
}

func TestPercentileRank_OrdersAscending(t *testing.T) {
	ranks := percentileRank([]float64{10, 30, 20})
	assert.Equal(t, 0.0, ranks[0])
	assert.Equal(t, 100.0, ranks[1])
	assert.Equal(t, 50.0, ranks[2])
}

func TestMeanLastN_UsesTailOnly(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 4.5, meanLastN(xs, 2))
}

func TestMeanLastN_FewerThanN(t *testing.T) {
	xs := []float64{2, 4}
	assert.Equal(t, 3.0, meanLastN(xs, 10))
}

func TestMeanLastN_Empty(t *testing.T) {
	assert.Equal(t, 0.0, meanLastN(nil, 5))
}

func TestUnionCoins_Dedupes(t *testing.T) {
	out := unionCoins([]string{"BTC", "ETH"}, []string{"ETH", "SOL"})
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, out)
}

func TestFallbackStop_Long(t *testing.T) {
	assert.Equal(t, 97.0, fallbackStop(100, store.Long))
}

func TestFallbackStop_Short(t *testing.T) {
	assert.Equal(t, 103.0, fallbackStop(100, store.Short))
}
