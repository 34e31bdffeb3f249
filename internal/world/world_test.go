package world

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingAndSpiral(t *testing.T) {
	center := HexCoord{Q: 2, R: -1}
	for k := 1; k <= 4; k++ {
		ring := Ring(center, k)
		require.Len(t, ring, 6*k)
		for _, h := range ring {
			assert.Equal(t, k, Distance(center, h))
		}
	}

	sp := Spiral(HexCoord{}, 19)
	require.Len(t, sp, 19)
	seen := map[HexCoord]bool{}
	for _, h := range sp {
		assert.False(t, seen[h], "duplicate %v", h)
		seen[h] = true
		assert.LessOrEqual(t, Distance(HexCoord{}, h), 2)
	}
}

func TestDemandForYear(t *testing.T) {
	assert.Equal(t, 181.0, DemandForYear(1900))
	assert.Equal(t, 153.0, DemandForYear(1970))
	assert.Equal(t, 50.0, DemandForYear(2015))
	assert.Equal(t, 181.0, DemandForYear(1700))
	assert.Equal(t, 50.0, DemandForYear(2100))
}

func TestGenerateIsReproducible(t *testing.T) {
	cfg := SmallTestConfig()
	a := Generate(cfg, rand.New(rand.NewSource(5)), 1)
	b := Generate(cfg, rand.New(rand.NewSource(5)), 1)

	require.Equal(t, cfg.Count, a.HouseCount())
	for i := range a.Houses {
		assert.Equal(t, *a.Houses[i], *b.Houses[i])
	}

	for i, h := range a.Houses {
		assert.Equal(t, uint64(i+1), h.ID)
		assert.GreaterOrEqual(t, h.Area, cfg.AreaMin)
		assert.LessOrEqual(t, h.Area, cfg.AreaMax)
		assert.GreaterOrEqual(t, h.Year, cfg.YearMin)
		assert.LessOrEqual(t, h.Year, cfg.YearMax)
		assert.Positive(t, h.HeatLoad)
	}
	assert.Equal(t, 2, a.Radius)
	assert.Len(t, a.Within(HexCoord{}, 1), 6)
}
