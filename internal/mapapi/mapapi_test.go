package mapapi

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMap() *Map {
	return &Map{
		Lanes: []Lane{
			{ID: 1, Centerline: [][2]float64{{0, 0}, {10, 0}, {20, 0}}},
			{ID: 2, Centerline: [][2]float64{{0, 100}, {10, 100}}},
		},
		Crosswalks: []Crosswalk{
			{ID: 5, Polygon: [][2]float64{{5, -2}, {7, -2}, {7, 2}, {5, 2}}},
		},
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"lanes": [{"id": 1, "centerline": [[0,0],[10,0]]}],
		"crosswalks": [{"id": 2, "polygon": [[0,0],[1,0],[1,1]]}]
	}`), 0644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Lanes, 1)
	assert.Len(t, m.Crosswalks, 1)
}

func TestLoadRejectsDegenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"lanes": [{"id": 1, "centerline": [[0,0]]}]}`), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLanesWithin(t *testing.T) {
	m := testMap()

	near := m.LanesWithin(0, 0, 15)
	require.Len(t, near, 1)
	assert.Equal(t, int64(1), near[0].ID)

	all := m.LanesWithin(0, 50, 120)
	assert.Len(t, all, 2)

	assert.Empty(t, m.LanesWithin(1000, 1000, 5))
}

func TestCrosswalksWithin(t *testing.T) {
	m := testMap()
	assert.Len(t, m.CrosswalksWithin(6, 0, 5), 1)
	assert.Empty(t, m.CrosswalksWithin(50, 50, 5))
}

func TestNearestLane(t *testing.T) {
	m := testMap()
	lane, dist, ok := m.NearestLane(5, 3)
	require.True(t, ok)
	assert.Equal(t, int64(1), lane.ID)
	assert.InDelta(t, 3.0, dist, 1e-9)

	_, _, ok = (&Map{}).NearestLane(0, 0)
	assert.False(t, ok)
}

func TestResamplePolyline(t *testing.T) {
	pts := [][2]float64{{0, 0}, {10, 0}}
	out := ResamplePolyline(pts, 5)
	require.Len(t, out, 5)
	for i, p := range out {
		assert.InDelta(t, 2.5*float64(i), p[0], 1e-9)
		assert.InDelta(t, 0.0, p[1], 1e-9)
	}

	// uneven segments still resample by arc length
	bent := [][2]float64{{0, 0}, {1, 0}, {1, 9}}
	out = ResamplePolyline(bent, 3)
	require.Len(t, out, 3)
	assert.InDelta(t, 0.0, out[0][0], 1e-9)
	assert.InDelta(t, 5.0, out[1][1]+out[1][0], 1e-6) // midpoint at arc length 5
	assert.InDelta(t, 9.0, out[2][1], 1e-9)

	total := 0.0
	for i := 1; i < len(out); i++ {
		total += math.Hypot(out[i][0]-out[i-1][0], out[i][1]-out[i-1][1])
	}
	assert.Greater(t, total, 9.0)
}
