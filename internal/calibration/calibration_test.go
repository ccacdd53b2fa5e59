package calibration

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"armpose/internal/dataset"
	apperrors "armpose/internal/errors"
	"armpose/internal/shared/testutil"
)

func calibrationSet(t *testing.T, rows [][]float64) *dataset.RecordSet {
	t.Helper()
	res, err := dataset.Load(context.Background(), strings.NewReader(testutil.CalibrationCSV(rows)), "calibration.csv", dataset.RoleCalibration)
	require.NoError(t, err)
	return res.Set
}

func spreadRows() [][]float64 {
	return [][]float64{
		testutil.UniformRow(1, 1),
		testutil.UniformRow(2, 2),
		testutil.UniformRow(3, 3),
	}
}

func TestEstimate_HandComputed(t *testing.T) {
	stats, err := Estimate(calibrationSet(t, spreadRows()))
	require.NoError(t, err)
	require.Len(t, stats, dataset.ChannelCount)

	// Ch.0 holds 1, 2, 3
	assert.InDelta(t, 2.0, stats["Ch.0"].Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2.0/3.0), stats["Ch.0"].StdDev, 1e-12)
	assert.InDelta(t, 0.8165, stats["Ch.0"].StdDev, 1e-4)

	// Ch.1 holds 2, 4, 6
	assert.InDelta(t, 4.0, stats["Ch.1"].Mean, 1e-12)
	assert.NoError(t, stats.Check())
}

func TestEstimate_Empty(t *testing.T) {
	_, err := Estimate(&dataset.RecordSet{})
	assert.ErrorIs(t, err, ErrNoCalibrationData)
	assert.Equal(t, apperrors.ErrTypeEmptyResult, apperrors.TypeOf(err))

	_, err = Estimate(nil)
	assert.ErrorIs(t, err, ErrNoCalibrationData)
}

func TestStandardize_SelfMeanIsZero(t *testing.T) {
	set := calibrationSet(t, spreadRows())
	stats, err := Estimate(set)
	require.NoError(t, err)

	std, err := Standardize(set, stats)
	require.NoError(t, err)

	for _, ch := range dataset.Channels() {
		assert.InDelta(t, 0, floats.Sum(std.Column(ch))/float64(std.Len()), 1e-9, ch)
	}
	// power passes through untouched
	assert.Equal(t, 100.0, std.Records[0].Values[dataset.ColPower])
	// the input is not modified
	assert.Equal(t, 1.0, set.Records[0].Values["Ch.0"])
}

func TestStandardize_RoundTrip(t *testing.T) {
	set := calibrationSet(t, spreadRows())
	stats, err := Estimate(set)
	require.NoError(t, err)

	std, err := Standardize(set, stats)
	require.NoError(t, err)
	back, err := Inverse(std, stats)
	require.NoError(t, err)

	for i, rec := range set.Records {
		assert.True(t, floats.EqualApprox(rec.Features(), back.Records[i].Features(), 1e-9))
	}
}

func TestStandardize_ConfigurationErrors(t *testing.T) {
	good, err := Estimate(calibrationSet(t, spreadRows()))
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(ChannelStats)
		channel string
	}{
		{"zero stddev", func(s ChannelStats) { s["Ch.4"] = ChannelStat{Mean: 1, StdDev: 0} }, "Ch.4"},
		{"nan stddev", func(s ChannelStats) { s["Ch.2"] = ChannelStat{Mean: 1, StdDev: math.NaN()} }, "Ch.2"},
		{"missing channel", func(s ChannelStats) { delete(s, "Ch.13") }, "Ch.13"},
		{"infinite mean", func(s ChannelStats) { s["Ch.0"] = ChannelStat{Mean: math.Inf(1), StdDev: 1} }, "Ch.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := make(ChannelStats, len(good))
			for k, v := range good {
				stats[k] = v
			}
			tt.mutate(stats)

			_, err := Standardize(calibrationSet(t, spreadRows()), stats)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.channel, cfgErr.Channel)
			assert.Equal(t, apperrors.ErrTypeConfiguration, apperrors.TypeOf(err))
		})
	}
}

func TestEstimate_ConstantChannelFailsStandardization(t *testing.T) {
	rows := [][]float64{testutil.UniformRow(5, 0), testutil.UniformRow(5, 0)}
	stats, err := Estimate(calibrationSet(t, rows))
	require.NoError(t, err)

	var cfgErr *ConfigurationError
	assert.ErrorAs(t, stats.Check(), &cfgErr)
}

func TestStandardizeFeatures(t *testing.T) {
	stats, err := Estimate(calibrationSet(t, spreadRows()))
	require.NoError(t, err)

	out, err := StandardizeFeatures(testutil.UniformRow(2, 2), stats)
	require.NoError(t, err)
	assert.InDelta(t, 0, out[1], 1e-12)

	_, err = StandardizeFeatures([]float64{1}, stats)
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a, err := Estimate(calibrationSet(t, spreadRows()))
	require.NoError(t, err)
	b, err := Estimate(calibrationSet(t, spreadRows()))
	require.NoError(t, err)

	assert.Len(t, a.Fingerprint(), 64)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b["Ch.0"] = ChannelStat{Mean: 0, StdDev: 1}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
