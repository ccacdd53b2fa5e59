package calibration

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"golang.org/x/crypto/blake2b"
	"gonum.org/v1/gonum/stat"

	"armpose/internal/dataset"
	apperrors "armpose/internal/errors"
)

// ErrNoCalibrationData is returned when estimating from an empty set
var ErrNoCalibrationData = apperrors.NewAppError(apperrors.ErrTypeEmptyResult, "no valid calibration data", nil)

// ChannelStat is the baseline of one muscle channel
type ChannelStat struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// ChannelStats maps channel name to its baseline
type ChannelStats map[string]ChannelStat

// Estimate computes the per-channel arithmetic mean and population standard
// deviation of a calibration set.
func Estimate(set *dataset.RecordSet) (ChannelStats, error) {
	if set.Len() == 0 {
		return nil, ErrNoCalibrationData
	}
	return Summarize(set), nil
}

// Summarize is Estimate without the emptiness check. An empty set yields
// NaN statistics.
func Summarize(set *dataset.RecordSet) ChannelStats {
	stats := make(ChannelStats, dataset.ChannelCount)
	for _, ch := range dataset.Channels() {
		var col []float64
		if set != nil {
			col = set.Column(ch)
		}
		if len(col) == 0 {
			stats[ch] = ChannelStat{Mean: math.NaN(), StdDev: math.NaN()}
			continue
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		stats[ch] = ChannelStat{Mean: mean, StdDev: std}
	}
	return stats
}

// Check reports the first channel that cannot be used as a divisor
func (s ChannelStats) Check() error {
	for _, ch := range dataset.Channels() {
		cs, ok := s[ch]
		switch {
		case !ok:
			return &ConfigurationError{Channel: ch, Reason: "no calibration statistics"}
		case math.IsNaN(cs.Mean) || math.IsInf(cs.Mean, 0):
			return &ConfigurationError{Channel: ch, Reason: "mean is not finite"}
		case cs.StdDev == 0:
			return &ConfigurationError{Channel: ch, Reason: "standard deviation is zero"}
		case math.IsNaN(cs.StdDev) || math.IsInf(cs.StdDev, 0) || cs.StdDev < 0:
			return &ConfigurationError{Channel: ch, Reason: "standard deviation is not a positive finite number"}
		}
	}
	return nil
}

// Fingerprint is a stable blake2b digest of the statistics in channel
// order, used to tie models and predictions to the baseline they came from.
func (s ChannelStats) Fingerprint() string {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	for _, ch := range dataset.Channels() {
		cs := s[ch]
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(cs.Mean))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(cs.StdDev))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
