package calibration

import (
	"armpose/internal/dataset"
)

// Standardize returns a copy of set whose muscle channels are replaced by
// (v-mean)/stddev. Other columns pass through. set is not modified.
func Standardize(set *dataset.RecordSet, stats ChannelStats) (*dataset.RecordSet, error) {
	return transform(set, stats, func(v float64, cs ChannelStat) float64 {
		return (v - cs.Mean) / cs.StdDev
	})
}

// Inverse undoes Standardize: v*stddev+mean
func Inverse(set *dataset.RecordSet, stats ChannelStats) (*dataset.RecordSet, error) {
	return transform(set, stats, func(v float64, cs ChannelStat) float64 {
		return v*cs.StdDev + cs.Mean
	})
}

// StandardizeFeatures applies the transform to a single 14-value vector
// in channel order.
func StandardizeFeatures(features []float64, stats ChannelStats) ([]float64, error) {
	if err := stats.Check(); err != nil {
		return nil, err
	}
	if len(features) != dataset.ChannelCount {
		return nil, &ConfigurationError{Reason: "feature vector must have one value per channel"}
	}
	out := make([]float64, len(features))
	for i, ch := range dataset.Channels() {
		cs := stats[ch]
		out[i] = (features[i] - cs.Mean) / cs.StdDev
	}
	return out, nil
}

func transform(set *dataset.RecordSet, stats ChannelStats, fn func(float64, ChannelStat) float64) (*dataset.RecordSet, error) {
	if err := stats.Check(); err != nil {
		return nil, err
	}
	if set == nil {
		return &dataset.RecordSet{}, nil
	}

	channels := dataset.Channels()
	out := &dataset.RecordSet{
		Role:    set.Role,
		Sources: append([]string(nil), set.Sources...),
		Records: make([]dataset.Record, len(set.Records)),
	}
	for i, rec := range set.Records {
		c := rec.Clone()
		for _, ch := range channels {
			if v, ok := c.Values[ch]; ok {
				c.Values[ch] = fn(v, stats[ch])
			}
		}
		out.Records[i] = c
	}
	return out, nil
}
