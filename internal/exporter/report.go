package exporter

import (
	"armpose/internal/dataset"
	"armpose/internal/prediction"
)

// Report is everything exported for one session: the decoded predictions
// and, optionally, the standardized test frames they were computed from.
// Predictions[i] belongs to Standardized.Records[i].
type Report struct {
	SessionID    string
	Predictions  []prediction.Prediction
	Standardized *dataset.RecordSet
}

type table struct {
	headers []string
	rows    [][]interface{}
}

func (r *Report) predictionTable() table {
	t := table{headers: append([]string{"Frame", dataset.ColTimestamp}, dataset.AngleColumns()...)}
	for i, p := range r.Predictions {
		row := []interface{}{i, r.timestamp(i)}
		for _, a := range p.Angles() {
			row = append(row, a)
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func (r *Report) standardizedTable() table {
	t := table{headers: append([]string{"Frame", dataset.ColTimestamp, dataset.ColPower}, dataset.Channels()...)}
	if r.Standardized == nil {
		return t
	}
	for i, rec := range r.Standardized.Records {
		row := []interface{}{i, rec.Timestamp, rec.Values[dataset.ColPower]}
		for _, v := range rec.Features() {
			row = append(row, v)
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func (r *Report) timestamp(i int) string {
	if r.Standardized == nil || i >= len(r.Standardized.Records) {
		return ""
	}
	return r.Standardized.Records[i].Timestamp
}
