package merge

import (
	"fmt"
	"sort"
	"time"

	"armpose/internal/dataset"
	apperrors "armpose/internal/errors"
)

// AngleSuffix is appended to angle columns whose name is already used by
// the muscle log
const AngleSuffix = "_angle"

// Table is a parsed CSV file
type Table struct {
	Source string
	Header []string
	Rows   [][]string
}

// FromRaw adapts a dataset table
func FromRaw(t *dataset.RawTable) *Table {
	return &Table{Source: t.Source, Header: t.Header, Rows: t.Rows}
}

type keyedRow struct {
	key time.Time
	row []string
}

func (t *Table) timestamps() ([]time.Time, error) {
	col := TimestampColumn(t.Header)
	if col < 0 {
		return nil, &dataset.SchemaError{
			Source: t.Source,
			Reason: fmt.Sprintf("no timestamp column in %v", t.Header),
		}
	}
	if len(t.Rows) == 0 {
		return nil, &dataset.EmptyResultError{Source: t.Source}
	}

	ts := make([]time.Time, len(t.Rows))
	for i, row := range t.Rows {
		if col >= len(row) {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s line %d: missing timestamp", t.Source, i+2), nil)
		}
		v, err := ParseTimestamp(row[col])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s line %d", t.Source, i+2), err)
		}
		ts[i] = v
	}
	return ts, nil
}

func keyRows(rows [][]string, ts []time.Time, shift time.Duration) []keyedRow {
	out := make([]keyedRow, len(rows))
	for i, row := range rows {
		out[i] = keyedRow{key: ts[i].Add(-shift), row: row}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].key.Before(out[j].key) })
	return out
}

// nearest returns the index of the angle row closest to key. Ties go to
// the earlier row.
func nearest(angles []keyedRow, key time.Time) int {
	i := sort.Search(len(angles), func(i int) bool { return !angles[i].key.Before(key) })
	switch {
	case i == 0:
		return 0
	case i == len(angles):
		return i - 1
	}
	before := key.Sub(angles[i-1].key)
	after := angles[i].key.Sub(key)
	if before <= after {
		return i - 1
	}
	return i
}

// Tables joins every muscle row with the angle row nearest in time. Muscle
// timestamps are first spread over each second at SampleRate, and the two
// logs are aligned when they start more than a second apart. The result
// has the muscle columns followed by the angle columns, in muscle time
// order.
func Tables(muscle, angle *Table) (*Table, error) {
	mts, err := muscle.timestamps()
	if err != nil {
		return nil, err
	}
	ats, err := angle.timestamps()
	if err != nil {
		return nil, err
	}
	mts = Subsecond(mts)

	mShift, aShift := Alignment(mts[0], ats[0])
	mRows := keyRows(muscle.Rows, mts, mShift)
	aRows := keyRows(angle.Rows, ats, aShift)

	out := &Table{
		Source: muscle.Source,
		Header: joinHeader(muscle.Header, angle.Header),
		Rows:   make([][]string, len(mRows)),
	}
	for i, m := range mRows {
		a := aRows[nearest(aRows, m.key)]
		row := make([]string, 0, len(out.Header))
		row = append(row, pad(m.row, len(muscle.Header))...)
		row = append(row, pad(a.row, len(angle.Header))...)
		out.Rows[i] = row
	}
	return out, nil
}

func joinHeader(muscle, angle []string) []string {
	used := make(map[string]bool, len(muscle))
	header := make([]string, 0, len(muscle)+len(angle))
	for _, h := range muscle {
		used[h] = true
		header = append(header, h)
	}
	for _, h := range angle {
		if used[h] {
			h += AngleSuffix
		}
		header = append(header, h)
	}
	return header
}

func pad(row []string, n int) []string {
	if len(row) >= n {
		return row[:n]
	}
	out := make([]string, n)
	copy(out, row)
	return out
}
