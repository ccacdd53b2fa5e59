package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"armpose/internal/dataset"
	apperrors "armpose/internal/errors"
	"armpose/internal/shared/testutil"
)

func TestFileKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"muscle_20250304_163722.csv", "20250304_163722"},
		{"dir/angle 2025.3.4_163722 take2.csv", "2025.3.4_163722"},
		{"3-4-2025_163722_angles.csv", "3-4-2025_163722"},
		{"/data/throw-one.csv", "throw-one"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileKey(tt.name))
		})
	}
}

func TestMatchFiles(t *testing.T) {
	muscle := []string{
		"m/20250304_163722.csv", // exact
		"m/throw.csv",           // substring of angle key
		"m/20250305_090000.csv", // date only
		"m/unrelated_2024.csv",  // nothing
	}
	angle := []string{
		"a/20250304_163722.csv",
		"a/throw_angles.csv",
		"a/20250305_101010.csv",
	}

	pairs, unmatched := MatchFiles(muscle, angle)
	assert.Equal(t, []Pair{
		{Muscle: "m/20250304_163722.csv", Angle: "a/20250304_163722.csv"},
		{Muscle: "m/throw.csv", Angle: "a/throw_angles.csv"},
		{Muscle: "m/20250305_090000.csv", Angle: "a/20250305_101010.csv"},
	}, pairs)
	assert.Equal(t, []string{"m/unrelated_2024.csv"}, unmatched)

	assert.Equal(t, "throw_merged_with_throw_angles.csv", pairs[1].OutputName())
}

func TestSubsecond(t *testing.T) {
	base := time.Date(2025, 3, 4, 16, 37, 22, 0, time.UTC)
	in := []time.Time{base, base, base, base.Add(time.Second), base.Add(time.Second)}

	got := Subsecond(in)
	want := []time.Duration{0, 45 * time.Millisecond, 90 * time.Millisecond, time.Second, time.Second + 45*time.Millisecond}
	for i, w := range want {
		assert.Equal(t, base.Add(w), got[i], "row %d", i)
	}
}

func TestSubsecondWrapsAtOneSecond(t *testing.T) {
	base := time.Date(2025, 3, 4, 16, 37, 22, 0, time.UTC)
	in := make([]time.Time, 23)
	for i := range in {
		in[i] = base
	}
	got := Subsecond(in)
	// 22 * 1000/22 = 1000 ms wraps to 0
	assert.Equal(t, base, got[22])
	assert.Equal(t, base.Add(954*time.Millisecond), got[21])
}

func TestAlignment(t *testing.T) {
	base := time.Date(2025, 3, 4, 16, 37, 22, 0, time.UTC)

	m, a := Alignment(base, base.Add(800*time.Millisecond))
	assert.Zero(t, m)
	assert.Zero(t, a)

	m, a = Alignment(base.Add(3400*time.Millisecond), base)
	assert.Equal(t, 3*time.Second, m)
	assert.Zero(t, a)

	m, a = Alignment(base, base.Add(2600*time.Millisecond))
	assert.Zero(t, m)
	assert.Equal(t, 3*time.Second, a)
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{
		"2025-03-04 16:37:22",
		"2025-03-04 16:37:22.123",
		"2025/03/04 16:37:22",
		"2025-03-04T16:37:22Z",
		"16:37:22.5",
	} {
		_, err := ParseTimestamp(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestTables(t *testing.T) {
	muscle := &Table{
		Source: "muscle.csv",
		Header: []string{"Timestamp", "Ch.0"},
		Rows: [][]string{
			{"2025-03-04 16:37:25", "1"},
			{"2025-03-04 16:37:25", "2"},
			{"2025-03-04 16:37:26", "3"},
		},
	}
	// the angle log starts 3 s earlier
	angle := &Table{
		Source: "angle.csv",
		Header: []string{"timestamp", "Ch.0", "elbow_angle"},
		Rows: [][]string{
			{"2025-03-04 16:37:22.000", "x", "100"},
			{"2025-03-04 16:37:22.050", "y", "95"},
			{"2025-03-04 16:37:23.000", "z", "80"},
		},
	}

	merged, err := Tables(muscle, angle)
	require.NoError(t, err)

	assert.Equal(t, []string{"Timestamp", "Ch.0", "timestamp", "Ch.0_angle", "elbow_angle"}, merged.Header)
	require.Len(t, merged.Rows, 3)
	assert.Equal(t, "100", merged.Rows[0][4])
	assert.Equal(t, "95", merged.Rows[1][4], "45 ms is nearest to 50 ms")
	assert.Equal(t, "80", merged.Rows[2][4])
}

func TestTablesErrors(t *testing.T) {
	good := &Table{Header: []string{"time"}, Rows: [][]string{{"16:37:22"}}}

	_, err := Tables(&Table{Source: "m.csv", Header: []string{"Ch.0"}, Rows: [][]string{{"1"}}}, good)
	var schemaErr *dataset.SchemaError
	assert.ErrorAs(t, err, &schemaErr)

	_, err = Tables(good, &Table{Source: "a.csv", Header: []string{"time"}, Rows: [][]string{{"soon"}}})
	assert.Equal(t, apperrors.ErrTypeParsing, apperrors.TypeOf(err))

	_, err = Tables(good, &Table{Source: "a.csv", Header: []string{"time"}})
	var emptyErr *dataset.EmptyResultError
	assert.ErrorAs(t, err, &emptyErr)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDirs(t *testing.T) {
	root := t.TempDir()
	muscleDir := filepath.Join(root, "muscle")
	angleDir := filepath.Join(root, "angle")
	outDir := filepath.Join(root, "out")

	writeFile(t, filepath.Join(muscleDir, "m_20250304_163722.csv"),
		"Timestamp,Ch.0\n2025-03-04 16:37:22,1\n2025-03-04 16:37:22,2\n")
	writeFile(t, filepath.Join(muscleDir, "m_20250304_170000.csv"),
		"Timestamp,Ch.0\nnot-a-time,1\n")
	writeFile(t, filepath.Join(muscleDir, "orphan.csv"), "Timestamp,Ch.0\n")
	// angle files only exist in a nested folder
	writeFile(t, filepath.Join(angleDir, "take1", "a_20250304_163722.csv"),
		"timestamp,elbow_angle\n2025-03-04 16:37:22.000,90\n")
	writeFile(t, filepath.Join(angleDir, "take1", "a_20250304_170000.csv"),
		"timestamp,elbow_angle\n2025-03-04 17:00:00.000,90\n")

	logger, logs := testutil.NewTestLogger(t)
	report, err := Dirs(context.Background(), Options{
		MuscleDir:   muscleDir,
		AngleDir:    angleDir,
		OutDir:      outDir,
		Concurrency: 2,
		Logger:      logger,
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Merged())
	assert.Len(t, report.Unmatched, 1)
	assert.True(t, logs.ContainsMessage("pair merge failed"))

	out := filepath.Join(outDir, "m_20250304_163722_merged_with_a_20250304_163722.csv")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Timestamp,Ch.0,timestamp,elbow_angle\n"+
		"2025-03-04 16:37:22,1,2025-03-04 16:37:22.000,90\n"+
		"2025-03-04 16:37:22,2,2025-03-04 16:37:22.000,90\n", string(data))
}

func TestDirsMissingInput(t *testing.T) {
	_, err := Dirs(context.Background(), Options{MuscleDir: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}
