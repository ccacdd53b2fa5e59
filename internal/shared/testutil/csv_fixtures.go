package testutil

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelCount is the number of muscle channels in every fixture row
const ChannelCount = 14

// BaseHeader returns the calibration/test header: Timestamp, Power, Ch.0..Ch.13
func BaseHeader() []string {
	h := []string{"Timestamp", "Power"}
	for i := 0; i < ChannelCount; i++ {
		h = append(h, fmt.Sprintf("Ch.%d", i))
	}
	return h
}

// TrainingHeader returns BaseHeader plus the three angle columns
func TrainingHeader() []string {
	return append(BaseHeader(), "elbow_angle", "wrist_angle", "shoulder_angle")
}

// CalibrationCSV renders rows of 14 channel values as a calibration file.
// Timestamps and power readings are synthesized.
func CalibrationCSV(channels [][]float64) string {
	return renderCSV(BaseHeader(), channels, nil)
}

// TestCSV renders rows of 14 channel values as a test file
func TestCSV(channels [][]float64) string {
	return renderCSV(BaseHeader(), channels, nil)
}

// TrainingCSV renders channel rows with their elbow, wrist, shoulder labels
func TrainingCSV(channels [][]float64, angles [][3]float64) string {
	return renderCSV(TrainingHeader(), channels, angles)
}

// UniformRow returns a channel row where channel i holds base+i*step
func UniformRow(base, step float64) []float64 {
	row := make([]float64, ChannelCount)
	for i := range row {
		row[i] = base + float64(i)*step
	}
	return row
}

func renderCSV(header []string, channels [][]float64, angles [][3]float64) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')

	for i, row := range channels {
		cells := []string{
			fmt.Sprintf("12:00:%02d.%03d", i/22, (i%22)*45),
			"100",
		}
		for _, v := range row {
			cells = append(cells, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if angles != nil {
			for _, a := range angles[i] {
				cells = append(cells, strconv.FormatFloat(a, 'f', -1, 64))
			}
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteByte('\n')
	}
	return b.String()
}
