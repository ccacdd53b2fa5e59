package dataset

import "fmt"

// ChannelCount is the number of muscle-sensor channels per frame
const ChannelCount = 14

// Column names shared by every file role
const (
	ColTimestamp = "Timestamp"
	ColPower     = "Power"
	ColElbow     = "elbow_angle"
	ColWrist     = "wrist_angle"
	ColShoulder  = "shoulder_angle"
)

// Role identifies which stage of the pipeline a file feeds
type Role string

const (
	RoleCalibration Role = "calibration"
	RoleTraining    Role = "training"
	RoleTest        Role = "test"
)

var channelNames = func() []string {
	names := make([]string, ChannelCount)
	for i := range names {
		names[i] = fmt.Sprintf("Ch.%d", i)
	}
	return names
}()

// Channels returns the muscle channel column names Ch.0..Ch.13 in order
func Channels() []string {
	out := make([]string, len(channelNames))
	copy(out, channelNames)
	return out
}

// AngleColumns returns the label columns in output-unit order
func AngleColumns() []string {
	return []string{ColElbow, ColWrist, ColShoulder}
}

// Schema lists the columns a file must carry and which of them must parse
// as numbers.
type Schema struct {
	Role     Role
	Required []string
	Numeric  []string
}

// CalibrationSchema: Timestamp, Power and the 14 channels, everything but
// Timestamp numeric.
func CalibrationSchema() Schema {
	required := append([]string{ColTimestamp, ColPower}, channelNames...)
	return Schema{
		Role:     RoleCalibration,
		Required: required,
		Numeric:  append([]string{ColPower}, channelNames...),
	}
}

// TrainingSchema adds the three angle labels. Power must be present but is
// not checked for being numeric.
func TrainingSchema() Schema {
	required := append([]string{ColTimestamp, ColPower}, channelNames...)
	required = append(required, AngleColumns()...)
	numeric := append(Channels(), AngleColumns()...)
	return Schema{
		Role:     RoleTraining,
		Required: required,
		Numeric:  numeric,
	}
}

// TestSchema has the calibration columns; only the channels are numeric.
func TestSchema() Schema {
	return Schema{
		Role:     RoleTest,
		Required: append([]string{ColTimestamp, ColPower}, channelNames...),
		Numeric:  Channels(),
	}
}

// SchemaFor returns the schema of a role
func SchemaFor(role Role) (Schema, error) {
	switch role {
	case RoleCalibration:
		return CalibrationSchema(), nil
	case RoleTraining:
		return TrainingSchema(), nil
	case RoleTest:
		return TestSchema(), nil
	default:
		return Schema{}, fmt.Errorf("unknown dataset role %q", role)
	}
}

func (s Schema) isNumeric(col string) bool {
	for _, c := range s.Numeric {
		if c == col {
			return true
		}
	}
	return false
}
