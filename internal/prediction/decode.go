package prediction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"armpose/internal/dataset"
	apperrors "armpose/internal/errors"
	"armpose/internal/regressor"
)

// Prediction is the decoded arm pose of one test frame, in degrees
type Prediction struct {
	ElbowAngle    float64 `json:"elbow_angle"`
	WristAngle    float64 `json:"wrist_angle"`
	ShoulderAngle float64 `json:"shoulder_angle"`
}

// Angles returns elbow, wrist and shoulder in that order
func (p Prediction) Angles() []float64 {
	return []float64{p.ElbowAngle, p.WristAngle, p.ShoulderAngle}
}

// labelFields maps an output ordinal to the angle it carries
var labelFields = map[string]string{
	"0": dataset.ColElbow,
	"1": dataset.ColWrist,
	"2": dataset.ColShoulder,
}

// StructureError means the model output does not have the expected shape
type StructureError struct {
	Frame  int
	Reason string
}

func (e *StructureError) Error() string {
	if e.Frame < 0 {
		return "malformed model output: " + e.Reason
	}
	return fmt.Sprintf("malformed model output for frame %d: %s", e.Frame, e.Reason)
}

func (e *StructureError) ErrorType() apperrors.ErrorType { return apperrors.ErrTypeStructure }

func (e *StructureError) ProblemExtensions() map[string]interface{} {
	if e.Frame < 0 {
		return nil
	}
	return map[string]interface{}{"frame": e.Frame}
}

// Decode maps labeled outputs "0", "1" and "2" onto elbow, wrist and
// shoulder. Unknown labels are ignored. An element without a label, or an
// output missing one of the three angles, is a StructureError.
func Decode(outputs []regressor.LabeledOutput) (Prediction, error) {
	seen := make(map[string]float64, len(labelFields))
	for i, o := range outputs {
		if o.Label == "" {
			return Prediction{}, &StructureError{Frame: -1, Reason: fmt.Sprintf("element %d has no label", i)}
		}
		field, ok := labelFields[o.Label]
		if !ok {
			continue
		}
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return Prediction{}, &StructureError{Frame: -1, Reason: fmt.Sprintf("label %s has a non-finite value", o.Label)}
		}
		seen[field] = o.Value
	}
	return fromFields(seen)
}

// DecodeJSON is Decode for a raw JSON model output. Anything but an array
// of {"label": string, "value": number} objects is a StructureError.
func DecodeJSON(raw []byte) (Prediction, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return Prediction{}, &StructureError{Frame: -1, Reason: "output is not an array"}
	}

	var elems []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return Prediction{}, &StructureError{Frame: -1, Reason: "array elements must be objects: " + err.Error()}
	}

	outputs := make([]regressor.LabeledOutput, 0, len(elems))
	for i, el := range elems {
		rawLabel, hasLabel := el["label"]
		rawValue, hasValue := el["value"]
		if !hasLabel || !hasValue {
			return Prediction{}, &StructureError{Frame: -1, Reason: fmt.Sprintf("element %d lacks label or value", i)}
		}
		var o regressor.LabeledOutput
		if err := json.Unmarshal(rawLabel, &o.Label); err != nil {
			return Prediction{}, &StructureError{Frame: -1, Reason: fmt.Sprintf("element %d label is not a string", i)}
		}
		if err := json.Unmarshal(rawValue, &o.Value); err != nil {
			return Prediction{}, &StructureError{Frame: -1, Reason: fmt.Sprintf("element %d value is not a number", i)}
		}
		outputs = append(outputs, o)
	}
	return Decode(outputs)
}

func fromFields(seen map[string]float64) (Prediction, error) {
	for _, col := range dataset.AngleColumns() {
		if _, ok := seen[col]; !ok {
			return Prediction{}, &StructureError{Frame: -1, Reason: "missing " + col}
		}
	}
	return Prediction{
		ElbowAngle:    seen[dataset.ColElbow],
		WristAngle:    seen[dataset.ColWrist],
		ShoulderAngle: seen[dataset.ColShoulder],
	}, nil
}
