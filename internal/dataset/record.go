package dataset

// Record is one validated CSV row. Fields holds the raw cells of the
// required columns; Values holds every required column that parsed as a
// finite number.
type Record struct {
	// Line is the 1-based source line, header included.
	Line      int                `json:"line"`
	Timestamp string             `json:"timestamp"`
	Fields    map[string]string  `json:"-"`
	Values    map[string]float64 `json:"values"`
}

// Features returns the 14 channel values in channel order
func (r Record) Features() []float64 {
	out := make([]float64, ChannelCount)
	for i, ch := range channelNames {
		out[i] = r.Values[ch]
	}
	return out
}

// Labels returns elbow, wrist and shoulder angles
func (r Record) Labels() []float64 {
	return []float64{r.Values[ColElbow], r.Values[ColWrist], r.Values[ColShoulder]}
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	out := Record{Line: r.Line, Timestamp: r.Timestamp}
	if r.Fields != nil {
		out.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	out.Values = make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// RecordSet is an ordered sequence of records sharing one schema
type RecordSet struct {
	Role    Role     `json:"role"`
	Sources []string `json:"sources"`
	Records []Record `json:"records"`
}

// Len returns the number of records
func (s *RecordSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Column returns the values of one numeric column in record order
func (s *RecordSet) Column(name string) []float64 {
	out := make([]float64, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.Values[name]
	}
	return out
}

// Concat joins record sets of the same role in argument order. Nil sets
// are skipped.
func Concat(sets ...*RecordSet) (*RecordSet, error) {
	out := &RecordSet{}
	for _, s := range sets {
		if s == nil {
			continue
		}
		if out.Role == "" {
			out.Role = s.Role
		} else if s.Role != out.Role {
			return nil, &SchemaError{Source: firstSource(s), Role: s.Role, Reason: "cannot concatenate " + string(s.Role) + " data onto " + string(out.Role) + " data"}
		}
		out.Sources = append(out.Sources, s.Sources...)
		out.Records = append(out.Records, s.Records...)
	}
	return out, nil
}

func firstSource(s *RecordSet) string {
	if len(s.Sources) == 0 {
		return ""
	}
	return s.Sources[0]
}
