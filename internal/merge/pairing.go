package merge

import (
	"path/filepath"
	"regexp"
	"strings"
)

// keyPatterns are tried in order against the base file name
var keyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{8}_\d{6})`),                   // 20250304_163722
	regexp.MustCompile(`(\d{4}\.\d{1,2}\.\d{1,2}_\d{6})`), // 2025.3.4_163722
	regexp.MustCompile(`(\d{1,2}-\d{1,2}-\d{4}_\d{6})`),   // 3-4-2025_163722
}

// FileKey extracts the recording timestamp from a file name. Names without
// a recognised timestamp use the whole base name without extension.
func FileKey(path string) string {
	base := filepath.Base(path)
	for _, re := range keyPatterns {
		if m := re.FindStringSubmatch(base); m != nil {
			return m[1]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Pair is one muscle log matched with one angle log
type Pair struct {
	Muscle string `json:"muscle"`
	Angle  string `json:"angle"`
}

// OutputName is the merged file name for the pair
func (p Pair) OutputName() string {
	stem := func(path string) string {
		base := filepath.Base(path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return stem(p.Muscle) + "_merged_with_" + stem(p.Angle) + ".csv"
}

type keyed struct {
	key  string
	path string
}

// byKey indexes files by FileKey, keeping first-seen key order. A later
// file with the same key replaces the earlier one.
func byKey(files []string) []keyed {
	idx := make(map[string]int, len(files))
	var out []keyed
	for _, f := range files {
		k := FileKey(f)
		if i, ok := idx[k]; ok {
			out[i].path = f
			continue
		}
		idx[k] = len(out)
		out = append(out, keyed{key: k, path: f})
	}
	return out
}

func datePart(key string) string {
	if i := strings.IndexByte(key, '_'); i >= 0 {
		return key[:i]
	}
	return key
}

// MatchFiles pairs every muscle file with an angle file. It tries an exact
// key match, then either key containing the other, then the date part
// before the first underscore. Muscle files with no match are returned
// separately.
func MatchFiles(muscleFiles, angleFiles []string) (pairs []Pair, unmatched []string) {
	muscles := byKey(muscleFiles)
	angles := byKey(angleFiles)

	exact := make(map[string]string, len(angles))
	for _, a := range angles {
		exact[a.key] = a.path
	}

	find := func(m keyed) (string, bool) {
		if path, ok := exact[m.key]; ok {
			return path, true
		}
		for _, a := range angles {
			if strings.Contains(a.key, m.key) || strings.Contains(m.key, a.key) {
				return a.path, true
			}
		}
		date := datePart(m.key)
		for _, a := range angles {
			if datePart(a.key) == date {
				return a.path, true
			}
		}
		return "", false
	}

	for _, m := range muscles {
		if angle, ok := find(m); ok {
			pairs = append(pairs, Pair{Muscle: m.path, Angle: angle})
		} else {
			unmatched = append(unmatched, m.path)
		}
	}
	return pairs, unmatched
}
