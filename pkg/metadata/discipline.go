package metadata

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Discipline is an engineering discipline code attached to an asset, e.g. ELE or CIV.
type Discipline string

var disciplinePattern = regexp.MustCompile(`^[A-Z0-9]{2,6}$`)

func NewDiscipline(value string) (Discipline, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	d := Discipline(normalized)
	if !d.IsValid() {
		return d, fmt.Errorf("invalid discipline code %q, expected 2-6 letters or digits", value)
	}

	return d, nil
}

func (d Discipline) IsValid() bool {
	return disciplinePattern.MatchString(string(d))
}

func (d Discipline) String() string {
	return string(d)
}

// JoinDisciplines normalizes, deduplicates and sorts the codes and returns
// them comma-joined for storage.
func JoinDisciplines(values []string) (string, error) {
	seen := make(map[Discipline]struct{}, len(values))
	codes := make([]string, 0, len(values))

	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		d, err := NewDiscipline(v)
		if err != nil {
			return "", err
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		codes = append(codes, d.String())
	}

	sort.Strings(codes)
	return strings.Join(codes, ","), nil
}

func SplitDisciplines(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}
