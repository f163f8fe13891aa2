package model

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Tag aponta para um commit. Em tags anotadas TargetSHA é o commit
// desreferenciado e ObjectSHA o objeto tag.
type Tag struct {
	Name        string     `json:"name"`
	TargetSHA   string     `json:"targetSha"`
	ObjectSHA   string     `json:"objectSha,omitempty"`
	IsAnnotated bool       `json:"isAnnotated"`
	Message     string     `json:"message,omitempty"`
	Tagger      *Signature `json:"tagger,omitempty"`
}

func (t Tag) FullName() string {
	return RefTagsPrefix + t.Name
}

// Date retorna a data do tagger, se houver.
func (t Tag) Date() (time.Time, bool) {
	if t.Tagger == nil || t.Tagger.Date.IsZero() {
		return time.Time{}, false
	}
	return t.Tagger.Date, true
}

func (t Tag) SemVer() (SemVer, bool) {
	return ParseSemVer(t.Name)
}

// SemVer segue major.minor.patch[-prerelease][+build].
type SemVer struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease []string
	Build      string
}

var semverPattern = regexp.MustCompile(`^[vV]?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`)

func ParseSemVer(raw string) (SemVer, bool) {
	match := semverPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return SemVer{}, false
	}

	major, err1 := strconv.Atoi(match[1])
	minor, err2 := strconv.Atoi(match[2])
	patch, err3 := strconv.Atoi(match[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return SemVer{}, false
	}

	v := SemVer{Major: major, Minor: minor, Patch: patch, Build: match[5]}
	if match[4] != "" {
		v.Prerelease = strings.Split(match[4], ".")
	}
	return v, true
}

func (v SemVer) IsPrerelease() bool {
	return len(v.Prerelease) > 0
}

func (v SemVer) String() string {
	out := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.Prerelease) > 0 {
		out += "-" + strings.Join(v.Prerelease, ".")
	}
	if v.Build != "" {
		out += "+" + v.Build
	}
	return out
}

// Compare retorna -1, 0 ou 1. Build metadata não participa da ordem e
// qualquer prerelease é menor que a release correspondente.
func (v SemVer) Compare(other SemVer) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}

	switch {
	case len(v.Prerelease) == 0 && len(other.Prerelease) == 0:
		return 0
	case len(v.Prerelease) == 0:
		return 1
	case len(other.Prerelease) == 0:
		return -1
	}

	for i := 0; i < len(v.Prerelease) && i < len(other.Prerelease); i++ {
		if c := comparePrereleaseIdentifier(v.Prerelease[i], other.Prerelease[i]); c != 0 {
			return c
		}
	}
	return compareInt(len(v.Prerelease), len(other.Prerelease))
}

func (v SemVer) Less(other SemVer) bool {
	return v.Compare(other) < 0
}

func comparePrereleaseIdentifier(a, b string) int {
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return compareInt(an, bn)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// SortTagsBySemVer ordena versões decrescentes; tags fora do padrão vão
// para o fim em ordem alfabética.
func SortTagsBySemVer(tags []Tag) {
	sort.SliceStable(tags, func(i, j int) bool {
		vi, okI := tags[i].SemVer()
		vj, okJ := tags[j].SemVer()
		switch {
		case okI && okJ:
			if c := vi.Compare(vj); c != 0 {
				return c > 0
			}
			return tags[i].Name < tags[j].Name
		case okI:
			return true
		case okJ:
			return false
		default:
			return tags[i].Name < tags[j].Name
		}
	})
}
