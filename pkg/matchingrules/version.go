package matchingrules

import (
	"strings"

	"github.com/pkg/errors"
)

// SpecVersion is the pact specification version a document is written for. It decides the
// matcher vocabulary and the layout of matchingRules.
type SpecVersion int

const (
	V2 SpecVersion = 2
	V3 SpecVersion = 3
)

func (v SpecVersion) String() string {
	switch v {
	case V2:
		return "2.0.0"
	case V3:
		return "3.0.0"
	}
	return "unknown"
}

func ParseSpecVersion(s string) (SpecVersion, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v")
	switch {
	case s == "" || s == "3" || strings.HasPrefix(s, "3."):
		return V3, nil
	case s == "2" || strings.HasPrefix(s, "2."):
		return V2, nil
	case s == "1" || strings.HasPrefix(s, "1."):
		return V2, nil
	}
	return 0, errors.Errorf("unsupported pact specification version %q", s)
}

// EnvDecode lets go-envconfig read the version from the environment.
func (v *SpecVersion) EnvDecode(val string) error {
	parsed, err := ParseSpecVersion(val)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v *SpecVersion) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return v.EnvDecode(s)
}
