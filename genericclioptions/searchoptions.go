package genericclioptions

import "path/filepath"

// SearchOptions defines common filtering options for CLI commands that
// select accounts by id, issuer, or label.
type SearchOptions struct {
	IDs    []string
	Issuer string
	Labels []string
}

type Usage int

const (
	_ Usage = iota
	ID
	ISSUER
	LABELS
)

var usage = map[Usage]string{
	ID:     "filter by account ID (comma-separated or repeated)",
	ISSUER: "filter by issuer, supports glob patterns (e.g. \"Git*\")",
	LABELS: "filter by account label (comma-separated or repeated)",
}

var _ BaseOptions = &SearchOptions{}

func (*SearchOptions) Usage(field Usage) string {
	if u, ok := usage[field]; ok {
		return u
	}

	return "unknown usage"
}

func (*SearchOptions) Complete() error {
	return nil
}

func (*SearchOptions) Validate() error {
	return nil
}

// Matches reports whether an account with the given id, issuer, and label
// satisfies every filter that was set. An unset filter always matches.
func (o *SearchOptions) Matches(id, issuer, label string) bool {
	if len(o.IDs) > 0 {
		found := false

		for _, want := range o.IDs {
			if want == id {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	if len(o.Issuer) > 0 {
		if ok, err := filepath.Match(o.Issuer, issuer); err != nil || !ok {
			return false
		}
	}

	if len(o.Labels) > 0 {
		found := false

		for _, want := range o.Labels {
			if ok, err := filepath.Match(want, label); err == nil && ok {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}
