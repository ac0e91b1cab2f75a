// Package naming encodes and decodes archive names. Restore routing
// depends on recovering the source provider and volume identity from the
// archive name alone, so the encoding is fixed and versioned by shape:
//
//	<provider>_<volumeLeaf>_<id8>.img
//
// The provider tag never contains an underscore and id8 is always eight
// hex characters, so a leaf containing underscores stays unambiguous.
package naming

import (
	"fmt"
	"strings"
)

// Suffix is the canonical archive name suffix.
const Suffix = ".img"

// ArchiveName builds the archive name for one volume.
func ArchiveName(provider, leaf, id8 string) string {
	return fmt.Sprintf("%s_%s_%s%s", provider, leaf, id8, Suffix)
}

// Parsed holds the fields recovered from an archive name.
type Parsed struct {
	Provider string
	Leaf     string
	ID       string
}

// Parse decodes an archive name. It accepts the canonical ".img" suffix
// and tolerates ".fidx" so names pasted from repository file listings
// resolve too.
func Parse(name string) (Parsed, error) {
	base := name
	switch {
	case strings.HasSuffix(base, Suffix):
		base = strings.TrimSuffix(base, Suffix)
	case strings.HasSuffix(base, ".fidx"):
		base = strings.TrimSuffix(base, ".fidx")
	default:
		return Parsed{}, fmt.Errorf("archive name %q: missing %s suffix", name, Suffix)
	}

	first := strings.Index(base, "_")
	last := strings.LastIndex(base, "_")
	if first <= 0 || last <= first {
		return Parsed{}, fmt.Errorf("archive name %q: want <provider>_<volume>_<id>%s", name, Suffix)
	}
	p := Parsed{
		Provider: base[:first],
		Leaf:     base[first+1 : last],
		ID:       base[last+1:],
	}
	if p.Leaf == "" || p.ID == "" {
		return Parsed{}, fmt.Errorf("archive name %q: empty volume or id segment", name)
	}
	return p, nil
}
