package relations

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// String renders the e-print in its path form, e.g. 1234.56789v2.
func (e EPrint) String() string {
	return fmt.Sprintf("%sv%d", e.ArxivID, e.Version)
}

// SplitEPrint splits "<arxivId>v<version>" at the last 'v'. It does not
// validate the identifier.
func SplitEPrint(s string) (EPrint, error) {
	i := strings.LastIndexByte(s, 'v')
	if i <= 0 || i == len(s)-1 {
		return EPrint{}, fmt.Errorf("invalid e-print %q", s)
	}
	version, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return EPrint{}, fmt.Errorf("invalid e-print version in %q", s)
	}
	return EPrint{ArxivID: s[:i], Version: version}, nil
}

func (in RelationInput) GetResourceType() string {
	if in.ResourceType != "" {
		return in.ResourceType
	}
	return in.ResourceTypeCamel
}

func (in RelationInput) GetResourceID() string {
	if in.ResourceID != "" {
		return in.ResourceID
	}
	return in.ResourceIDCamel
}

// ETag returns a strong entity tag for a response body.
func ETag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxh3.Hash(body))
}
