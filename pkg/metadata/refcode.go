package metadata

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type AssetRef struct {
	prefix   string
	category string
	sequence int
}

const DefaultRefPrefix string = "CL"

func NewAssetRef(prefix, categoryCode string, sequence int) AssetRef {
	if prefix == "" {
		prefix = DefaultRefPrefix
	}

	return AssetRef{
		prefix:   strings.ToUpper(prefix),
		category: strings.ToUpper(categoryCode),
		sequence: sequence,
	}
}

func (r AssetRef) String() string {
	return fmt.Sprintf("%s-%s-%05d", r.prefix, r.category, r.sequence)
}

// RefPattern matches references of one prefix/category pair and captures
// the sequence number. Used with Postgres regular expressions as well.
func RefPattern(prefix, categoryCode string) string {
	return fmt.Sprintf("^%s-%s-(\\d+)$",
		regexp.QuoteMeta(strings.ToUpper(prefix)),
		regexp.QuoteMeta(strings.ToUpper(categoryCode)),
	)
}

type PONumber struct {
	year     int
	sequence int
}

func NewPONumber(at time.Time, sequence int) PONumber {
	return PONumber{year: at.Year(), sequence: sequence}
}

func (p PONumber) String() string {
	return fmt.Sprintf("PO-%d-%04d", p.year, p.sequence)
}

func PONumberPattern(year int) string {
	return fmt.Sprintf("^PO-%d-(\\d+)$", year)
}
