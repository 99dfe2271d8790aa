package domain

import dErrors "petregistry/pkg/domain-errors"

// OriginSource names the subsystem that first authored an animal.
// Construct via ParseOriginSource at trust boundaries.
type OriginSource string

const (
	OriginDirect   OriginSource = "direct"
	OriginShop     OriginSource = "shop"
	OriginAdoption OriginSource = "adoption"
)

var originLabels = map[OriginSource]string{
	OriginDirect:   "User Added",
	OriginShop:     "Pet Shop",
	OriginAdoption: "Adoption Center",
}

// ParseOriginSource validates an origin from external input.
func ParseOriginSource(s string) (OriginSource, error) {
	o := OriginSource(s)
	if _, ok := originLabels[o]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "origin must be one of direct, shop, adoption")
	}
	return o, nil
}

func (o OriginSource) IsValid() bool {
	_, ok := originLabels[o]
	return ok
}

// Label is the human-readable source name shown to staff.
func (o OriginSource) Label() string {
	return originLabels[o]
}

func (o OriginSource) String() string { return string(o) }
