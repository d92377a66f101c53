package entity

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleContractor Role = "CONTRACTOR"
	RoleArtist     Role = "ARTIST"
)

type Criterion string

const (
	CriterionPunctuality     Criterion = "punctuality"
	CriterionPerformance     Criterion = "performance"
	CriterionProfessionalism Criterion = "professionalism"
	CriterionCommunication   Criterion = "communication"
	CriterionPayment         Criterion = "payment"
	CriterionVenue           Criterion = "venue"
)

// reviewCriteria holds what a reviewer of the given role rates about the
// other party.
var reviewCriteria = map[Role][]Criterion{
	RoleContractor: {CriterionPunctuality, CriterionPerformance, CriterionProfessionalism},
	RoleArtist:     {CriterionCommunication, CriterionPayment, CriterionVenue},
}

var roleLabels = map[Role]string{
	RoleContractor: "Contractor",
	RoleArtist:     "Artist",
}

func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return string(r)
}

func (r Role) Counterpart() Role {
	if r == RoleArtist {
		return RoleContractor
	}
	return RoleArtist
}

func (r Role) ReviewCriteria() []Criterion {
	criteria := reviewCriteria[r]
	out := make([]Criterion, len(criteria))
	copy(out, criteria)
	return out
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
