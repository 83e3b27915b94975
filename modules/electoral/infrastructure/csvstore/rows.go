package csvstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type geoNodeRow struct {
	ID             int64  `validate:"gt=0"`
	JurisdictionID int64  `validate:"gt=0"`
	Name           string `validate:"max=255"`
	Code           string `validate:"max=64"`
	Level          string `validate:"required,oneof=DISTRICT SUBREGION SUBNATIONAL REGION JURISDICTION_GENERAL"`
	ParentID       *int64 `validate:"omitempty,gt=0"`
}

type voteRow struct {
	GeoNodeID       int64  `validate:"gt=0"`
	ElectionID      int64  `validate:"gt=0"`
	RepOrder        int    `validate:"gte=0"`
	PartyCode       string `validate:"required,max=32"`
	Votes           int64  `validate:"gte=0"`
	IsWinner        bool
	IsIncumbent     bool
	TotalVotes      int64 `validate:"gte=0"`
	EligibleVoters  int64 `validate:"gte=0"`
	RejectedBallots int64 `validate:"gte=0"`
}

type estimateRow struct {
	GeoNodeID int64   `validate:"gt=0"`
	PartyCode string  `validate:"required,max=32"`
	Mean      float64 `validate:"gte=0,lte=1"`
	StdDev    float64 `validate:"gte=0"`
}

type demographicRow struct {
	GeoNodeID        int64  `validate:"gt=0"`
	CharacteristicID string `validate:"required,max=64"`
	Count            int64  `validate:"gte=0,ltefield=Universe"`
	Universe         int64  `validate:"gte=0"`
}

// validateRow reports the first failing field by its CSV column name.
func validateRow(row any, columns map[string]string) error {
	err := validate.Struct(row)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	col, ok := columns[fe.Field()]
	if !ok {
		col = fe.Field()
	}
	if fe.Param() != "" {
		return fmt.Errorf("%s: failed %s=%s (value %v)", col, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%s: failed %s (value %v)", col, fe.Tag(), fe.Value())
}

type fieldParser struct {
	get func(string) string
	err error
}

func (p *fieldParser) int64(col string, required bool) int64 {
	raw := p.get(col)
	if p.err != nil || (raw == "" && !required) {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: invalid integer %q", col, raw)
	}
	return v
}

func (p *fieldParser) optionalInt64(col string) *int64 {
	if p.get(col) == "" {
		return nil
	}
	v := p.int64(col, true)
	return &v
}

func (p *fieldParser) float(col string) float64 {
	raw := p.get(col)
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: invalid number %q", col, raw)
	}
	return v
}

func (p *fieldParser) bool(col string) bool {
	raw := strings.ToLower(p.get(col))
	if p.err != nil {
		return false
	}
	switch raw {
	case "", "0", "false", "f", "no", "n":
		return false
	case "1", "true", "t", "yes", "y":
		return true
	}
	p.err = fmt.Errorf("%s: invalid boolean %q", col, raw)
	return false
}
