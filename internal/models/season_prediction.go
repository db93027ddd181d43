package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SeasonPrediction is a user's once-per-season guess at championship outcomes.
// Every pick is optional; nil means the user left it blank.
type SeasonPrediction struct {
	UserID     uuid.UUID `json:"-" db:"user_id"`
	SeasonYear int       `json:"season_year" db:"season_year"`

	// Constructors' championship top three, by team name
	Constructors1st *string `json:"constructors_1st" db:"constructors_1st"`
	Constructors2nd *string `json:"constructors_2nd" db:"constructors_2nd"`
	Constructors3rd *string `json:"constructors_3rd" db:"constructors_3rd"`

	FastestPitstopTeam *string `json:"fastest_pitstop_team" db:"fastest_pitstop_team"`

	// Drivers' championship top three, by driver number
	Drivers1st *int `json:"drivers_1st" db:"drivers_1st"`
	Drivers2nd *int `json:"drivers_2nd" db:"drivers_2nd"`
	Drivers3rd *int `json:"drivers_3rd" db:"drivers_3rd"`

	MostDNFsDriver        *int `json:"most_dnfs_driver" db:"most_dnfs_driver"`
	FewestDNFsDriver      *int `json:"fewest_dnfs_driver" db:"fewest_dnfs_driver"`
	SafetyCarCount        *int `json:"safety_car_count" db:"safety_car_count"`
	MostOvertakesDriver   *int `json:"most_overtakes_driver" db:"most_overtakes_driver"`
	FewestOvertakesDriver *int `json:"fewest_overtakes_driver" db:"fewest_overtakes_driver"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SeasonPredictionInput is the body of a season prediction submission
type SeasonPredictionInput struct {
	ConstructorsFirst  string `json:"constructors_first"`
	ConstructorsSecond string `json:"constructors_second"`
	ConstructorsThird  string `json:"constructors_third"`
	FastestPitstopTeam string `json:"fastest_pitstop_team"`

	DriversFirst    *int `json:"drivers_first"`
	DriversSecond   *int `json:"drivers_second"`
	DriversThird    *int `json:"drivers_third"`
	MostDNFs        *int `json:"most_dnfs"`
	FewestDNFs      *int `json:"fewest_dnfs"`
	SafetyCarCount  *int `json:"safety_car_count"`
	MostOvertakes   *int `json:"most_overtakes"`
	FewestOvertakes *int `json:"fewest_overtakes"`
}

// ToSeasonPrediction validates the input and builds the user's prediction for a season.
// Blank team names become nil. Podium picks must not repeat and driver numbers must be positive.
func (in *SeasonPredictionInput) ToSeasonPrediction(userID uuid.UUID, year int) (*SeasonPrediction, error) {
	if year <= 0 {
		return nil, fmt.Errorf("%w: season_year must be positive", ErrInvalidPrediction)
	}

	constructors := []*string{team(in.ConstructorsFirst), team(in.ConstructorsSecond), team(in.ConstructorsThird)}
	seenTeams := make(map[string]bool)
	for _, c := range constructors {
		if c == nil {
			continue
		}
		key := strings.ToLower(*c)
		if seenTeams[key] {
			return nil, fmt.Errorf("%w: constructor %q picked twice", ErrInvalidPrediction, *c)
		}
		seenTeams[key] = true
	}

	podium := []*int{in.DriversFirst, in.DriversSecond, in.DriversThird}
	seenDrivers := make(map[int]bool)
	for _, d := range podium {
		if d == nil {
			continue
		}
		if seenDrivers[*d] {
			return nil, fmt.Errorf("%w: driver %d picked twice", ErrInvalidPrediction, *d)
		}
		seenDrivers[*d] = true
	}

	for _, d := range append(podium, in.MostDNFs, in.FewestDNFs, in.MostOvertakes, in.FewestOvertakes) {
		if d != nil && *d <= 0 {
			return nil, fmt.Errorf("%w: driver numbers must be positive, got %d", ErrInvalidPrediction, *d)
		}
	}
	if in.SafetyCarCount != nil && *in.SafetyCarCount < 0 {
		return nil, fmt.Errorf("%w: safety_car_count cannot be negative", ErrInvalidPrediction)
	}

	return &SeasonPrediction{
		UserID:                userID,
		SeasonYear:            year,
		Constructors1st:       constructors[0],
		Constructors2nd:       constructors[1],
		Constructors3rd:       constructors[2],
		FastestPitstopTeam:    team(in.FastestPitstopTeam),
		Drivers1st:            in.DriversFirst,
		Drivers2nd:            in.DriversSecond,
		Drivers3rd:            in.DriversThird,
		MostDNFsDriver:        in.MostDNFs,
		FewestDNFsDriver:      in.FewestDNFs,
		SafetyCarCount:        in.SafetyCarCount,
		MostOvertakesDriver:   in.MostOvertakes,
		FewestOvertakesDriver: in.FewestOvertakes,
	}, nil
}

func team(name string) *string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return &name
}
