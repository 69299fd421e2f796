package types

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
	"github.com/lib/pq"
	"github.com/underlx/disturbancesvie/utils"
)

// Disturbance represents a service disturbance affecting one or more lines
type Disturbance struct {
	ID           string
	Title        string
	Type         DisturbanceType
	StartTime    time.Time
	EndTime      time.Time
	Ended        bool
	Descriptions []*Description
	Lines        []*Line
}

// DisturbanceType categorizes a disturbance according to its title
type DisturbanceType string

const (
	// DelayDisturbance corresponds to titles mentioning delays
	DelayDisturbance DisturbanceType = "DELAY"
	// AccidentDisturbance corresponds to titles mentioning accidents
	AccidentDisturbance DisturbanceType = "ACCIDENT"
	// EmergencyDisturbance corresponds to police, ambulance or fire brigade operations
	EmergencyDisturbance DisturbanceType = "EMERGENCY"
	// VehicleDefectDisturbance corresponds to defective vehicles
	VehicleDefectDisturbance DisturbanceType = "VEHICLE_DEFECT"
	// ObstructionDisturbance corresponds to blocked tracks or roads (e.g. wrongly parked cars)
	ObstructionDisturbance DisturbanceType = "OBSTRUCTION"
	// WeatherDisturbance corresponds to weather-related disturbances
	WeatherDisturbance DisturbanceType = "WEATHER"
	// ConstructionDisturbance corresponds to construction works
	ConstructionDisturbance DisturbanceType = "CONSTRUCTION"
	// DiversionDisturbance corresponds to diversions
	DiversionDisturbance DisturbanceType = "DIVERSION"
	// InterruptionDisturbance corresponds to interrupted or shortened service
	InterruptionDisturbance DisturbanceType = "INTERRUPTION"
	// OtherDisturbance is used when no rule matches the title
	OtherDisturbance DisturbanceType = "OTHER"
)

// first match wins, keywords are compared against the folded title
var disturbanceTypeRules = []struct {
	Type     DisturbanceType
	Keywords []string
}{
	{DelayDisturbance, []string{"verspätung", "verzögerung"}},
	{AccidentDisturbance, []string{"unfall"}},
	{EmergencyDisturbance, []string{"polizei", "rettung", "feuerwehr"}},
	{VehicleDefectDisturbance, []string{"schadhaft", "fahrzeugschaden"}},
	{ObstructionDisturbance, []string{"fahrtbehinderung", "falschparker", "blockiert"}},
	{WeatherDisturbance, []string{"witterung", "unwetter", "sturm", "schnee"}},
	{ConstructionDisturbance, []string{"bauarbeiten", "baustelle"}},
	{DiversionDisturbance, []string{"umleitung"}},
	{InterruptionDisturbance, []string{"unterbrechung", "eingestellt", "kurzführung"}},
}

// ClassifyDisturbance returns the DisturbanceType for a disturbance title
func ClassifyDisturbance(title string) DisturbanceType {
	folded := utils.FoldText(title)
	for _, rule := range disturbanceTypeRules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(folded, utils.FoldText(keyword)) {
				return rule.Type
			}
		}
	}
	return OtherDisturbance
}

// GetOngoingDisturbances returns a slice with all ongoing disturbances
func GetOngoingDisturbances(node sqalx.Node) ([]*Disturbance, error) {
	s := sdb.Select().
		Where("time_end IS NULL").
		OrderBy("time_start ASC")
	return getDisturbancesWithSelect(node, s)
}

// getDisturbancesWithSelect returns a slice with all disturbances that match the conditions in sbuilder
func getDisturbancesWithSelect(node sqalx.Node, sbuilder sq.SelectBuilder) ([]*Disturbance, error) {
	disturbances := []*Disturbance{}

	tx, err := node.Beginx()
	if err != nil {
		return disturbances, err
	}
	defer tx.Commit() // read-only tx

	rows, err := sbuilder.Columns("wl_disturbance.id", "wl_disturbance.title", "wl_disturbance.type",
		"wl_disturbance.time_start", "wl_disturbance.time_end").
		From("wl_disturbance").
		RunWith(tx).Query()
	if err != nil {
		return disturbances, fmt.Errorf("getDisturbancesWithSelect: %s", err)
	}

	for rows.Next() {
		var disturbance Disturbance
		var timeEnd pq.NullTime
		err := rows.Scan(
			&disturbance.ID,
			&disturbance.Title,
			&disturbance.Type,
			&disturbance.StartTime,
			&timeEnd)
		if err != nil {
			rows.Close()
			return disturbances, fmt.Errorf("getDisturbancesWithSelect: %s", err)
		}
		disturbance.EndTime = timeEnd.Time
		disturbance.Ended = timeEnd.Valid

		disturbances = append(disturbances, &disturbance)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return disturbances, fmt.Errorf("getDisturbancesWithSelect: %s", err)
	}
	rows.Close()

	for i := range disturbances {
		disturbances[i].Lines, err = getLinesWithSelect(tx, sdb.Select().
			Join("wl_disturbance_line ON wl_disturbance_line.line_id = wl_line.id").
			Where(sq.Eq{"wl_disturbance_line.disturbance_id": disturbances[i].ID}).
			OrderBy("wl_disturbance_line.position ASC"))
		if err != nil {
			return disturbances, fmt.Errorf("getDisturbancesWithSelect: %s", err)
		}

		disturbances[i].Descriptions, err = getDescriptionsWithSelect(tx, sdb.Select().
			Where(sq.Eq{"disturbance_id": disturbances[i].ID}))
		if err != nil {
			return disturbances, fmt.Errorf("getDisturbancesWithSelect: %s", err)
		}
	}
	return disturbances, nil
}

// GetDisturbance returns the Disturbance with the given ID, be it ongoing or not
func GetDisturbance(node sqalx.Node, id string) (*Disturbance, error) {
	s := sdb.Select().
		Where(sq.Eq{"id": id})
	disturbances, err := getDisturbancesWithSelect(node, s)
	if err != nil {
		return nil, err
	}
	if len(disturbances) == 0 {
		return nil, fmt.Errorf("GetDisturbance: disturbance %s %w", id, ErrNotFound)
	}
	return disturbances[0], nil
}

// LatestDescription returns the most recent description of this disturbance,
// or nil if it has none
func (disturbance *Disturbance) LatestDescription() *Description {
	if len(disturbance.Descriptions) == 0 {
		return nil
	}
	return disturbance.Descriptions[len(disturbance.Descriptions)-1]
}

// LineIDs returns the IDs of the lines affected by this disturbance
func (disturbance *Disturbance) LineIDs() []string {
	ids := make([]string, len(disturbance.Lines))
	for i, line := range disturbance.Lines {
		ids[i] = line.ID
	}
	return ids
}

// Snapshot returns a deep copy of this disturbance
func (disturbance *Disturbance) Snapshot() *Disturbance {
	c := *disturbance
	c.Lines = make([]*Line, len(disturbance.Lines))
	for i, line := range disturbance.Lines {
		l := *line
		c.Lines[i] = &l
	}
	c.Descriptions = make([]*Description, len(disturbance.Descriptions))
	for i, description := range disturbance.Descriptions {
		d := *description
		c.Descriptions[i] = &d
	}
	return &c
}

// Update adds or updates the disturbance, its affected lines and its descriptions
func (disturbance *Disturbance) Update(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	timeEnd := pq.NullTime{
		Time:  disturbance.EndTime,
		Valid: disturbance.Ended,
	}

	_, err = sdb.Insert("wl_disturbance").
		Columns("id", "title", "type", "time_start", "time_end").
		Values(disturbance.ID, disturbance.Title, disturbance.Type, disturbance.StartTime, timeEnd).
		Suffix("ON CONFLICT (id) DO UPDATE SET title = ?, type = ?, time_start = ?, time_end = ?",
			disturbance.Title, disturbance.Type, disturbance.StartTime, timeEnd).
		RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("UpdateDisturbance: %s", err)
	}

	_, err = sdb.Delete("wl_disturbance_line").
		Where(sq.Eq{"disturbance_id": disturbance.ID}).RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("UpdateDisturbance: %s", err)
	}

	for i, line := range disturbance.Lines {
		_, err = sdb.Insert("wl_disturbance_line").
			Columns("disturbance_id", "line_id", "position").
			Values(disturbance.ID, line.ID, i).
			RunWith(tx).Exec()
		if err != nil {
			return fmt.Errorf("UpdateDisturbance: %s", err)
		}
	}

	for _, description := range disturbance.Descriptions {
		err = description.Update(tx)
		if err != nil {
			return fmt.Errorf("UpdateDisturbance: %s", err)
		}
	}
	return tx.Commit()
}
