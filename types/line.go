package types

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
)

// Line is a transit line referenced by the disturbance feed
type Line struct {
	ID   string
	Name string
	Type LineType
}

// LineType is the transit mode of a Line
type LineType string

const (
	// MetroLine is an underground (U-Bahn) line
	MetroLine LineType = "METRO"
	// TramLine is a tram (Straßenbahn) line
	TramLine LineType = "TRAM"
	// BusLine is a city bus line
	BusLine LineType = "BUS"
	// NightBusLine is a night bus (NightLine) line
	NightBusLine LineType = "NIGHTBUS"
	// RegionalBusLine is a regional bus line
	RegionalBusLine LineType = "REGIONALBUS"
	// TrainLine is a suburban train (S-Bahn) or regional train line
	TrainLine LineType = "TRAIN"
	// UnknownLine is used when the feed type string is not recognized
	UnknownLine LineType = "UNKNOWN"
)

// ClassifyLineType returns the LineType corresponding to a feed line type string
// such as "ptMetro" or "ptBusNight"
func ClassifyLineType(typeString string) LineType {
	switch strings.ToLower(strings.TrimSpace(typeString)) {
	case "ptmetro":
		return MetroLine
	case "pttram", "pttramwlb":
		return TramLine
	case "ptbuscity":
		return BusLine
	case "ptbusnight":
		return NightBusLine
	case "ptbusregion":
		return RegionalBusLine
	case "pttrains", "pttrain", "pttrainr":
		return TrainLine
	}
	return UnknownLine
}

func getLinesWithSelect(node sqalx.Node, sbuilder sq.SelectBuilder) ([]*Line, error) {
	lines := []*Line{}

	tx, err := node.Beginx()
	if err != nil {
		return lines, err
	}
	defer tx.Commit() // read-only tx

	rows, err := sbuilder.Columns("wl_line.id", "wl_line.name", "wl_line.type").
		From("wl_line").
		RunWith(tx).Query()
	if err != nil {
		return lines, fmt.Errorf("getLinesWithSelect: %s", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line Line
		err := rows.Scan(
			&line.ID,
			&line.Name,
			&line.Type)
		if err != nil {
			return lines, fmt.Errorf("getLinesWithSelect: %s", err)
		}
		lines = append(lines, &line)
	}
	if err := rows.Err(); err != nil {
		return lines, fmt.Errorf("getLinesWithSelect: %s", err)
	}
	return lines, nil
}

// FindOrCreateLine returns the Line with the given code, creating it if it does
// not exist yet. New lines use the code as a placeholder display name.
func FindOrCreateLine(node sqalx.Node, code string, typeString string) (*Line, error) {
	tx, err := node.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	lines, err := getLinesWithSelect(tx, sdb.Select().Where(sq.Eq{"id": code}))
	if err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		return lines[0], tx.Commit()
	}

	line := &Line{
		ID:   code,
		Name: code,
		Type: ClassifyLineType(typeString),
	}
	err = line.Update(tx)
	if err != nil {
		return nil, err
	}
	return line, tx.Commit()
}

// Update adds or updates the line
func (line *Line) Update(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Insert("wl_line").
		Columns("id", "name", "type").
		Values(line.ID, line.Name, line.Type).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = ?, type = ?",
			line.Name, line.Type).
		RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("UpdateLine: %s", err)
	}
	return tx.Commit()
}
