package types

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
)

// Description is a textual description of a disturbance at a point in time.
// The (DisturbanceID, Text, CreatedAt) triple identifies it.
type Description struct {
	DisturbanceID string
	Text          string
	CreatedAt     time.Time
}

func getDescriptionsWithSelect(node sqalx.Node, sbuilder sq.SelectBuilder) ([]*Description, error) {
	descriptions := []*Description{}

	tx, err := node.Beginx()
	if err != nil {
		return descriptions, err
	}
	defer tx.Commit() // read-only tx

	rows, err := sbuilder.Columns("disturbance_id", "text", "created_at").
		From("wl_disturbance_description").
		OrderBy("created_at ASC").
		RunWith(tx).Query()
	if err != nil {
		return descriptions, fmt.Errorf("getDescriptionsWithSelect: %s", err)
	}
	defer rows.Close()

	for rows.Next() {
		var description Description
		err := rows.Scan(
			&description.DisturbanceID,
			&description.Text,
			&description.CreatedAt)
		if err != nil {
			return descriptions, fmt.Errorf("getDescriptionsWithSelect: %s", err)
		}
		descriptions = append(descriptions, &description)
	}
	if err := rows.Err(); err != nil {
		return descriptions, fmt.Errorf("getDescriptionsWithSelect: %s", err)
	}
	return descriptions, nil
}

// Update stores the description. Descriptions are immutable, so storing an
// already existing description is a no-op.
func (description *Description) Update(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sdb.Insert("wl_disturbance_description").
		Columns("disturbance_id", "text", "created_at").
		Values(description.DisturbanceID, description.Text, description.CreatedAt).
		Suffix("ON CONFLICT (disturbance_id, text, created_at) DO NOTHING").
		RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("UpdateDescription: %s", err)
	}
	return tx.Commit()
}
