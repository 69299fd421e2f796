package types

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/gbl08ma/sqalx"
)

// GetDeviceTokensForLines returns the distinct tokens of the devices subscribed
// to at least one of the specified lines
func GetDeviceTokensForLines(node sqalx.Node, lineIDs []string) ([]string, error) {
	tokens := []string{}
	if len(lineIDs) == 0 {
		return tokens, nil
	}

	tx, err := node.Beginx()
	if err != nil {
		return tokens, err
	}
	defer tx.Commit() // read-only tx

	rows, err := sdb.Select("wl_device.token").
		Distinct().
		From("wl_device").
		Join("wl_subscription ON wl_subscription.device_id = wl_device.id").
		Where(sq.Eq{"wl_subscription.line_id": lineIDs}).
		OrderBy("wl_device.token ASC").
		RunWith(tx).Query()
	if err != nil {
		return tokens, fmt.Errorf("GetDeviceTokensForLines: %s", err)
	}
	defer rows.Close()

	for rows.Next() {
		var token string
		err := rows.Scan(&token)
		if err != nil {
			return tokens, fmt.Errorf("GetDeviceTokensForLines: %s", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return tokens, fmt.Errorf("GetDeviceTokensForLines: %s", err)
	}
	return tokens, nil
}

// DeleteDeviceWithToken deletes the device with the given token along with its
// subscriptions. Deleting a device that does not exist is not an error.
func DeleteDeviceWithToken(node sqalx.Node, token string) error {
	tx, err := node.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// subscriptions cascade
	_, err = sdb.Delete("wl_device").
		Where(sq.Eq{"token": token}).RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("DeleteDeviceWithToken: %s", err)
	}
	return tx.Commit()
}
