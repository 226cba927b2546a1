package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/firefly-engineering/hearth/internal/errors"
)

// ReservePort claims hostPort for serverID in the reservation table. It
// returns false when another server already holds the port. A server
// re-reserving its own port succeeds.
func (s *Store) ReservePort(ctx context.Context, serverID string, hostPort int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO port_reservations (host_port, server_id, reserved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(host_port) DO UPDATE SET reserved_at = excluded.reserved_at
		WHERE port_reservations.server_id = excluded.server_id`,
		hostPort, serverID, s.timestamp())
	if err != nil {
		return false, errors.LedgerError("reserve port", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.LedgerError("reserve port", err)
	}
	return n > 0, nil
}

// ReleasePort drops serverID's reservation of hostPort, if it holds one.
func (s *Store) ReleasePort(ctx context.Context, serverID string, hostPort int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM port_reservations WHERE host_port = ? AND server_id = ?`,
		hostPort, serverID)
	if err != nil {
		return errors.LedgerError("release port", err)
	}
	return nil
}

// ReleaseReservations drops every reservation held by serverID except the
// ports in keep.
func (s *Store) ReleaseReservations(ctx context.Context, serverID string, keep []int) error {
	query := `DELETE FROM port_reservations WHERE server_id = ?`
	args := []any{serverID}
	if len(keep) > 0 {
		query += fmt.Sprintf(` AND host_port NOT IN (%s)`, strings.TrimSuffix(strings.Repeat("?,", len(keep)), ","))
		for _, p := range keep {
			args = append(args, p)
		}
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.LedgerError("release reservations", err)
	}
	return nil
}

// Reservation is a row of the port reservation table.
type Reservation struct {
	HostPort int
	ServerID string
}

// PortReservation returns who holds hostPort, or nil if nobody does.
func (s *Store) PortReservation(ctx context.Context, hostPort int) (*Reservation, error) {
	var r Reservation
	err := s.db.QueryRowContext(ctx,
		`SELECT host_port, server_id FROM port_reservations WHERE host_port = ?`, hostPort).
		Scan(&r.HostPort, &r.ServerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.LedgerError("query reservation", err)
	}
	return &r, nil
}
