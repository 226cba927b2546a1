package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/firefly-engineering/hearth/internal/errors"
)

const serverColumns = `id, organization_id, name, game_key, status, container_id,
	memory_mib, cpu_shares, created_by, created_at, updated_at`

// CreateServer inserts a server in CREATING state. An empty ID is assigned.
func (s *Store) CreateServer(ctx context.Context, srv *Server) error {
	if srv.ID == "" {
		srv.ID = uuid.NewString()
	}
	if srv.Status == "" {
		srv.Status = ServerCreating
	}
	now := s.timestamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (`+serverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		srv.ID, srv.OrganizationID, srv.Name, srv.GameKey, srv.Status, srv.ContainerID,
		srv.MemoryMiB, srv.CPUShares, srv.CreatedBy, now, now,
	)
	if err != nil {
		return errors.LedgerError("insert server", err)
	}
	srv.CreatedAt = parseTime(now)
	srv.UpdatedAt = srv.CreatedAt
	return nil
}

// GetServer returns the server with its port mappings.
func (s *Store) GetServer(ctx context.Context, id string) (*Server, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	srv, err := scanServer(row)
	if err == sql.ErrNoRows {
		return nil, errors.ServerNotFound(id)
	}
	if err != nil {
		return nil, errors.LedgerError("query server", err)
	}

	ports, err := s.portsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	srv.Ports = ports
	return srv, nil
}

// ListServers returns every server ordered by creation time.
func (s *Store) ListServers(ctx context.Context) ([]*Server, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.LedgerError("list servers", err)
	}
	var servers []*Server
	byID := make(map[string]*Server)
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			rows.Close()
			return nil, errors.LedgerError("scan server", err)
		}
		srv.Ports = []PortMapping{}
		servers = append(servers, srv)
		byID[srv.ID] = srv
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.LedgerError("list servers", err)
	}
	rows.Close()

	prows, err := s.db.QueryContext(ctx, `
		SELECT server_id, container_port, host_port, protocol
		FROM server_ports ORDER BY server_id, position`)
	if err != nil {
		return nil, errors.LedgerError("list ports", err)
	}
	defer prows.Close()
	for prows.Next() {
		var serverID string
		var pm PortMapping
		if err := prows.Scan(&serverID, &pm.ContainerPort, &pm.HostPort, &pm.Protocol); err != nil {
			return nil, errors.LedgerError("scan port", err)
		}
		if srv, ok := byID[serverID]; ok {
			srv.Ports = append(srv.Ports, pm)
		}
	}
	return servers, prows.Err()
}

// SetServerStatus updates a server's status.
func (s *Store) SetServerStatus(ctx context.Context, id string, status ServerStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE servers SET status = ?, updated_at = ? WHERE id = ?`,
		status, s.timestamp(), id)
	if err != nil {
		return errors.LedgerError("update server status", err)
	}
	return requireRow(res, errors.ServerNotFound(id))
}

// SetServerContainer records the outcome of a successful CREATE: the
// container reference, the port mappings in order, and the new status.
func (s *Store) SetServerContainer(ctx context.Context, id, containerID string, ports []PortMapping, status ServerStatus) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE servers SET container_id = ?, status = ?, updated_at = ? WHERE id = ?`,
			containerID, status, s.timestamp(), id)
		if err != nil {
			return err
		}
		if err := requireRow(res, errors.ServerNotFound(id)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM server_ports WHERE server_id = ?`, id); err != nil {
			return err
		}
		for i, p := range ports {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO server_ports (server_id, position, container_port, host_port, protocol)
				VALUES (?, ?, ?, ?, ?)`,
				id, i, p.ContainerPort, p.HostPort, p.Protocol); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return err
		}
		return errors.LedgerError("update server container", err)
	}
	return nil
}

// DeleteServer removes the server and everything it owns, jobs included.
// Deleting a missing server is not an error.
func (s *Store) DeleteServer(ctx context.Context, id string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// jobs carry no foreign key so they can be enqueued for any id;
		// the cascade is done here.
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE server_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return errors.LedgerError("delete server", err)
	}
	return nil
}

// UsedHostPorts returns the union of host ports across every server's
// persisted port mappings.
func (s *Store) UsedHostPorts(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT host_port FROM server_ports`)
	if err != nil {
		return nil, errors.LedgerError("query host ports", err)
	}
	defer rows.Close()

	used := make(map[int]bool)
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, errors.LedgerError("scan host port", err)
		}
		used[p] = true
	}
	return used, rows.Err()
}

// HostPortInUse reports whether any server's persisted mappings hold port.
func (s *Store) HostPortInUse(ctx context.Context, port int) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM server_ports WHERE host_port = ?`, port).Scan(&n)
	if err != nil {
		return false, errors.LedgerError("query host port", err)
	}
	return n > 0, nil
}

func (s *Store) portsFor(ctx context.Context, serverID string) ([]PortMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT container_port, host_port, protocol
		FROM server_ports WHERE server_id = ? ORDER BY position`, serverID)
	if err != nil {
		return nil, errors.LedgerError("query ports", err)
	}
	defer rows.Close()

	ports := []PortMapping{}
	for rows.Next() {
		var pm PortMapping
		if err := rows.Scan(&pm.ContainerPort, &pm.HostPort, &pm.Protocol); err != nil {
			return nil, errors.LedgerError("scan port", err)
		}
		ports = append(ports, pm)
	}
	return ports, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (*Server, error) {
	var srv Server
	var created, updated string
	err := row.Scan(
		&srv.ID, &srv.OrganizationID, &srv.Name, &srv.GameKey, &srv.Status, &srv.ContainerID,
		&srv.MemoryMiB, &srv.CPUShares, &srv.CreatedBy, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	srv.CreatedAt = parseTime(created)
	srv.UpdatedAt = parseTime(updated)
	return &srv, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
