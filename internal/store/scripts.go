package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/firefly-engineering/hearth/internal/errors"
)

// SaveCustomScript inserts or replaces the server's custom script. The
// content is stored as given; validation happens before this call.
func (s *Store) SaveCustomScript(ctx context.Context, cs *CustomScript) error {
	ports := cs.Ports
	if ports == nil {
		ports = []PortSpec{}
	}
	env := cs.Env
	if env == nil {
		env = map[string]string{}
	}
	portsJSON, err := json.Marshal(ports)
	if err != nil {
		return errors.Wrap(errors.ExitGeneralError, "failed to encode script ports", err)
	}
	envJSON, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(errors.ExitGeneralError, "failed to encode script env", err)
	}

	now := s.timestamp()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO custom_scripts (server_id, content, hash, ports, env, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET
			content = excluded.content,
			hash = excluded.hash,
			ports = excluded.ports,
			env = excluded.env,
			updated_at = excluded.updated_at`,
		cs.ServerID, cs.Content, cs.Hash, string(portsJSON), string(envJSON), now,
	)
	if err != nil {
		return errors.LedgerError("save custom script", err)
	}
	cs.UpdatedAt = parseTime(now)
	return nil
}

// GetCustomScript returns the server's custom script, or nil if none has
// been saved.
func (s *Store) GetCustomScript(ctx context.Context, serverID string) (*CustomScript, error) {
	var cs CustomScript
	var portsJSON, envJSON, updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT server_id, content, hash, ports, env, updated_at
		FROM custom_scripts WHERE server_id = ?`, serverID).
		Scan(&cs.ServerID, &cs.Content, &cs.Hash, &portsJSON, &envJSON, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.LedgerError("query custom script", err)
	}
	if err := json.Unmarshal([]byte(portsJSON), &cs.Ports); err != nil {
		return nil, errors.LedgerError("decode script ports", err)
	}
	if err := json.Unmarshal([]byte(envJSON), &cs.Env); err != nil {
		return nil, errors.LedgerError("decode script env", err)
	}
	cs.UpdatedAt = parseTime(updated)
	return &cs, nil
}
