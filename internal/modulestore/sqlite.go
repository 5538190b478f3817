package modulestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashgrove-media/mediafleet/internal/infrastructure/database"
)

// SQLite implements Store on top of the mediafleet SQLite database.
//
// Module rows carry identity and the disabled flag; instance rows carry a
// JSON settings object keyed by (module_id, instance_id).
type SQLite struct {
	db *database.DB
}

// NewSQLite creates a store backed by the given database.
func NewSQLite(db *database.DB) *SQLite {
	return &SQLite{db: db}
}

// Modules returns all installed modules with their instance IDs, ordered by
// module ID. Modules without instance rows are reported as singletons.
func (s *SQLite) Modules(ctx context.Context, includeDisabled bool) ([]Module, error) {
	query := "SELECT id, name, icon, thumb, disabled FROM modules"
	if !includeDisabled {
		query += " WHERE disabled = 0"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying modules: %w", err)
	}
	defer rows.Close()

	var modules []Module
	index := make(map[string]int)
	for rows.Next() {
		var m Module
		var disabled int
		if err := rows.Scan(&m.ID, &m.Name, &m.Icon, &m.Thumb, &disabled); err != nil {
			return nil, fmt.Errorf("scanning module row: %w", err)
		}
		m.Disabled = disabled != int(NotDisabled)
		index[m.ID] = len(modules)
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating modules: %w", err)
	}

	instRows, err := s.db.QueryContext(ctx,
		"SELECT module_id, instance_id FROM module_instances ORDER BY module_id, instance_id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying module instances: %w", err)
	}
	defer instRows.Close()

	for instRows.Next() {
		var moduleID string
		var instanceID InstanceID
		if err := instRows.Scan(&moduleID, &instanceID); err != nil {
			return nil, fmt.Errorf("scanning instance row: %w", err)
		}
		if i, ok := index[moduleID]; ok {
			modules[i].InstanceIDs = append(modules[i].InstanceIDs, instanceID)
		}
	}
	if err := instRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instances: %w", err)
	}

	// A module with no configured instances is a singleton.
	for i := range modules {
		if len(modules[i].InstanceIDs) == 0 {
			modules[i].InstanceIDs = []InstanceID{SingletonInstanceID}
		}
	}

	return modules, nil
}

// IsDisabled reports whether the module is disabled.
func (s *SQLite) IsDisabled(ctx context.Context, moduleID string) (bool, error) {
	var disabled int
	err := s.db.QueryRowContext(ctx,
		"SELECT disabled FROM modules WHERE id = ?", moduleID,
	).Scan(&disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	if err != nil {
		return false, fmt.Errorf("querying disabled flag: %w", err)
	}
	return disabled != int(NotDisabled), nil
}

// Disable marks the module disabled with the given reason.
func (s *SQLite) Disable(ctx context.Context, moduleID string, reason DisabledReason) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE modules SET disabled = ?, updated_at = ? WHERE id = ?",
		int(reason), now(), moduleID,
	)
	if err != nil {
		return fmt.Errorf("disabling module: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // SQLite supports RowsAffected
		return fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	return nil
}

// Enable clears the disabled flag.
func (s *SQLite) Enable(ctx context.Context, moduleID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE modules SET disabled = ?, updated_at = ? WHERE id = ?",
		int(NotDisabled), now(), moduleID,
	)
	if err != nil {
		return fmt.Errorf("enabling module: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // SQLite supports RowsAffected
		return fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	return nil
}

// BoolSetting returns a boolean instance setting. Missing instances or keys
// read as false.
func (s *SQLite) BoolSetting(ctx context.Context, moduleID string, instanceID InstanceID, key string) (bool, error) {
	settings, err := s.instanceSettings(ctx, moduleID, instanceID)
	if err != nil {
		return false, err
	}
	if settings == nil {
		return false, nil
	}

	value, ok := settings[key].(bool)
	if !ok {
		return false, nil
	}
	return value, nil
}

// SetBoolSetting writes a boolean instance setting, creating the instance
// row if needed. The read-modify-write runs in a transaction.
func (s *SQLite) SetBoolSetting(ctx context.Context, moduleID string, instanceID InstanceID, key string, value bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT settings FROM module_instances WHERE module_id = ? AND instance_id = ?",
		moduleID, instanceID,
	).Scan(&raw)

	settings := map[string]any{}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// New instance row below.
	case err != nil:
		return fmt.Errorf("querying instance settings: %w", err)
	default:
		if uerr := json.Unmarshal([]byte(raw), &settings); uerr != nil {
			return fmt.Errorf("decoding instance settings: %w", uerr)
		}
	}

	settings[key] = value
	encoded, merr := json.Marshal(settings)
	if merr != nil {
		return fmt.Errorf("encoding instance settings: %w", merr)
	}

	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO module_instances (module_id, instance_id, settings, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			moduleID, instanceID, string(encoded), now(), now(),
		)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE module_instances SET settings = ?, updated_at = ? WHERE module_id = ? AND instance_id = ?",
			string(encoded), now(), moduleID, instanceID,
		)
	}
	if err != nil {
		return fmt.Errorf("writing instance settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing instance settings: %w", err)
	}
	return nil
}

// SaveModule inserts or updates a module and ensures its instance rows
// exist. Used by admin tooling and tests; the registry only reads.
func (s *SQLite) SaveModule(ctx context.Context, m Module) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO modules (id, name, icon, thumb, disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			icon = excluded.icon,
			thumb = excluded.thumb,
			updated_at = excluded.updated_at
	`, m.ID, m.Name, m.Icon, m.Thumb, now(), now())
	if err != nil {
		return fmt.Errorf("saving module: %w", err)
	}

	for _, instanceID := range m.InstanceIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO module_instances (module_id, instance_id, settings, created_at, updated_at)
			VALUES (?, ?, '{}', ?, ?)
			ON CONFLICT(module_id, instance_id) DO NOTHING
		`, m.ID, instanceID, now(), now())
		if err != nil {
			return fmt.Errorf("saving instance %d: %w", instanceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing module: %w", err)
	}
	return nil
}

// RemoveModule deletes a module and its instances.
func (s *SQLite) RemoveModule(ctx context.Context, moduleID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM modules WHERE id = ?", moduleID)
	if err != nil {
		return fmt.Errorf("removing module: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // SQLite supports RowsAffected
		return fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	return nil
}

// RemoveInstance deletes one instance row.
func (s *SQLite) RemoveInstance(ctx context.Context, moduleID string, instanceID InstanceID) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM module_instances WHERE module_id = ? AND instance_id = ?",
		moduleID, instanceID,
	)
	if err != nil {
		return fmt.Errorf("removing instance: %w", err)
	}
	return nil
}

// instanceSettings loads the settings object for one instance.
// Returns nil without error when the instance row does not exist.
func (s *SQLite) instanceSettings(ctx context.Context, moduleID string, instanceID InstanceID) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT settings FROM module_instances WHERE module_id = ? AND instance_id = ?",
		moduleID, instanceID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying instance settings: %w", err)
	}

	settings := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("decoding instance settings: %w", err)
	}
	return settings, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
