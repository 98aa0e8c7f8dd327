package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/voltmap/voltmap-go/internal/model"
)

var ErrStationNotFound = errors.New("station not found")

// StationRepository handles station persistence operations.
type StationRepository struct {
	db *DB
}

// NewStationRepository creates a new StationRepository.
func NewStationRepository(db *DB) *StationRepository {
	return &StationRepository{db: db}
}

const stationColumns = `s.id, s.name, s.location_type, s.longitude, s.latitude, s.address,
	s.status, s.power_output, s.connector_type, s.created_by, s.created_at, s.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner, extra ...any) (model.Station, error) {
	var s model.Station
	dest := []any{
		&s.ID, &s.Name, &s.Location.Type, &s.Location.Coordinates[0], &s.Location.Coordinates[1],
		&s.Location.Address, &s.Status, &s.PowerOutput, &s.ConnectorType, &s.CreatedBy.ID,
		&s.CreatedAt, &s.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return s, err
}

// Create inserts a station, assigning its ID and timestamps. CreatedBy.ID
// must already hold the owner.
func (r *StationRepository) Create(ctx context.Context, s *model.Station) error {
	s.ID = uuid.NewString()
	s.CreatedAt = now()
	s.UpdatedAt = s.CreatedAt

	query := r.db.rebind(`INSERT INTO stations
		(id, name, location_type, longitude, latitude, address, status, power_output, connector_type, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.Location.Type, s.Location.Longitude(), s.Location.Latitude(), s.Location.Address,
		s.Status, s.PowerOutput, s.ConnectorType, s.CreatedBy.ID, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

// List returns stations newest first, each with the owner's email populated.
// A non-empty ownerID restricts the result to that owner's stations.
func (r *StationRepository) List(ctx context.Context, ownerID string) ([]model.Station, error) {
	query := `SELECT ` + stationColumns + `, u.email
		FROM stations s JOIN users u ON u.id = s.created_by`
	var args []any
	if ownerID != "" {
		query += ` WHERE s.created_by = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY s.created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stations := []model.Station{}
	for rows.Next() {
		var email string
		s, err := scanStation(rows, &email)
		if err != nil {
			return nil, err
		}
		s.CreatedBy.Email = email
		stations = append(stations, s)
	}

	return stations, rows.Err()
}

// GetByID retrieves a station. Malformed identifiers are reported as not found.
func (r *StationRepository) GetByID(ctx context.Context, id string) (*model.Station, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrStationNotFound
	}

	query := r.db.rebind(`SELECT ` + stationColumns + ` FROM stations s WHERE s.id = ?`)

	s, err := scanStation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStationNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Update writes every mutable column in a single statement. The owner column
// is never part of the update.
func (r *StationRepository) Update(ctx context.Context, s *model.Station) error {
	s.UpdatedAt = now()

	query := r.db.rebind(`UPDATE stations SET
		name = ?, location_type = ?, longitude = ?, latitude = ?, address = ?,
		status = ?, power_output = ?, connector_type = ?, updated_at = ?
		WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query,
		s.Name, s.Location.Type, s.Location.Longitude(), s.Location.Latitude(), s.Location.Address,
		s.Status, s.PowerOutput, s.ConnectorType, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrStationNotFound)
}

// Delete removes a station.
func (r *StationRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrStationNotFound
	}

	result, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM stations WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrStationNotFound)
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
