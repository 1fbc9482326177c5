package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Repos is the sqlx-backed store. Queries use ? placeholders and are
// rebound for the connected driver.
type Repos struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(db *sqlx.DB) *Repos {
	return &Repos{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repos) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repos) get(ctx context.Context, dest any, q string, args ...any) error {
	err := r.db.GetContext(ctx, dest, r.db.Rebind(q), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *Repos) insert(ctx context.Context, q string, args ...any) (int64, error) {
	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(q+" RETURNING id"), args...).Scan(&id)
	return id, err
}

func (r *Repos) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Gardens

const gardenColumns = `id, title, address, description, status, created, updated`

func (r *Repos) ListGardens(ctx context.Context) ([]domain.Garden, error) {
	out := []domain.Garden{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+gardenColumns+` FROM gardens ORDER BY id`)
	return out, err
}

func (r *Repos) GetGarden(ctx context.Context, id int64) (domain.Garden, error) {
	var g domain.Garden
	if err := r.get(ctx, &g, `SELECT `+gardenColumns+` FROM gardens WHERE id = ?`, id); err != nil {
		return g, fmt.Errorf("garden %d: %w", id, err)
	}
	return g, nil
}

func (r *Repos) CreateGarden(ctx context.Context, g *domain.Garden) error {
	now := r.now()
	if g.Status == "" {
		g.Status = domain.GardenSetup
	}
	id, err := r.insert(ctx,
		`INSERT INTO gardens (title, address, description, status, created, updated) VALUES (?, ?, ?, ?, ?, ?)`,
		g.Title, g.Address, g.Description, string(g.Status), now, now)
	if err != nil {
		return fmt.Errorf("insert garden: %w", err)
	}
	g.ID, g.Created, g.Updated = id, now, now
	return nil
}

func (r *Repos) UpdateGarden(ctx context.Context, g *domain.Garden) error {
	now := r.now()
	err := r.exec(ctx,
		`UPDATE gardens SET title = ?, address = ?, description = ?, status = ?, updated = ? WHERE id = ?`,
		g.Title, g.Address, g.Description, string(g.Status), now, g.ID)
	if err != nil {
		return fmt.Errorf("update garden %d: %w", g.ID, err)
	}
	g.Updated = now
	return nil
}

// Device types

const deviceTypeColumns = `id, name, measure_data_name, unit, created, updated`

func (r *Repos) ListDeviceTypes(ctx context.Context) ([]domain.DeviceType, error) {
	out := []domain.DeviceType{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+deviceTypeColumns+` FROM device_types ORDER BY id`)
	return out, err
}

func (r *Repos) GetDeviceType(ctx context.Context, id int64) (domain.DeviceType, error) {
	var t domain.DeviceType
	if err := r.get(ctx, &t, `SELECT `+deviceTypeColumns+` FROM device_types WHERE id = ?`, id); err != nil {
		return t, fmt.Errorf("device type %d: %w", id, err)
	}
	return t, nil
}

func (r *Repos) CreateDeviceType(ctx context.Context, t *domain.DeviceType) error {
	now := r.now()
	id, err := r.insert(ctx,
		`INSERT INTO device_types (name, measure_data_name, unit, created, updated) VALUES (?, ?, ?, ?, ?)`,
		t.Name, t.MeasureDataName, t.Unit, now, now)
	if err != nil {
		return fmt.Errorf("insert device type: %w", err)
	}
	t.ID, t.Created, t.Updated = id, now, now
	return nil
}

func (r *Repos) UpdateDeviceType(ctx context.Context, t *domain.DeviceType) error {
	now := r.now()
	err := r.exec(ctx,
		`UPDATE device_types SET name = ?, measure_data_name = ?, unit = ?, updated = ? WHERE id = ?`,
		t.Name, t.MeasureDataName, t.Unit, now, t.ID)
	if err != nil {
		return fmt.Errorf("update device type %d: %w", t.ID, err)
	}
	t.Updated = now
	return nil
}

// Devices

const deviceSelect = `SELECT d.id, d.device_type_id, d.garden_id, d.title, d.description, d.status,
	d.meta_data, d.last_ping, d.created, d.updated,
	t.name AS device_type_name, t.unit AS device_type_unit
	FROM devices d JOIN device_types t ON t.id = d.device_type_id`

// ListDevices returns all devices, or only those of one garden when
// gardenID is set.
func (r *Repos) ListDevices(ctx context.Context, gardenID *int64) ([]domain.Device, error) {
	out := []domain.Device{}
	q, args := deviceSelect, []any{}
	if gardenID != nil {
		q += ` WHERE d.garden_id = ?`
		args = append(args, *gardenID)
	}
	q += ` ORDER BY d.id`
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...)
	return out, err
}

func (r *Repos) GetDevice(ctx context.Context, id int64) (domain.Device, error) {
	var d domain.Device
	if err := r.get(ctx, &d, deviceSelect+` WHERE d.id = ?`, id); err != nil {
		return d, fmt.Errorf("device %d: %w", id, err)
	}
	return d, nil
}

func (r *Repos) CreateDevice(ctx context.Context, d *domain.Device) error {
	now := r.now()
	if d.Status == "" {
		d.Status = domain.DeviceSetup
	}
	if d.MetaData == nil {
		d.MetaData = domain.Metadata{}
	}
	id, err := r.insert(ctx,
		`INSERT INTO devices (device_type_id, garden_id, title, description, status, meta_data, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DeviceTypeID, d.GardenID, d.Title, d.Description, string(d.Status), d.MetaData, now, now)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	d.ID, d.Created, d.Updated = id, now, now
	return nil
}

func (r *Repos) UpdateDevice(ctx context.Context, d *domain.Device) error {
	now := r.now()
	err := r.exec(ctx,
		`UPDATE devices SET device_type_id = ?, title = ?, description = ?, status = ?, meta_data = ?, updated = ? WHERE id = ?`,
		d.DeviceTypeID, d.Title, d.Description, string(d.Status), d.MetaData, now, d.ID)
	if err != nil {
		return fmt.Errorf("update device %d: %w", d.ID, err)
	}
	d.Updated = now
	return nil
}

// SetDeviceMetadata replaces only the metadata column, leaving concurrent
// edits of the other device fields intact.
func (r *Repos) SetDeviceMetadata(ctx context.Context, id int64, meta domain.Metadata) error {
	if meta == nil {
		meta = domain.Metadata{}
	}
	if err := r.exec(ctx, `UPDATE devices SET meta_data = ?, updated = ? WHERE id = ?`, meta, r.now(), id); err != nil {
		return fmt.Errorf("set metadata of device %d: %w", id, err)
	}
	return nil
}

func (r *Repos) DeleteDevice(ctx context.Context, id int64) error {
	if err := r.exec(ctx, `DELETE FROM devices WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete device %d: %w", id, err)
	}
	return nil
}

func (r *Repos) TouchDevicePing(ctx context.Context, id int64, at time.Time) error {
	if err := r.exec(ctx, `UPDATE devices SET last_ping = ?, updated = ? WHERE id = ?`, at.UTC(), r.now(), id); err != nil {
		return fmt.Errorf("ping device %d: %w", id, err)
	}
	return nil
}

// Measure data

const readingColumns = `id, device_id, timestamp, value, created, updated`

func (r *Repos) InsertReading(ctx context.Context, rd *domain.Reading) error {
	now := r.now()
	if rd.Timestamp.IsZero() {
		rd.Timestamp = now
	}
	id, err := r.insert(ctx,
		`INSERT INTO measure_datas (device_id, timestamp, value, created, updated) VALUES (?, ?, ?, ?, ?)`,
		rd.DeviceID, rd.Timestamp.UTC(), rd.Value, now, now)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	rd.ID, rd.Created, rd.Updated = id, now, now
	return nil
}

// LatestReading returns the most recent reading of a device.
func (r *Repos) LatestReading(ctx context.Context, deviceID int64) (domain.Reading, error) {
	var rd domain.Reading
	err := r.get(ctx, &rd,
		`SELECT `+readingColumns+` FROM measure_datas WHERE device_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
		deviceID)
	if err != nil {
		return rd, fmt.Errorf("latest reading of device %d: %w", deviceID, err)
	}
	return rd, nil
}

// ReadingsInRange returns readings with from <= timestamp <= to in
// ascending time order.
func (r *Repos) ReadingsInRange(ctx context.Context, deviceID int64, from, to time.Time) ([]domain.Reading, error) {
	out := []domain.Reading{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(
		`SELECT `+readingColumns+` FROM measure_datas
		WHERE device_id = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC, id ASC`),
		deviceID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("readings of device %d: %w", deviceID, err)
	}
	return out, nil
}
