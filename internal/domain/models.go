package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type GardenStatus string

const (
	GardenSetup    GardenStatus = "setup"
	GardenActive   GardenStatus = "active"
	GardenArchived GardenStatus = "archived"
)

func (s GardenStatus) Valid() bool {
	switch s {
	case GardenSetup, GardenActive, GardenArchived:
		return true
	}
	return false
}

type DeviceStatus string

const (
	DeviceSetup    DeviceStatus = "setup"
	DeviceActive   DeviceStatus = "active"
	DeviceInactive DeviceStatus = "inactive"
	DeviceError    DeviceStatus = "error"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceSetup, DeviceActive, DeviceInactive, DeviceError:
		return true
	}
	return false
}

type TriggerAction string

const (
	TurnOn  TriggerAction = "turn_on"
	TurnOff TriggerAction = "turn_off"
)

func (a TriggerAction) Valid() bool { return a == TurnOn || a == TurnOff }

// Device type names carry a kind prefix.
const (
	SensorTypePrefix    = "sensor_"
	LightbulbTypePrefix = "lightbulb"
)

type Garden struct {
	ID          int64        `db:"id"`
	Title       string       `db:"title"`
	Address     string       `db:"address"`
	Description string       `db:"description"`
	Status      GardenStatus `db:"status"`
	Created     time.Time    `db:"created"`
	Updated     time.Time    `db:"updated"`
}

type DeviceType struct {
	ID              int64     `db:"id"`
	Name            string    `db:"name"`
	MeasureDataName string    `db:"measure_data_name"`
	Unit            *string   `db:"unit"`
	Created         time.Time `db:"created"`
	Updated         time.Time `db:"updated"`
}

type Device struct {
	ID           int64        `db:"id"`
	DeviceTypeID int64        `db:"device_type_id"`
	GardenID     int64        `db:"garden_id"`
	Title        string       `db:"title"`
	Description  string       `db:"description"`
	Status       DeviceStatus `db:"status"`
	MetaData     Metadata     `db:"meta_data"`
	LastPing     *time.Time   `db:"last_ping"`
	Created      time.Time    `db:"created"`
	Updated      time.Time    `db:"updated"`

	// Joined from device_types.
	TypeName string  `db:"device_type_name"`
	TypeUnit *string `db:"device_type_unit"`
}

func (d Device) IsSensor() bool    { return strings.HasPrefix(d.TypeName, SensorTypePrefix) }
func (d Device) IsLightbulb() bool { return strings.HasPrefix(d.TypeName, LightbulbTypePrefix) }

func (d Device) Unit() string {
	if d.TypeUnit == nil {
		return ""
	}
	return *d.TypeUnit
}

const lightTurnedOnKey = "light_turned_on"

func (d Device) LightTurnedOn() bool {
	on, _ := d.MetaData[lightTurnedOnKey].(bool)
	return on
}

// SetLightTurnedOn records the lightbulb state in the device metadata.
func (d *Device) SetLightTurnedOn(on bool) {
	if d.MetaData == nil {
		d.MetaData = Metadata{}
	}
	d.MetaData[lightTurnedOnKey] = on
}

// Reading is one measure data sample. Value keeps the device's textual
// representation.
type Reading struct {
	ID        int64     `db:"id"`
	DeviceID  int64     `db:"device_id"`
	Timestamp time.Time `db:"timestamp"`
	Value     string    `db:"value"`
	Created   time.Time `db:"created"`
	Updated   time.Time `db:"updated"`
}

// Metadata is a free-form JSON object stored as text.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("metadata: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	*m = out
	return nil
}
