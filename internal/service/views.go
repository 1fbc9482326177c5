package service

import (
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
)

const noData = "No data"

type GardenView struct {
	ID          int64               `json:"id"`
	Title       string              `json:"title"`
	Address     string              `json:"address"`
	Description string              `json:"description"`
	Status      domain.GardenStatus `json:"status"`
}

func NewGardenView(g domain.Garden) GardenView {
	return GardenView{
		ID:          g.ID,
		Title:       g.Title,
		Address:     g.Address,
		Description: g.Description,
		Status:      g.Status,
	}
}

type DeviceTypeView struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Unit *string `json:"unit"`
}

func NewDeviceTypeView(t domain.DeviceType) DeviceTypeView {
	return DeviceTypeView{ID: t.ID, Name: t.Name, Unit: t.Unit}
}

type DeviceView struct {
	ID                int64               `json:"id"`
	Title             string              `json:"title"`
	Description       string              `json:"description"`
	DeviceTypeID      int64               `json:"device_type_id"`
	DeviceType        string              `json:"device_type"`
	Status            domain.DeviceStatus `json:"status"`
	AccessToken       string              `json:"access_token"`
	LatestMeasureData string              `json:"latest_measure_data"`
}

func NewDeviceView(d domain.Device, accessToken, latest string) DeviceView {
	return DeviceView{
		ID:                d.ID,
		Title:             d.Title,
		Description:       d.Description,
		DeviceTypeID:      d.DeviceTypeID,
		DeviceType:        d.TypeName,
		Status:            d.Status,
		AccessToken:       accessToken,
		LatestMeasureData: latest,
	}
}

type LightbulbView struct {
	ID            int64               `json:"id"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	DeviceTypeID  int64               `json:"device_type_id"`
	DeviceType    string              `json:"device_type"`
	Status        domain.DeviceStatus `json:"status"`
	AccessToken   string              `json:"access_token"`
	LightTurnedOn bool                `json:"light_turned_on"`
}

func NewLightbulbView(d domain.Device, accessToken string) LightbulbView {
	return LightbulbView{
		ID:            d.ID,
		Title:         d.Title,
		Description:   d.Description,
		DeviceTypeID:  d.DeviceTypeID,
		DeviceType:    d.TypeName,
		Status:        d.Status,
		AccessToken:   accessToken,
		LightTurnedOn: d.LightTurnedOn(),
	}
}

// latestLabel renders the latest reading with the device unit appended.
func latestLabel(d domain.Device, rd *domain.Reading) string {
	if rd == nil {
		return noData
	}
	return rd.Value + d.Unit()
}
