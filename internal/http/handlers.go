package http

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/service"
)

type handlers struct {
	svcs *service.Services
}

// Register mounts the garden, device type, device and measure data routes.
func Register(app *fiber.App, svcs *service.Services) {
	h := &handlers{svcs: svcs}

	gardens := app.Group("/gardens")
	gardens.Get("/", h.listGardens)
	gardens.Post("/", h.createGarden)
	gardens.Get("/:garden_id", h.getGarden)
	gardens.Put("/:garden_id", h.updateGarden)

	types := app.Group("/device-types")
	types.Get("/", h.listDeviceTypes)
	types.Post("/", h.createDeviceType)
	types.Put("/:device_type_id", h.updateDeviceType)

	// Static segments go before /:device_id.
	devices := app.Group("/devices")
	devices.Get("/", h.listSensors)
	devices.Post("/", h.createDevice)
	devices.Get("/lightbulbs", h.listLightbulbs)
	devices.Post("/pings", h.ping)
	devices.Get("/:device_id", h.getDevice)
	devices.Put("/:device_id", h.updateDevice)
	devices.Delete("/:device_id", h.deleteDevice)
	devices.Post("/:device_id/trigger", h.trigger)
	devices.Get("/:device_id/history", h.history)
	devices.Post("/:device_id/history/export", h.exportHistory)
	devices.Get("/:device_id/history/exports", h.listHistoryExports)

	app.Post("/measure-data", h.receiveMeasureData)
}

// Gardens

func (h *handlers) listGardens(c *fiber.Ctx) error {
	items, err := h.svcs.Gardens.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (h *handlers) createGarden(c *fiber.Ctx) error {
	var in service.CreateGardenInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	g, err := h.svcs.Gardens.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(g)
}

func (h *handlers) getGarden(c *fiber.Ctx) error {
	id, err := pathID(c, "garden_id")
	if err != nil {
		return err
	}
	g, err := h.svcs.Gardens.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(g)
}

func (h *handlers) updateGarden(c *fiber.Ctx) error {
	id, err := pathID(c, "garden_id")
	if err != nil {
		return err
	}
	var in service.UpdateGardenInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	g, err := h.svcs.Gardens.Update(c.UserContext(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(g)
}

// Device types

func (h *handlers) listDeviceTypes(c *fiber.Ctx) error {
	items, err := h.svcs.DeviceTypes.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (h *handlers) createDeviceType(c *fiber.Ctx) error {
	var in service.DeviceTypeInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	t, err := h.svcs.DeviceTypes.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

func (h *handlers) updateDeviceType(c *fiber.Ctx) error {
	id, err := pathID(c, "device_type_id")
	if err != nil {
		return err
	}
	var in service.DeviceTypeInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	t, err := h.svcs.DeviceTypes.Update(c.UserContext(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// Devices

func (h *handlers) listSensors(c *fiber.Ctx) error {
	gardenID, err := optionalQueryID(c, "garden_id")
	if err != nil {
		return err
	}
	items, err := h.svcs.Devices.ListSensors(c.UserContext(), gardenID)
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (h *handlers) listLightbulbs(c *fiber.Ctx) error {
	gardenID, err := optionalQueryID(c, "garden_id")
	if err != nil {
		return err
	}
	items, err := h.svcs.Devices.ListLightbulbs(c.UserContext(), gardenID)
	if err != nil {
		return err
	}
	return c.JSON(items)
}

func (h *handlers) getDevice(c *fiber.Ctx) error {
	id, err := pathID(c, "device_id")
	if err != nil {
		return err
	}
	d, err := h.svcs.Devices.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(d)
}

func (h *handlers) createDevice(c *fiber.Ctx) error {
	var in service.CreateDeviceInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	d, err := h.svcs.Devices.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(d)
}

func (h *handlers) updateDevice(c *fiber.Ctx) error {
	id, err := pathID(c, "device_id")
	if err != nil {
		return err
	}
	var in service.UpdateDeviceInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	d, err := h.svcs.Devices.Update(c.UserContext(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(d)
}

func (h *handlers) deleteDevice(c *fiber.Ctx) error {
	id, err := pathID(c, "device_id")
	if err != nil {
		return err
	}
	d, err := h.svcs.Devices.Delete(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(d)
}

type triggerRequest struct {
	Action domain.TriggerAction `json:"action"`
}

func (h *handlers) trigger(c *fiber.Ctx) error {
	id, err := pathID(c, "device_id")
	if err != nil {
		return err
	}
	var in triggerRequest
	if err := parseBody(c, &in); err != nil {
		return err
	}
	if err := h.svcs.Devices.Trigger(c.UserContext(), id, in.Action); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"detail": "Lightbulb triggered"})
}

type pingRequest struct {
	AccessToken string `json:"access_token"`
}

func (h *handlers) ping(c *fiber.Ctx) error {
	var in pingRequest
	if err := parseBody(c, &in); err != nil {
		return err
	}
	if err := h.svcs.Devices.Ping(c.UserContext(), accessToken(c, in.AccessToken)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"detail": "Device pinged"})
}

// historyQuery reads the device id, group_by and group_value parameters.
func historyQuery(c *fiber.Ctx) (int64, string, time.Time, error) {
	id, err := pathID(c, "device_id")
	if err != nil {
		return 0, "", time.Time{}, err
	}
	groupBy := c.Query("group_by")
	if groupBy == "" {
		return 0, "", time.Time{}, unprocessable("group_by is required")
	}
	ref, err := parseGroupValue(c.Query("group_value"))
	if err != nil {
		return 0, "", time.Time{}, err
	}
	return id, groupBy, ref, nil
}

func (h *handlers) history(c *fiber.Ctx) error {
	id, groupBy, ref, err := historyQuery(c)
	if err != nil {
		return err
	}
	res, err := h.svcs.Devices.History(c.UserContext(), id, groupBy, ref)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *handlers) exportHistory(c *fiber.Ctx) error {
	id, groupBy, ref, err := historyQuery(c)
	if err != nil {
		return err
	}
	v, err := h.svcs.Devices.ExportHistory(c.UserContext(), id, groupBy, ref)
	if err != nil {
		return err
	}
	return c.JSON(v)
}

func (h *handlers) listHistoryExports(c *fiber.Ctx) error {
	id, err := pathID(c, "device_id")
	if err != nil {
		return err
	}
	keys, err := h.svcs.Devices.ListHistoryExports(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"keys": keys})
}

// Measure data

func (h *handlers) receiveMeasureData(c *fiber.Ctx) error {
	var in service.MeasureDataInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	in.AccessToken = accessToken(c, in.AccessToken)

	_, err := h.svcs.MeasureData.Receive(c.UserContext(), in, service.TransportHTTP)
	if errors.Is(err, service.ErrDeviceNotFound) {
		return detail(fiber.StatusBadRequest, "Device not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"detail": "Data received successfully"})
}

// Request helpers

// parseBody decodes a JSON or form body. An empty body leaves out as is.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return unprocessable("invalid request body: " + err.Error())
	}
	return nil
}

func pathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil {
		return 0, unprocessable(name + " must be an integer")
	}
	return id, nil
}

func optionalQueryID(c *fiber.Ctx, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, unprocessable(name + " must be an integer")
	}
	return &id, nil
}

// accessToken prefers the body value and falls back to a bearer header.
func accessToken(c *fiber.Ctx, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	auth := c.Get(fiber.HeaderAuthorization)
	if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}

var groupValueLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseGroupValue accepts ISO-8601 timestamps. Values without an offset
// are taken as UTC.
func parseGroupValue(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, unprocessable("group_value is required")
	}
	// An unescaped "+" in the offset arrives as a space.
	if i := strings.LastIndexByte(raw, ' '); i > len("2006-01-02") {
		raw = raw[:i] + "+" + raw[i+1:]
	}
	for _, layout := range groupValueLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, unprocessable("group_value must be an ISO-8601 datetime")
}
