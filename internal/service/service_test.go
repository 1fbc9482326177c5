package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/config"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/database"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/history"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/metrics"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/repository"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/token"
)

const testTopic = "test-lightbulbs"

type published struct {
	topic   string
	payload string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic, string(payload)})
	return nil
}

type fakeSink struct {
	got []domain.Reading
	err error
}

func (s *fakeSink) Record(_ context.Context, rd domain.Reading) error {
	s.got = append(s.got, rd)
	return s.err
}

type fakeExporter struct {
	keys []string
	data []byte
	err  error
}

func (e *fakeExporter) Export(_ context.Context, key string, data []byte, _ string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.keys = append(e.keys, key)
	e.data = data
	return "https://exports.example/" + key, nil
}

func (e *fakeExporter) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for _, k := range e.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

type fakeAlerter struct {
	subjects []string
	messages []string
}

func (a *fakeAlerter) Alert(_ context.Context, subject, message string) error {
	a.subjects = append(a.subjects, subject)
	a.messages = append(a.messages, message)
	return nil
}

type fixture struct {
	svcs     *Services
	repos    *repository.Repos
	tokens   *token.Codec
	pub      *fakePublisher
	sink     *fakeSink
	exporter *fakeExporter
	alerter  *fakeAlerter
	metrics  *metrics.Metrics
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Connect(config.DBConfig{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "garden.db"),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("schema: %v", err)
	}

	f := &fixture{
		repos:    repository.New(db),
		tokens:   token.NewCodec("test-secret", true),
		pub:      &fakePublisher{},
		sink:     &fakeSink{},
		exporter: &fakeExporter{},
		alerter:  &fakeAlerter{},
		metrics:  metrics.New(),
		now:      time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC),
	}
	f.svcs = New(Deps{
		Repos:          f.repos,
		Tokens:         f.tokens,
		Publisher:      f.pub,
		LightbulbTopic: testTopic,
		Sinks:          []ReadingSink{f.sink},
		Exporter:       f.exporter,
		Alerter:        f.alerter,
		Metrics:        f.metrics,
		Now:            func() time.Time { return f.now },
	})
	return f
}

func strPtr(s string) *string { return &s }

// seed creates a garden, a type of the given kind and one device of it.
func (f *fixture) seed(t *testing.T, kind, unit string) DeviceView {
	t.Helper()
	ctx := context.Background()

	g, err := f.svcs.Gardens.Create(ctx, CreateGardenInput{Title: "Rooftop", Address: "1 Dai Co Viet"})
	if err != nil {
		t.Fatalf("create garden: %v", err)
	}
	in := DeviceTypeInput{Name: "probe", Kind: kind}
	if unit != "" {
		in.Unit = strPtr(unit)
	}
	dt, err := f.svcs.DeviceTypes.Create(ctx, in)
	if err != nil {
		t.Fatalf("create device type: %v", err)
	}
	d, err := f.svcs.Devices.Create(ctx, CreateDeviceInput{
		Title:        "Device",
		Description:  "north bed",
		DeviceTypeID: dt.ID,
		GardenID:     g.ID,
	})
	if err != nil {
		t.Fatalf("create device: %v", err)
	}
	return d
}

func TestGardenService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svcs.Gardens.Create(ctx, CreateGardenInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("create without title err = %v, want ErrValidation", err)
	}

	g, err := f.svcs.Gardens.Create(ctx, CreateGardenInput{Title: "Greenhouse", Address: "Hanoi"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Status != domain.GardenSetup {
		t.Errorf("status = %q, want %q", g.Status, domain.GardenSetup)
	}

	active := domain.GardenActive
	g, err = f.svcs.Gardens.Update(ctx, g.ID, UpdateGardenInput{Title: strPtr(""), Status: &active})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if g.Title != "Greenhouse" || g.Status != domain.GardenActive {
		t.Errorf("after update = %+v", g)
	}

	bad := domain.GardenStatus("flooded")
	if _, err := f.svcs.Gardens.Update(ctx, g.ID, UpdateGardenInput{Status: &bad}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad status err = %v, want ErrValidation", err)
	}
	if _, err := f.svcs.Gardens.Get(ctx, 999); !errors.Is(err, ErrGardenNotFound) {
		t.Errorf("get missing err = %v, want ErrGardenNotFound", err)
	}

	list, err := f.svcs.Gardens.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v, %v", list, err)
	}
}

func TestDeviceTypeService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dt, err := f.svcs.DeviceTypes.Create(ctx, DeviceTypeInput{Name: "temperature", Unit: strPtr("°C")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if dt.Name != "sensor_temperature" {
		t.Errorf("stored name = %q, want sensor_temperature", dt.Name)
	}

	bulb, err := f.svcs.DeviceTypes.Create(ctx, DeviceTypeInput{Name: "rgb", Kind: "lightbulb"})
	if err != nil {
		t.Fatalf("create lightbulb type: %v", err)
	}
	if bulb.Name != "lightbulb_rgb" {
		t.Errorf("lightbulb name = %q", bulb.Name)
	}

	if _, err := f.svcs.DeviceTypes.Create(ctx, DeviceTypeInput{Name: "x", Kind: "valve"}); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown kind err = %v, want ErrValidation", err)
	}

	list, err := f.svcs.DeviceTypes.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "temperature" || list[1].Name != "lightbulb_rgb" {
		t.Errorf("list = %+v", list)
	}

	dt, err = f.svcs.DeviceTypes.Update(ctx, dt.ID, DeviceTypeInput{Name: "humidity", Unit: strPtr("")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if dt.Name != "sensor_humidity" || dt.Unit == nil || *dt.Unit != "°C" {
		t.Errorf("after update = %+v", dt)
	}

	if _, err := f.svcs.DeviceTypes.Update(ctx, 999, DeviceTypeInput{Name: "x"}); !errors.Is(err, ErrDeviceTypeNotFound) {
		t.Errorf("update missing err = %v, want ErrDeviceTypeNotFound", err)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.seed(t, "sensor", "°C")
	if d.LatestMeasureData != "No data" {
		t.Errorf("latest = %q, want No data", d.LatestMeasureData)
	}
	if d.DeviceType != "sensor_probe" || d.Status != domain.DeviceSetup {
		t.Errorf("created = %+v", d)
	}
	if id, err := f.tokens.DeviceID(d.AccessToken); err != nil || id != d.ID {
		t.Errorf("token decodes to %d, %v; want %d", id, err, d.ID)
	}

	if _, err := f.svcs.MeasureData.Receive(ctx, MeasureDataInput{AccessToken: d.AccessToken, Value: "21.5"}, TransportHTTP); err != nil {
		t.Fatalf("receive: %v", err)
	}
	got, err := f.svcs.Devices.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LatestMeasureData != "21.5°C" {
		t.Errorf("latest = %q, want 21.5°C", got.LatestMeasureData)
	}

	active := domain.DeviceActive
	got, err = f.svcs.Devices.Update(ctx, d.ID, UpdateDeviceInput{Title: strPtr("Soil probe"), Status: &active})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "Soil probe" || got.Description != "north bed" || got.Status != domain.DeviceActive {
		t.Errorf("after update = %+v", got)
	}

	bad := domain.DeviceStatus("melted")
	if _, err := f.svcs.Devices.Update(ctx, d.ID, UpdateDeviceInput{Status: &bad}); !errors.Is(err, ErrValidation) {
		t.Errorf("bad status err = %v, want ErrValidation", err)
	}
	missingType := int64(999)
	if _, err := f.svcs.Devices.Update(ctx, d.ID, UpdateDeviceInput{DeviceTypeID: &missingType}); !errors.Is(err, ErrDeviceTypeNotFound) {
		t.Errorf("missing type err = %v, want ErrDeviceTypeNotFound", err)
	}

	sensors, err := f.svcs.Devices.ListSensors(ctx, nil)
	if err != nil || len(sensors) != 1 {
		t.Fatalf("sensors = %v, %v", sensors, err)
	}
	bulbs, err := f.svcs.Devices.ListLightbulbs(ctx, nil)
	if err != nil || len(bulbs) != 0 {
		t.Fatalf("lightbulbs = %v, %v", bulbs, err)
	}

	deleted, err := f.svcs.Devices.Delete(ctx, d.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.ID != d.ID {
		t.Errorf("deleted id = %d", deleted.ID)
	}
	if _, err := f.svcs.Devices.Delete(ctx, d.ID); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second delete err = %v, want ErrDeviceNotFound", err)
	}
}

func TestCreateDeviceChecksReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svcs.Gardens.Create(ctx, CreateGardenInput{Title: "Yard"})
	if err != nil {
		t.Fatalf("create garden: %v", err)
	}
	_, err = f.svcs.Devices.Create(ctx, CreateDeviceInput{Title: "x", GardenID: 999, DeviceTypeID: 1})
	if !errors.Is(err, ErrGardenNotFound) {
		t.Errorf("missing garden err = %v", err)
	}
	_, err = f.svcs.Devices.Create(ctx, CreateDeviceInput{Title: "x", GardenID: g.ID, DeviceTypeID: 999})
	if !errors.Is(err, ErrDeviceTypeNotFound) {
		t.Errorf("missing type err = %v", err)
	}
}

func TestListSensorsByGarden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seed(t, "sensor", "%")
	f.seed(t, "sensor", "%")

	dev, err := f.repos.GetDevice(ctx, a.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	list, err := f.svcs.Devices.ListSensors(ctx, &dev.GardenID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != a.ID {
		t.Errorf("garden filter returned %+v", list)
	}
}

func TestTrigger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t, "lightbulb", "")

	if err := f.svcs.Devices.Trigger(ctx, d.ID, domain.TurnOn); err != nil {
		t.Fatalf("turn on: %v", err)
	}
	if err := f.svcs.Devices.Trigger(ctx, d.ID, domain.TurnOff); err != nil {
		t.Fatalf("turn off: %v", err)
	}
	want := []published{{testTopic, "1"}, {testTopic, "0"}}
	if len(f.pub.sent) != len(want) {
		t.Fatalf("sent = %+v", f.pub.sent)
	}
	for i := range want {
		if f.pub.sent[i] != want[i] {
			t.Errorf("sent[%d] = %+v, want %+v", i, f.pub.sent[i], want[i])
		}
	}

	bulbs, err := f.svcs.Devices.ListLightbulbs(ctx, nil)
	if err != nil || len(bulbs) != 1 {
		t.Fatalf("lightbulbs = %v, %v", bulbs, err)
	}
	if bulbs[0].LightTurnedOn {
		t.Error("light should be off after turn_off")
	}
	if n := testutil.ToFloat64(f.metrics.LightbulbPublish.WithLabelValues("ok")); n != 2 {
		t.Errorf("publish ok counter = %v, want 2", n)
	}

	if err := f.svcs.Devices.Trigger(ctx, d.ID, "dim"); !errors.Is(err, ErrValidation) {
		t.Errorf("bad action err = %v, want ErrValidation", err)
	}
	if err := f.svcs.Devices.Trigger(ctx, 999, domain.TurnOn); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("missing device err = %v, want ErrDeviceNotFound", err)
	}
}

func TestTriggerStoresStateWhenPublishFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t, "lightbulb", "")

	f.pub.err = errors.New("broker down")
	if err := f.svcs.Devices.Trigger(ctx, d.ID, domain.TurnOn); err == nil {
		t.Fatal("expected publish error")
	}

	dev, err := f.repos.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if !dev.LightTurnedOn() {
		t.Error("state should be stored before publishing")
	}
	if n := testutil.ToFloat64(f.metrics.LightbulbPublish.WithLabelValues("error")); n != 1 {
		t.Errorf("publish error counter = %v, want 1", n)
	}
	if len(f.alerter.subjects) != 1 || !strings.Contains(f.alerter.messages[0], "broker down") {
		t.Errorf("alerts = %v / %v", f.alerter.subjects, f.alerter.messages)
	}
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t, "sensor", "")

	if err := f.svcs.Devices.Ping(ctx, d.AccessToken); err != nil {
		t.Fatalf("ping: %v", err)
	}
	dev, err := f.repos.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if dev.LastPing == nil || !dev.LastPing.Equal(f.now) {
		t.Errorf("last_ping = %v, want %v", dev.LastPing, f.now)
	}

	forged, _ := token.NewCodec("other", true).Issue(d.ID)
	if err := f.svcs.Devices.Ping(ctx, forged); !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("forged token err = %v, want ErrInvalidToken", err)
	}
	orphan, _ := f.tokens.Issue(999)
	if err := f.svcs.Devices.Ping(ctx, orphan); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("unknown device err = %v, want ErrDeviceNotFound", err)
	}
}

func TestReceive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t, "sensor", "%")

	rd, err := f.svcs.MeasureData.Receive(ctx, MeasureDataInput{AccessToken: d.AccessToken, Value: "55"}, TransportMQTT)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if rd.DeviceID != d.ID || !rd.Timestamp.Equal(f.now) {
		t.Errorf("reading = %+v", rd)
	}
	if len(f.sink.got) != 1 || f.sink.got[0].Value != "55" {
		t.Errorf("sink got %+v", f.sink.got)
	}
	if n := testutil.ToFloat64(f.metrics.ReadingsReceived.WithLabelValues(TransportMQTT)); n != 1 {
		t.Errorf("readings counter = %v, want 1", n)
	}

	f.sink.err = errors.New("influx down")
	if _, err := f.svcs.MeasureData.Receive(ctx, MeasureDataInput{AccessToken: d.AccessToken, Value: "56"}, TransportHTTP); err != nil {
		t.Errorf("sink failure should not fail receive: %v", err)
	}

	tests := []struct {
		name string
		in   MeasureDataInput
		want error
	}{
		{"empty value", MeasureDataInput{AccessToken: d.AccessToken}, ErrValidation},
		{"text value", MeasureDataInput{AccessToken: d.AccessToken, Value: "warm"}, ErrValidation},
		{"huge exponent", MeasureDataInput{AccessToken: d.AccessToken, Value: "1e30000000"}, ErrValidation},
		{"overflows float", MeasureDataInput{AccessToken: d.AccessToken, Value: "1e400"}, ErrValidation},
		{"not a number", MeasureDataInput{AccessToken: d.AccessToken, Value: "NaN"}, ErrValidation},
		{"infinity", MeasureDataInput{AccessToken: d.AccessToken, Value: "+Inf"}, ErrValidation},
		{"garbage token", MeasureDataInput{AccessToken: "nope", Value: "1"}, token.ErrInvalidToken},
		{"unknown device", MeasureDataInput{AccessToken: mustIssue(t, f.tokens, 999), Value: "1"}, ErrDeviceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svcs.MeasureData.Receive(ctx, tt.in, TransportHTTP); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func mustIssue(t *testing.T, c *token.Codec, id int64) string {
	t.Helper()
	s, err := c.Issue(id)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return s
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t, "sensor", "°C")

	for _, r := range []struct {
		at    time.Time
		value string
	}{
		{time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC), "20"},
		{time.Date(2024, 2, 3, 18, 0, 0, 0, time.UTC), "22"},
		{time.Date(2024, 2, 5, 7, 30, 0, 0, time.UTC), "10"},
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "99"},
	} {
		rd := domain.Reading{DeviceID: d.ID, Timestamp: r.at, Value: r.value}
		if err := f.repos.InsertReading(ctx, &rd); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	res, err := f.svcs.Devices.History(ctx, d.ID, "day", f.now)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if res.TimeUnit != "day" || res.ValueUnit != "°C" {
		t.Errorf("units = %q, %q", res.TimeUnit, res.ValueUnit)
	}
	if len(res.Values) != 29 {
		t.Fatalf("buckets = %d, want 29", len(res.Values))
	}
	if b := res.Values[2]; b.Label != "3" || b.Empty || b.Mean.String() != "21" {
		t.Errorf("day 3 = %+v", b)
	}
	if b := res.Values[4]; b.Label != "5" || b.Mean.String() != "10" {
		t.Errorf("day 5 = %+v", b)
	}
	if !res.Values[28].Empty {
		t.Errorf("day 29 should be empty, got %+v", res.Values[28])
	}

	if _, err := f.svcs.Devices.History(ctx, d.ID, "week", f.now); !errors.Is(err, history.ErrInvalidGranularity) {
		t.Errorf("bad granularity err = %v", err)
	}
	if _, err := f.svcs.Devices.History(ctx, 999, "day", f.now); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("missing device err = %v", err)
	}
}

func TestHistoryRejectsNonNumericReadings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t, "sensor", "")

	rd := domain.Reading{DeviceID: d.ID, Timestamp: f.now, Value: "warm"}
	if err := f.repos.InsertReading(ctx, &rd); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := f.svcs.Devices.History(ctx, d.ID, "hour", f.now); !errors.Is(err, history.ErrInvalidValue) {
		t.Errorf("err = %v, want ErrInvalidValue", err)
	}
}

func TestExportHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.seed(t, "sensor", "%")

	if _, err := f.svcs.MeasureData.Receive(ctx, MeasureDataInput{AccessToken: d.AccessToken, Value: "40"}, TransportHTTP); err != nil {
		t.Fatalf("receive: %v", err)
	}

	v, err := f.svcs.Devices.ExportHistory(ctx, d.ID, "day", f.now)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	prefix := "history/device-" + strconv.FormatInt(d.ID, 10) + "/"
	if !strings.HasPrefix(v.Key, prefix+"day-20240210T120000Z-") || v.URL != "https://exports.example/"+v.Key {
		t.Errorf("export = %+v", v)
	}

	var doc struct {
		TimeUnit string `json:"time_unit"`
		Values   []struct {
			Timestamp string          `json:"timestamp"`
			Value     json.RawMessage `json:"value"`
		} `json:"values"`
	}
	if err := json.Unmarshal(f.exporter.data, &doc); err != nil {
		t.Fatalf("exported document: %v", err)
	}
	if doc.TimeUnit != "day" || len(doc.Values) != 29 || string(doc.Values[9].Value) != "40" {
		t.Errorf("exported document = %+v", doc)
	}

	keys, err := f.svcs.Devices.ListHistoryExports(ctx, d.ID)
	if err != nil || len(keys) != 1 || keys[0] != v.Key {
		t.Errorf("list = %v, %v", keys, err)
	}
	if _, err := f.svcs.Devices.ListHistoryExports(ctx, 999); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("list missing device err = %v", err)
	}
	if _, err := f.svcs.Devices.ExportHistory(ctx, d.ID, "week", f.now); !errors.Is(err, history.ErrInvalidGranularity) {
		t.Errorf("bad granularity err = %v", err)
	}

	f.svcs.Devices.exporter = nil
	if _, err := f.svcs.Devices.ExportHistory(ctx, d.ID, "day", f.now); !errors.Is(err, ErrExportDisabled) {
		t.Errorf("disabled export err = %v", err)
	}
}
