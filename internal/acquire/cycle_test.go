package acquire

import (
	"errors"
	"log/slog"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"cloudpico-envnode/internal/metrics"
	"cloudpico-envnode/internal/publisher"
	"cloudpico-envnode/internal/snapshot"
)

type cycleFixture struct {
	ht      *fakeHT
	p       *fakePressure
	aq      *fakeAQ
	battery *fakeBattery
	busy    *fakeBusy
	pub     *publisher.Publisher
	logs    *captureHandler
	cycle   *Cycle
}

func newCycleFixture(layout snapshot.Layout, battery ...batteryResult) *cycleFixture {
	f := &cycleFixture{
		ht:      &fakeHT{temperature: 24.5, humidity: 45.2},
		p:       &fakePressure{pressure: 1013.2, temperature: 25.1},
		battery: &fakeBattery{results: battery},
		busy:    &fakeBusy{},
		pub:     publisher.New(layout),
		logs:    &captureHandler{},
	}
	sensors := &Sensors{HumidityTemperature: f.ht, Pressure: f.p}
	if layout.AirQuality() {
		f.aq = &fakeAQ{co2: 415, tvoc: 12}
		sensors.AirQuality = f.aq
	}
	f.cycle = NewCycle(CycleOptions{
		Battery:   f.battery,
		Sensors:   sensors,
		Publisher: f.pub,
		Busy:      f.busy,
		Logger:    slog.New(f.logs),
	})
	return f
}

func TestCycle_FirstCyclePublishes(t *testing.T) {
	f := newCycleFixture(snapshot.LayoutBasic, batteryResult{mv: 3700})

	if got := f.pub.Current().BatteryMillivolts; got != 0 {
		t.Fatalf("initial battery = %d, want 0", got)
	}

	f.cycle.Run()

	want := snapshot.Snapshot{
		Layout:              snapshot.LayoutBasic,
		BatteryMillivolts:   3700,
		Temperature:         24.5,
		Humidity:            45.2,
		Pressure:            1013.2,
		PressureTemperature: 25.1,
	}
	if got := f.pub.Current(); got != want {
		t.Errorf("published %+v, want %+v", got, want)
	}
	if f.pub.Count() != 1 {
		t.Errorf("Count() = %d, want 1", f.pub.Count())
	}
	if f.busy.on != 1 || f.busy.off != 1 || f.busy.active {
		t.Errorf("busy on/off = %d/%d active=%v", f.busy.on, f.busy.off, f.busy.active)
	}
	if f.logs.count(slog.LevelInfo, "cycle complete") != 1 {
		t.Errorf("missing cycle summary log")
	}
}

func TestCycle_BatteryFailureKeepsPreviousValue(t *testing.T) {
	f := newCycleFixture(snapshot.LayoutBasic,
		batteryResult{mv: 3700},
		batteryResult{err: errors.New("adc timeout")},
	)

	f.cycle.Run()
	f.ht.temperature, f.ht.humidity = 26.0, 40.0
	f.cycle.Run()

	got := f.pub.Current()
	if got.BatteryMillivolts != 3700 {
		t.Errorf("battery = %d, want 3700 from cycle 1", got.BatteryMillivolts)
	}
	if got.Temperature != 26.0 || got.Humidity != 40.0 {
		t.Errorf("temperature/humidity = %v/%v, want 26/40", got.Temperature, got.Humidity)
	}
	if n := f.logs.count(slog.LevelWarn, "failed to read battery voltage"); n != 1 {
		t.Errorf("battery warnings = %d, want 1", n)
	}
	if f.pub.Count() != 2 {
		t.Errorf("Count() = %d, want 2", f.pub.Count())
	}
}

func TestCycle_HumidityFailureWithholdsCompensation(t *testing.T) {
	f := newCycleFixture(snapshot.LayoutAirQuality, batteryResult{mv: 3600})

	f.cycle.Run()
	if len(f.aq.compensation) != 1 {
		t.Fatalf("compensations after good cycle = %d, want 1", len(f.aq.compensation))
	}
	if f.aq.compensation[0] != (compensation{24.5, 45.2}) {
		t.Errorf("compensation input = %+v", f.aq.compensation[0])
	}

	f.ht.err = errBus
	f.p.pressure = 1000.0
	f.aq.co2 = 600
	f.cycle.Run()

	if len(f.aq.compensation) != 1 {
		t.Errorf("compensation applied after humidity failure")
	}
	if f.p.calls != 2 || f.aq.measures != 2 {
		t.Errorf("pressure calls = %d, air-quality measures = %d; want 2 and 2", f.p.calls, f.aq.measures)
	}
	got := f.pub.Current()
	if got.Pressure != 1000.0 || got.CO2 != 600 {
		t.Errorf("pressure/co2 = %v/%d, want 1000/600", got.Pressure, got.CO2)
	}
	if got.Temperature != 24.5 || got.Humidity != 45.2 {
		t.Errorf("temperature/humidity = %v/%v, want previous 24.5/45.2", got.Temperature, got.Humidity)
	}

	f.ht.err = nil
	f.cycle.Run()
	if len(f.aq.compensation) != 2 {
		t.Errorf("compensation not resumed once humidity recovered")
	}
}

func TestCycle_MeasureBeforeCompensate(t *testing.T) {
	f := newCycleFixture(snapshot.LayoutAirQuality, batteryResult{mv: 3600})
	var order []string
	f.aq.order = &order

	f.cycle.Run()
	f.cycle.Run()

	if !slices.Equal(order, []string{"measure", "compensate", "measure", "compensate"}) {
		t.Errorf("order = %v", order)
	}
}

func TestCycle_BasicLayoutOmitsAirQuality(t *testing.T) {
	f := newCycleFixture(snapshot.LayoutBasic, batteryResult{mv: 3700})
	f.cycle.Run()

	buf := make([]byte, 64)
	n, err := f.pub.CopyInto(buf, len(buf))
	if err != nil {
		t.Fatalf("CopyInto: %v", err)
	}
	if n != snapshot.LayoutAirQuality.Size()-4 {
		t.Errorf("encoded size = %d, want %d", n, snapshot.LayoutAirQuality.Size()-4)
	}
}

func TestCycle_PressureFailureContinues(t *testing.T) {
	f := newCycleFixture(snapshot.LayoutAirQuality, batteryResult{mv: 3700})
	f.p.err = errBus

	f.cycle.Run()

	got := f.pub.Current()
	if got.Pressure != 0 || got.PressureTemperature != 0 {
		t.Errorf("pressure fields = %v/%v, want unchanged zero", got.Pressure, got.PressureTemperature)
	}
	if got.CO2 != 415 || len(f.aq.compensation) != 1 {
		t.Errorf("air quality did not proceed after pressure failure")
	}
}

func TestCycle_CountsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	f := newCycleFixture(snapshot.LayoutBasic, batteryResult{err: errBus})
	f.cycle.metrics = m
	f.cycle.orch.metrics = m
	f.ht.err = errBus

	f.cycle.Run()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range mfs {
		found[mf.GetName()] = true
	}
	for _, name := range []string{"envnode_cycles_total", "envnode_read_errors_total"} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}
