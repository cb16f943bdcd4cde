package stats

import (
	"testing"
	"time"
)

func TestPrecisionChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if stat.precision != time.Nanosecond {
		t.Fatal("Default precision should be nanos.")
	}

	statp := stat.Precision(time.Millisecond).(*defaultStatsReceiver)
	if stat.precision != time.Nanosecond {
		t.Fatal("Default precision should still nanos.")
	}
	if statp.precision != time.Millisecond {
		t.Fatal("New stat precision should be millis.")
	}
}

func TestScopeChange(t *testing.T) {
	stat := DefaultStatsReceiver().(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("Default scope should be empty.")
	}

	statp := stat.Scope("a/b", "c").(*defaultStatsReceiver)
	if len(stat.scope) != 0 {
		t.Fatal("Default scope should still empty.")
	}
	if len(statp.scope) != 2 || statp.scope[0] != "a_SLASH_b" || statp.scope[1] != "c" {
		t.Fatal("Invalid scope value: ", statp.scope)
	}
	if statp.scopedName("d") != "a_SLASH_b/c/d" {
		t.Fatal("Invalid scope name: " + statp.scopedName("d"))
	}
}

func TestSiblingScopesDoNotShareBacking(t *testing.T) {
	base := DefaultStatsReceiver().Scope("dispatcher").(*defaultStatsReceiver)
	a := base.Scope("a").(*defaultStatsReceiver)
	b := base.Scope("b").(*defaultStatsReceiver)
	if a.scopedName("x") != "dispatcher/a/x" || b.scopedName("x") != "dispatcher/b/x" {
		t.Fatal("Scopes leaked into each other: ", a.scope, b.scope)
	}
}

func TestScopedInstrumentsShareRegistry(t *testing.T) {
	stat := DefaultStatsReceiver()
	stat.Scope("dispatcher").Counter("fetched").Inc(2)
	if c := stat.Counter("dispatcher", "fetched").Count(); c != 2 {
		t.Fatalf("Expected 2, got %d", c)
	}
}

func TestMarshal(t *testing.T) {
	Time = NewTestTime(time.Unix(0, 0), time.Nanosecond*5)
	defer func() { Time = DefaultStatsTime() }()

	reg := NewFinagleStatsRegistry()
	reg.GetOrRegister("counter", NewCounter()).(Counter).Inc(1)
	reg.GetOrRegister("gauge", NewGauge()).(Gauge).Update(2)

	reg.GetOrRegister("latency", NewLatency()).(Latency).Time().Stop()
	Time = NewTestTime(time.Unix(0, 0), time.Nanosecond*10)
	reg.GetOrRegister("latency", NewLatency()).(Latency).Time().Stop()

	bytes, err := reg.(MarshalerPretty).MarshalJSONPretty()
	expected :=
		`{
  "counter": 1,
  "gauge": 2,
  "latency.avg": 7.5,
  "latency.count": 2,
  "latency.max": 10,
  "latency.min": 5,
  "latency.p50": 7.5,
  "latency.p90": 10,
  "latency.p95": 10,
  "latency.p99": 10,
  "latency.p999": 10,
  "latency.p9999": 10,
  "latency.sum": 15
}`
	if string(bytes) != expected {
		t.Fatal("Wrong json marshal output: ", string(bytes), err)
	}
}

func TestRenderClearsLatencies(t *testing.T) {
	stat := DefaultStatsReceiver()
	stat.Counter("counter").Inc(1)
	stat.Latency("latency").Time().Stop()

	rendered := string(stat.Render(false))
	if rendered == "{}" {
		t.Fatal("Expected current stats in render", rendered)
	}
	stat.Render(false)
	if c := stat.Counter("counter").Count(); c != 1 {
		t.Fatal("Counters should survive render, got ", c)
	}
}

func TestNilStatsReceiver(t *testing.T) {
	stat := NilStatsReceiver()
	stat.Scope("a").Counter("b").Inc(1)
	stat.Gauge("g").Update(1)
	stat.Latency("l").Time().Stop()
	if string(stat.Render(true)) != "{}" {
		t.Fatal("Nil receiver should render empty")
	}
}
