package command

import (
	"strings"
	"testing"
)

func TestRegistryResolve(t *testing.T) {
	reg := DefaultRegistry()

	def, ok := reg.Resolve("WEATHER")
	if !ok {
		t.Fatal("expected weather to resolve case-insensitively")
	}
	if def.Name != "weather" || !def.TakesArgument {
		t.Errorf("got %+v", def)
	}

	if _, ok := reg.Resolve("nope"); ok {
		t.Error("expected unknown token not to resolve")
	}
}

func TestRegistryDescribeSorted(t *testing.T) {
	reg := MustRegistry(
		Definition{Name: "zeta"},
		Definition{Name: "Beta"},
		Definition{Name: "alpha"},
	)

	list := reg.Describe()
	if len(list) != 3 {
		t.Fatalf("got %d commands, want 3", len(list))
	}
	want := []string{"alpha", "beta", "zeta"}
	for i, d := range list {
		if d.Name != want[i] {
			t.Errorf("position %d: got %q, want %q", i, d.Name, want[i])
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(Definition{Name: "ping"}, Definition{Name: "PING"}); err == nil {
		t.Error("expected duplicate error")
	}
	if _, err := NewRegistry(Definition{Name: " "}); err == nil {
		t.Error("expected empty name error")
	}
}

func TestHelpLines(t *testing.T) {
	got := DefaultRegistry().HelpLines()
	want := strings.Join([]string{
		"- /feedback <text>: Send feedback to the developer.",
		"- /forecast <city>: Get the current forecast for a city.",
		"- /help: Display this message.",
		"- /uptime: Get the current uptime of this bot.",
		"- /weather <city>: Get the current weather for a city.",
	}, "\n")
	if got != want {
		t.Errorf("help lines:\n%s\nwant:\n%s", got, want)
	}
}

func TestHelpLinesIndependentOfInsertionOrder(t *testing.T) {
	defs := Builtins()
	reversed := make([]Definition, len(defs))
	for i, d := range defs {
		reversed[len(defs)-1-i] = d
	}
	if MustRegistry(defs...).HelpLines() != MustRegistry(reversed...).HelpLines() {
		t.Error("help text depends on insertion order")
	}
}

func TestUsageHidesLabelWithoutArgument(t *testing.T) {
	d := Definition{Name: "uptime", ArgumentLabel: "ignored"}
	if got := d.Usage(); got != "/uptime" {
		t.Errorf("got %q", got)
	}
}
