package tools

import "testing"

func TestReservedEnvVarCount(t *testing.T) {
	if len(reservedEnvVars) != ReservedEnvVarCount {
		t.Fatalf("reservedEnvVars has %d entries, want %d", len(reservedEnvVars), ReservedEnvVarCount)
	}
}

func TestFilterEnv(t *testing.T) {
	in := map[string]string{
		"PATH":       "/usr/bin",
		"API_KEY":    "secret",
		"LD_PRELOAD": "evil.so",
	}
	filtered, dropped := FilterEnv(in)
	if _, ok := filtered["PATH"]; ok {
		t.Error("PATH should have been dropped")
	}
	if _, ok := filtered["LD_PRELOAD"]; ok {
		t.Error("LD_PRELOAD should have been dropped")
	}
	if filtered["API_KEY"] != "secret" {
		t.Error("API_KEY should have been kept")
	}
	if len(dropped) != 2 {
		t.Fatalf("expected 2 dropped keys, got %d: %v", len(dropped), dropped)
	}
}
