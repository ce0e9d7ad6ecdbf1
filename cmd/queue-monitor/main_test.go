package main

import (
	"os"
	"testing"
)

func TestSplitTopics(t *testing.T) {
	tests := []struct {
		name string
		spec string
		want []string
	}{
		{
			name: "default pair with dlq twins",
			spec: "items,node_runs",
			want: []string{"items", "items_dlq", "node_runs", "node_runs_dlq"},
		},
		{
			name: "single topic",
			spec: "items",
			want: []string{"items", "items_dlq"},
		},
		{
			name: "whitespace and empty entries",
			spec: " items , ,node_runs",
			want: []string{"items", "items_dlq", "node_runs", "node_runs_dlq"},
		},
		{
			name: "empty spec",
			spec: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitTopics(tt.spec)
			if len(got) != len(tt.want) {
				t.Fatalf("splitTopics(%q) = %v, want %v", tt.spec, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("splitTopics(%q)[%d] = %q, want %q", tt.spec, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("MONITOR_TEST_KEY", "set")
	defer os.Unsetenv("MONITOR_TEST_KEY")

	if got := getEnv("MONITOR_TEST_KEY", "def"); got != "set" {
		t.Errorf("getEnv() = %q, want %q", got, "set")
	}
	if got := getEnv("MONITOR_TEST_MISSING", "def"); got != "def" {
		t.Errorf("getEnv() = %q, want default %q", got, "def")
	}
}

func TestGetEnvInt(t *testing.T) {
	os.Setenv("MONITOR_TEST_INT", "30")
	defer os.Unsetenv("MONITOR_TEST_INT")

	if got := getEnvInt("MONITOR_TEST_INT", 15); got != 30 {
		t.Errorf("getEnvInt() = %d, want 30", got)
	}
	if got := getEnvInt("MONITOR_TEST_INT_MISSING", 15); got != 15 {
		t.Errorf("getEnvInt() = %d, want default 15", got)
	}

	os.Setenv("MONITOR_TEST_INT_BAD", "soon")
	defer os.Unsetenv("MONITOR_TEST_INT_BAD")
	if got := getEnvInt("MONITOR_TEST_INT_BAD", 15); got != 15 {
		t.Errorf("getEnvInt() = %d for malformed value, want default 15", got)
	}
}
