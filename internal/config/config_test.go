package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func TestDefaults(t *testing.T) {
	c, err := Load(newViper())
	if err != nil {
		t.Fatal(err)
	}

	if c.Capacity != 50000 || c.InitialLines != 100 {
		t.Errorf("unexpected sizes %+v", c)
	}
	if c.PollInterval != time.Second || c.ChangeSettle != 50*time.Millisecond {
		t.Errorf("unexpected intervals %+v", c)
	}
	if !c.Follow || !c.Sync || c.FromStart {
		t.Errorf("unexpected toggles %+v", c)
	}
	if c.Output != "text" || c.Level() != logrus.InfoLevel {
		t.Errorf("unexpected output settings %+v", c)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KITSUNE_CAPACITY", "10")
	t.Setenv("KITSUNE_POLL_INTERVAL", "250ms")
	t.Setenv("KITSUNE_SYNC", "false")

	c, err := Load(newViper())
	if err != nil {
		t.Fatal(err)
	}
	if c.Capacity != 10 || c.PollInterval != 250*time.Millisecond || c.Sync {
		t.Errorf("expected env overrides, got %+v", c)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".kitsune.yaml")
	content := "output: json\nlog_level: debug\ninitial_lines: 20\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	c, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}
	if c.Output != "json" || c.Level() != logrus.DebugLevel || c.InitialLines != 20 {
		t.Errorf("expected file values, got %+v", c)
	}

	opts := c.PanelOptions(logrus.New())
	if opts.Tail.InitialLines != 20 || opts.Capacity != c.Capacity {
		t.Errorf("unexpected panel options %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		key   string
		value any
	}{
		{"capacity", 0},
		{"initial_lines", -1},
		{"poll_interval", "0s"},
		{"change_settle", "-1s"},
		{"output", "xml"},
		{"log_level", "loud"},
	}
	for _, tt := range tests {
		v := newViper()
		v.Set(tt.key, tt.value)
		if _, err := Load(v); err == nil {
			t.Errorf("%s=%v: expected validation error", tt.key, tt.value)
		}
	}
}
