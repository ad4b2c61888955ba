package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/smileynet/fedicache/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Logging
		want    zapcore.Level
		wantErr bool
	}{
		{name: "console info", cfg: config.Logging{Level: "info", Format: "console"}, want: zapcore.InfoLevel},
		{name: "json debug", cfg: config.Logging{Level: "debug", Format: "json"}, want: zapcore.DebugLevel},
		{name: "empty format defaults to console", cfg: config.Logging{Level: "warn"}, want: zapcore.WarnLevel},
		{name: "unknown level", cfg: config.Logging{Level: "loud", Format: "console"}, wantErr: true},
		{name: "unknown format", cfg: config.Logging{Level: "info", Format: "xml"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if !log.Core().Enabled(tt.want) {
				t.Errorf("level %v not enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && log.Core().Enabled(tt.want-1) {
				t.Errorf("level %v enabled below configured %v", tt.want-1, tt.want)
			}
		})
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
