package pool

import (
	"context"
	"testing"
	"time"
)

func TestClampZoomLevel(t *testing.T) {
	tests := []struct {
		name  string
		level int
		want  int
	}{
		{"within range is unchanged", 5, 5},
		{"below minimum clamps to minimum", -10, zoomLevelMin},
		{"above maximum clamps to maximum", 100, zoomLevelMax},
		{"exactly minimum is unchanged", zoomLevelMin, zoomLevelMin},
		{"exactly maximum is unchanged", zoomLevelMax, zoomLevelMax},
		{"zero is unchanged", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampZoomLevel(tt.level); got != tt.want {
				t.Errorf("clampZoomLevel(%d) = %d, want %d", tt.level, got, tt.want)
			}
		})
	}
}

func TestZoomFactorForLevelLocal(t *testing.T) {
	tests := []struct {
		name  string
		level int
		want  float64
	}{
		{"level zero is unit factor", 0, 1.0},
		{"positive level increases factor", 5, 1.5},
		{"negative level decreases factor", -5, 0.5},
		{"extreme negative level clamps to factor floor", -100, zoomFactorMin},
		{"extreme positive level clamps to factor ceiling", 100, zoomFactorMax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := zoomFactorForLevelLocal(tt.level); got != tt.want {
				t.Errorf("zoomFactorForLevelLocal(%d) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestLevelForZoomFactor(t *testing.T) {
	tests := []struct {
		name   string
		factor float64
		want   int
	}{
		{"unit factor is level zero", 1.0, 0},
		{"factor above one rounds to nearest level", 1.3, 3},
		{"factor below one rounds to nearest level", 0.7, -3},
		{"out-of-range factor clamps to minimum level", 0.1, zoomLevelMin},
		{"out-of-range factor clamps to maximum level", 10.0, zoomLevelMax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := levelForZoomFactor(tt.factor); got != tt.want {
				t.Errorf("levelForZoomFactor(%v) = %d, want %d", tt.factor, got, tt.want)
			}
		})
	}
}

func TestZoomGuarded(t *testing.T) {
	tests := []struct {
		name               string
		zoomSyncInProgress bool
		pendingUntilOffset time.Duration
		want               bool
	}{
		{"no sync and no pending window is not guarded", false, -time.Minute, false},
		{"sync in progress is guarded", true, -time.Minute, true},
		{"within the pending-confirm window is guarded", false, time.Minute, true},
		{"pending-confirm window already elapsed is not guarded", false, -time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPool(nil, &recordingHooks{})
			defer p.Close(context.Background())

			var got bool
			p.submit(func() {
				p.zoomSyncInProgress = tt.zoomSyncInProgress
				p.zoomPendingConfirmUntil = time.Now().Add(tt.pendingUntilOffset)
				got = p.zoomGuarded()
			})
			if got != tt.want {
				t.Errorf("zoomGuarded() = %v, want %v", got, tt.want)
			}
		})
	}
}
