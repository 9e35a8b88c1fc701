package view

import (
	"testing"

	"github.com/fluent-reader/contentpool/internal/types"
)

func TestZoomFactorForLevel(t *testing.T) {
	// The lowest level, -6, gives a factor of 1.0 - 0.6 (about 0.4), above
	// the 0.25 floor. It is computed at run time so its rounding matches
	// zoomFactorForLevel's.
	minLevel := zoomLevelMin
	minLevelFactor := 1.0 + 0.1*float64(minLevel)
	cases := []struct {
		level      int
		wantLevel  int
		wantFactor float64
	}{
		{0, 0, 1.0},
		{5, 5, 1.5},
		{-5, -5, 0.5},
		{100, zoomLevelMax, zoomFactorMax},
		{-100, zoomLevelMin, minLevelFactor},
	}
	for _, c := range cases {
		gotLevel, gotFactor := zoomFactorForLevel(c.level)
		if gotLevel != c.wantLevel {
			t.Errorf("zoomFactorForLevel(%d) level = %d, want %d", c.level, gotLevel, c.wantLevel)
		}
		if gotFactor != c.wantFactor {
			t.Errorf("zoomFactorForLevel(%d) factor = %v, want %v", c.level, gotFactor, c.wantFactor)
		}
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusEmpty:   "empty",
		StatusLoading: "loading",
		StatusReady:   "ready",
		StatusError:   "error",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestNewViewStartsEmpty(t *testing.T) {
	v := New("view-1", nil, noopHooks{})
	if v.Status() != StatusEmpty {
		t.Errorf("expected new view to start empty, got %v", v.Status())
	}
	if v.HasLoadedOnce() {
		t.Error("expected new view to not have loaded once")
	}
	if v.IsActive() {
		t.Error("expected new view to start inactive")
	}
}

func TestRecyclePreservesIdentity(t *testing.T) {
	v := New("view-2", nil, noopHooks{})
	v.articleID = "article-123"
	v.hasLoadedOnce = true
	v.lastUsedAt = 42

	v.Recycle()

	if v.ID() != "view-2" {
		t.Errorf("expected identity preserved, got %q", v.ID())
	}
	if v.articleID != "" {
		t.Errorf("expected articleID cleared, got %q", v.articleID)
	}
	if v.HasLoadedOnce() {
		t.Error("expected hasLoadedOnce cleared by recycle")
	}
	if v.lastUsedAt != 42 {
		t.Errorf("expected lastUsedAt preserved across recycle, got %d", v.lastUsedAt)
	}
}

type noopHooks struct{}

func (noopHooks) OnStatusChange(v *View, status Status) {}
func (noopHooks) OnDOMReady(v *View)                    {}
func (noopHooks) OnLoadError(v *View, err error)        {}
func (noopHooks) OnVideoFullscreen(v *View, on bool)    {}
func (noopHooks) OnInput(v *View, evt types.InputEvent) {}
