package engine

import (
	"context"

	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/model"
)

// SettingsUpdate changes engine settings. Nil fields are left alone.
type SettingsUpdate struct {
	TreeCountdownEnabled    *bool
	SearchHideLockedEnabled *bool
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() model.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// UpdateSettings applies upd and persists the settings blob.
func (e *Engine) UpdateSettings(ctx context.Context, upd SettingsUpdate) (model.Settings, error) {
	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return model.Settings{}, errclass.ErrEngineClosed
	}
	if upd.TreeCountdownEnabled != nil {
		e.settings.TreeCountdownEnabled = *upd.TreeCountdownEnabled
	}
	if upd.SearchHideLockedEnabled != nil {
		e.settings.SearchHideLockedEnabled = *upd.SearchHideLockedEnabled
	}
	e.saveSettingsLocked(fx)
	e.ensureCountdownTickLocked()
	fx.emit(model.EventSettings, "", 0)
	out := e.settings.Clone()
	e.mu.Unlock()

	e.log.Info("settings updated", map[string]any{
		"tree_countdown": out.TreeCountdownEnabled,
		"search_hide":    out.SearchHideLockedEnabled,
	})
	_ = e.finish(ctx, fx)
	return out, nil
}
