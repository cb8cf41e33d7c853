package engine

import (
	"context"
	"strings"

	"github.com/lockguard/lockguard/internal/secret"
	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/model"
)

// CommonSecretUpdate changes a common secret. Empty fields keep their
// current value; a new Kind requires a NewSecret.
type CommonSecretUpdate struct {
	Name      string
	Kind      model.SecretKind
	NewSecret string
}

// CommonSecrets returns the common secrets in creation order.
func (e *Engine) CommonSecrets() []model.CommonSecret {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.CommonSecret(nil), e.settings.CommonSecrets...)
}

func (e *Engine) commonSecretLocked(id string) *model.CommonSecret {
	for i := range e.settings.CommonSecrets {
		if e.settings.CommonSecrets[i].ID == id {
			return &e.settings.CommonSecrets[i]
		}
	}
	return nil
}

// CreateCommonSecret hashes secretText under a fresh id and stores it.
func (e *Engine) CreateCommonSecret(ctx context.Context, name string, kind model.SecretKind, secretText string) (model.CommonSecret, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.CommonSecret{}, errclass.ErrSecretInvalid.WithMessage("common secret needs a name")
	}
	kind = model.ParseSecretKind(string(kind))
	if err := secret.Validate(kind, secretText); err != nil {
		return model.CommonSecret{}, err
	}
	salt, hash, err := e.verifier.Hash(secretText, "")
	if err != nil {
		return model.CommonSecret{}, err
	}

	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return model.CommonSecret{}, errclass.ErrEngineClosed
	}
	nowMs := e.now().UnixMilli()
	cs := model.CommonSecret{
		ID:         secret.NewCommonSecretID(),
		Name:       name,
		SecretKind: kind,
		Salt:       salt,
		Hash:       hash,
		CreatedAt:  nowMs,
		UpdatedAt:  nowMs,
	}
	e.settings.CommonSecrets = append(e.settings.CommonSecrets, cs)
	e.saveSettingsLocked(fx)
	fx.emit(model.EventSettings, "", 0)
	fx.record(model.EventTypeSecretCreate, "", map[string]any{"id": cs.ID, "name": cs.Name})
	e.mu.Unlock()

	e.log.Info("common secret created", map[string]any{"id": cs.ID})
	_ = e.finish(ctx, fx)
	return cs, nil
}

// UpdateCommonSecret verifies oldSecret and applies upd. The salt and hash
// are only replaced when a new secret is given. Locks created from the
// secret earlier keep the material they copied.
func (e *Engine) UpdateCommonSecret(ctx context.Context, id, oldSecret string, upd CommonSecretUpdate) (model.CommonSecret, error) {
	fx := &effects{}
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		_ = e.finish(ctx, fx)
	}()
	if e.closed {
		return model.CommonSecret{}, errclass.ErrEngineClosed
	}
	cs := e.commonSecretLocked(id)
	if cs == nil {
		return model.CommonSecret{}, errclass.ErrSecretNotFound.WithMessagef("common secret %q", id)
	}
	if !e.verifier.Verify(oldSecret, cs.Salt, cs.Hash) {
		return model.CommonSecret{}, errclass.ErrVerifyFailed.WithMessagef("common secret %q", id)
	}

	kind := cs.SecretKind
	if upd.Kind != "" {
		kind = model.ParseSecretKind(string(upd.Kind))
	}
	salt, hash := cs.Salt, cs.Hash
	switch {
	case upd.NewSecret != "":
		if err := secret.Validate(kind, upd.NewSecret); err != nil {
			return model.CommonSecret{}, err
		}
		s, h, err := e.verifier.Hash(upd.NewSecret, "")
		if err != nil {
			return model.CommonSecret{}, err
		}
		salt, hash = s, h
	case kind != cs.SecretKind:
		return model.CommonSecret{}, errclass.ErrSecretInvalid.WithMessage("changing the secret kind needs a new secret")
	}

	if name := strings.TrimSpace(upd.Name); name != "" {
		cs.Name = name
	}
	cs.SecretKind = kind
	cs.Salt = salt
	cs.Hash = hash
	cs.UpdatedAt = e.now().UnixMilli()
	e.saveSettingsLocked(fx)
	fx.emit(model.EventSettings, "", 0)
	fx.record(model.EventTypeSecretUpdate, "", map[string]any{"id": cs.ID, "rekeyed": upd.NewSecret != ""})
	return *cs, nil
}

// RemoveCommonSecret verifies secretText and deletes the common secret.
func (e *Engine) RemoveCommonSecret(ctx context.Context, id, secretText string) error {
	fx := &effects{}
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		_ = e.finish(ctx, fx)
	}()
	if e.closed {
		return errclass.ErrEngineClosed
	}
	cs := e.commonSecretLocked(id)
	if cs == nil {
		return errclass.ErrSecretNotFound.WithMessagef("common secret %q", id)
	}
	if !e.verifier.Verify(secretText, cs.Salt, cs.Hash) {
		return errclass.ErrVerifyFailed.WithMessagef("common secret %q", id)
	}

	kept := e.settings.CommonSecrets[:0]
	for _, c := range e.settings.CommonSecrets {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	e.settings.CommonSecrets = kept
	e.saveSettingsLocked(fx)
	fx.emit(model.EventSettings, "", 0)
	fx.record(model.EventTypeSecretRemove, "", map[string]any{"id": id})
	return nil
}
