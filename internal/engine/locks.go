package engine

import (
	"context"
	"strings"

	"github.com/lockguard/lockguard/internal/secret"
	"github.com/lockguard/lockguard/pkg/countdown"
	"github.com/lockguard/lockguard/pkg/entityid"
	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/model"
)

// CreateLock stores a new lock record, replacing any record for the same
// entity. The replaced record's session unlock, trust timer and timer
// anchor are dropped and the new record starts locked.
func (e *Engine) CreateLock(ctx context.Context, req model.LockRequest) (model.LockRecord, error) {
	id, err := entityid.Validate(req.ID)
	if err != nil {
		return model.LockRecord{}, err
	}
	if !req.Kind.Valid() {
		return model.LockRecord{}, errclass.ErrKindInvalid.WithMessagef("unknown entity kind %q", req.Kind)
	}
	policy := model.ParsePolicy(string(req.Policy))
	if policy == model.PolicyTimer && !req.Confirmed {
		return model.LockRecord{}, errclass.ErrConfirmRequired.WithMessage("timer locks cannot be removed until they run out")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = e.dir.Title(ctx, id)
	}

	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return model.LockRecord{}, errclass.ErrEngineClosed
	}

	kind, salt, hash, err := e.secretMaterialLocked(req)
	if err != nil {
		e.mu.Unlock()
		return model.LockRecord{}, err
	}

	nowMs := e.now().UnixMilli()
	rec := model.LockRecord{
		ID:             id,
		Kind:           req.Kind,
		Title:          title,
		SecretKind:     kind,
		Hint:           strings.TrimSpace(req.Hint),
		Salt:           salt,
		Hash:           hash,
		CommonSecretID: req.CommonSecretID,
		Policy:         policy,
		TrustMinutes:   model.ClampMinutes(req.TrustMinutes, e.trustMinutes),
		TimerMinutes:   model.ClampMinutes(req.TimerMinutes, e.timerMinutes),
		CreatedAt:      nowMs,
		UpdatedAt:      nowMs,
	}
	key := rec.Key()

	_, replaced := e.reg.Remove(rec.Kind, rec.ID)
	e.reg.Upsert(rec)
	delete(e.sessionUnlocks, key)
	delete(e.anchors, key)
	e.cancelTrustLocked(key)
	if policy == model.PolicyTimer {
		e.anchorLocked(e.reg.GetByKey(key))
		e.ensureTimerTickLocked()
	}
	e.saveLocksLocked(fx)
	e.ensureCountdownTickLocked()

	fx.emit(model.EventLockCreated, key, 0)
	fx.record(model.EventTypeLockCreate, key, map[string]any{
		"policy":        string(policy),
		"secret_kind":   string(kind),
		"replaced":      replaced,
		"common_secret": req.CommonSecretID != "",
		"trust_minutes": rec.TrustMinutes,
		"timer_minutes": rec.TimerMinutes,
	})
	e.log.Info("lock created", map[string]any{"key": string(key), "policy": string(policy), "replaced": replaced})
	e.mu.Unlock()

	_ = e.finish(ctx, fx)
	return rec, nil
}

// secretMaterialLocked returns the secret kind, salt and hash for req,
// either hashed from its plaintext or copied from a common secret.
func (e *Engine) secretMaterialLocked(req model.LockRequest) (model.SecretKind, string, string, error) {
	if req.CommonSecretID != "" {
		cs := e.commonSecretLocked(req.CommonSecretID)
		if cs == nil {
			return "", "", "", errclass.ErrSecretNotFound.WithMessagef("common secret %q", req.CommonSecretID)
		}
		if req.SecretKind != "" && req.SecretKind != cs.SecretKind {
			return "", "", "", errclass.ErrSecretInvalid.WithMessagef("common secret %q is a %s", cs.ID, cs.SecretKind)
		}
		return cs.SecretKind, cs.Salt, cs.Hash, nil
	}

	kind := model.ParseSecretKind(string(req.SecretKind))
	if err := secret.Validate(kind, req.Secret); err != nil {
		return "", "", "", err
	}
	salt, hash, err := e.verifier.Hash(req.Secret, "")
	if err != nil {
		return "", "", "", err
	}
	return kind, salt, hash, nil
}

// RemoveLock deletes the record for (kind, id) after verifying secret. A
// timer record with budget left cannot be removed; one whose budget ran
// out is expired instead.
func (e *Engine) RemoveLock(ctx context.Context, kind model.EntityKind, id, secretText string) error {
	id = entityid.Normalize(id)
	fx := &effects{}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errclass.ErrEngineClosed
	}
	rec := e.reg.Get(kind, id)
	if rec == nil {
		e.mu.Unlock()
		return errclass.ErrLockNotFound.WithMessagef("%s", model.MakeKey(kind, id))
	}
	key := rec.Key()

	if rec.Policy == model.PolicyTimer {
		if remaining := e.timerRemainingLocked(rec); remaining > 0 {
			e.mu.Unlock()
			return errclass.ErrTimerActive.WithMessagef("%s has %s left", key, countdown.Format(remaining))
		}
		e.expireTimerLocked(key, fx)
		e.mu.Unlock()
		_ = e.finish(ctx, fx)
		return nil
	}

	if !e.verifier.Verify(secretText, rec.Salt, rec.Hash) {
		e.mu.Unlock()
		return errclass.ErrVerifyFailed.WithMessagef("%s", key)
	}

	e.reg.Remove(rec.Kind, rec.ID)
	delete(e.sessionUnlocks, key)
	delete(e.anchors, key)
	e.cancelTrustLocked(key)
	e.saveLocksLocked(fx)
	e.ensureCountdownTickLocked()
	fx.emit(model.EventLockRemoved, key, 0)
	fx.record(model.EventTypeLockRemove, key, map[string]any{"policy": string(rec.Policy)})
	e.log.Info("lock removed", map[string]any{"key": string(key)})
	e.mu.Unlock()

	_ = e.finish(ctx, fx)
	return nil
}
