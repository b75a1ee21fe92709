package local

import (
	"context"
	"net/url"
	"time"

	"github.com/dropDatabas3/hellodoc/auth"
	"github.com/dropDatabas3/hellodoc/internal/email"
	"github.com/dropDatabas3/hellodoc/internal/logger"
	"github.com/dropDatabas3/hellodoc/internal/password"
	"github.com/dropDatabas3/hellodoc/internal/tokens"
)

// actionGrace: un código vencido se recuerda este tiempo extra para poder
// reportar expired-action-code en lugar de invalid-action-code.
const actionGrace = time.Hour

type actionCode struct {
	kind    auth.OobKind
	uid     string
	email   string
	expires time.Time
}

// SendOobCode genera un código de acción y lo envía por correo.
func (b *Backend) SendOobCode(ctx context.Context, kind auth.OobKind, emailAddr, idToken string) error {
	var (
		uid, to string
		ttl     time.Duration
		tpl     email.Kind
	)
	switch kind {
	case auth.OobVerifyEmail:
		b.mu.RLock()
		acc, _, err := b.verifyLocked(idToken)
		if err == nil {
			uid, to = acc.user.UID, acc.user.Email
		}
		b.mu.RUnlock()
		if err != nil {
			return err
		}
		if to == "" {
			return auth.NewError(auth.CodeInvalidEmail, "MISSING_EMAIL")
		}
		ttl, tpl = b.cfg.VerifyTTL, email.KindVerifyEmail
	case auth.OobPasswordReset:
		if !validEmail(emailAddr) {
			return auth.NewError(auth.CodeInvalidEmail, "INVALID_EMAIL")
		}
		b.mu.RLock()
		id, ok := b.byEmail[normEmail(emailAddr)]
		if ok {
			to = b.users[id].user.Email
		}
		b.mu.RUnlock()
		if !ok {
			if !b.cfg.Enumerable {
				b.log.Debug("password reset for unknown email", logger.Email(emailAddr))
				return nil
			}
			return auth.NewError(auth.CodeUserNotFound, "EMAIL_NOT_FOUND")
		}
		uid = id
		ttl, tpl = b.cfg.ResetTTL, email.KindResetPassword
	default:
		return auth.NewError(auth.CodeOperationNotAllow, "unsupported request type "+string(kind))
	}

	code, err := tokens.New(tokens.Action)
	if err != nil {
		return &auth.BackendError{Code: auth.CodeInternal, Message: "generate action code", Err: err}
	}
	b.codes.Set(tokens.Key(tokens.Action, code), actionCode{kind: kind, uid: uid, email: to, expires: b.now().Add(ttl)}, ttl+actionGrace)

	msg, err := email.Render(tpl, to, email.ActionData{
		AppName: b.cfg.AppName,
		Email:   to,
		Link:    b.actionLink(kind, code),
		Code:    code,
	})
	if err != nil {
		return &auth.BackendError{Code: auth.CodeInternal, Message: "render email", Err: err}
	}
	if err := b.cfg.Mailer.Send(ctx, msg); err != nil {
		b.codes.Delete(tokens.Key(tokens.Action, code))
		return &auth.BackendError{Code: auth.CodeInternal, Message: "email delivery failed", Err: err}
	}
	b.log.Info("action email sent", logger.UserID(uid), logger.Event(string(kind)))
	return nil
}

func (b *Backend) actionLink(kind auth.OobKind, code string) string {
	mode := "verifyEmail"
	if kind == auth.OobPasswordReset {
		mode = "resetPassword"
	}
	base := b.cfg.ActionURL
	if base == "" {
		base = "http://localhost/__/auth/action"
	}
	q := url.Values{"mode": {mode}, "oobCode": {code}}
	return base + "?" + q.Encode()
}

// takeCode valida el código sin consumirlo.
func (b *Backend) takeCode(code string, want auth.OobKind) (actionCode, error) {
	v, ok := b.codes.Get(tokens.Key(tokens.Action, code))
	if !ok {
		return actionCode{}, auth.NewError(auth.CodeInvalidActionCode, "INVALID_OOB_CODE")
	}
	ac := v.(actionCode)
	if ac.kind != want {
		return actionCode{}, auth.NewError(auth.CodeInvalidActionCode, "INVALID_OOB_CODE")
	}
	if b.now().After(ac.expires) {
		b.codes.Delete(tokens.Key(tokens.Action, code))
		return actionCode{}, auth.NewError(auth.CodeExpiredActionCode, "EXPIRED_OOB_CODE")
	}
	return ac, nil
}

// ConfirmPasswordReset aplica la contraseña nueva e invalida las sesiones abiertas.
func (b *Backend) ConfirmPasswordReset(_ context.Context, code, newPassword string) (string, error) {
	ac, err := b.takeCode(code, auth.OobPasswordReset)
	if err != nil {
		return "", err
	}
	if err := b.checkPassword(newPassword); err != nil {
		return "", err
	}
	hash, err := password.Hash(b.cfg.Hash, newPassword)
	if err != nil {
		return "", &auth.BackendError{Code: auth.CodeInternal, Message: "hash password", Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.users[ac.uid]
	if !ok {
		return "", auth.NewError(auth.CodeUserNotFound, "USER_NOT_FOUND")
	}
	if acc.user.Disabled {
		return "", auth.NewError(auth.CodeUserDisabled, "USER_DISABLED")
	}
	acc.pwHash = hash
	acc.gen++
	// el reset prueba control del buzón
	acc.user.EmailVerified = true
	b.codes.Delete(tokens.Key(tokens.Action, code))
	return acc.user.Email, nil
}

// ApplyActionCode consume un código de verificación de email.
func (b *Backend) ApplyActionCode(_ context.Context, code string) error {
	ac, err := b.takeCode(code, auth.OobVerifyEmail)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.users[ac.uid]
	if !ok {
		return auth.NewError(auth.CodeUserNotFound, "USER_NOT_FOUND")
	}
	if normEmail(acc.user.Email) != normEmail(ac.email) {
		// el email cambió desde que se envió el código
		return auth.NewError(auth.CodeInvalidActionCode, "INVALID_OOB_CODE")
	}
	acc.user.EmailVerified = true
	b.codes.Delete(tokens.Key(tokens.Action, code))
	return nil
}
