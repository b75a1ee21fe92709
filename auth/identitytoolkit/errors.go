package identitytoolkit

import (
	"strings"

	"github.com/dropDatabas3/hellodoc/auth"
)

// codes traduce los mensajes de la API a códigos auth/*.
var codes = map[string]string{
	"EMAIL_EXISTS":                     auth.CodeEmailExists,
	"INVALID_EMAIL":                    auth.CodeInvalidEmail,
	"MISSING_EMAIL":                    auth.CodeInvalidEmail,
	"OPERATION_NOT_ALLOWED":            auth.CodeOperationNotAllow,
	"PASSWORD_LOGIN_DISABLED":          auth.CodeOperationNotAllow,
	"WEAK_PASSWORD":                    auth.CodeWeakPassword,
	"USER_DISABLED":                    auth.CodeUserDisabled,
	"EMAIL_NOT_FOUND":                  auth.CodeUserNotFound,
	"USER_NOT_FOUND":                   auth.CodeUserNotFound,
	"INVALID_PASSWORD":                 auth.CodeWrongPassword,
	"INVALID_LOGIN_CREDENTIALS":        auth.CodeInvalidCredential,
	"INVALID_IDP_RESPONSE":             auth.CodeInvalidCredential,
	"TOO_MANY_ATTEMPTS_TRY_LATER":      auth.CodeTooManyRequests,
	"INVALID_ID_TOKEN":                 auth.CodeTokenExpired,
	"TOKEN_EXPIRED":                    auth.CodeTokenExpired,
	"INVALID_REFRESH_TOKEN":            auth.CodeTokenExpired,
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN":   auth.CodeRequiresRecent,
	"EXPIRED_OOB_CODE":                 auth.CodeExpiredActionCode,
	"INVALID_OOB_CODE":                 auth.CodeInvalidActionCode,
	"FEDERATED_USER_ID_ALREADY_LINKED": auth.CodeAccountExistsOther,
}

// Translate convierte un mensaje de error de la API ("WEAK_PASSWORD : Password
// should be at least 6 characters") en un *auth.BackendError.
func Translate(apiMessage string) *auth.BackendError {
	key, detail, _ := strings.Cut(apiMessage, " : ")
	key = strings.TrimSpace(key)
	code, ok := codes[key]
	if !ok {
		// código desconocido: se conserva el mensaje original
		return &auth.BackendError{Code: "auth/" + strings.ToLower(strings.ReplaceAll(key, "_", "-")), Message: apiMessage}
	}
	if detail == "" {
		detail = key
	}
	return &auth.BackendError{Code: code, Message: detail}
}
