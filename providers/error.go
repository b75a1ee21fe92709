package providers

// Error de un paso del flujo federado. Code sigue la convención auth/*.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error        { return e.Err }
func (e *Error) ErrorCode() string    { return e.Code }
func (e *Error) ErrorMessage() string { return e.Message }

const (
	CodePopupClosed       = "auth/popup-closed-by-user"
	CodeCancelled         = "auth/cancelled-popup-request"
	CodeInvalidCredential = "auth/invalid-credential"
	CodeNetwork           = "auth/network-request-failed"
)
