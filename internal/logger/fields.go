package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar. Mantener los nombres estables: se usan en dashboards.

func Op(v string) zap.Field         { return zap.String("op", v) }
func Collection(v string) zap.Field { return zap.String("collection", v) }
func DocID(v string) zap.Field      { return zap.String("doc_id", v) }
func Driver(v string) zap.Field     { return zap.String("driver", v) }
func Provider(v string) zap.Field   { return zap.String("provider", v) }
func UserID(v string) zap.Field     { return zap.String("user_id", v) }
func Event(v string) zap.Field      { return zap.String("event", v) }
func Code(v string) zap.Field       { return zap.String("code", v) }
func Count(v int) zap.Field         { return zap.Int("count", v) }
func Err(err error) zap.Field       { return zap.Error(err) }

// Duration crea un campo para la duración de una operación.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Email: usar con cuidado en prod, sólo se loguea el dominio.
func Email(v string) zap.Field {
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] == '@' {
			return zap.String("email_domain", v[i+1:])
		}
	}
	return zap.String("email_domain", "")
}
