package logger

import "go.uber.org/zap"

// Campos estándar HTTP.

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

// Campos de negocio: triggers, propiedades y claims.

// Trigger identifica el trigger de la plataforma (post-authentication, token-generation).
func Trigger(v string) zap.Field { return zap.String("trigger", v) }

// DeliveryID es el id de entrega del evento, para correlación con la plataforma.
func DeliveryID(v string) zap.Field { return zap.String("delivery_id", v) }

// Provider es el identificador del IdP federado (google, github, azure...).
func Provider(v string) zap.Field { return zap.String("provider", v) }

func UserID(v string) zap.Field { return zap.String("user_id", v) }

func PropertyKey(v string) zap.Field { return zap.String("property_key", v) }

// ClaimsAdded es el conteo de claims proyectados en un token-generation.
func ClaimsAdded(v int) zap.Field { return zap.Int("claims_added", v) }

// Genéricos.

func Err(err error) zap.Field { return zap.Error(err) }

func Count(v int) zap.Field { return zap.Int("count", v) }

func Key(v string) zap.Field { return zap.String("key", v) }

func String(k, v string) zap.Field { return zap.String(k, v) }

func Any(k string, v any) zap.Field { return zap.Any(k, v) }
