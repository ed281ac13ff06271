// Package telemetry — логирование и метрики сервера.
//
// logging.go настраивает slog из LOG_LEVEL/LOG_FORMAT и переносит
// логгер run'а через context в stage runner. metrics.go регистрирует
// Prometheus метрики, которые сервер отдаёт на /metrics.
package telemetry
