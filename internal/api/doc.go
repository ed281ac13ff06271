// Package api содержит HTTP API сервер pipeline.
//
// Структура:
//   - handler.go          — Handler с DI (pipeline, tracker, predictor, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, metrics, recovery, CORS)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - pipeline_handler.go — upload, status, clear
//   - status_ws.go        — push статуса через WebSocket
//   - data_handler.go     — превью датасета и сведения о модели
//   - predict_handler.go  — proxy к inference worker'у
//   - run_handler.go      — история запусков
//
// Все маршруты под /api/v1. Ответы в конверте {"data": ...} или
// {"error": {"code", "message"}}; исключение — /predict, который
// отдаёт ответ worker'а без изменений.
package api
