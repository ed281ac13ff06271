// Package cli реализует инструмент командной строки mlpipe.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с API pipeline.
// Работает через HTTP и WebSocket, не импортирует внутренние пакеты
// сервиса.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент API. Инкапсулирует запросы, парсинг ответов
// (DataResponse, ListResponse, ErrorResponse) и подписку на статус
// через WebSocket.
//
//	client := cli.NewClient("http://localhost:8080")
//	status, err := client.Status()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: mlpipe status --json | jq .
//
// ## Commands
//
//   - upload FILE, status [--watch], clear
//   - preview, model, predict
//   - runs: list, show, active
//
// Каждая команда создаётся фабричной функцией, принимающей clientFn и
// outputFn — замыкания для ленивого создания Client и Output после
// парсинга PersistentFlags.
package cli
