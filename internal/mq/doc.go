// Package mq — опциональный AMQP транспорт pipeline.
//
// Структура:
//   - connection.go — соединение с RabbitMQ и reconnect с backoff
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация trigger'ов и событий статуса
//   - consumer.go   — потребление trigger'ов
//   - relay.go      — пересылка событий tracker'а в mlpipe.status
//
// Типы сообщений:
//   - run.trigger    — запустить pipeline для файла в raw/
//   - status_update  — полный снимок статуса
//   - new_log        — новая запись журнала
//
// Без RABBITMQ_URL сервис работает только через HTTP API.
package mq
