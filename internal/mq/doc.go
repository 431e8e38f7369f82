// Package mq is the broker adapter: the only component that touches wire
// state in RabbitMQ.
//
// Includes:
//   - connection.go — connection management with auto-reconnect
//   - publisher.go   — best-effort publish to an exchange/routing key
//   - consumer.go    — multi-queue ConsumePoll loop
//   - topology.go    — passive-then-active declare/bind, delay queues
package mq
