// Package cli implements routerctl's command tree: topology declaration,
// starting a flow by publishing cargo to a work class, and inspecting a
// captured packet. Each command dials only the collaborators it needs —
// inspect never touches the broker, declare never touches Postgres.
package cli
