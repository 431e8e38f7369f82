package router

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sitobox/queuerouter/internal/packet"
)

// expandMacroArgs resolves %%ident%% tokens in a PublishArgs pair against
// the packet's own settings fields and Extras. A token that does not match
// a whole field (the substitution is whole-string only, never partial) is
// left literal.
func (c *Core) expandMacroArgs(args packet.PublishArgs, pkt *packet.MessagePacket) packet.PublishArgs {
	return packet.PublishArgs{
		Exchange:   expandToken(args.Exchange, pkt),
		RoutingKey: expandToken(args.RoutingKey, pkt),
	}
}

// expandToken replaces s with the field value named by its %%ident%%
// wrapper, when s is exactly one such token. Any other shape of s (no
// token, partial token, surrounding text) passes through unchanged, since
// the macro grammar is whole-string substitution only.
func expandToken(s string, pkt *packet.MessagePacket) string {
	ident, ok := macroIdent(s)
	if !ok {
		return s
	}
	val, ok := fieldValue(pkt, ident)
	if !ok {
		return s
	}
	return val
}

// macroIdent reports whether s is exactly "%%ident%%" and, if so, returns
// ident.
func macroIdent(s string) (string, bool) {
	const delim = "%%"
	if !strings.HasPrefix(s, delim) || !strings.HasSuffix(s, delim) {
		return "", false
	}
	inner := s[len(delim) : len(s)-len(delim)]
	if inner == "" || strings.Contains(inner, delim) {
		return "", false
	}
	return inner, true
}

// fieldValue resolves ident against the packet's settings fields first,
// then Extras, serializing non-scalar values to JSON.
func fieldValue(pkt *packet.MessagePacket, ident string) (string, bool) {
	s := pkt.Settings

	switch ident {
	case "record_id":
		return s.RecordID, s.RecordID != ""
	case "batch_id":
		return s.BatchID, s.BatchID != ""
	case "task_start":
		return strconv.FormatInt(s.TaskStart, 10), true
	case "abort_status":
		return s.AbortStatus, s.AbortStatus != ""
	case "request_status":
		return s.RequestStatus, s.RequestStatus != ""
	case "request_status_detail":
		return s.RequestStatusDetail, s.RequestStatusDetail != ""
	}

	if s.Extras != nil {
		if v, ok := s.Extras[ident]; ok {
			return scalarOrJSON(v), true
		}
	}
	return "", false
}

// scalarOrJSON renders strings verbatim and JSON-encodes everything else,
// so macro expansion of a struct or slice field degrades to its wire
// representation rather than Go's %v format.
func scalarOrJSON(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
