package router

import (
	"testing"

	"github.com/sitobox/queuerouter/internal/packet"
)

func TestExpandToken_KnownField(t *testing.T) {
	pkt := &packet.MessagePacket{Settings: packet.Settings{RecordID: "rec-1"}}
	got := expandToken("%%record_id%%", pkt)
	if got != "rec-1" {
		t.Fatalf("got %q, want rec-1", got)
	}
}

func TestExpandToken_Extras(t *testing.T) {
	pkt := &packet.MessagePacket{Settings: packet.Settings{Extras: map[string]any{"region": "eu-west"}}}
	got := expandToken("%%region%%", pkt)
	if got != "eu-west" {
		t.Fatalf("got %q, want eu-west", got)
	}
}

func TestExpandToken_ExtrasNonScalarMarshalsJSON(t *testing.T) {
	pkt := &packet.MessagePacket{Settings: packet.Settings{Extras: map[string]any{"tags": []string{"a", "b"}}}}
	got := expandToken("%%tags%%", pkt)
	if got != `["a","b"]` {
		t.Fatalf("got %q, want [\"a\",\"b\"]", got)
	}
}

func TestExpandToken_UnknownIdentLeftLiteral(t *testing.T) {
	pkt := &packet.MessagePacket{}
	got := expandToken("%%nonexistent%%", pkt)
	if got != "%%nonexistent%%" {
		t.Fatalf("got %q, want literal passthrough", got)
	}
}

func TestExpandToken_NonTokenStringPassesThrough(t *testing.T) {
	pkt := &packet.MessagePacket{Settings: packet.Settings{RecordID: "rec-1"}}
	got := expandToken("plain.exchange", pkt)
	if got != "plain.exchange" {
		t.Fatalf("got %q, want plain.exchange", got)
	}
}

func TestExpandToken_PartialTokenNotSubstituted(t *testing.T) {
	pkt := &packet.MessagePacket{Settings: packet.Settings{RecordID: "rec-1"}}
	got := expandToken("prefix-%%record_id%%", pkt)
	if got != "prefix-%%record_id%%" {
		t.Fatalf("got %q, want unchanged (whole-string substitution only)", got)
	}
}

func TestMacroIdent(t *testing.T) {
	ident, ok := macroIdent("%%foo%%")
	if !ok || ident != "foo" {
		t.Fatalf("got ident=%q ok=%v, want foo/true", ident, ok)
	}
	if _, ok := macroIdent("%%%%"); ok {
		t.Fatalf("empty ident should not match")
	}
	if _, ok := macroIdent("no-token"); ok {
		t.Fatalf("non-token string should not match")
	}
}
