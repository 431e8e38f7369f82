package router

import (
	"context"
	"testing"

	"github.com/sitobox/queuerouter/internal/classconfig"
	"github.com/sitobox/queuerouter/internal/packet"
)

func threeStageClasses() map[string]classconfig.ClassConfig {
	return map[string]classconfig.ClassConfig{
		"Start": {
			Kind:         classconfig.KindWork,
			Exchange:     "router.x",
			Queue:        "Start",
			ProcessRoute: []string{"A", "B", "C"},
		},
		"A":              {Kind: classconfig.KindExchange, Exchange: "router.x", Queue: "A"},
		"B":              {Kind: classconfig.KindExchange, Exchange: "router.x", Queue: "B", RetryMax: 2, RetrySeconds: 10},
		"C":              {Kind: classconfig.KindExchange, Exchange: "router.x", Queue: "C"},
		"RequestResults": {Kind: classconfig.KindExchange, Exchange: "router.x", Queue: "RequestResults"},
	}
}

// TestPublishStart_UnknownWorkClass covers the validation path.
func TestPublishStart_UnknownWorkClass(t *testing.T) {
	core, _, _, _ := newTestCore(threeStageClasses())
	_, err := core.PublishStart(context.Background(), "NotAClass", map[string]any{"x": 1})
	if err != ErrUnknownWorkClass {
		t.Fatalf("got err=%v, want ErrUnknownWorkClass", err)
	}
}

func TestPublishStart_MissingCargo(t *testing.T) {
	core, _, _, _ := newTestCore(threeStageClasses())
	_, err := core.PublishStart(context.Background(), "Start", nil)
	if err != ErrMissingInput {
		t.Fatalf("got err=%v, want ErrMissingInput", err)
	}
}

func TestPublishStart_EmptyProcessRoute(t *testing.T) {
	classes := threeStageClasses()
	classes["Empty"] = classconfig.ClassConfig{Kind: classconfig.KindWork, Exchange: "router.x"}
	core, _, _, _ := newTestCore(classes)
	_, err := core.PublishStart(context.Background(), "Empty", map[string]any{"x": 1})
	if err != ErrNoProcessRoute {
		t.Fatalf("got err=%v, want ErrNoProcessRoute", err)
	}
}

// TestPublishStart_PublishesFirstHop checks PublishStart seeds settings and
// immediately publishes to the first route class (property: publishStart
// always results in exactly one publish when the route is non-empty).
func TestPublishStart_PublishesFirstHop(t *testing.T) {
	core, broker, _, _ := newTestCore(threeStageClasses())
	pkt, err := core.PublishStart(context.Background(), "Start", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(broker.published) != 1 {
		t.Fatalf("got %d publishes, want 1", len(broker.published))
	}
	if broker.published[0].routingKey != "A" {
		t.Fatalf("got routing key %q, want A", broker.published[0].routingKey)
	}
	if len(pkt.Settings.History) != 1 || pkt.Settings.History[0] != "A" {
		t.Fatalf("got history %v, want [A]", pkt.Settings.History)
	}
}

// TestFullRouteWalk_S1 drives a full A->B->C walk with no failures,
// asserting the final history equals the fully-consumed process_route
// (testable property 1).
func TestFullRouteWalk_S1(t *testing.T) {
	core, broker, _, _ := newTestCore(threeStageClasses())
	ctx := context.Background()

	pkt, err := core.PublishStart(ctx, "Start", map[string]any{"ok": true})
	if err != nil {
		t.Fatalf("publishStart: %v", err)
	}

	if err := core.PublishNext(ctx, &pkt, nil); err != nil {
		t.Fatalf("publishNext (to B): %v", err)
	}
	if err := core.PublishNext(ctx, &pkt, nil); err != nil {
		t.Fatalf("publishNext (to C): %v", err)
	}
	if err := core.PublishNext(ctx, &pkt, nil); err != nil {
		t.Fatalf("publishNext (terminal): %v", err)
	}

	wantHistory := []string{"A", "B", "C"}
	if len(pkt.Settings.History) != len(wantHistory) {
		t.Fatalf("got history %v, want %v", pkt.Settings.History, wantHistory)
	}
	for i, c := range wantHistory {
		if pkt.Settings.History[i] != c {
			t.Fatalf("got history %v, want %v", pkt.Settings.History, wantHistory)
		}
	}
	if len(broker.published) != 3 {
		t.Fatalf("got %d publishes, want 3 (terminal call publishes nothing)", len(broker.published))
	}
}

// TestPublishAbort_RetryPath_S3 reproduces the spec's worked example: B
// fails once with retry_ready, producing route [A,B,Retry,B,C]; a second
// attempt at B succeeds, leaving history [A,B,Retry,B,C].
func TestPublishAbort_RetryPath_S3(t *testing.T) {
	core, broker, dly, _ := newTestCore(threeStageClasses())
	ctx := context.Background()

	pkt, err := core.PublishStart(ctx, "Start", map[string]any{})
	if err != nil {
		t.Fatalf("publishStart: %v", err)
	}
	if err := core.PublishNext(ctx, &pkt, nil); err != nil { // -> B
		t.Fatalf("publishNext (to B): %v", err)
	}

	pkt.Settings.RetryReady = true
	if err := core.PublishAbort(ctx, &pkt, "B", packet.SitoReturn{Code: "E1", Description: "boom"}, AbortOptions{}); err != nil {
		t.Fatalf("publishAbort: %v", err)
	}

	wantRoute := []string{"A", "B", "Retry", "B", "C"}
	if !stringsEqual(pkt.Settings.ProcessRoute, wantRoute) {
		t.Fatalf("got route %v, want %v", pkt.Settings.ProcessRoute, wantRoute)
	}
	if len(dly.delayed) != 1 {
		t.Fatalf("got %d delayed publishes, want 1", len(dly.delayed))
	}
	if dly.delayed[0].targetRoute != "B" {
		t.Fatalf("got delayed target %q, want B", dly.delayed[0].targetRoute)
	}
	if dly.delayed[0].spec.ExpireDelta != 10 {
		t.Fatalf("got delay seconds %d, want 10", dly.delayed[0].spec.ExpireDelta)
	}
	if pkt.Settings.RetryCount["B"] != 1 {
		t.Fatalf("got retry_count[B]=%d, want 1", pkt.Settings.RetryCount["B"])
	}

	// publishAbort's internal PublishNext call already modeled the delayed
	// redelivery to B; the second attempt at B succeeding is simulated by
	// advancing past it directly.
	if err := core.PublishNext(ctx, &pkt, nil); err != nil { // -> C
		t.Fatalf("publishNext (to C): %v", err)
	}

	wantHistory := []string{"A", "B", "Retry", "B", "C"}
	if !stringsEqual(pkt.Settings.History, wantHistory) {
		t.Fatalf("got history %v, want %v", pkt.Settings.History, wantHistory)
	}
	_ = broker
}

// TestPublishAbort_AbortPath_S4 reproduces the spec's worked example: B
// fails three times against retry_max=2, the third failure aborts.
func TestPublishAbort_AbortPath_S4(t *testing.T) {
	core, _, _, db := newTestCore(threeStageClasses())
	ctx := context.Background()

	pkt, err := core.PublishStart(ctx, "Start", map[string]any{})
	if err != nil {
		t.Fatalf("publishStart: %v", err)
	}
	if err := core.PublishNext(ctx, &pkt, nil); err != nil { // -> B
		t.Fatalf("publishNext (to B): %v", err)
	}

	fail := func() {
		pkt.Settings.RetryReady = true
		if err := core.PublishAbort(ctx, &pkt, "B", packet.SitoReturn{Code: "E1", Description: "boom"}, AbortOptions{}); err != nil {
			t.Fatalf("publishAbort: %v", err)
		}
	}

	// Each fail() call models one delivery to B failing; publishAbort's
	// internal PublishNext call (on the retry path) already models the
	// delayed redelivery to B that the next fail() call reacts to, so no
	// separate PublishNext call belongs between them.
	fail() // 1st failure -> retry (retry_count[B] becomes 1)
	fail() // 2nd failure -> retry (retry_count[B] becomes 2, at max)
	fail() // 3rd failure -> abort (retry_count[B] already at max)

	wantRoute := []string{"A", "B", "Retry", "B", "Retry", "B", "Abort", "RequestResults"}
	if !stringsEqual(pkt.Settings.ProcessRoute, wantRoute) {
		t.Fatalf("got route %v, want %v", pkt.Settings.ProcessRoute, wantRoute)
	}
	if pkt.Settings.RetryCount["B"] != 2 {
		t.Fatalf("got retry_count[B]=%d, want 2", pkt.Settings.RetryCount["B"])
	}
	if pkt.Settings.RequestStatus != "ABORTED" {
		t.Fatalf("got request_status %q, want ABORTED", pkt.Settings.RequestStatus)
	}
	if len(db.calls) != 1 {
		t.Fatalf("got %d db publishes, want 1", len(db.calls))
	}
	if db.calls[0].Update.State != "ABORTED" {
		t.Fatalf("got persisted state %q, want ABORTED", db.calls[0].Update.State)
	}
}

// TestPublishAbort_NoRetryReady_AbortsImmediately covers the case where a
// stage fails without requesting a retry: the route should abort on the
// first failure regardless of retry_max.
func TestPublishAbort_NoRetryReady_AbortsImmediately(t *testing.T) {
	core, _, _, _ := newTestCore(threeStageClasses())
	ctx := context.Background()

	pkt, err := core.PublishStart(ctx, "Start", map[string]any{})
	if err != nil {
		t.Fatalf("publishStart: %v", err)
	}
	if err := core.PublishNext(ctx, &pkt, nil); err != nil {
		t.Fatalf("publishNext (to B): %v", err)
	}

	if err := core.PublishAbort(ctx, &pkt, "B", packet.SitoReturn{Code: "E2"}, AbortOptions{}); err != nil {
		t.Fatalf("publishAbort: %v", err)
	}

	wantRoute := []string{"A", "B", "Abort", "RequestResults"}
	if !stringsEqual(pkt.Settings.ProcessRoute, wantRoute) {
		t.Fatalf("got route %v, want %v", pkt.Settings.ProcessRoute, wantRoute)
	}
}

// TestSetBranchClass_InsertsBeforeNextHop covers the notify-branch splice
// used internally by PublishNotify.
func TestSetBranchClass_InsertsBeforeNextHop(t *testing.T) {
	core, _, _, _ := newTestCore(threeStageClasses())
	pkt := &packet.MessagePacket{Settings: packet.Settings{
		ProcessRoute: []string{"A", "B", "C"},
		History:      []string{"A"},
	}}

	if err := core.SetBranchClass(pkt, "Notify1", nil); err != nil {
		t.Fatalf("setBranchClass: %v", err)
	}

	want := []string{"A", "Notify1", "B", "C"}
	if !stringsEqual(pkt.Settings.ProcessRoute, want) {
		t.Fatalf("got route %v, want %v", pkt.Settings.ProcessRoute, want)
	}
}

func TestSetBranchClass_AtRouteEnd(t *testing.T) {
	core, _, _, _ := newTestCore(threeStageClasses())
	pkt := &packet.MessagePacket{Settings: packet.Settings{
		ProcessRoute: []string{"A", "B", "C"},
		History:      []string{"A", "B", "C"},
	}}

	if err := core.SetBranchClass(pkt, "Notify1", nil); err != nil {
		t.Fatalf("setBranchClass: %v", err)
	}

	want := []string{"A", "B", "C", "Notify1"}
	if !stringsEqual(pkt.Settings.ProcessRoute, want) {
		t.Fatalf("got route %v, want %v", pkt.Settings.ProcessRoute, want)
	}
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
