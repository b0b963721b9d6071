package events

import (
	"math/big"
	"testing"

	"metabond/crypto"
)

type recorder struct{ got []Event }

func (r *recorder) Emit(evt Event) { r.got = append(r.got, evt) }

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(Rebased{Epoch: 1})
	buf.Emit(Rebased{Epoch: 2})
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", buf.Len())
	}
	out := &recorder{}
	buf.Flush(out)
	if len(out.got) != 2 || out.got[0].(Rebased).Epoch != 1 || out.got[1].(Rebased).Epoch != 2 {
		t.Fatalf("unexpected flushed events: %+v", out.got)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer should be empty after flush")
	}
}

func TestBufferDiscard(t *testing.T) {
	var buf Buffer
	buf.Emit(Unstaked{Amount: big.NewInt(1)})
	buf.Discard()
	out := &recorder{}
	if flushed := buf.Flush(out); len(flushed) != 0 || len(out.got) != 0 {
		t.Fatalf("discarded events must not be flushed")
	}
}

func TestBondCreatedEvent(t *testing.T) {
	depositor := crypto.ModuleAddress("alice")
	evt := BondCreated{
		Market:    " usdc ",
		Depositor: depositor,
		Deposit:   big.NewInt(100),
		Payout:    big.NewInt(110),
		Expires:   432000,
	}.Event()
	if evt.Type != TypeBondCreated {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attribute("market") != "usdc" || evt.Attribute("depositor") != depositor.String() {
		t.Fatalf("unexpected attributes %+v", evt.Attributes)
	}
	if evt.Attribute("fee") != "0" || evt.Attribute("expires") != "432000" {
		t.Fatalf("unexpected attributes %+v", evt.Attributes)
	}
}

func TestPermissionToggledOmitsEmptyValuation(t *testing.T) {
	evt := PermissionToggled{Category: 2, Subject: "USDC", Enabled: true}.Event()
	if _, ok := evt.Attributes["valuation"]; ok {
		t.Fatalf("valuation should be omitted when empty")
	}
	if evt.Attribute("category") != "2" || evt.Attribute("enabled") != "true" {
		t.Fatalf("unexpected attributes %+v", evt.Attributes)
	}
}
