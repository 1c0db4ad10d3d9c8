package model

import (
	"testing"
)

func TestTripleNormalizeDefaultsNamespace(t *testing.T) {
	tr, err := Triple{Agent: "a", Key: "k"}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if tr.Namespace != DefaultNamespace {
		t.Errorf("Namespace = %q, want %q", tr.Namespace, DefaultNamespace)
	}
}

func TestTripleNormalizeRejectsEmptyAgentOrKey(t *testing.T) {
	if _, err := (Triple{Key: "k"}).Normalize(); err == nil {
		t.Error("expected error for empty agent")
	}
	if _, err := (Triple{Agent: "a"}).Normalize(); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestTripleNormalizeRejectsSeparatorByte(t *testing.T) {
	if _, err := (Triple{Agent: "a" + ComponentSeparator + "b", Key: "k"}).Normalize(); err == nil {
		t.Error("expected error for agent containing the separator byte")
	}
	if _, err := (Triple{Agent: "a", Key: "k" + ComponentSeparator + "2"}).Normalize(); err == nil {
		t.Error("expected error for key containing the separator byte")
	}
	if _, err := (Triple{Namespace: "n" + ComponentSeparator, Agent: "a", Key: "k"}).Normalize(); err == nil {
		t.Error("expected error for namespace containing the separator byte")
	}
}

func TestNormalizeScopeRejectsSeparatorByte(t *testing.T) {
	if _, _, err := NormalizeScope("ns", "a"+ComponentSeparator+"b"); err == nil {
		t.Error("expected error for agent containing the separator byte")
	}
	if _, _, err := NormalizeScope("n"+ComponentSeparator, "a"); err == nil {
		t.Error("expected error for namespace containing the separator byte")
	}
}

func TestNormalizeScope(t *testing.T) {
	ns, ag, err := NormalizeScope("", "a1")
	if err != nil {
		t.Fatalf("NormalizeScope() error = %v", err)
	}
	if ns != DefaultNamespace || ag != "a1" {
		t.Errorf("got (%q, %q)", ns, ag)
	}

	if _, _, err := NormalizeScope("ns", ""); err == nil {
		t.Error("expected error for empty agent")
	}
}

func TestTxnStateString(t *testing.T) {
	cases := map[TxnState]string{
		TxnOpen:      "open",
		TxnCommitted: "committed",
		TxnAborted:   "aborted",
		TxnExpired:   "expired",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
