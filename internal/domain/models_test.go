package domain

import (
	"testing"
	"time"

	"dmcore/pkg/e2ee"

	"github.com/google/uuid"
)

func TestCanonicalIsOrderIndependent(t *testing.T) {
	for i := 0; i < 50; i++ {
		a, b := uuid.New(), uuid.New()
		a1, b1 := Canonical(a, b)
		a2, b2 := Canonical(b, a)
		if a1 != a2 || b1 != b2 {
			t.Fatalf("canonical pair differs: (%s,%s) vs (%s,%s)", a1, b1, a2, b2)
		}
		if lessUUID(b1, a1) {
			t.Fatalf("canonical pair not sorted: %s > %s", a1, b1)
		}
	}
}

func TestMessageStateAndEnvelope(t *testing.T) {
	m := Message{RecipientContent: "c", RecipientWrappedKey: "k", RecipientIV: "iv"}
	if m.State() != StateUnread {
		t.Fatalf("expected unread, got %s", m.State())
	}
	if _, ok := m.Envelope().(e2ee.RecipientOnly); !ok {
		t.Fatalf("expected legacy envelope, got %T", m.Envelope())
	}

	now := time.Now()
	m.DeliveredAt = &now
	if m.State() != StateDelivered {
		t.Fatalf("expected delivered, got %s", m.State())
	}
	m.Read, m.ReadAt = true, &now
	if m.State() != StateSeen {
		t.Fatalf("expected seen, got %s", m.State())
	}

	m.SetEnvelope(e2ee.DualEncrypted{
		Recipient: e2ee.Triple{Content: "rc", WrappedKey: "rk", IV: "ri"},
		Sender:    e2ee.Triple{Content: "sc", WrappedKey: "sk", IV: "si"},
	})
	dual, ok := m.Envelope().(e2ee.DualEncrypted)
	if !ok {
		t.Fatalf("expected dual envelope, got %T", m.Envelope())
	}
	if dual.Sender.Content != "sc" || dual.Recipient.IV != "ri" {
		t.Fatalf("unexpected envelope contents: %+v", dual)
	}

	m.SetEnvelope(e2ee.RecipientOnly{Recipient: dual.Recipient})
	if m.SenderContent != nil {
		t.Fatalf("expected sender columns cleared")
	}
}

func TestConversationOther(t *testing.T) {
	a, b := Canonical(uuid.New(), uuid.New())
	c := Conversation{ParticipantA: a, ParticipantB: b}
	if c.Other(a) != b || c.Other(b) != a {
		t.Fatalf("other participant mismatch")
	}
	if c.HasParticipant(uuid.New()) {
		t.Fatalf("stranger reported as participant")
	}
}
