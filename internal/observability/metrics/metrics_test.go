package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("purchase_type", "store"),
		attribute.String("email", "a@b.com"),
		attribute.String("session_id", "cs_test_1"),
		attribute.String("currency", " usd "),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "email" || attr.Key == "session_id" {
			t.Fatalf("unexpected high-cardinality label %q", attr.Key)
		}
	}
	if attrs[1].Value.AsString() != "usd" {
		t.Fatalf("expected trimmed currency, got %q", attrs[1].Value.AsString())
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordCheckoutSession(context.Background(), "store", "usd")
	m.RecordReconciliation(context.Background(), "store", "webhook", "applied")
}
