package repository

import "testing"

func TestJSONTextExprByDialectSQLite(t *testing.T) {
	got := jsonTextExprByDialect("sqlite", "metadata", "order_ref")
	want := "json_extract(metadata, '$.\"order_ref\"')"
	if got != want {
		t.Fatalf("sqlite json expr mismatch, want %s got %s", want, got)
	}
}

func TestJSONTextExprByDialectPostgres(t *testing.T) {
	got := jsonTextExprByDialect("postgres", "metadata", "order_ref")
	want := "(metadata::jsonb ->> 'order_ref')"
	if got != want {
		t.Fatalf("postgres json expr mismatch, want %s got %s", want, got)
	}
}

func TestIsSafeJSONKey(t *testing.T) {
	for _, key := range []string{"order_ref", "store.id", "a-b-1"} {
		if !isSafeJSONKey(key) {
			t.Fatalf("key %q should be accepted", key)
		}
	}
	for _, key := range []string{"", "a'b", "x) OR 1=1 --", "with space"} {
		if isSafeJSONKey(key) {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestLikeCondition(t *testing.T) {
	if got := likeCondition(nil, "client_description"); got != "client_description LIKE ?" {
		t.Fatalf("sqlite like condition mismatch, got %s", got)
	}
	if got := likeOperatorByDialect("postgres"); got != "ILIKE" {
		t.Fatalf("postgres like operator want ILIKE got %s", got)
	}
}
