package cache

import (
	"testing"
	"time"
)

func TestKeys(t *testing.T) {
	t.Run("generationChangesKey", func(t *testing.T) {
		if CollectionKey("heart", 1) == CollectionKey("heart", 2) {
			t.Fatal("expected different keys per generation")
		}
	})

	t.Run("stableQueryKey", func(t *testing.T) {
		k1 := QueryKey("terms", "heart", 3, "UBERON:0000948", 5)
		k2 := QueryKey("terms", "heart", 3, "UBERON:0000948", 5)
		if k1 != k2 {
			t.Fatalf("expected stable key, got %q vs %q", k1, k2)
		}
		if k1 == QueryKey("terms", "heart", 3, "UBERON:0000948", 6) {
			t.Fatal("zoom should be part of the key")
		}
	})

	t.Run("badgeKeyDiffersByTerm", func(t *testing.T) {
		if BadgeKey("m", 1, "A", 2) == BadgeKey("m", 1, "B", 2) {
			t.Fatal("expected different badge keys per term")
		}
	})
}

func TestManagerRoundTrip(t *testing.T) {
	m, err := NewManager(Config{CollectionCacheSizeMB: 8, CollectionTTL: time.Minute, QueryCacheSize: 4})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	defer m.Close()

	key := CollectionKey("m", 1)
	if _, ok := m.GetCollection(key); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	if err := m.SetCollection(key, []byte("{}")); err != nil {
		t.Fatalf("SetCollection error: %v", err)
	}
	if got, ok := m.GetCollection(key); !ok || string(got) != "{}" {
		t.Fatalf("GetCollection = %q,%v", got, ok)
	}

	m.SetQuery("q", []byte("[]"))
	if got, ok := m.GetQuery("q"); !ok || string(got) != "[]" {
		t.Fatalf("GetQuery = %q,%v", got, ok)
	}
}
