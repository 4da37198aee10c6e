package recurrence

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRecurrenceCache_BasicOperations(t *testing.T) {
	cache := NewRecurrenceCache(CacheConfig{
		TTL:             5 * time.Minute,
		MaxEntries:      100,
		CleanupInterval: 1 * time.Minute,
	})
	defer cache.Close()

	rangeStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	rule := Rule{Kind: Weekends}

	// Cache miss first
	result, found := cache.Get("test", rule, nil, rangeStart, rangeEnd)
	if found {
		t.Error("Expected cache miss, got hit")
	}
	if result != nil {
		t.Error("Expected nil result on cache miss")
	}

	want := []time.Time{rangeStart.AddDate(0, 0, 5), rangeStart.AddDate(0, 0, 6)}
	cache.Set("test", rule, nil, rangeStart, rangeEnd, want)

	result, found = cache.Get("test", rule, nil, rangeStart, rangeEnd)
	if !found {
		t.Fatal("Expected cache hit, got miss")
	}
	if len(result) != 2 || !result[0].Equal(want[0]) {
		t.Errorf("Expected %v, got %v", want, result)
	}

	// A different override is a different key
	if _, found := cache.Get("test", rule, []time.Weekday{time.Monday}, rangeStart, rangeEnd); found {
		t.Error("Expected miss for a different override")
	}
}

func TestRecurrenceCache_TTLExpiration(t *testing.T) {
	cache := NewRecurrenceCache(CacheConfig{
		TTL:             50 * time.Millisecond,
		MaxEntries:      100,
		CleanupInterval: time.Hour,
	})
	defer cache.Close()

	rangeStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := rangeStart.AddDate(0, 0, 1)
	rule := Rule{Kind: Daily}

	cache.Set("test", rule, nil, rangeStart, rangeEnd, []time.Time{rangeStart})
	if _, found := cache.Get("test", rule, nil, rangeStart, rangeEnd); !found {
		t.Fatal("Expected cache hit before expiration")
	}

	time.Sleep(80 * time.Millisecond)

	if _, found := cache.Get("test", rule, nil, rangeStart, rangeEnd); found {
		t.Error("Expected cache miss after expiration")
	}
}

func TestRecurrenceCache_MaxEntries(t *testing.T) {
	cache := NewRecurrenceCache(CacheConfig{
		TTL:             time.Hour,
		MaxEntries:      3,
		CleanupInterval: time.Hour,
	})
	defer cache.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		start := base.AddDate(0, 0, i)
		cache.Set("test", Rule{Kind: Daily}, nil, start, start.AddDate(0, 0, 1), nil)
	}

	if stats := cache.Stats(); stats.TotalEntries > 3 {
		t.Errorf("Expected at most 3 entries, got %d", stats.TotalEntries)
	}
}

func TestRecurrenceCache_ConcurrentAccess(t *testing.T) {
	cache := NewRecurrenceCache(DefaultCacheConfig)
	defer cache.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				op := fmt.Sprintf("op-%d", id)
				start := base.AddDate(0, 0, j)
				cache.Set(op, Rule{Kind: Weekdays}, nil, start, start.AddDate(0, 0, 7), []time.Time{start})
				cache.Get(op, Rule{Kind: Weekdays}, nil, start, start.AddDate(0, 0, 7))
			}
		}(i)
	}
	wg.Wait()

	if stats := cache.Stats(); stats.TotalEntries == 0 {
		t.Error("Expected entries after concurrent writes")
	}
}

func TestRecurrenceCache_CloseTwice(t *testing.T) {
	cache := NewRecurrenceCache(DefaultCacheConfig)
	cache.Close()
	cache.Close()
}
