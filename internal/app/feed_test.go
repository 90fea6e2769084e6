package app_test

import (
	"testing"

	"hitest/internal/app"
)

func TestFeedDropsOldestForSlowSubscribers(t *testing.T) {
	feed := app.NewFeed()
	events, cancel := feed.Subscribe()
	defer cancel()

	for i := 0; i < 20; i++ {
		feed.Publish(app.EventSessionStarted, i)
	}

	var got []int
	for len(events) > 0 {
		got = append(got, (<-events).Payload.(int))
	}
	if len(got) == 0 || got[len(got)-1] != 19 {
		t.Fatalf("newest event must survive, got %v", got)
	}
	if got[0] == 0 {
		t.Fatalf("oldest events should have been dropped, got %v", got)
	}
}

func TestFeedCancelUnsubscribes(t *testing.T) {
	feed := app.NewFeed()
	events, cancel := feed.Subscribe()
	if feed.Subscribers() != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if feed.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	if _, ok := <-events; ok {
		t.Fatalf("channel should be closed")
	}
	feed.Publish(app.EventSessionCompleted, nil)
}

func TestNilFeedIsSafe(t *testing.T) {
	var feed *app.Feed
	feed.Publish(app.EventSessionValidity, nil)
}
