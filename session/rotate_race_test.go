package session

import (
	"context"
	"errors"
	"sync"
	"testing"
)

var errVersionMoved = errors.New("version moved")

func TestRegistryRotateRaceSingleWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, reg *Registry, _ *testClock) {
		ctx := context.Background()
		sess, err := reg.Create(ctx, Identity{UserID: "u-race"}, "")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		presented := sess.TokenVersion

		const workers = 16
		start := make(chan struct{})
		results := make(chan error, workers)
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				<-start
				_, ok, err := reg.Rotate(ctx, sess.SessionID, func(s *Session) error {
					if s.TokenVersion != presented {
						return errVersionMoved
					}
					return nil
				})
				if err == nil && !ok {
					err = ErrNotFound
				}
				results <- err
			}()
		}
		close(start)
		wg.Wait()
		close(results)

		winners := 0
		for err := range results {
			switch {
			case err == nil:
				winners++
			case errors.Is(err, errVersionMoved):
			default:
				t.Fatalf("unexpected rotate error: %v", err)
			}
		}
		if winners != 1 {
			t.Fatalf("expected exactly one winner, got %d", winners)
		}

		got, ok, err := reg.Get(ctx, sess.SessionID)
		if err != nil || !ok {
			t.Fatalf("get: %v %v", ok, err)
		}
		if got.TokenVersion != presented+1 {
			t.Fatalf("expected one bump to %d, got %d", presented+1, got.TokenVersion)
		}
	})
}
