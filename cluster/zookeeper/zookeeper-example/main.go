package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/DataDog/zklock/cluster"
	zklocking "github.com/DataDog/zklock/cluster/zookeeper"
)

func main() {
	// Init three locks; each would normally live in a separate process.
	cfg := zklocking.ZooKeeperLockConfig{
		Address: "localhost:2181",
		Path:    "/my/locks",
	}

	var locks []*zklocking.ZooKeeperLock
	for _, label := range []string{"process-1", "process-2", "process-3"} {
		cfg.Label = label
		lock, err := zklocking.NewZooKeeperLock(cfg)
		if err != nil {
			log.Fatal(err)
		}
		locks = append(locks, lock)
	}

	var wg = &sync.WaitGroup{}

	// Get a lock.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tryToUseTheLock(ctx, 1, locks[0])

	// An imaginary second process attempting a lock. This one times out.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), time.Second)
	defer shortCancel()
	tryToUseTheLock(shortCtx, 2, locks[1])

	// Another imaginary process attempting a lock. This one waits, but succeeds
	// after the first lock is relinquished.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if tryToUseTheLock(ctx, 3, locks[2]) {
			releaseTheLock(ctx, 3, locks[2])
		}
	}()

	// The first process releases the lock.
	time.Sleep(time.Second)
	releaseTheLock(ctx, 1, locks[0])

	wg.Wait()
}

func tryToUseTheLock(ctx context.Context, id int, lock cluster.Lock) bool {
	if err := lock.Lock(ctx); err != nil {
		log.Printf("[process %d] error: %s\n", id, err)
		return false
	}

	log.Printf("[process %d] I've got the lock!\n", id)
	return true
}

func releaseTheLock(ctx context.Context, id int, lock cluster.Lock) {
	if err := lock.Unlock(ctx); err != nil {
		log.Printf("[process %d] error: %s\n", id, err)
	} else {
		log.Printf("[process %d] I've released the lock!\n", id)
	}
}
