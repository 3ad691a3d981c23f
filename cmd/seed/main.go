// File: cmd/seed/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"golden-ticket/internal/config"
	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/repository"
	"golden-ticket/internal/infra/db"
	"golden-ticket/internal/infra/db/filestore"
	"golden-ticket/internal/infra/lock"
	red "golden-ticket/internal/infra/redis"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config file (target store)")
	src := flag.String("from", "data/used-codes.json", "legacy used-codes.json to import")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	legacy, err := filestore.New(*src).Load(ctx)
	if err != nil {
		// A degraded read would import nothing and look like success.
		log.Fatalf("read %s: %v", *src, err)
	}

	target, closeStore, err := db.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		log.Fatalf("lock: %v", err)
	}
	defer closeLocker()

	added, skipped, err := importSet(ctx, target, storeLock{locker, cfg.Lock.TTL}, legacy)
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	fmt.Printf("imported %d records into %s (%d already present)\n", added, target.Backend(), skipped)
}

// openLocker builds the locker the service is configured with, so a
// whole-set import and a live redemption never interleave.
func openLocker(ctx context.Context, cfg *config.Config) (repository.Locker, func(), error) {
	if cfg.Lock.Backend == "redis" {
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return red.NewLocker(client), func() { _ = client.Close() }, nil
	}
	return lock.NewLocalLocker(5 * time.Second), func() {}, nil
}

type storeLock struct {
	locker repository.Locker
	ttl    time.Duration
}

// importSet copies every record of src that target does not hold yet.
// Existing records are never overwritten. Whole-set stores are read and
// rewritten under the store lock.
func importSet(ctx context.Context, target repository.RedemptionStore, sl storeLock, src model.RedemptionSet) (added, skipped int, err error) {
	if ins, ok := target.(repository.RecordInserter); ok {
		for _, code := range src.Codes() {
			rec := src[code]
			if rec == nil {
				continue
			}
			if rec.Code == "" {
				rec.Code = code
			}
			ok, err := ins.Insert(ctx, rec)
			if err != nil {
				return added, skipped, fmt.Errorf("insert %s: %w", code, err)
			}
			if ok {
				added++
			} else {
				skipped++
			}
		}
		return added, skipped, nil
	}

	token, err := sl.locker.TryLock(ctx, repository.StoreLockKey, sl.ttl)
	if err != nil {
		return 0, 0, fmt.Errorf("acquire %s: %w", repository.StoreLockKey, err)
	}
	defer func() {
		if uerr := sl.locker.Unlock(context.WithoutCancel(ctx), repository.StoreLockKey, token); uerr != nil {
			log.Printf("unlock %s: %v", repository.StoreLockKey, uerr)
		}
	}()

	current, err := target.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrStoreDegraded) {
			return 0, 0, fmt.Errorf("target unreadable, refusing to overwrite: %w", err)
		}
		return 0, 0, err
	}
	for _, code := range src.Codes() {
		if src[code] == nil {
			continue
		}
		if _, exists := current[code]; exists {
			skipped++
			continue
		}
		current[code] = src[code]
		added++
	}
	if added == 0 {
		return 0, skipped, nil
	}
	return added, skipped, target.Save(ctx, current)
}
