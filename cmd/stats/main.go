// File: cmd/stats/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"golden-ticket/internal/config"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/infra/adapters/alert"
	"golden-ticket/internal/infra/db"
	"golden-ticket/internal/infra/lock"
	"golden-ticket/internal/infra/logging"
	"golden-ticket/internal/usecase"

	"github.com/dustin/go-humanize"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config file")
	campaign := flag.String("campaign", "", "restrict totals to one campaign")
	asJSON := flag.Bool("json", false, "print JSON instead of a table")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.Log.Format = "console"
	cfg.Log.Level = "warn"
	logger := logging.New(cfg.Log, false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeStore, err := db.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	redUC := usecase.NewRedemptionUseCase(store, lock.NewLocalLocker(0), alert.NewLogAlerter(logger),
		usecase.RedemptionOptions{Campaign: cfg.Campaign.Name, Website: cfg.Campaign.Website}, logger)
	sum := redUC.Statistics(ctx, *campaign)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}
	printTable(os.Stdout, store.Backend(), *campaign, sum)
}

func printTable(out io.Writer, backend, campaign string, sum model.StatsSummary) {
	scope := "all campaigns"
	if campaign != "" {
		scope = campaign
	}
	fmt.Fprintf(out, "Golden Ticket redemptions (%s, backend=%s)\n\n", scope, backend)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Codes redeemed\t%s\n", humanize.Comma(int64(sum.TotalCodes)))
	fmt.Fprintf(tw, "Unique e-mails\t%s\n", humanize.Comma(int64(sum.UniqueEmails)))
	_ = tw.Flush()

	section(out, "By campaign", sum.ByCampaign)
	section(out, "By website", sum.ByWebsite)
}

func section(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintf(out, "\n%s\n", title)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "  %s\t%s\n", k, humanize.Comma(int64(counts[k])))
	}
	_ = tw.Flush()
}
