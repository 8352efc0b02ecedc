// Command crawl runs a single crawl session in one process, with no
// Kafka, Redis, or Neo4j dependency: useful for local runs and for
// exercising internal/crawler end to end.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"crawlkit/internal/crawler"
	"crawlkit/internal/events"
	"crawlkit/internal/handlers"
	"crawlkit/internal/queue"
	"crawlkit/internal/robots"
)

func main() {
	seeds := flag.String("seeds", "", "comma-separated seed URLs")
	dbDSN := flag.String("db", "", "optional database/sql DSN for a durable DbUrlList; empty uses an in-memory FifoUrlList")
	tableName := flag.String("table", queue.DefaultTableName, "table name when -db is set")
	interval := flag.Int("interval-ms", 1000, "minimum milliseconds between request starts")
	concurrency := flag.Int("concurrency", 1, "number of independent tick chains")
	userAgent := flag.String("user-agent", "crawlkit", "User-Agent sent on every request")
	flag.Parse()

	seedURLs := splitSeeds(*seeds)
	if len(seedURLs) == 0 {
		log.Fatal("at least one -seeds URL is required")
	}

	var urlList queue.UrlList
	if *dbDSN != "" {
		db, err := sql.Open("sqlite", *dbDSN)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		urlList = queue.NewDbUrlList(db, *tableName)
	} else {
		urlList = queue.NewFifoUrlList()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records := make([]queue.UrlRecord, len(seedURLs))
	for i, u := range seedURLs {
		records[i] = queue.UrlRecord{URL: u}
	}
	if err := queue.InsertAll(ctx, urlList, records); err != nil {
		log.Fatalf("failed to seed frontier: %v", err)
	}

	registry := handlers.NewRegistry()
	registry.Register(handlers.MatchType("text"), handlers.NewLinkExtractor())

	cfg := crawler.DefaultConfig()
	cfg.Interval = crawler.StaticInt(*interval)
	cfg.ConcurrentRequestsLimit = *concurrency
	cfg.UserAgent = crawler.StaticString(*userAgent)

	bus := events.NewBus(256)
	logCh := bus.Subscribe()
	go logEvents(logCh)

	eng := crawler.New(cfg, urlList, robots.NewMemoryCache(), registry, bus)
	eng.Start(ctx)

	<-ctx.Done()
	eng.Stop()
	eng.Wait()
	bus.Close()

	log.Println("crawl stopped")
}

func splitSeeds(raw string) []string {
	var seeds []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			seeds = append(seeds, s)
		}
	}
	return seeds
}

func logEvents(ch <-chan events.Event) {
	for e := range ch {
		switch e.Kind {
		case events.KindCrawledURL:
			log.Printf("crawled url=%s", e.URL)
		case events.KindLinks:
			log.Printf("links url=%s count=%d", e.URL, len(e.Links))
		case events.KindRedirect:
			log.Printf("redirect url=%s location=%s", e.URL, e.Location)
		case events.KindHTTPError, events.KindHandlersError:
			log.Printf("error url=%s msg=%s", e.URL, e.ErrorMsg)
		case events.KindURLListComplete:
			log.Printf("frontier drained")
		}
	}
}
