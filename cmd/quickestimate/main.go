package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"quickestimate/internal/blob"
	"quickestimate/internal/catalog"
	"quickestimate/internal/config"
	"quickestimate/internal/connectors"
	"quickestimate/internal/estimate"
	"quickestimate/internal/extract"
	"quickestimate/internal/listener"
	"quickestimate/internal/metrics"
	"quickestimate/internal/pipeline"
	"quickestimate/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx := context.Background()
	cat := catalog.Default()

	cmd := os.Args[1]
	switch cmd {
	case "estimate:new":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		mode := fs.String("mode", "fixed", "fixed|free")
		name := fs.String("name", "", "estimate name")
		_ = fs.Parse(os.Args[2:])
		m, err := estimate.ParseMode(*mode)
		must(err)
		if strings.TrimSpace(*name) == "" {
			*name = "Untitled estimate"
		}
		est, err := db.CreateEstimate(*name, m, nil, estimate.NewStore(m, cat).List())
		must(err)
		fmt.Printf("estimate created id=%s mode=%s rows=%d\n", est.ID, est.Mode, len(est.Rows))
	case "estimate:list":
		list, err := db.ListEstimates()
		must(err)
		for _, e := range list {
			total := estimate.GrandTotal(e.Rows)
			fmt.Printf("%s  %-6s  rows=%-3d total=%s  updated=%s  %s\n",
				e.ID, e.Mode, len(e.Rows), pipeline.FormatCurrency(total, cfg.CurrencySymbol), e.UpdatedAt, e.Name)
		}
	case "estimate:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "estimate id")
		asJSON := fs.Bool("json", false, "print the summary as JSON")
		_ = fs.Parse(os.Args[2:])
		est := loadEstimate(db, *id)
		summary := estimate.Summarize(est.Rows, cfg.FilterMeters())
		if *asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			must(enc.Encode(summary))
			return
		}
		printSummary(est, summary, cfg.CurrencySymbol)
	case "estimate:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "estimate id")
		size, meters, pcs, rate := rowFlags(fs)
		_ = fs.Parse(os.Args[2:])
		est := loadEstimate(db, *id)
		store := est.NewStore(cat)
		patch, err := parsePatch(*size, *meters, *pcs, *rate)
		must(err)
		row, err := store.AddRow(patch)
		must(err)
		saveStore(db, &est, store)
		fmt.Printf("row added estimate=%s row=%d size=%s\n", est.ID, row.ID, row.SizeFeet)
	case "estimate:update":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "estimate id")
		rowID := fs.Uint64("row", 0, "row id")
		size, meters, pcs, rate := rowFlags(fs)
		_ = fs.Parse(os.Args[2:])
		est := loadEstimate(db, *id)
		store := est.NewStore(cat)
		if _, ok := store.Get(estimate.RowID(*rowID)); !ok {
			must(fmt.Errorf("row %d not found in estimate %s", *rowID, est.ID))
		}
		patch, err := parsePatch(*size, *meters, *pcs, *rate)
		must(err)
		must(store.UpdateRow(estimate.RowID(*rowID), patch))
		saveStore(db, &est, store)
		row, _ := store.Get(estimate.RowID(*rowID))
		calc := estimate.Calculate(row)
		fmt.Printf("row updated estimate=%s row=%d running=%s amount=%s\n",
			est.ID, row.ID, calc.RunningMeters.StringFixed(2), calc.Amount.StringFixed(2))
	case "estimate:remove":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "estimate id")
		rowID := fs.Uint64("row", 0, "row id")
		_ = fs.Parse(os.Args[2:])
		est := loadEstimate(db, *id)
		store := est.NewStore(cat)
		must(store.RemoveRow(estimate.RowID(*rowID)))
		saveStore(db, &est, store)
		fmt.Printf("row removed estimate=%s rows=%d\n", est.ID, store.Len())
	case "estimate:reset":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "estimate id")
		_ = fs.Parse(os.Args[2:])
		est := loadEstimate(db, *id)
		store := est.NewStore(cat)
		store.Reset()
		saveStore(db, &est, store)
		fmt.Printf("estimate reset id=%s rows=%d\n", est.ID, store.Len())
	case "estimate:delete":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "estimate id")
		_ = fs.Parse(os.Args[2:])
		deleted, err := db.DeleteEstimate(*id)
		must(err)
		if !deleted {
			must(fmt.Errorf("%w: %s", storage.ErrEstimateNotFound, *id))
		}
		fmt.Printf("estimate deleted id=%s\n", *id)
	case "estimate:extract", "estimate:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "estimate id")
		inputFlag, inputHelp := "image", "sheet photo (jpg/png/webp)"
		if cmd == "estimate:import" {
			inputFlag, inputHelp = "file", "sheet file (xlsx/pdf/html/txt/csv or a photo)"
		}
		input := fs.String(inputFlag, "", inputHelp)
		unmatched := fs.String("unmatched", cfg.UnmatchedPolicy, "drop|append")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--%s is required", inputFlag))
		}
		policy, err := estimate.ParseUnmatchedPolicy(*unmatched)
		must(err)

		images := imageExtractor(cfg)
		var ex extract.Extractor
		if cmd == "estimate:extract" {
			if images == nil {
				must(pipeline.ErrNoImageExtractor)
			}
			ex = images
		} else {
			ex, err = pipeline.ExtractorForFile(*input, images)
			must(err)
		}

		data, err := os.ReadFile(*input)
		must(err)
		est := loadEstimate(db, *id)
		blobs := openBlobs(ctx, cfg)
		uploadKey := "uploads/" + est.ID + "/" + filepath.Base(*input)
		_, err = blobs.Put(ctx, uploadKey, data, "")
		must(err)

		store := est.NewStore(cat)
		session := estimate.NewSession(store, ex,
			estimate.WithTimeout(cfg.ExtractTimeout()),
			estimate.WithUnmatchedPolicy(policy))
		res, err := session.Extract(ctx, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "extraction failed kind=%s; rows unchanged\n", extract.KindOf(err))
			must(err)
		}
		saveStore(db, &est, store)
		fmt.Printf("extraction applied estimate=%s patched=%d appended=%d dropped=%d upload=%s\n",
			est.ID, len(res.Patched), len(res.Appended), len(res.Dropped), uploadKey)
		for _, d := range res.Dropped {
			fmt.Printf("  dropped size=%s pcs=%s rate=%s\n", d.SizeFeet, d.Pieces, d.Rate)
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "estimate id")
		out := fs.String("out", "", "output xlsx path (empty stores it in the blob store)")
		_ = fs.Parse(os.Args[2:])
		est := loadEstimate(db, *id)
		if strings.TrimSpace(*out) != "" {
			must(pipeline.ExportEstimateToXLSX(est, cfg.FilterMeters(), *out))
			fmt.Printf("exported %d rows to %s\n", len(est.Rows), *out)
			return
		}
		book, err := pipeline.RenderEstimateXLSX(est, cfg.FilterMeters())
		must(err)
		info, err := openBlobs(ctx, cfg).Put(ctx, pipeline.ExportKey(est.ID), book, pipeline.XLSXContentType)
		must(err)
		fmt.Printf("exported %d rows to blob key=%s size=%d\n", len(est.Rows), info.Key, info.Size)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := connectors.Open(ctx, cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, openBlobs(ctx, cfg), conn)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		processor := pipeline.NewProcessingService(db, openBlobs(ctx, cfg), cfg, imageExtractor(cfg),
			pipeline.WithLogger(newLogger()))
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			printProcessResult(res)
			return
		}
		results, err := processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		for _, res := range results {
			printProcessResult(res)
		}
		fmt.Printf("processed pending emails=%d\n", len(results))
	case "mail:listen":
		runListener(cfg, db)
	default:
		usage()
		os.Exit(1)
	}
}

func runListener(cfg config.Config, db *storage.DB) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, logger); err != nil {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
	}

	blobs := openBlobs(ctx, cfg)
	processor := pipeline.NewProcessingService(db, blobs, cfg, imageExtractor(cfg),
		pipeline.WithLogger(logger), pipeline.WithMetrics(m))
	svc := listener.NewService(db, blobs, cfg, processor, listener.WithLogger(logger), listener.WithMetrics(m))
	must(svc.Run(ctx))
}

func rowFlags(fs *flag.FlagSet) (size, meters, pcs, rate *string) {
	size = fs.String("size", "", "size in feet")
	meters = fs.String("meters", "", "size in meters, required for sizes outside the catalog")
	pcs = fs.String("pcs", "", "pieces")
	rate = fs.String("rate", "", "rate per running meter")
	return size, meters, pcs, rate
}

// parsePatch turns flag values into a patch. Blank flags leave the field
// alone. Sizes must be numbers; pieces and rate follow the sheet's lenient
// input rules.
func parsePatch(size, meters, pcs, rate string) (estimate.RowPatch, error) {
	var p estimate.RowPatch
	if v := strings.TrimSpace(size); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return p, fmt.Errorf("invalid --size %q", size)
		}
		p.SizeFeet = &d
	}
	if v := strings.TrimSpace(meters); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return p, fmt.Errorf("invalid --meters %q", meters)
		}
		p.SizeMeters = &d
	}
	if strings.TrimSpace(pcs) != "" {
		p.Pieces = estimate.Int(estimate.ParsePieces(pcs))
	}
	if strings.TrimSpace(rate) != "" {
		p.Rate = estimate.Dec(estimate.ParseRate(rate))
	}
	return p, nil
}

func loadEstimate(db *storage.DB, id string) storage.Estimate {
	if strings.TrimSpace(id) == "" {
		must(fmt.Errorf("--id is required"))
	}
	est, err := db.LoadEstimate(id)
	must(err)
	return est
}

func saveStore(db *storage.DB, est *storage.Estimate, store *estimate.Store) {
	est.Rows = store.List()
	must(db.SaveEstimate(est))
}

func openBlobs(ctx context.Context, cfg config.Config) blob.Store {
	blobs, err := blob.Open(ctx, cfg)
	must(err)
	return blobs
}

// imageExtractor returns nil when no Gemini key is configured.
func imageExtractor(cfg config.Config) extract.Extractor {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil
	}
	return extract.NewGeminiExtractor(cfg)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func printSummary(est storage.Estimate, s estimate.Summary, symbol string) {
	fmt.Printf("estimate %s (%s) %s\n", est.ID, est.Mode, est.Name)
	fmt.Printf("%-6s %8s %8s %6s %10s %10s %14s\n", "row", "size ft", "size m", "pcs", "rate", "running m", "amount")
	for _, r := range s.Rows {
		size := r.SizeMeters.String()
		if r.Custom {
			size += "*"
		}
		fmt.Printf("%-6s %8s %8s %6d %10s %10s %14s\n",
			strconv.FormatUint(uint64(r.ID), 10), r.SizeFeet.String(), size, r.Pieces,
			r.Rate.StringFixed(2), r.RunningMeters.StringFixed(2), pipeline.FormatCurrency(r.Amount, symbol))
	}
	fmt.Printf("total running m: %s\n", s.TotalRunningMeters.StringFixed(2))
	fmt.Printf("grand total: %s\n", pipeline.FormatCurrency(s.GrandTotal, symbol))
	fmt.Printf("running m at %s m: %s\n", s.FilterMeters.String(), s.TotalForSize.StringFixed(2))
	fmt.Printf("running m excluding %s m: %s\n", s.FilterMeters.String(), s.TotalExcludingSize.StringFixed(2))
}

func printProcessResult(res pipeline.ProcessResult) {
	line := fmt.Sprintf("email id=%d status=%s sources=%d patched=%d dropped=%d", res.EmailID, res.Status, res.Sources, res.Patched, res.Dropped)
	if res.EstimateID != "" {
		line += " estimate=" + res.EstimateID
	}
	if res.Failure != nil {
		line += fmt.Sprintf(" failure=%q kind=%s", res.Failure.Error(), extract.KindOf(res.Failure))
	}
	fmt.Println(line)
}

func usage() {
	fmt.Println("usage: quickestimate <command>")
	fmt.Println("commands:")
	fmt.Println("  estimate:new [--mode=fixed|free] [--name=...]")
	fmt.Println("  estimate:list")
	fmt.Println("  estimate:show --id=... [--json]")
	fmt.Println("  estimate:add --id=... [--size=8] [--meters=2.5] [--pcs=4] [--rate=120]")
	fmt.Println("  estimate:update --id=... --row=N [--size=] [--meters=] [--pcs=] [--rate=]")
	fmt.Println("  estimate:remove --id=... --row=N")
	fmt.Println("  estimate:reset --id=...")
	fmt.Println("  estimate:delete --id=...")
	fmt.Println("  estimate:extract --id=... --image=sheet.jpg [--unmatched=drop|append]")
	fmt.Println("  estimate:import --id=... --file=sheet.xlsx [--unmatched=drop|append]")
	fmt.Println("  export:xlsx --id=... [--out=./out/estimate.xlsx]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
