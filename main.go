package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/xerrors"

	"github.com/vulquery/vulquery/config"
	"github.com/vulquery/vulquery/datafeed"
	"github.com/vulquery/vulquery/parser"
	"github.com/vulquery/vulquery/service"
	"github.com/vulquery/vulquery/store"
	"github.com/vulquery/vulquery/utils"
)

const reportFile = "sync_report.json"

var (
	configPath = flag.String("config", "", "path to a YAML config file")
	target     = flag.String("target", "", "target (sync, full, cleanse, dependency, last-sync, report, ping, feeds)")
	force      = flag.Bool("force", false, "sync the modified feed even when it is unchanged (only sync)")
	group      = flag.String("group", "", "group ID (only dependency)")
	artifact   = flag.String("artifact", "", "artifact ID (only dependency)")
	version    = flag.String("version", "", "version (only dependency)")
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return xerrors.Errorf("config error: %w", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		return xerrors.Errorf("logger error: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := datafeed.NewDownloader(
		datafeed.WithDir(cfg.DownloadDir),
		datafeed.WithURLRoot(cfg.FeedURLRoot),
		datafeed.WithPrefix(cfg.FeedPrefix),
		datafeed.WithSuffix(cfg.FeedSuffix),
		datafeed.WithYearRange(cfg.MinYear, cfg.MaxYear),
		datafeed.WithTimeout(cfg.Timeout),
		datafeed.WithRetry(cfg.Retry),
		datafeed.WithWorkers(cfg.Workers),
		datafeed.WithMetaURL(cfg.MetaURL),
		datafeed.WithIndexURL(cfg.IndexURL),
		datafeed.WithLogger(logger),
	)

	if *target == "feeds" {
		years, err := d.AvailableYears(ctx)
		if err != nil {
			return xerrors.Errorf("error in feed listing: %w", err)
		}
		sugar.Infow("Published yearly feeds", "years", years)
		return nil
	}

	db, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return xerrors.Errorf("store error: %w", err)
	}
	defer db.Close()

	svc := service.New(d, parser.NewNVDParser(logger), db,
		service.WithYearRange(cfg.StartYear, cfg.EndYear),
		service.WithWorkers(cfg.Workers),
		service.WithReportPath(filepath.Join(cfg.DownloadDir, reportFile)),
		service.WithLogger(logger),
	)

	var res service.Result
	switch *target {
	case "sync":
		res, err = svc.Sync(ctx, *force)
	case "full":
		res, err = svc.FullSync(ctx)
	case "cleanse":
		res, err = svc.CleanseAndResync(ctx)
	case "dependency":
		fmt.Println(svc.GetDependency(ctx, *group, *artifact, *version))
		return nil
	case "last-sync":
		fmt.Println(svc.LastSyncDate(ctx))
		return nil
	case "report":
		res, err = svc.LastResult()
		if err != nil {
			return xerrors.Errorf("error in report: %w", err)
		}
		sugar.Infow("Last sync", "kind", res.Kind, "status", res.Status, "attempted", res.Attempted,
			"failed", res.Failed, "records", res.Records, "finished", res.FinishedAt, "errors", res.Errors)
		return nil
	case "ping":
		fmt.Println(svc.Ping())
		return nil
	default:
		return xerrors.New("unknown target")
	}
	if err != nil {
		return xerrors.Errorf("error in %s sync: %w", *target, err)
	}

	sugar.Infow("Sync complete", "kind", res.Kind, "status", res.Status,
		"failed", res.Failed, "records", res.Records)
	return nil
}
