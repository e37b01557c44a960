package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mongodb-labs/data-inflater/contextplus"
	"github.com/mongodb-labs/data-inflater/internal/cluster"
	"github.com/mongodb-labs/data-inflater/internal/inflater"
	"github.com/mongodb-labs/data-inflater/internal/journal"
	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/internal/reporter"
	"github.com/mongodb-labs/data-inflater/internal/webserver"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/mongodb-labs/data-inflater/mtime"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/urfave/cli"
	"github.com/urfave/cli/altsrc"
)

const (
	uriFlag            = "uri"
	dbFlag             = "db"
	collFlag           = "coll"
	targetFlag         = "target"
	sizeFlag           = "size"
	batchSizeFlag      = "batchSize"
	numWorkers         = "numWorkers"
	shardKeyFlag       = "shardKey"
	retryLimitFlag     = "retryLimit"
	sampleSizeFlag     = "sampleSize"
	bucketCapFlag      = "bucketCap"
	docsPerChunkFlag   = "docsPerChunk"
	compressionFlag    = "compression"
	dropTargetFlag     = "dropTarget"
	waitForBalanceFlag = "waitForBalance"
	journalDirFlag     = "journalDir"
	serverPort         = "serverPort"
	serverLingerFlag   = "serverLinger"
	logPath            = "logPath"
	debugFlag          = "debug"
	configFileFlag     = "configFile"
)

const disconnectTimeout = 30 * time.Second

func main() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	ctx := context.Background()

	flags := []cli.Flag{
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  configFileFlag,
			Usage: "path to an optional YAML config file",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  uriFlag,
			Value: "mongodb://localhost:27017",
			Usage: "`URI` of the cluster that holds the source and target collections",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  dbFlag,
			Value: "sample_mflix",
			Usage: "`name` of the database that holds both collections",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  collFlag,
			Value: "movies",
			Usage: "`name` of the source collection",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  targetFlag,
			Value: "movies_big",
			Usage: "`name` of the collection to create and fill",
		}),
		altsrc.NewInt64Flag(cli.Int64Flag{
			Name:  sizeFlag,
			Value: 100_000_000,
			Usage: "`number` of documents to write to the target collection",
		}),
		altsrc.NewInt64Flag(cli.Int64Flag{
			Name:  batchSizeFlag,
			Value: inflater.DefaultBatchSize,
			Usage: "`number` of documents that each batch writes",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  numWorkers,
			Value: inflater.DefaultConcurrency,
			Usage: "`number` of batches to run concurrently",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name: shardKeyFlag,
			Usage: "comma-separated `fields` of a range shard key for the target; " +
				"if unset, the target is not sharded",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  retryLimitFlag,
			Value: inflater.DefaultRetryLimit,
			Usage: "`attempts` to make at each batch before recording it as failed",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  sampleSizeFlag,
			Value: inflater.DefaultSampleSize,
			Usage: "`number` of source documents to sample when profiling the shard key",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  bucketCapFlag,
			Value: inflater.DefaultBucketCap,
			Usage: "maximum `number` of buckets in the shard key's distribution",
		}),
		altsrc.NewInt64Flag(cli.Int64Flag{
			Name:  docsPerChunkFlag,
			Value: inflater.DefaultDocsPerChunk,
			Usage: "approximate `number` of target documents per pre-split chunk",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  compressionFlag,
			Value: string(inflater.DefaultCompression),
			Usage: "block `compressor` for the target: snappy, zstd, zlib, or none",
		}),
		altsrc.NewBoolFlag(cli.BoolFlag{
			Name:  dropTargetFlag,
			Usage: "drop the target collection (and its journal) before starting",
		}),
		altsrc.NewBoolFlag(cli.BoolFlag{
			Name:  waitForBalanceFlag,
			Usage: "after pre-splitting, wait for the balancer to spread chunks across shards",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  journalDirFlag,
			Usage: "`directory` for a journal of finished batches, so a re-run skips them",
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  serverPort,
			Usage: "`port` for the control web server; 0 disables it",
		}),
		altsrc.NewDurationFlag(cli.DurationFlag{
			Name:  serverLingerFlag,
			Value: time.Minute,
			Usage: "how long the control web server keeps serving the final result " +
				"after the run ends; a signal ends the wait early",
		}),
		altsrc.NewStringFlag(cli.StringFlag{
			Name:  logPath,
			Value: "stdout",
			Usage: "logging file `path`",
		}),
		altsrc.NewBoolFlag(cli.BoolFlag{
			Name:  debugFlag,
			Usage: "Turn on debug logging",
		}),
	}

	app := &cli.App{
		Name:  "data-inflater",
		Usage: "fill a collection with documents sampled from another",
		Flags: flags,
		Before: func(cCtx *cli.Context) error {
			confFile := cCtx.String(configFileFlag)

			if len(confFile) > 0 {
				readConfFunc := altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc(configFileFlag))
				return readConfFunc(cCtx)
			}

			return nil
		},
		Action: func(cCtx *cli.Context) error {
			if cCtx.Bool(debugFlag) {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}

			l, err := logger.NewConsoleLogger(cCtx.String(logPath))
			if err != nil {
				return errors.Wrap(err, "setting up logging")
			}

			job, err := handleArgs(cCtx)
			if err != nil {
				return err
			}

			result, err := run(ctx, l, cCtx, job)
			if err != nil {
				return err
			}

			if result.State != inflater.JobCompleted {
				return errors.Errorf("inflation %s", result.State)
			}

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Stack().Msg("Fatal Error")
	}
}

func handleArgs(cCtx *cli.Context) (inflater.InflationJob, error) {
	db := cCtx.String(dbFlag)

	job := inflater.InflationJob{
		Source:       mmongo.Namespace{DB: db, Coll: cCtx.String(collFlag)},
		Target:       mmongo.Namespace{DB: db, Coll: cCtx.String(targetFlag)},
		TargetCount:  cCtx.Int64(sizeFlag),
		BatchSize:    cCtx.Int64(batchSizeFlag),
		Concurrency:  cCtx.Int(numWorkers),
		ShardKey:     expandCommaSeparators(cCtx.String(shardKeyFlag)),
		RetryLimit:   cCtx.Int(retryLimitFlag),
		SampleSize:   cCtx.Int(sampleSizeFlag),
		BucketCap:    cCtx.Int(bucketCapFlag),
		DocsPerChunk: cCtx.Int64(docsPerChunkFlag),
		Compression:  inflater.Compression(strings.ToLower(cCtx.String(compressionFlag))),
		DropTarget:   cCtx.Bool(dropTargetFlag),

		WaitForBalance: cCtx.Bool(waitForBalanceFlag),
	}

	job = job.WithDefaults()

	return job, job.Validate()
}

func run(
	ctx context.Context,
	l *logger.Logger,
	cCtx *cli.Context,
	job inflater.InflationJob,
) (inflater.JobResult, error) {
	backend, err := cluster.Connect(ctx, l, cCtx.String(uriFlag))
	if err != nil {
		return inflater.JobResult{}, err
	}
	defer func() {
		disconnectCtx, cancel := contextplus.WithTimeoutCause(
			context.Background(),
			disconnectTimeout,
			errors.New("disconnecting from the cluster"),
		)
		defer cancel()

		if err := backend.Disconnect(disconnectCtx); err != nil {
			l.Warn().Err(err).Msg("Failed to disconnect.")
		}
	}()

	inf := inflater.New(job, backend, l, reporter.New(l, os.Stdout))

	if dir := cCtx.String(journalDirFlag); dir != "" {
		jrnl, err := journal.Open(l, dir)
		if err != nil {
			return inflater.JobResult{}, err
		}
		defer jrnl.Close()

		inf.WithJournal(jrnl)
	}

	// Canceled on the first signal, which also ends any wait for readers
	// of the final result.
	signalCtx, cancelSignalCtx := context.WithCancel(ctx)
	defer cancelSignalCtx()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	handlerDone := make(chan struct{})
	defer close(handlerDone)

	go handleSignals(l, signals, handlerDone, func() {
		inf.Abort()
		cancelSignalCtx()
	})

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	eg, egCtx := contextplus.ErrGroup(serverCtx)

	var server *webserver.WebServer
	if port := cCtx.Int(serverPort); port > 0 {
		server = webserver.New(port, inf, l)

		eg.Go(func() error {
			return server.Run(egCtx)
		})
	}

	result, runErr := inf.Run(ctx)

	if server != nil && runErr == nil {
		server.SetResult(result)
		lingerForResultReaders(signalCtx, l, cCtx.Duration(serverLingerFlag))
	}

	stopServer()
	if err := eg.Wait(); err != nil {
		l.Warn().Err(err).Msg("Control web server failed.")
	}

	return result, runErr
}

// handleSignals calls onSignal for each signal received until done closes.
func handleSignals(
	l *logger.Logger,
	signals <-chan os.Signal,
	done <-chan struct{},
	onSignal func(),
) {
	for {
		select {
		case sig := <-signals:
			l.Info().Str("signal", sig.String()).Msg("Stopping dispatch. In-flight batches will finish.")
			onSignal()
		case <-done:
			return
		}
	}
}

// lingerForResultReaders keeps the process (and so the control web server)
// alive so that clients can fetch the final result.
func lingerForResultReaders(ctx context.Context, l *logger.Logger, linger time.Duration) {
	if linger <= 0 {
		return
	}

	l.Info().
		Stringer("linger", linger).
		Msg("Run ended. Serving the final result from the control web server until the wait ends or a signal arrives.")

	if err := mtime.Sleep(ctx, linger); err != nil {
		l.Debug().Err(err).Msg("Stopped serving the final result early.")
	}
}

func expandCommaSeparators(in string) []string {
	ret := []string{}
	for _, sub := range strings.Split(in, ",") {
		sub = strings.Trim(sub, " \t")
		if sub != "" {
			ret = append(ret, sub)
		}
	}
	return ret
}
