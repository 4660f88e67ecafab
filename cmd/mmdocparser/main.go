package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/go-redis/redis/v8"

	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/config"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/parser"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/queue"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/service"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/storage"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/store"
	"github.com/USTC-KnowledgeComputingLab/MMDocParser/internal/worker"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "submit":
		runSubmit(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "result":
		runResult(os.Args[2:])
	case "formats":
		runFormats()
	case "version":
		fmt.Printf("mmdocparser %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: mmdocparser <command> [options]

commands:
  serve    run the worker pool and staleness sweeper
  submit   submit a parsing task for already-uploaded objects
  status   query task status
  result   fetch the result of a completed task
  formats  list supported document formats
  version  print version`)
}

type deps struct {
	cfg     config.Config
	redis   *redis.Client
	queue   *queue.RedisQueue
	tasks   *store.RedisStore
	objects *storage.GCSStore
	logger  *log.Logger
}

func buildDeps(ctx context.Context, configPath string) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	gcsClient, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &deps{
		cfg:     cfg,
		redis:   rdb,
		queue:   queue.NewRedisQueue(rdb, cfg.Redis.QueueKey),
		tasks:   store.NewRedisStore(rdb, cfg.Redis.StatusPrefix, cfg.Redis.StatusTTL()),
		objects: storage.NewGCSStore(gcsClient, cfg.Storage.Bucket),
		logger:  log.New(os.Stderr, "", 0),
	}, nil
}

func (d *deps) service() *service.Service {
	return service.New(d.cfg.Submit, d.tasks, d.queue, d.objects, parser.DefaultRegistry(), d.logger)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
	defer d.redis.Close()

	pool := worker.NewPool(
		d.cfg.Worker,
		d.cfg.Storage.ResultPrefix,
		d.queue,
		d.tasks,
		d.objects,
		parser.DefaultRegistry(),
		d.logger,
		worker.ParseLogLevel(d.cfg.Logging.Level),
	)

	d.logger.Printf("%s INFO main: serve_start workers=%d queue=%s bucket=%s",
		time.Now().Format(time.RFC3339), d.cfg.Worker.Count, d.cfg.Redis.QueueKey, d.cfg.Storage.Bucket)

	if err := pool.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
	d.logger.Printf("%s INFO main: serve_stop", time.Now().Format(time.RFC3339))
}

func runSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	templateType := fs.String("template", "chemistry", "template type")
	taskType := fs.String("type", "document_analysis", "task type")
	_ = fs.Parse(args)

	refs := fs.Args()
	if len(refs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mmdocparser submit [options] <object-key>...")
		os.Exit(1)
	}

	ctx := context.Background()
	d, err := buildDeps(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		os.Exit(1)
	}
	defer d.redis.Close()

	id, err := d.service().Submit(ctx, refs, *templateType, *taskType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(id)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mmdocparser status [options] <task-id>")
		os.Exit(1)
	}

	ctx := context.Background()
	d, err := buildDeps(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
	defer d.redis.Close()

	info, err := d.service().GetStatus(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(info, "", "  ")
	fmt.Println(string(out))
}

func runResult(args []string) {
	fs := flag.NewFlagSet("result", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mmdocparser result [options] <task-id>")
		os.Exit(1)
	}

	ctx := context.Background()
	d, err := buildDeps(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "result: %v\n", err)
		os.Exit(1)
	}
	defer d.redis.Close()

	res, err := d.service().GetResult(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "result: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(res.Data)
}

func runFormats() {
	for _, name := range parser.DefaultRegistry().SupportedFormats() {
		fmt.Println(name)
	}
}
