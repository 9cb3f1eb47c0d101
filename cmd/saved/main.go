package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fracturedechoes.app/internal/config"
	"fracturedechoes.app/internal/ledger"
	persistlog "fracturedechoes.app/internal/persistence/log"
	"fracturedechoes.app/internal/persistence/slotstore"
	"fracturedechoes.app/internal/session"

	"fracturedechoes.app/internal/persistence/indexdb"
)

func main() {
	var (
		addr       = flag.String("addr", ":8070", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		configPath = flag.String("config", "./configs/saved.yaml", "service config path")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite slot index")
		autosave   = flag.Int("autosave_seconds", -1, "autosave interval override (-1: use config, 0: off)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[saved] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("config not found (%s); using defaults", *configPath)
			cfg = config.Defaults()
		} else {
			logger.Fatalf("load config: %v", err)
		}
	}
	if *autosave >= 0 {
		cfg.AutosaveEverySec = *autosave
	}

	saveDir := cfg.SaveDir
	if !filepath.IsAbs(saveDir) {
		saveDir = filepath.Join(*dataDir, saveDir)
	}
	store, err := slotstore.New(saveDir, cfg.SaveFileExt, cfg.MaxSlots)
	if err != nil {
		logger.Fatalf("open slot store: %v", err)
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open slot index: %v", err)
		}
		defer func() { _ = idx.Close() }()
	}

	journal := persistlog.NewOpJournal(*dataDir)
	defer func() { _ = journal.Close() }()

	sess := session.New(session.Config{
		Store:         store,
		Index:         idx,
		Journal:       journal,
		Logger:        logger,
		AutosaveEvery: time.Duration(cfg.AutosaveEverySec) * time.Second,
		StartLocation: cfg.StartLocation,
	})
	defer sess.Close()

	// Cloud mirror is optional and wired from the environment.
	cloudRT, err := buildCloudRuntime(*dataDir, cfg.Cloud.Prefix, sess, logger)
	if err != nil {
		logger.Fatalf("cloud mirror: %v", err)
	}
	if cloudRT.enabled {
		logger.Printf("cloud mirror enabled identity=%s", cloudRT.identity)
	}

	led := ledger.New()
	if err := ledger.RegisterCodec(sess.Codec()); err != nil {
		logger.Fatalf("register ledger codec: %v", err)
	}
	if err := sess.RegisterEntity(led); err != nil {
		logger.Fatalf("register ledger: %v", err)
	}

	api := newAPI(sess, led, logger)
	if err := sess.Start(); err != nil {
		logger.Fatalf("start session: %v", err)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s (slots=%d save_dir=%s)", *addr, cfg.MaxSlots, saveDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Printf("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
