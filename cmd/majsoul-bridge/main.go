package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"github.com/KimigaiiWuyi/MajsoulUID/internal/conf"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/lobby"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/push"
	"github.com/KimigaiiWuyi/MajsoulUID/internal/store"
	"github.com/KimigaiiWuyi/MajsoulUID/library/log"
)

var flagconf string // -conf path

func init() {
	flag.StringVar(&flagconf, "conf", "", "config path, e.g. -conf config.yaml")
}

func main() {
	flag.Parse()

	bc, err := conf.Load(flagconf)
	if err != nil {
		panic(err)
	}

	log.Init(
		log.WithAppName(conf.Name),
		log.WithLevel(bc.Log.Level),
		log.WithDirectory(bc.Log.Directory),
		log.WithFormatJson(bc.Log.FormatJson),
		log.WithErrorFile(bc.Log.ErrorFile),
	)
	defer log.Close()
	log.Infof("%s %s starting", conf.Name, conf.Version)

	data, err := store.NewData(bc.Data.DSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	rdb := store.NewRedisClient(
		store.WithAddress(bc.Redis.Addr),
		store.WithPassword(bc.Redis.Password),
		store.WithDB(bc.Redis.DB),
	)
	defer rdb.Close()
	archive := store.NewRecordArchive(rdb, bc.Redis.ArchiveTTL.Std())

	router := push.NewRouter(push.LogSink{}, data.Pushes(),
		bc.Push.MetaBotID, bc.Push.MetaTarget, bc.Push.MirrorToMeta)

	manager := lobby.NewManager(
		lobby.NewDiscovery(bc.Majsoul.BaseURL),
		data.Accounts(),
		lobby.WithCheckInterval(bc.Majsoul.CheckInterval.Std()),
		lobby.WithConnOptions(
			lobby.WithHeartbeatRange(bc.Majsoul.HeartbeatMin.Std(), bc.Majsoul.HeartbeatMax.Std()),
			lobby.WithPushRouter(router),
			lobby.WithGameLogRepo(data.GameLogs()),
			lobby.WithRecordArchive(archive),
			lobby.WithAutoAcceptApplies(bc.Majsoul.AutoAcceptApplies),
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		var maint *lobby.MaintenanceError
		if errors.As(err, &maint) {
			log.Fatalf("server under maintenance: %v", maint)
		}
		if len(manager.Connections()) == 0 {
			log.Fatalf("start: %v", err)
		}
		// 部分账号失败不阻断 巡检会继续重试
		log.Warnf("started with failures: %v", err)
	}

	<-ctx.Done()
	log.Infof("shutting down")
	manager.Stop()
}
