package main

import (
	"Roger/internal/api/config"
	"Roger/internal/model"
	"Roger/internal/pkg/cron"
	"Roger/internal/pkg/logger"
	"Roger/internal/pkg/minio"
	"Roger/internal/pkg/redis"
	"Roger/internal/wire"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	// 加载配置
	if err := config.LoadConfig(); err != nil {
		log.Error("Fatal error: failed to load configuration", "err", err)
		panic(err)
	}
	cfg := config.Cfg

	// 初始化日志
	logger.InitLogger(cfg.Log)

	// Redis 连接（推送总线、跨进程锁），未启用时跳过
	if err := redis.InitRedis(cfg.Redis); err != nil {
		log.Error("Fatal error: failed to create redis connection", "err", err)
		panic(err)
	}
	defer redis.Close()

	// MinIO 连接（录音上传），未启用时跳过
	if err := minio.Init(cfg.MinIO); err != nil {
		log.Error("Fatal error: failed to initialize MinIO", "err", err)
		panic(err)
	}

	// 依赖注入
	app, err := wire.BuildApplication(cfg)
	if err != nil {
		log.Error("Fatal error: failed to create application", "err", err)
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// 音频服务进入 idle
	var removePrefetch func()
	_ = app.Queue.Sync(func() {
		removePrefetch = app.Audio.Start()
	})

	// 会话恢复与切换
	sessionCh := make(chan struct{}, 1)
	app.Session.SessionChanged.AddListener(func(old *model.Session) {
		reloadCtx := logger.NewTraceContext(ctx, "session")
		_ = app.Queue.Do(app.Streams.Reset)
		if old != nil {
			app.Contacts.Reset(reloadCtx)
		}
		if app.Session.Current() != nil {
			go restore(reloadCtx, app)
		}
		select {
		case sessionCh <- struct{}{}:
		default:
		}
	})
	bootCtx := logger.NewTraceContext(ctx, "boot")
	if err = app.Session.Load(bootCtx); err != nil {
		log.ErrorContext(bootCtx, "restore session failed", "err", err)
	}
	if app.Session.Current() != nil {
		go restore(bootCtx, app)
	}

	// 定时任务
	err = cron.InitCron(app.CronMgr)
	if err != nil {
		log.Error("Fatal error: failed to start cron jobs", "err", err)
		panic(err)
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Cron Jobs stopping...")
		app.CronMgr.Stop()
		return nil
	})

	// 推送总线，账号变化时重新订阅
	g.Go(func() error {
		log.Info("Push subscriber starting...")
		return runPush(ctx, app, sessionCh)
	})

	// 本地控制接口
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler: app.Router,
	}
	g.Go(func() error {
		log.Info("HTTP Server starting...", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 优雅退出
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-ctx.Done():
		case sig := <-quit:
			log.Info("Received signal, shutting down...", "signal", sig)
			cancel()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP Server shutdown failed", "err", err)
		}
		return nil
	})

	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("App exited with error", "err", err)
	}

	persistCtx, persistCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer persistCancel()
	if err = app.Streams.Persist(persistCtx); err != nil {
		log.Error("persist streams failed", "err", err)
	}
	_ = app.Queue.Sync(func() {
		removePrefetch()
		app.Audio.Shutdown()
	})
	app.Queue.Close()
	log.Info("App exited successfully.")
}

// restore 先读本地缓存，再从后端刷新
func restore(ctx context.Context, app *wire.ApplicationContainer) {
	if err := app.Streams.Restore(ctx); err != nil {
		log.WarnContext(ctx, "restore stream cache failed", "err", err)
	}
	if err := app.Contacts.Load(ctx); err != nil {
		log.WarnContext(ctx, "load contacts failed", "err", err)
	}
	if err := app.Streams.LoadStreams(ctx); err != nil {
		log.ErrorContext(ctx, "load streams failed", "err", err)
	}
}

func runPush(ctx context.Context, app *wire.ApplicationContainer, sessionCh <-chan struct{}) error {
	for {
		runCtx, stop := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- app.Push.Run(runCtx)
		}()

		select {
		case <-ctx.Done():
			stop()
			<-done
			return nil
		case <-sessionCh:
			stop()
			<-done
			continue
		case err := <-done:
			stop()
			if err != nil {
				log.Warn("push subscriber stopped", "err", err)
			}
		}

		// 等待下次登录
		select {
		case <-ctx.Done():
			return nil
		case <-sessionCh:
		}
	}
}
