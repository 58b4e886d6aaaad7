package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Brokenbass90/by-bot-sub000/internal/app"
	btcfg "github.com/Brokenbass90/by-bot-sub000/internal/config"
	"github.com/Brokenbass90/by-bot-sub000/internal/logger"
)

func main() {
	var (
		cfgPath    = flag.String("config", defaultConfigPath(), "配置文件路径")
		batch      = flag.Bool("batch", false, "执行离线批跑后退出（不启动 HTTP）")
		symbols    = flag.String("symbols", "", "批跑币种，逗号分隔")
		strategies = flag.String("strategies", "", "批跑策略，逗号分隔（默认全部启用策略）")
		start      = flag.String("start", "", "批跑起点（YYYY-MM-DD，UTC）")
		end        = flag.String("end", "", "批跑终点（YYYY-MM-DD，UTC，不含当日）")
	)
	flag.Parse()

	cfg, err := btcfg.Load(*cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s）", cfg.App.Env)

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *batch {
		startTS, endTS, err := parseWindow(*start, *end)
		if err != nil {
			log.Fatalf("批跑时间窗无效: %v", err)
		}
		if err := application.RunBatch(ctx, splitList(*symbols), splitList(*strategies), startTS, endTS); err != nil {
			log.Fatalf("批跑失败: %v", err)
		}
		return
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("BYBOT_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseWindow(start, end string) (int64, int64, error) {
	from, err := time.ParseInLocation("2006-01-02", start, time.UTC)
	if err != nil {
		return 0, 0, err
	}
	to, err := time.ParseInLocation("2006-01-02", end, time.UTC)
	if err != nil {
		return 0, 0, err
	}
	return from.UnixMilli(), to.UnixMilli(), nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
