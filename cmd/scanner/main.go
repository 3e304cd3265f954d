package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grid-box-finder-go/internal/classifier"
	"grid-box-finder-go/internal/config"
	"grid-box-finder-go/internal/exchange"
	"grid-box-finder-go/internal/logger"
	"grid-box-finder-go/internal/metrics"
	"grid-box-finder-go/internal/models"
	"grid-box-finder-go/internal/persistence"
	"grid-box-finder-go/internal/reporter"
	"grid-box-finder-go/internal/scanner"
	"grid-box-finder-go/internal/sizer"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	topK := flag.Int("top", 0, "number of candidates to print (overrides scanner.top_k)")
	size := flag.Bool("size", false, "size grid orders for the top candidates")
	noSave := flag.Bool("no-save", false, "do not persist the scan record")
	flag.Parse()

	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	if *topK > 0 {
		cfg.Scanner.TopK = *topK
	}
	if *size {
		cfg.Scanner.SizeCandidates = true
	}

	log := logger.InitLogger(cfg.LogConfig)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				logger.S().Errorf("metrics 服务异常退出: %v", err)
			}
		}()
	}

	// 行情接口只需公开端点，密钥可为空
	binance := exchange.NewBinanceExchange(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"), cfg.Exchange, log)
	var market exchange.MarketData = binance
	if cfg.Redis.Addr != "" {
		store, err := exchange.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			logger.S().Warnf("无法连接 Redis (%s)，K线缓存已禁用: %v", cfg.Redis.Addr, err)
		} else {
			defer store.Close()
			market = exchange.NewCachedMarketData(binance, store, time.Duration(cfg.Redis.TTLSec)*time.Second, log)
		}
	}

	planner := sizer.New(binance, sizer.FiltersFromConfig(cfg.Sizer), log)
	sc := scanner.New(market, classifier.New(cfg.Classifier), cfg.Scanner, cfg.Sizer, planner, log)

	logger.S().Infof("--- 开始扫描 %s 永续合约 ---", cfg.Scanner.Quote)
	report, err := sc.Scan(ctx)
	if err != nil {
		logger.S().Fatalf("扫描失败: %v", err)
	}
	logger.S().Infof("扫描完成: 共 %d 个交易对, 跳过 %d 个, 耗时 %s", report.Scanned, report.Skipped, report.Duration().Round(time.Millisecond))

	top := report.Picks(cfg.Scanner.TopK)
	reporter.RenderCandidates(os.Stdout, top, 0)
	for _, c := range top {
		if plan, ok := report.Plans[c.Symbol]; ok {
			reporter.RenderPlan(os.Stdout, plan)
		}
	}

	if *noSave {
		return
	}
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("无法打开数据库: %v", err)
	}
	defer repo.Close()
	if err := repo.SaveScan(report.Record()); err != nil {
		logger.S().Errorf("保存扫描结果失败: %v", err)
		return
	}
	log.Info("scan record saved", zap.String("runID", report.RunID))
}
