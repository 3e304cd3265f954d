package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grid-box-finder-go/internal/config"
	"grid-box-finder-go/internal/exchange"
	"grid-box-finder-go/internal/logger"
	"grid-box-finder-go/internal/metrics"
	"grid-box-finder-go/internal/models"
	"grid-box-finder-go/internal/persistence"
	"grid-box-finder-go/internal/retuner"
	"grid-box-finder-go/internal/risk"
	"grid-box-finder-go/internal/sizer"
	"grid-box-finder-go/internal/statemanager"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	symbol := flag.String("symbol", "", "symbol to run (overrides retuner.symbol)")
	mode := flag.String("mode", "", "running mode: paper or live (overrides retuner.mode)")
	flag.Parse()

	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	if *symbol != "" {
		cfg.Retuner.Symbol = *symbol
	}
	if *mode != "" {
		cfg.Retuner.Mode = *mode
	}
	if err := config.Validate(cfg); err != nil {
		logger.S().Fatalf("配置无效: %v", err)
	}
	if cfg.Retuner.Symbol == "" {
		logger.S().Fatal("必须通过 --symbol 或 retuner.symbol 指定交易对")
	}

	log := logger.InitLogger(cfg.LogConfig)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		logger.S().Errorf("机器人异常退出: %v", err)
		os.Exit(1)
	}
	logger.S().Info("机器人已成功停止，状态已保存。")
}

func run(ctx context.Context, cfg *models.Config, log *zap.Logger) error {
	sym := cfg.Retuner.Symbol

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	initial, err := repo.LoadState(sym)
	if err != nil {
		logger.S().Warnf("无法加载状态: %v，将以全新状态启动。", err)
		initial = nil
	}

	sm := statemanager.NewStateManager(initial, repo, log)
	sm.Start()
	defer sm.Stop()

	apiKey := os.Getenv("BINANCE_API_KEY")
	secretKey := os.Getenv("BINANCE_SECRET_KEY")
	binance := exchange.NewBinanceExchange(apiKey, secretKey, cfg.Exchange, log)

	var (
		market retuner.CandleSource
		orders exchange.OrderExecutor
		paper  *exchange.PaperExchange
	)
	switch cfg.Retuner.Mode {
	case "live":
		if apiKey == "" || secretKey == "" {
			return errors.New("BINANCE_API_KEY 和 BINANCE_SECRET_KEY 环境变量必须被设置")
		}
		logger.S().Infof("--- 启动实盘模式 (%s, testnet=%v) ---", sym, cfg.Exchange.IsTestnet)
		market, orders = binance, binance
	default:
		logger.S().Infof("--- 启动模拟盘模式 (%s, 初始资金 %.2f) ---", sym, cfg.Paper.InitialBalance)
		paper = exchange.NewPaperExchange(binance, cfg.Paper, log)
		market, orders = paper, paper
	}

	gate := risk.NewGate(risk.LimitsFromConfig(cfg.Risk), log)
	planner := sizer.New(binance, sizer.FiltersFromConfig(cfg.Sizer), log)

	r, err := retuner.New(retuner.ConfigFromModels(cfg.Retuner, cfg.Sizer), retuner.Deps{
		Market:    market,
		Orders:    orders,
		Planner:   planner,
		Gate:      gate,
		Publisher: sm,
		Logger:    log,
	}, initial)
	if err != nil {
		return err
	}

	if paper != nil {
		paper.SetFillHandler(r.OnFill)
		if cfg.Paper.StreamPrices {
			stream := exchange.NewKlineStream(cfg.Exchange, sym, cfg.Retuner.Interval, log)
			go func() {
				_ = stream.Run(ctx, func(ev exchange.KlineEvent) {
					paper.ApplyPrice(ev.Symbol, ev.Candle.Close)
				})
			}()
		}
	}

	runErr := r.Run(ctx)

	// 退出前撤销所有挂单，使用独立的超时上下文
	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := orders.CancelAllOrders(cancelCtx, sym); err != nil {
		logger.S().Warnf("退出时撤单失败: %v", err)
	}

	final := r.State()
	sm.Publish(&final)
	if paper != nil {
		acct := paper.Account(sym)
		logger.S().Infof("模拟盘结算: 现金 %.4f, 持仓 %.6f, 已实现盈亏 %.4f, 手续费 %.4f",
			acct.Cash, acct.Position, acct.RealizedPnL, acct.TotalFees)
	}

	if errors.Is(runErr, risk.ErrDailyLossLimitBreached) {
		logger.S().Errorf("触发每日最大亏损限制，机器人已停止: %v", runErr)
		return nil
	}
	return runErr
}
