// Package app はCLIのエントリーポイントと依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cropid/internal/config"
	"github.com/hitoshi/cropid/internal/gateway"
	"github.com/hitoshi/cropid/internal/locale"
	"github.com/hitoshi/cropid/internal/logger"
	"github.com/hitoshi/cropid/internal/metrics"
	"github.com/hitoshi/cropid/internal/news"
	"github.com/hitoshi/cropid/internal/predict"
	"github.com/hitoshi/cropid/internal/security"
	"github.com/hitoshi/cropid/internal/session"
	"github.com/hitoshi/cropid/internal/storage"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// deps はサブコマンド実行に必要な依存関係の束。
type deps struct {
	cfg       *config.Config
	sessions  *session.Store
	locale    *locale.Provider
	gateway   *gateway.Client
	news      *news.Fetcher
	predict   *predict.Client
	sampler   *predict.Sampler
	collector *metrics.Collector
}

// buildDeps は依存関係をワイヤリングする。
// セッションと言語設定は永続化ストレージから復元される。
func buildDeps(cfg *config.Config) (*deps, *prometheus.Registry, error) {
	// 1. 永続化ストレージ
	store, err := storage.New(cfg.StateDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state directory: %w", err)
	}

	// 2. セッションストアと言語プロバイダの復元
	sessions := session.NewStore(store)
	sessions.Restore()

	localeProvider := locale.NewProvider(store, cfg.DefaultLanguage)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. セキュリティサービス
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 5. ゲートウェイクライアント
	gw, err := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
	}, sessions, collector)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build gateway client: %w", err)
	}

	// 6. お知らせフェッチャー
	newsFetcher := news.NewFetcher(news.Config{
		FeedURL:     cfg.NewsFeedURL,
		Timeout:     cfg.NewsTimeout,
		MaxBodySize: cfg.NewsMaxSize,
		MaxItems:    cfg.NewsMaxItems,
		UserAgent:   cfg.UserAgent,
	}, ssrfGuard, sanitizer, collector, slog.Default())

	// 7. 判定クライアント
	predictClient, err := predict.NewClient(predict.Config{
		BaseURL:       cfg.PredictBaseURL,
		Timeout:       cfg.Timeout,
		UploadMaxSize: cfg.UploadMaxSize,
		UserAgent:     cfg.UserAgent,
	}, ssrfGuard, collector, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build predict client: %w", err)
	}

	return &deps{
		cfg:       cfg,
		sessions:  sessions,
		locale:    localeProvider,
		gateway:   gw,
		news:      newsFetcher,
		predict:   predictClient,
		sampler:   predict.NewSampler(time.Now().UnixNano()),
		collector: collector,
	}, registry, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応する処理を実行する。
// argsにはos.Args[1:]を渡す。
// version はリリースバージョン。リリース時にldflagsで上書きされる。
var version = "1.0.0"

func Run(w io.Writer, args []string) error {
	cmd, rest := ParseCommand(args)

	// helpとversionは軽量サブコマンドのため、フル初期化をスキップする
	switch cmd {
	case CommandHelp:
		printUsage(os.Stdout)
		return nil
	case CommandVersion:
		fmt.Fprintf(os.Stdout, "cropid %s\n", version)
		return nil
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting cropid",
		slog.String("command", string(cmd)),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	d, registry, err := buildDeps(cfg)
	if err != nil {
		return err
	}

	// Prometheusスクレイプ用リスナー（アドレス設定時のみ）
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.SetupMetricsRoute(registry),
		}
		go func() {
			slog.Info("metrics listener starting", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics listen error", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}()
	}

	console := newConsole(os.Stdin, os.Stdout)
	ctx := context.Background()

	switch cmd {
	case CommandLogin:
		return runLogin(ctx, d, console)
	case CommandLogout:
		return runLogout(d, console)
	case CommandRegister:
		return runRegister(ctx, d, console)
	case CommandWhoami:
		return runWhoami(d, console)
	case CommandRole:
		return runRole(d, console, rest)
	case CommandDevices:
		return runDevices(ctx, d, console, rest)
	case CommandHistory:
		return runHistory(ctx, d, console, rest)
	case CommandPasswd:
		return runPasswd(ctx, d, console, rest)
	case CommandMFA:
		return runMFA(ctx, d, console, rest)
	case CommandPredict:
		return runPredict(ctx, d, console, rest)
	case CommandNews:
		return runNews(ctx, d, console)
	case CommandLang:
		return runLang(d, console, rest)
	default:
		printUsage(os.Stdout)
		return nil
	}
}

// printUsage は使い方を表示する。
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cropid <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  login                     log in (completes MFA verification when required)")
	fmt.Fprintln(w, "  logout                    discard the local session")
	fmt.Fprintln(w, "  register                  create a new account")
	fmt.Fprintln(w, "  whoami                    show the current session")
	fmt.Fprintln(w, "  role [name]               show or switch the active role")
	fmt.Fprintln(w, "  devices [list|add|trust|untrust|remove]")
	fmt.Fprintln(w, "                            manage trusted devices")
	fmt.Fprintln(w, "  history [page]            show login history")
	fmt.Fprintln(w, "  passwd [change|reset|reset-verify]")
	fmt.Fprintln(w, "                            change or reset the password")
	fmt.Fprintln(w, "  mfa [setup|disable]       manage multi-factor authentication")
	fmt.Fprintln(w, "  predict <file|--url URL>  identify a crop from an image")
	fmt.Fprintln(w, "  news                      show product announcements")
	fmt.Fprintln(w, "  lang [code]               show or switch the display language")
	fmt.Fprintln(w, "  version                   show the version")
	fmt.Fprintln(w, "  help                      show this message")
}
