package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hlog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/BCT-Dylan/hr-management-system/internal/agent"
	"github.com/BCT-Dylan/hr-management-system/internal/api/handler"
	"github.com/BCT-Dylan/hr-management-system/internal/api/router"
	"github.com/BCT-Dylan/hr-management-system/internal/config"
	appCoreLogger "github.com/BCT-Dylan/hr-management-system/internal/logger"
	"github.com/BCT-Dylan/hr-management-system/internal/parser"
	"github.com/BCT-Dylan/hr-management-system/internal/processor"
	"github.com/BCT-Dylan/hr-management-system/internal/status"
	"github.com/BCT-Dylan/hr-management-system/internal/storage"

	hertzadapter "github.com/hertz-contrib/logger/zerolog"
)

func main() {
	var configPath string
	var createConfig string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径，为空时按默认位置查找")
	pflag.StringVar(&createConfig, "create-config", "", "在指定路径生成示例配置文件后退出")
	pflag.Parse()

	if createConfig != "" {
		if err := config.CreateSampleConfig(createConfig); err != nil {
			log.Fatalf("生成示例配置失败: %v", err)
		}
		fmt.Printf("示例配置已写入 %s\n", createConfig)
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	hlog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
	hlog.SetLevel(hertzLogLevel(cfg.Logger.Level))
	appCoreLogger.Info().Str("config", configPath).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		appCoreLogger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}
	defer shutdownTracing()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		appCoreLogger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()
	if storageManager.MySQL == nil {
		appCoreLogger.Fatal().Msg("MySQL未就绪，流水线无法运行")
	}

	statusService := status.NewService(storageManager.MySQL, statusCache(storageManager))

	pipeline, err := buildPipeline(ctx, cfg, storageManager, statusService)
	if err != nil {
		appCoreLogger.Fatal().Err(err).Msg("初始化简历处理流水线失败")
	}

	resumeHandler := handler.NewResumeHandler(pipeline, storageManager.Redis)
	statusHandler := handler.NewStatusHandler(statusService)
	jobHandler := handler.NewJobHandler(storageManager.MySQL)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, cfg, resumeHandler, statusHandler, jobHandler)
	appCoreLogger.Info().Str("address", cfg.Server.Address).Msg("HTTP路由注册成功")

	// 后台巡检卡在processing的记录
	sweepInterval := config.GetDuration(cfg.Pipeline.SweepInterval, 10*time.Minute)
	go runStuckSweeper(ctx, pipeline, sweepInterval)

	go func() {
		if err := h.Run(); err != nil {
			appCoreLogger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appCoreLogger.Info().Msg("接收到终止信号，正在优雅退出")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		appCoreLogger.Error().Err(err).Msg("服务器关闭失败")
	}
	appCoreLogger.Info().Msg("优雅退出完成")
}

// buildPipeline 按配置装配文档提取、信息提取、适配度评分和存储组件。
// OpenAI密钥未配置时跳过LLM组件，流水线退化为纯解析入库。
func buildPipeline(ctx context.Context, cfg *config.Config, storageManager *storage.Storage, statusService *status.Service) (*processor.ResumeProcessor, error) {
	debug := cfg.Logger.Level == "debug"
	componentLogger := newComponentLogger(debug)

	extractor, err := parser.NewDocumentExtractor(ctx, parser.WithExtractorLogger(componentLogger))
	if err != nil {
		return nil, fmt.Errorf("创建文档提取器失败: %w", err)
	}

	compOpts := []processor.ComponentOpt{
		processor.WithcompExtractor(extractor),
		processor.WithcompRecords(storageManager.MySQL),
	}

	if cfg.OpenAI.APIKey != "" {
		infoModel, err := agent.NewOpenAIChatModel(cfg.OpenAI.APIKey, cfg.GetModelForTask("info_extraction"), cfg.OpenAI.APIURL)
		if err != nil {
			return nil, fmt.Errorf("创建信息提取模型失败: %w", err)
		}
		infoModel.WithRateLimit(cfg.OpenAI.QPM)
		infoExtractor := parser.NewLLMInfoExtractor(infoModel, componentLogger,
			parser.WithExtractionTimeout(config.GetDuration(cfg.InfoExtractor.ExtractionTimeout, 30*time.Second)))
		compOpts = append(compOpts, processor.WithcompInfoextractor(infoExtractor))

		scorerModel, err := agent.NewOpenAIChatModel(cfg.OpenAI.APIKey, cfg.GetModelForTask("fit_scoring"), cfg.OpenAI.APIURL)
		if err != nil {
			return nil, fmt.Errorf("创建评分模型失败: %w", err)
		}
		scorerModel.WithRateLimit(cfg.OpenAI.QPM)
		scorer := parser.NewLLMFitScorer(scorerModel, componentLogger,
			parser.WithInfoExtractor(infoExtractor),
			parser.WithEvalTimeout(config.GetDuration(cfg.FitScorer.EvalTimeout, 60*time.Second)),
			parser.WithScorerRetry(cfg.FitScorer.MaxRetries, time.Duration(cfg.FitScorer.RetryWaitSeconds)*time.Second))
		compOpts = append(compOpts, processor.WithcompScorer(scorer))
	} else {
		appCoreLogger.Warn().Msg("OpenAI密钥未配置，AI信息提取与适配度评分不可用")
	}

	if storageManager.MinIO != nil {
		compOpts = append(compOpts, processor.WithcompObjects(storageManager.MinIO))
	}
	if storageManager.Redis != nil {
		compOpts = append(compOpts, processor.WithcompLocker(storageManager.Redis))
	}
	compOpts = append(compOpts, processor.WithcompStatuses(statusService))

	setOpts := []processor.SettingOpt{
		processor.WithsetDebug(debug),
		processor.WithsetLogger(log.New(appCoreLogger.Logger, "[Pipeline] ", log.LstdFlags)),
		processor.WithsetReanalyzedelay(config.GetDuration(cfg.Pipeline.ReanalyzeDelay, 0)),
		processor.WithsetStuckthreshold(config.GetDuration(cfg.Pipeline.StuckThreshold, 0)),
	}

	return processor.NewResumeProcessor(compOpts, setOpts), nil
}

// setupTracing 安装OTLP gRPC导出器，未启用时保持noop provider
func setupTracing(ctx context.Context, cfg *config.Config) (func(), error) {
	if !cfg.Tracing.Enabled {
		return func() {}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Tracing.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent("hr-management-system")),
	)
	if err != nil {
		return nil, fmt.Errorf("创建OTLP导出器失败: %w", err)
	}

	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = "hr-management-system"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("创建追踪资源失败: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	appCoreLogger.Info().Str("endpoint", cfg.Tracing.OTLPEndpoint).Msg("链路追踪已启用")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			appCoreLogger.Warn().Err(err).Msg("关闭追踪provider失败")
		}
	}, nil
}

// runStuckSweeper 周期性把卡在processing超过阈值的记录标记为失败
func runStuckSweeper(ctx context.Context, pipeline *processor.ResumeProcessor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fixed, err := pipeline.ReconcileStuck(ctx)
			if err != nil {
				appCoreLogger.Warn().Err(err).Msg("卡住记录巡检失败")
				continue
			}
			if fixed > 0 {
				appCoreLogger.Info().Int("fixed", fixed).Msg("已标记卡住的处理记录为失败")
			}
		}
	}
}

func statusCache(storageManager *storage.Storage) status.Cache {
	if storageManager.Redis == nil {
		return nil
	}
	return storageManager.Redis
}

func newComponentLogger(debug bool) *log.Logger {
	if debug {
		return log.New(os.Stderr, "[Components] ", log.LstdFlags|log.Lshortfile)
	}
	return log.New(io.Discard, "", 0)
}

func hertzLogLevel(level string) hlog.Level {
	switch level {
	case "debug":
		return hlog.LevelDebug
	case "warn":
		return hlog.LevelWarn
	case "error":
		return hlog.LevelError
	default:
		return hlog.LevelInfo
	}
}
