package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"acu-chatbot-go/internal/config"
	"acu-chatbot-go/internal/facts"
	"acu-chatbot-go/internal/handler"
	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/internal/pipeline"
	"acu-chatbot-go/internal/repository"
	"acu-chatbot-go/internal/service"
	"acu-chatbot-go/pkg/database"
	"acu-chatbot-go/pkg/embedding"
	"acu-chatbot-go/pkg/kafka"
	"acu-chatbot-go/pkg/llm"
	"acu-chatbot-go/pkg/log"
	"acu-chatbot-go/pkg/ratelimit"
	"acu-chatbot-go/pkg/storage"
	"acu-chatbot-go/pkg/weather"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 初始化数据库和会话存储
	database.InitDB(cfg.Database)
	var sessionRepo repository.SessionRepository
	switch cfg.Session.Backend {
	case "redis":
		database.InitRedis(cfg.Database.Redis)
		sessionRepo = repository.NewRedisSessionRepository(database.RDB, cfg.Session.Retention)
	default:
		sessionRepo = repository.NewMemorySessionRepository()
	}
	messageRepo := repository.NewMessageRepository(database.DB)

	// 4. 加载意图表
	table, err := pipeline.LoadIntents(cfg.Intents.File)
	if err != nil {
		return fmt.Errorf("加载意图表失败: %w", err)
	}
	threshold := table.KeywordThreshold
	if threshold <= 0 {
		threshold = cfg.Intents.KeywordThreshold
	}
	rules, err := pipeline.NewRuleMatcher(table.Intents, threshold)
	if err != nil {
		return fmt.Errorf("编译意图规则失败: %w", err)
	}
	log.Infof("意图表加载成功, intents: %d", len(table.Intents))

	// 5. 语义层与生成式委托，缺少凭据时降级
	var semantic *pipeline.SemanticMatcher
	embeddingClient, err := embedding.NewClient(ctx, cfg.Embedding)
	switch {
	case err == nil:
		semantic = pipeline.NewSemanticMatcher(embeddingClient, table.Intents, cfg.Embedding.Threshold, cfg.Embedding.Timeout)
	case errors.Is(err, embedding.ErrDisabled):
		log.Info("语义匹配未启用")
	default:
		log.Error("初始化 Embedding 客户端失败，跳过语义层", err)
	}

	var llmClient llm.Client
	if c, err := llm.NewClient(ctx, cfg.LLM); err == nil {
		llmClient = c
		log.Infof("生成式服务已配置, provider: %s", c.Name())
	} else if errors.Is(err, llm.ErrNotConfigured) {
		log.Warnf("未配置生成式服务凭据，未命中的问题将返回固定回复")
	} else {
		log.Error("初始化 LLM 客户端失败", err)
	}
	delegate := pipeline.NewDelegate(llmClient, cfg.LLM, cfg.Pipeline.FallbackText)

	// 6. 外部数据片段
	provider := facts.NewProvider()
	collectors := []facts.Collector{facts.NewFileCollector(cfg.Facts.File, cfg.Facts.FileTTL)}
	if cfg.Facts.Weather.APIKey != "" {
		wc := weather.NewClient(cfg.Facts.Weather.BaseURL, cfg.Facts.Weather.APIKey)
		collectors = append(collectors, facts.NewWeatherCollector(wc, cfg.Facts.Weather.City, cfg.Facts.Weather.TTL))
	}
	var archive *facts.Archive
	if cfg.MinIO.Enabled {
		store, err := storage.NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			log.Error("MinIO 初始化失败，禁用快照归档", err)
		} else {
			archive = facts.NewArchive(store)
		}
	}
	refresher := facts.NewRefresher(provider, collectors, archive, cfg.Facts.RefreshTimeout)

	// 7. 初始化 Service (依赖注入)
	resolver := pipeline.NewResolver(rules, semantic, delegate, provider, pipeline.ResolverConfig{
		NoAnswerText:    cfg.Pipeline.NoAnswerText,
		UnavailableText: cfg.Pipeline.UnavailableText,
	})
	sessionService := service.NewSessionService(sessionRepo, cfg.Session.MaxHistory, cfg.Session.Retention)
	feedbackService := service.NewFeedbackService(messageRepo)
	chatService := service.NewChatService(resolver, sessionService, feedbackService, service.ChatConfig{
		MaxMessageRunes: cfg.Pipeline.MaxMessageRunes,
		ChunkSize:       cfg.Stream.ChunkSize,
	})

	var publisher service.RefreshPublisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka)
		publisher = producer
	}
	dataService := service.NewDataService(refresher, publisher)
	if cfg.Kafka.Enabled {
		// 7.1 启动后台 Kafka 消费者，每个实例独立消费组
		go kafka.StartConsumer(ctx, cfg.Kafka, consumerGroupID(), dataService)
	}

	// 8. 后台初始化：恢复快照、首次刷新、构建意图向量
	var started atomic.Bool
	go backgroundInit(ctx, refresher, semantic, &started)

	// 9. 定时任务
	limiter := ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	scheduler := cron.New()
	if err := scheduleJobs(scheduler, cfg, refresher, sessionService, limiter); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 10. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Handlers{
		Chat:     handler.NewChatHandler(chatService, limiter, cfg.CORS.AllowedOrigins),
		Feedback: handler.NewFeedbackHandler(feedbackService),
		Health:   handler.NewHealthHandler(version, &started, healthComponents(cfg, table, semantic, delegate, provider)),
		Admin:    handler.NewAdminHandler(dataService),
	}, limiter, cfg.Admin, cfg.CORS)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP 服务器关闭失败", err)
	}
	// 停止消费者与后台任务
	cancel()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
	return nil
}

func consumerGroupID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return "acu-chatbot-" + host
}

func backgroundInit(ctx context.Context, refresher *facts.Refresher, semantic *pipeline.SemanticMatcher, started *atomic.Bool) {
	defer started.Store(true)

	refresher.WarmStart(ctx)
	if _, err := refresher.Refresh(ctx); err != nil {
		log.Error("首次数据片段刷新失败", err)
	}
	if semantic.Enabled() {
		start := time.Now()
		if err := semantic.BuildIndex(ctx); err != nil {
			log.Error("构建意图向量索引失败，语义层将被跳过", err)
		} else {
			log.Infof("意图向量索引构建完成, 耗时 %s", time.Since(start))
		}
	}
	log.Info("后台初始化完成")
}

func scheduleJobs(c *cron.Cron, cfg config.Config, refresher *facts.Refresher, sessions service.SessionService, limiter *ratelimit.Limiter) error {
	if cfg.Facts.Schedule != "" {
		_, err := c.AddFunc(cfg.Facts.Schedule, func() {
			// 定时刷新只作用于本实例，不经过 Kafka 广播
			if _, err := refresher.Refresh(context.Background()); err != nil {
				log.Error("定时数据片段刷新失败", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid facts.schedule %q: %w", cfg.Facts.Schedule, err)
		}
	}
	if cfg.Session.PruneSpec != "" {
		_, err := c.AddFunc(cfg.Session.PruneSpec, func() {
			n, err := sessions.Prune(context.Background())
			if err != nil {
				log.Error("清理过期会话失败", err)
				return
			}
			log.Infof("已清理过期会话 %d 个", n)
		})
		if err != nil {
			return fmt.Errorf("invalid session.prune_schedule %q: %w", cfg.Session.PruneSpec, err)
		}
	}
	_, err := c.AddFunc("@every 1m", func() {
		if n := limiter.Sweep(); n > 0 {
			log.Debugf("限流窗口回收 %d 个空闲 key", n)
		}
	})
	return err
}

func healthComponents(cfg config.Config, table model.IntentTable, semantic *pipeline.SemanticMatcher, delegate *pipeline.Delegate, provider *facts.Provider) map[string]func() interface{} {
	return map[string]func() interface{}{
		"intents_loaded":   func() interface{} { return len(table.Intents) },
		"embeddings":       func() interface{} { return semantic.Enabled() },
		"embeddings_ready": func() interface{} { return semantic.Ready() },
		"llm_configured":   func() interface{} { return delegate.Configured() },
		"llm_provider":     func() interface{} { return cfg.LLM.Provider },
		"facts_version":    func() interface{} { return provider.Snapshot().Version },
		"facts_fresh":      func() interface{} { return len(provider.Fresh()) },
		"session_backend":  func() interface{} { return cfg.Session.Backend },
		"kafka_enabled":    func() interface{} { return cfg.Kafka.Enabled },
		"minio_enabled":    func() interface{} { return cfg.MinIO.Enabled },
	}
}
