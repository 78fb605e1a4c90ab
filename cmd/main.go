package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/application/services"
	"promo-video-api/config"
	"promo-video-api/infrastructure/adapters"
	"promo-video-api/infrastructure/gin_interface/controllers"
	"promo-video-api/middleware"
)

func main() {
	_ = godotenv.Load()

	zeroLogger := adapters.NewZerologWrapper()

	storeConfig, err := config.GetStoreConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get store config")
	}

	pipelineConfig, err := config.GetPipelineConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get pipeline config")
	}

	pricingConfig, err := config.GetPricingConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get pricing config")
	}

	scriptConfig, err := config.GetScriptProviderConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get script provider config")
	}

	imageConfig, err := config.GetImageGridProviderConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get image provider config")
	}

	videoConfig, err := config.GetVideoProviderConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get video provider config")
	}

	resolverConfig, err := config.GetLinkResolverConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get link resolver config")
	}

	panicHandler := func(p interface{}) {
		zeroLogger.Error(fmt.Errorf("%v", p), "Panic in worker pool")
	}

	workerPool, err := ants.NewPool(pipelineConfig.WorkerPoolSize, ants.WithPanicHandler(panicHandler))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create worker pool")
	}
	defer workerPool.Release()

	contentFetcher := adapters.NewContentFetcher(zeroLogger, 30*time.Second)

	var (
		jobStore     outbound.JobStorePort
		variantStore outbound.BatchStorePort
		ledgerStore  outbound.LedgerStorePort
		awsSession   *session.Session
	)

	switch storeConfig.Driver {
	case config.StoreDriverDynamo:
		awsSession = session.Must(session.NewSessionWithOptions(session.Options{
			SharedConfigState: session.SharedConfigEnable,
		}))
		dynamoConfig, err := config.GetDynamoConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to get dynamo config")
		}
		dynamoClient := dynamodb.New(awsSession)
		jobStore = adapters.NewDynamoJobStore(zeroLogger, dynamoClient, dynamoConfig)
		variantStore = adapters.NewDynamoBatchStore(zeroLogger, dynamoClient, dynamoConfig)
		ledgerStore = adapters.NewDynamoLedgerStore(zeroLogger, dynamoClient, dynamoConfig)
	default:
		sqliteStore, err := adapters.NewSqliteStore(storeConfig.SqlitePath, zeroLogger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open sqlite store")
		}
		defer sqliteStore.Close()
		jobStore = sqliteStore.Jobs()
		variantStore = sqliteStore.Batches()
		ledgerStore = sqliteStore.Ledger()
	}

	var archiver outbound.OutputArchiverPort
	if os.Getenv("OUTPUT_BUCKET_NAME") != "" {
		s3Config, err := config.GetS3Config()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to get s3 config")
		}
		if awsSession == nil {
			awsSession = session.Must(session.NewSessionWithOptions(session.Options{
				SharedConfigState: session.SharedConfigEnable,
			}))
		}
		archiver = adapters.NewS3OutputArchiver(contentFetcher, s3.New(awsSession), s3Config, zeroLogger)
	}

	scriptProvider := adapters.NewScriptProvider(contentFetcher, scriptConfig, zeroLogger)
	imageProvider := adapters.NewImageGridProvider(contentFetcher, imageConfig, zeroLogger)
	videoProvider := adapters.NewVideoProvider(contentFetcher, videoConfig, zeroLogger)
	providerRegistry := adapters.NewProviderRegistry(scriptProvider, imageProvider, videoProvider)

	linkResolver := adapters.NewLinkResolver(contentFetcher, resolverConfig, zeroLogger)

	pricing := services.NewSchedulePricing(pricingConfig)
	creditLedger := services.NewCreditLedger(zeroLogger, ledgerStore)
	batchExecutor := services.NewBatchExecutor(zeroLogger, jobStore, variantStore, creditLedger,
		providerRegistry, pricing, workerPool, pipelineConfig.MaxVariants)
	jobPipeline := services.NewJobPipeline(zeroLogger, jobStore, creditLedger, providerRegistry,
		linkResolver, pricing, batchExecutor)
	statusSweeper := services.NewStatusSweeper(zeroLogger, jobStore, variantStore, creditLedger,
		providerRegistry, archiver, pipelineConfig.StageTimeouts, pipelineConfig.PollConcurrency)

	jobsController := controllers.NewJobsController(zeroLogger, jobPipeline, batchExecutor,
		statusSweeper, jobStore)
	creditsController := controllers.NewCreditsController(zeroLogger, creditLedger)

	router := gin.Default()
	if err := router.SetTrustedProxies(nil); err != nil {
		log.Fatal().Err(err).Msg("Failed to set trusted proxies")
	}

	var authHandler middleware.AuthHandler
	if os.Getenv("AUTH_DISABLED") == "true" {
		zeroLogger.Warn("Authentication disabled, trusting X-User-ID header")
		authHandler = middleware.NewHeaderAuthHandler()
	} else {
		jwksURL := os.Getenv("JWKS_URL")
		if jwksURL == "" {
			log.Fatal().Msg("JWKS_URL is not set")
		}
		authHandler, err = middleware.NewAuthHandler(jwksURL, zeroLogger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create auth handler")
		}
	}
	router.Use(authHandler.AuthMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	jobsController.RegisterRoutes(router)
	creditsController.RegisterRoutes(router)

	if err := router.Run(":8080"); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
