package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"promo-video-api/application/ports/inbound"
	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
	"promo-video-api/infrastructure/gin_interface/dto"
	"promo-video-api/middleware"
)

type JobsController interface {
	CreateJob(c *gin.Context)
	AdvanceStage(c *gin.Context)
	GetJob(c *gin.Context)
	ListJobs(c *gin.Context)
	StartBatch(c *gin.Context)
	Refresh(c *gin.Context)
	RegisterRoutes(g *gin.Engine)
}

type jobsController struct {
	logger   outbound.LoggerPort
	pipeline inbound.JobPipelinePort
	batch    inbound.BatchExecutorPort
	sweeper  inbound.StatusSweeperPort
	jobs     outbound.JobStorePort
}

func NewJobsController(
	logger outbound.LoggerPort,
	pipeline inbound.JobPipelinePort,
	batch inbound.BatchExecutorPort,
	sweeper inbound.StatusSweeperPort,
	jobs outbound.JobStorePort,
) JobsController {
	return &jobsController{
		logger:   logger,
		pipeline: pipeline,
		batch:    batch,
		sweeper:  sweeper,
		jobs:     jobs,
	}
}

func (j *jobsController) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString(middleware.ContextUserIDKey)

	job, err := j.pipeline.CreateJob(c, inbound.CreateJobParams{
		UserID:      userID,
		LinkURL:     req.LinkURL,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, j.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewJobResponse(job))
}

func (j *jobsController) AdvanceStage(c *gin.Context) {
	var req dto.AdvanceStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	step, ok := domain.ParseStep(req.Step)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown step " + req.Step})
		return
	}

	params := inbound.AdvanceStageParams{
		JobID:  c.Param("id"),
		UserID: c.GetString(middleware.ContextUserIDKey),
		Step:   step,
		Retry:  req.Retry,
	}
	if req.Config != nil {
		params.Config = &domain.JobConfig{
			DurationSeconds: req.Config.DurationSeconds,
			AspectRatio:     req.Config.AspectRatio,
			Style:           req.Config.Style,
			Persona:         req.Config.Persona,
			Voice:           req.Config.Voice,
		}
	}

	output, err := j.pipeline.AdvanceStage(c, params)
	if err != nil {
		respondError(c, j.logger, err)
		return
	}

	resp := dto.AdvanceStageResponse{
		JobID:   params.JobID,
		Stage:   string(output.Stage),
		Attempt: output.Attempt,
	}
	if output.Output != nil {
		resp.Output = &dto.OutputResponse{
			Version:   output.Output.Version,
			Ref:       output.Output.Ref,
			CreatedAt: output.Output.CreatedAt,
		}
	}
	if output.Handle != nil {
		resp.TaskID = output.Handle.TaskID
	}
	c.JSON(http.StatusOK, resp)
}

// GetJob is the polling read: it refreshes the job's in-flight provider
// tasks before answering, so a client only ever needs to poll this route.
func (j *jobsController) GetJob(c *gin.Context) {
	job, err := j.ownedJob(c)
	if err != nil {
		respondError(c, j.logger, err)
		return
	}

	snapshot, err := j.sweeper.RefreshJob(c, job.ID)
	if err != nil {
		respondError(c, j.logger, err)
		return
	}

	resp := dto.JobDetailResponse{JobResponse: dto.NewJobResponse(snapshot.Job)}
	for _, variant := range snapshot.Variants {
		resp.Variants = append(resp.Variants, dto.NewVariantResponse(variant))
	}
	c.JSON(http.StatusOK, resp)
}

func (j *jobsController) ListJobs(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserIDKey)
	jobs, err := j.jobs.ListByUser(c, userID, 50)
	if err != nil {
		respondError(c, j.logger, err)
		return
	}
	resp := make([]dto.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, dto.NewJobResponse(job))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": resp})
}

func (j *jobsController) StartBatch(c *gin.Context) {
	var req dto.StartBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	variants, err := j.batch.StartBatch(c, inbound.StartBatchParams{
		JobID:        c.Param("id"),
		UserID:       c.GetString(middleware.ContextUserIDKey),
		VariantCount: req.VariantCount,
		Retry:        req.Retry,
	})
	if err != nil {
		respondError(c, j.logger, err)
		return
	}

	resp := dto.StartBatchResponse{JobID: c.Param("id")}
	for _, variant := range variants {
		resp.Variants = append(resp.Variants, dto.NewVariantResponse(variant))
	}
	c.JSON(http.StatusAccepted, resp)
}

func (j *jobsController) Refresh(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserIDKey)
	result, err := j.sweeper.RefreshAllProcessing(c, userID)
	if err != nil {
		respondError(c, j.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.SweepResponse{Checked: result.Checked, Updated: result.Updated})
}

// ownedJob loads the path job and hides other users' jobs behind not-found.
func (j *jobsController) ownedJob(c *gin.Context) (*domain.Job, error) {
	job, err := j.jobs.Get(c, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if job.UserID != c.GetString(middleware.ContextUserIDKey) {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (j *jobsController) RegisterRoutes(g *gin.Engine) {
	g.POST("/jobs", j.CreateJob)
	g.GET("/jobs", j.ListJobs)
	g.GET("/jobs/:id", j.GetJob)
	g.POST("/jobs/:id/advance", j.AdvanceStage)
	g.POST("/jobs/:id/batch", j.StartBatch)
	g.POST("/jobs/refresh", j.Refresh)
}
