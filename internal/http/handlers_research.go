package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"scout/internal/jobs"
)

// researchSubmitHandler accepts one research goal and schedules the crew
// pipeline for it. The response is returned as soon as the job record
// exists; no stage has run yet.
func researchSubmitHandler(c *fiber.Ctx) error {
	sched := c.Locals("scheduler").(*jobs.Scheduler)

	var req ResearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ResearchResponse{
			Success: false,
			Code:    "INVALID_REQUEST",
			Error:   "invalid JSON body",
		})
	}

	job, err := sched.Submit(jobs.SubmitRequest{
		JobID: req.JobID,
		Label: req.CrewName,
		Goal:  req.Goal,
	})
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrInvalidRequest):
			return c.Status(fiber.StatusBadRequest).JSON(ResearchResponse{
				Success: false,
				Code:    "INVALID_REQUEST",
				Error:   err.Error(),
			})
		case errors.Is(err, jobs.ErrDuplicateJob):
			return c.Status(fiber.StatusConflict).JSON(ResearchResponse{
				Success: false,
				Code:    "DUPLICATE_JOB",
				Error:   "a job with this id already exists",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(ResearchResponse{
				Success: false,
				Code:    "INTERNAL_ERROR",
				Error:   err.Error(),
			})
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(ResearchResponse{
		Success: true,
		JobID:   job.ID,
	})
}

// jobsListHandler lists job snapshots, newest first.
func jobsListHandler(c *fiber.Ctx) error {
	sched := c.Locals("scheduler").(*jobs.Scheduler)

	var state jobs.Status
	if v := c.Query("status"); v != "" {
		parsed, ok := jobs.ParseStatus(v)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(ListJobsResponse{
				Success: false,
				Code:    "INVALID_REQUEST",
				Error:   "invalid status filter",
			})
		}
		state = parsed
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ListJobsResponse{
				Success: false,
				Code:    "INVALID_REQUEST",
				Error:   "invalid limit value",
			})
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	list := sched.List(state, limit)
	items := make([]JobItem, 0, len(list))
	for _, j := range list {
		items = append(items, toJobItem(j))
	}

	return c.JSON(ListJobsResponse{Success: true, Jobs: items})
}

// jobDetailHandler returns the full snapshot for one job.
func jobDetailHandler(c *fiber.Ctx) error {
	sched := c.Locals("scheduler").(*jobs.Scheduler)

	job, err := sched.Status(c.Params("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(JobDetailResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "no job with this id",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(JobDetailResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}

	return c.JSON(JobDetailResponse{Success: true, Job: toJobDetail(job)})
}

// jobCancelHandler cancels a pending job. Running jobs cannot be
// cancelled; their in-flight stage is allowed to finish.
func jobCancelHandler(c *fiber.Ctx) error {
	sched := c.Locals("scheduler").(*jobs.Scheduler)

	job, err := sched.Cancel(c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(JobDetailResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "no job with this id",
			})
		case errors.Is(err, jobs.ErrAlreadyTerminal):
			return c.Status(fiber.StatusConflict).JSON(JobDetailResponse{
				Success: false,
				Code:    "ALREADY_TERMINAL",
				Error:   "job already reached a terminal state",
			})
		case errors.Is(err, jobs.ErrInvalidTransition):
			return c.Status(fiber.StatusConflict).JSON(JobDetailResponse{
				Success: false,
				Code:    "ALREADY_RUNNING",
				Error:   "job is already running and cannot be cancelled",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(JobDetailResponse{
				Success: false,
				Code:    "INTERNAL_ERROR",
				Error:   err.Error(),
			})
		}
	}

	return c.JSON(JobDetailResponse{Success: true, Job: toJobDetail(job)})
}
