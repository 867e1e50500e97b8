package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"scout/internal/jobs"
	"scout/internal/report"
)

// reportsListHandler lists persisted reports ordered by label. When the
// artifact index is configured, each entry is annotated with the job that
// produced it; the filesystem stays the source of truth for content.
func reportsListHandler(c *fiber.Ctx) error {
	writer := c.Locals("reports").(*report.Writer)
	sched := c.Locals("scheduler").(*jobs.Scheduler)

	infos, err := writer.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}

	jobByLabel := make(map[string]string)
	if rows, err := sched.IndexedArtifacts(c.Context(), 500); err == nil {
		for _, a := range rows {
			jobByLabel[a.Label] = a.JobID
		}
	}

	items := make([]ReportItem, 0, len(infos))
	for _, info := range infos {
		items = append(items, ReportItem{
			Label:    info.Label,
			Size:     info.Size,
			Modified: info.Modified,
			JobID:    jobByLabel[info.Label],
		})
	}

	return c.JSON(ReportListResponse{Success: true, Reports: items})
}

// reportGetHandler returns one report as raw markdown, or as parsed JSON
// sections with ?format=json.
func reportGetHandler(c *fiber.Ctx) error {
	writer := c.Locals("reports").(*report.Writer)
	sched := c.Locals("scheduler").(*jobs.Scheduler)

	label := report.NormalizeLabel(c.Params("label"))
	content, err := writer.Read(label)
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "no report with this label",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}

	if c.Query("format") == "json" {
		var jobID string
		if a, ok := sched.IndexedArtifact(c.Context(), label); ok {
			jobID = a.JobID
		}
		parsed := report.ParseSections(content)
		return c.JSON(ReportJSONResponse{
			Success:  true,
			Label:    label,
			JobID:    jobID,
			Title:    parsed.Title,
			Sections: parsed.Sections,
		})
	}

	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	return c.SendString(content)
}

// retentionCleanupHandler triggers one retention sweep immediately.
func retentionCleanupHandler(c *fiber.Ctx) error {
	sched := c.Locals("scheduler").(*jobs.Scheduler)

	stats := sched.RunRetention(c.Context())
	return c.JSON(RetentionResponse{Success: true, Stats: stats})
}
