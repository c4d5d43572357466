package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rendis/rankgrid/internal/engine/export"
	"github.com/rendis/rankgrid/internal/engine/heatmap"
	"github.com/rendis/rankgrid/internal/engine/scanner"
	"github.com/rendis/rankgrid/internal/engine/storage"
	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/model"
)

const (
	topCompetitors = 5
	maxListLimit   = 200
)

var startedAt = time.Now()

// ProbeBody is the POST /v1/probe payload. Coordinates are pointers so a
// missing field can be told apart from 0.
type ProbeBody struct {
	Keyword  string   `json:"keyword"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	TargetID string   `json:"target_id"`
}

// ScanBody is the POST /v1/scans payload.
type ScanBody struct {
	Keyword      string   `json:"keyword"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	TargetID     string   `json:"target_id"`
	BusinessName string   `json:"business_name"`
	GridSize     int      `json:"grid_size"`
	RadiusMiles  float64  `json:"radius_miles"`
}

// ScanResponse pairs a scan with its heat-map summary.
type ScanResponse struct {
	Scan    *model.ScanResult `json:"scan"`
	Summary heatmap.Summary   `json:"summary"`
	Stored  bool              `json:"stored"`
}

func (s *Server) health(c *fiber.Ctx) error {
	checks := fiber.Map{"store": "not configured"}
	status, code := "healthy", fiber.StatusOK

	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()
		st, err := s.deps.Store.Acquire(ctx)
		if err == nil {
			err = st.Ping(ctx)
		}
		if err != nil {
			checks["store"] = "error: " + err.Error()
			status, code = "degraded", fiber.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"uptime":  time.Since(startedAt).Truncate(time.Second).String(),
		"version": s.deps.Version,
		"checks":  checks,
	})
}

func (s *Server) probe(c *fiber.Ctx) error {
	var body ProbeBody
	if err := c.BodyParser(&body); err != nil {
		return errBadRequest(c, "invalid JSON body")
	}
	if body.Lat == nil || body.Lng == nil {
		return errBadRequest(c, "lat and lng are required")
	}

	cell, err := s.deps.Scanner.Probe(c.UserContext(), scanner.ProbeRequest{
		Keyword:  body.Keyword,
		Lat:      *body.Lat,
		Lng:      *body.Lng,
		TargetID: body.TargetID,
	})
	if err != nil {
		return s.scanError(c, err)
	}
	return c.JSON(fiber.Map{
		"cell":     cell,
		"severity": heatmap.Classify(cell),
	})
}

func (s *Server) createScan(c *fiber.Ctx) error {
	var body ScanBody
	if err := c.BodyParser(&body); err != nil {
		return errBadRequest(c, "invalid JSON body")
	}
	if body.Lat == nil || body.Lng == nil {
		return errBadRequest(c, "lat and lng are required")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.deps.Scanner.Budget(body.GridSize)+scanSlack)
	defer cancel()

	scan, err := s.deps.Scanner.Scan(ctx, scanner.ScanRequest{
		Keyword:      body.Keyword,
		Center:       model.LatLng{Lat: *body.Lat, Lng: *body.Lng},
		TargetID:     body.TargetID,
		BusinessName: body.BusinessName,
		GridSize:     body.GridSize,
		RadiusMiles:  body.RadiusMiles,
	})
	if err != nil && !errors.Is(err, scanner.ErrScanCancelled) {
		return s.scanError(c, err)
	}

	resp := ScanResponse{Scan: scan, Summary: heatmap.Summarize(scan, topCompetitors)}
	if s.deps.Store != nil {
		if st, aerr := s.deps.Store.Acquire(c.UserContext()); aerr != nil {
			s.log.Error("opening store", logging.Err(aerr))
		} else if serr := st.SaveScan(context.WithoutCancel(ctx), scan); serr != nil {
			s.log.Error("saving scan", logging.String("scan_id", scan.ID), logging.Err(serr))
		} else {
			resp.Stored = true
		}
	}

	c.Location("/v1/scans/" + scan.ID)
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (s *Server) listScans(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > maxListLimit {
		return errBadRequest(c, fmt.Sprintf("limit must be within [1, %d]", maxListLimit))
	}
	if offset < 0 {
		return errBadRequest(c, "offset must be >= 0")
	}

	st, ok, err := s.store(c)
	if !ok {
		return err
	}
	scans, err := st.ListScans(c.UserContext(), storage.ListFilter{
		Keyword:  c.Query("keyword"),
		TargetID: c.Query("target_id"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.log.Error("listing scans", logging.Err(err))
		return errInternal(c, "failed to list scans")
	}
	return c.JSON(fiber.Map{
		"scans":  scans,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) getScan(c *fiber.Ctx) error {
	scan, ok, err := s.loadScan(c)
	if !ok {
		return err
	}
	return c.JSON(ScanResponse{
		Scan:    scan,
		Summary: heatmap.Summarize(scan, topCompetitors),
		Stored:  true,
	})
}

func (s *Server) deleteScan(c *fiber.Ctx) error {
	st, ok, err := s.store(c)
	if !ok {
		return err
	}
	switch err := st.DeleteScan(c.UserContext(), c.Params("id")); {
	case errors.Is(err, storage.ErrNotFound):
		return errNotFound(c, "scan not found")
	case err != nil:
		s.log.Error("deleting scan", logging.Err(err))
		return errInternal(c, "failed to delete scan")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) exportScan(format string) fiber.Handler {
	contentType := "application/geo+json"
	if format == "csv" {
		contentType = "text/csv; charset=utf-8"
	}
	return func(c *fiber.Ctx) error {
		scan, ok, err := s.loadScan(c)
		if !ok {
			return err
		}
		var buf bytes.Buffer
		if err := export.Write(&buf, format, scan); err != nil {
			s.log.Error("exporting scan", logging.String("format", format), logging.Err(err))
			return errInternal(c, "failed to export scan")
		}
		c.Set(fiber.HeaderContentType, contentType)
		c.Attachment(scan.ID + export.Extension(format))
		return c.Send(buf.Bytes())
	}
}

func (s *Server) loadScan(c *fiber.Ctx) (*model.ScanResult, bool, error) {
	st, ok, err := s.store(c)
	if !ok {
		return nil, false, err
	}
	scan, err := st.LoadScan(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, false, errNotFound(c, "scan not found")
	case err != nil:
		s.log.Error("loading scan", logging.String("scan_id", c.Params("id")), logging.Err(err))
		return nil, false, errInternal(c, "failed to load scan")
	}
	return scan, true, nil
}

func (s *Server) scanError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, scanner.ErrInvalidRequest):
		return errBadRequest(c, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(c, fiber.StatusGatewayTimeout, "timeout", "request cancelled")
	}
	s.log.Error("scan failed", logging.Err(err))
	return errInternal(c, "scan failed")
}
