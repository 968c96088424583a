package server

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/searchwatch/internal/alerts"
	"github.com/mr-karan/searchwatch/pkg/models"
)

const (
	defaultHistoryPageSize = 50
	maxHistoryPageSize     = 500
)

func (s *Server) handleListRules(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, s.rules.Rules())
}

func (s *Server) handleGetRule(c *fiber.Ctx) error {
	rule, ok := s.rules.Rule(c.Params("id"))
	if !ok {
		return SendErrorWithType(c, fiber.StatusNotFound, "Rule not found", NotFoundErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, rule)
}

func (s *Server) handleListExecutions(c *fiber.Ctx) error {
	ruleID, limit, err := s.parseHistoryRequest(c)
	if err != nil {
		return err
	}
	records, err := s.history.ListExecutions(c.Context(), ruleID, limit)
	if err != nil {
		s.log.Error("failed to list executions", "rule_id", ruleID, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list executions", GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, records)
}

func (s *Server) handleListNotifications(c *fiber.Ctx) error {
	ruleID, limit, err := s.parseHistoryRequest(c)
	if err != nil {
		return err
	}
	records, err := s.history.ListNotifications(c.Context(), ruleID, limit)
	if err != nil {
		s.log.Error("failed to list notifications", "rule_id", ruleID, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list notifications", GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, records)
}

// handleReload re-reads the rules file. An invalid file leaves the active
// rules untouched and is reported as a validation error.
// URL: POST /api/v1/reload
func (s *Server) handleReload(c *fiber.Ctx) error {
	if s.reload == nil {
		return SendErrorWithType(c, fiber.StatusServiceUnavailable, "Reload is not configured", ServiceUnavailableErrorType)
	}
	if err := s.reload(c.Context()); err != nil {
		if errors.Is(err, models.ErrInvalidConfiguration) || errors.Is(err, alerts.ErrNoHandler) {
			return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), ValidationErrorType)
		}
		s.log.Error("reload failed", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, err.Error(), GeneralErrorType)
	}
	rules := s.rules.Rules()
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "Rules reloaded", "rules": len(rules)})
}

// parseHistoryRequest resolves the rule id and page size.
func (s *Server) parseHistoryRequest(c *fiber.Ctx) (string, int, error) {
	if s.history == nil {
		return "", 0, newAPIError(fiber.StatusServiceUnavailable, "Execution history is disabled", ServiceUnavailableErrorType)
	}
	ruleID := c.Params("id")
	if _, ok := s.rules.Rule(ruleID); !ok {
		return "", 0, newAPIError(fiber.StatusNotFound, "Rule not found", NotFoundErrorType)
	}

	limit := defaultHistoryPageSize
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return "", 0, newAPIError(fiber.StatusBadRequest, "Invalid limit parameter", ValidationErrorType)
		}
		limit = min(parsed, maxHistoryPageSize)
	}
	return ruleID, limit, nil
}
