package management

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"plutus/internal/logger"
	"plutus/pkg/errors"
)

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		rules := v1.Group("/rules/automation")
		{
			rules.GET("", h.ListRules)
			rules.POST("", h.CreateRule)
			rules.POST("/test", h.TestDraft)
			rules.GET("/:id", h.GetRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
			rules.POST("/:id/test", h.TestRule)
			rules.GET("/:id/executions", h.ListExecutions)
			rules.GET("/:id/versions", h.GetRuleVersions)
			rules.GET("/:id/audit", h.GetRuleAuditLogs)
		}

		audit := v1.Group("/audit")
		{
			audit.GET("/logs", h.GetAuditLogs)
		}
	}
}

// workspaceID resolves the tenant from the X-Workspace-ID header; every rule
// route is workspace-scoped.
func (h *Handler) workspaceID(c *gin.Context) (string, bool) {
	workspaceID := c.GetHeader("X-Workspace-ID")
	if workspaceID == "" {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "X-Workspace-ID header is required")))
		return "", false
	}
	return workspaceID, true
}

// ListRules godoc
// @Summary      List automation rules
// @Description  Get all automation rules in the workspace
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        X-Workspace-ID  header  string  true  "Workspace ID"
// @Success      200  {array}   AutomationRule
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/automation [get]
func (h *Handler) ListRules(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}

	rules, err := h.Service.ListRules(c.Request.Context(), workspaceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateRule godoc
// @Summary      Create an automation rule
// @Description  Create a new automation rule with trigger, conditions and actions
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        X-Workspace-ID  header  string                       true  "Workspace ID"
// @Param        rule            body    CreateAutomationRuleRequest  true  "Rule definition"
// @Success      201  {object}  AutomationRule
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      409  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/automation [post]
func (h *Handler) CreateRule(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}

	var req CreateAutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.Service.CreateRule(c.Request.Context(), workspaceID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// GetRule godoc
// @Summary      Get an automation rule
// @Description  Get a specific automation rule by ID
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        X-Workspace-ID  header  string  true  "Workspace ID"
// @Param        id              path    string  true  "Rule ID"
// @Success      200  {object}  AutomationRule
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/automation/{id} [get]
func (h *Handler) GetRule(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}

	rule, err := h.Service.GetRule(c.Request.Context(), workspaceID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateRule godoc
// @Summary      Update an automation rule
// @Description  Update an existing automation rule by ID
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        X-Workspace-ID  header  string                       true  "Workspace ID"
// @Param        id              path    string                       true  "Rule ID"
// @Param        rule            body    UpdateAutomationRuleRequest  true  "Updated rule fields"
// @Success      200  {object}  AutomationRule
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/automation/{id} [put]
func (h *Handler) UpdateRule(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}

	var req UpdateAutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.Service.UpdateRule(c.Request.Context(), workspaceID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule godoc
// @Summary      Delete an automation rule
// @Description  Delete an automation rule by ID
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        X-Workspace-ID  header  string  true  "Workspace ID"
// @Param        id              path    string  true  "Rule ID"
// @Success      204  "No Content"
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/automation/{id} [delete]
func (h *Handler) DeleteRule(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}

	if err := h.Service.DeleteRule(c.Request.Context(), workspaceID, c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TestRule godoc
// @Summary      Test an automation rule
// @Description  Dry-run a stored rule against a sample entity without executing actions or writing logs
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        X-Workspace-ID  header  string           true  "Workspace ID"
// @Param        id              path    string           true  "Rule ID"
// @Param        request         body    TestRuleRequest  true  "Sample entity"
// @Success      200  {object}  automation.RuleTestResult
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /rules/automation/{id}/test [post]
func (h *Handler) TestRule(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}

	var req TestRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.Service.TestRule(c.Request.Context(), workspaceID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TestDraft godoc
// @Summary      Test a draft rule
// @Description  Dry-run an unsaved rule definition against a sample entity
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        X-Workspace-ID  header  string            true  "Workspace ID"
// @Param        request         body    TestDraftRequest  true  "Draft rule and sample entity"
// @Success      200  {object}  automation.RuleTestResult
// @Failure      400  {object}  errors.ErrorResponse
// @Router       /rules/automation/test [post]
func (h *Handler) TestDraft(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}

	var req TestDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.Service.TestDraft(c.Request.Context(), workspaceID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListExecutions godoc
// @Summary      List rule executions
// @Description  Get recent execution log entries for a rule
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        X-Workspace-ID  header  string  true   "Workspace ID"
// @Param        id              path    string  true   "Rule ID"
// @Param        limit           query   int     false  "Max entries (default 100)"
// @Success      200  {array}   automation.ExecutionLog
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/automation/{id}/executions [get]
func (h *Handler) ListExecutions(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.Service.ListExecutions(c.Request.Context(), workspaceID, c.Param("id"), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// GetRuleVersions godoc
// @Summary      Get rule version history
// @Description  Get all stored versions of a rule
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Rule ID"
// @Success      200  {array}   RuleVersion
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/automation/{id}/versions [get]
func (h *Handler) GetRuleVersions(c *gin.Context) {
	versions, err := h.Service.GetRuleVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// GetRuleAuditLogs godoc
// @Summary      Get audit logs for a rule
// @Description  Get the audit trail of changes to a rule
// @Tags         automation-rules
// @Accept       json
// @Produce      json
// @Param        X-Workspace-ID  header  string  true   "Workspace ID"
// @Param        id              path    string  true   "Rule ID"
// @Param        limit           query   int     false  "Max entries (default 100)"
// @Success      200  {array}   AuditLog
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/automation/{id}/audit [get]
func (h *Handler) GetRuleAuditLogs(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}

	ruleID := c.Param("id")
	limit, _ := strconv.Atoi(c.Query("limit"))

	logs, err := h.Service.GetAuditLogs(c.Request.Context(), workspaceID, &ruleID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// GetAuditLogs godoc
// @Summary      Get workspace audit logs
// @Description  Get the audit trail of rule changes in the workspace
// @Tags         audit
// @Accept       json
// @Produce      json
// @Param        X-Workspace-ID  header  string  true   "Workspace ID"
// @Param        limit           query   int     false  "Max entries (default 100)"
// @Success      200  {array}   AuditLog
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /audit/logs [get]
func (h *Handler) GetAuditLogs(c *gin.Context) {
	workspaceID, ok := h.workspaceID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.Service.GetAuditLogs(c.Request.Context(), workspaceID, nil, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
