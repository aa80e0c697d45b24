package admin

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/dujiao-next/payin/internal/authz"
	handlershared "github.com/dujiao-next/payin/internal/http/handlers/shared"
	"github.com/dujiao-next/payin/internal/http/response"
	"github.com/dujiao-next/payin/internal/logger"
	"github.com/dujiao-next/payin/internal/repository"
	"github.com/dujiao-next/payin/internal/service"

	"github.com/gin-gonic/gin"
)

var apiClientErrorRules = []handlershared.MappedHandlerError{
	{Target: service.ErrClientNotFound, Code: response.CodeNotFound, Msg: "api client not found"},
	{Target: service.ErrClientInvalid, Code: response.CodeBadRequest, Msg: "api client request is invalid"},
}

var authzErrorRules = []handlershared.MappedHandlerError{
	{Target: authz.ErrRoleNotFound, Code: response.CodeBadRequest, Msg: "role not found"},
	{Target: authz.ErrImmutablePolicy, Code: response.CodeConflict, Msg: "builtin role policy cannot be revoked"},
}

var clientAdminErrorRules = handlershared.ConcatMappedHandlerErrors(apiClientErrorRules, authzErrorRules)

type listAPIClientsQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Role     string `form:"role"`
	Status   string `form:"status"`
}

type clientStatusPayload struct {
	Status string `json:"status" binding:"required"`
}

type clientRolesPayload struct {
	Roles []string `json:"roles" binding:"required"`
}

type authzPolicyPayload struct {
	Role   string `json:"role" binding:"required"`
	Object string `json:"object" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// ListAPIClients 分页列出接入方
func (h *Handler) ListAPIClients(c *gin.Context) {
	var query listAPIClientsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "query is invalid", nil)
		return
	}
	page, pageSize := handlershared.NormalizePagination(query.Page, query.PageSize)
	clients, total, err := h.AuthService.ListAPIClients(c.Request.Context(), repository.APIClientListFilter{
		Role:     strings.TrimSpace(query.Role),
		Status:   strings.TrimSpace(query.Status),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "list api clients failed", err)
		return
	}
	response.SuccessWithPage(c, clients, response.NewPagination(page, pageSize, total))
}

// GetAPIClient 查询接入方及其角色与有效策略
func (h *Handler) GetAPIClient(c *gin.Context) {
	clientID, ok := parseClientIDParam(c)
	if !ok {
		return
	}
	client, err := h.AuthService.GetAPIClient(c.Request.Context(), clientID)
	if err != nil {
		respondClientAdminError(c, err, "get api client failed")
		return
	}
	roles, err := h.AuthzService.GetClientRoles(clientID)
	if err != nil {
		respondError(c, response.CodeInternal, "get client roles failed", err)
		return
	}
	policies, err := h.AuthzService.GetClientPolicies(clientID)
	if err != nil {
		respondError(c, response.CodeInternal, "get client policies failed", err)
		return
	}
	response.Success(c, gin.H{
		"client":   client,
		"roles":    roles,
		"policies": policies,
	})
}

// SetAPIClientStatus 启用或停用接入方
func (h *Handler) SetAPIClientStatus(c *gin.Context) {
	clientID, ok := parseClientIDParam(c)
	if !ok {
		return
	}
	var req clientStatusPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "status is required", nil)
		return
	}
	client, err := h.AuthService.SetClientStatus(c.Request.Context(), clientID, req.Status)
	if err != nil {
		respondClientAdminError(c, err, "update api client status failed")
		return
	}
	requestLog(c).Infow("admin_api_client_status_updated",
		"operator_client_id", c.GetUint(handlershared.ContextClientID),
		"target_client_id", clientID,
		"status", client.Status,
	)
	response.Success(c, client)
}

// SetAPIClientRoles 覆盖接入方角色，首个角色同步为主角色
func (h *Handler) SetAPIClientRoles(c *gin.Context) {
	clientID, ok := parseClientIDParam(c)
	if !ok {
		return
	}
	var req clientRolesPayload
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Roles) == 0 {
		respondError(c, response.CodeBadRequest, "roles are required", nil)
		return
	}
	ctx := c.Request.Context()
	if _, err := h.AuthService.GetAPIClient(ctx, clientID); err != nil {
		respondClientAdminError(c, err, "get api client failed")
		return
	}
	if err := h.AuthzService.SetClientRoles(clientID, req.Roles); err != nil {
		respondClientAdminError(c, err, "set client roles failed")
		return
	}
	primary := strings.TrimPrefix(strings.TrimSpace(req.Roles[0]), "role:")
	client, err := h.AuthService.SetClientPrimaryRole(ctx, clientID, primary)
	if err != nil {
		respondClientAdminError(c, err, "update api client role failed")
		return
	}
	requestLog(c).Infow("admin_api_client_roles_updated",
		"operator_client_id", c.GetUint(handlershared.ContextClientID),
		"target_client_id", clientID,
		"roles", req.Roles,
	)
	response.Success(c, client)
}

// ListAuthzRoles 列出角色
func (h *Handler) ListAuthzRoles(c *gin.Context) {
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondError(c, response.CodeInternal, "list roles failed", err)
		return
	}
	response.Success(c, roles)
}

// GetAuthzRolePolicies 查询角色直接持有的策略
func (h *Handler) GetAuthzRolePolicies(c *gin.Context) {
	role := decodeRoleParam(c.Param("role"))
	if role == "" {
		respondError(c, response.CodeBadRequest, "role is required", nil)
		return
	}
	policies, err := h.AuthzService.GetRolePolicies(role)
	if err != nil {
		respondClientAdminError(c, err, "get role policies failed")
		return
	}
	response.Success(c, policies)
}

// GrantAuthzPolicy 为角色授予策略，角色不存在时自动创建
func (h *Handler) GrantAuthzPolicy(c *gin.Context) {
	var req authzPolicyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "role, object and action are required", nil)
		return
	}
	if err := h.AuthzService.GrantRolePolicy(req.Role, req.Object, req.Action); err != nil {
		respondClientAdminError(c, err, "grant policy failed")
		return
	}
	logger.Infow("admin_authz_policy_granted",
		"operator_client_id", c.GetUint(handlershared.ContextClientID),
		"role", req.Role,
		"object", authz.NormalizeObject(req.Object),
		"action", authz.NormalizeAction(req.Action),
	)
	response.Success(c, nil)
}

// RevokeAuthzPolicy 撤销角色策略
func (h *Handler) RevokeAuthzPolicy(c *gin.Context) {
	var req authzPolicyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "role, object and action are required", nil)
		return
	}
	if err := h.AuthzService.RevokeRolePolicy(req.Role, req.Object, req.Action); err != nil {
		respondClientAdminError(c, err, "revoke policy failed")
		return
	}
	logger.Infow("admin_authz_policy_revoked",
		"operator_client_id", c.GetUint(handlershared.ContextClientID),
		"role", req.Role,
		"object", authz.NormalizeObject(req.Object),
		"action", authz.NormalizeAction(req.Action),
	)
	response.Success(c, nil)
}

// ReloadAuthzPolicy 从数据库重新加载策略，多实例部署下同步其他实例的修改
func (h *Handler) ReloadAuthzPolicy(c *gin.Context) {
	if err := h.AuthzService.ReloadPolicy(); err != nil {
		respondError(c, response.CodeInternal, "reload policy failed", err)
		return
	}
	response.Success(c, nil)
}

func respondClientAdminError(c *gin.Context, err error, fallbackMsg string) {
	handlershared.RespondWithMappedError(c, err, clientAdminErrorRules, response.CodeInternal, fallbackMsg)
}

func parseClientIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "api client id is invalid", nil)
		return 0, false
	}
	return uint(id), true
}

func decodeRoleParam(value string) string {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(decoded)
}
