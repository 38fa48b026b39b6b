package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/access"
	"github.com/audi0417/Patient-CRM-sub002/internal/query"
	"github.com/audi0417/Patient-CRM-sub002/internal/repository"
)

const patientsResource = "patients"

// PatientHandler 病患 API
// 处理链：资源权限检查 → 仓储（租户隔离 + 解密）→ 字段过滤 → 响应
type PatientHandler struct {
	repo   *repository.PatientRepository
	logger *zap.Logger
}

func NewPatientHandler(repo *repository.PatientRepository, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{repo: repo, logger: logger}
}

// GET /api/v1/patients
// params:
// - page? number (default 1)
// - pageSize? number (default 20)
// - orderBy? string ("createdAt DESC" 等白名单列)
func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request, scope *RequestScope) {
	ctx := r.Context()
	if err := scope.Enforcer.CheckAccess(ctx, patientsResource, access.OpRead); err != nil {
		writeDenial(w, err)
		return
	}

	page := parseInt(r.URL.Query().Get("page"), 1)
	pageSize := parseInt(r.URL.Query().Get("pageSize"), 20)
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	rows, err := h.repo.List(ctx, scope.Builder, query.FindOptions{
		OrderBy: r.URL.Query().Get("orderBy"),
		Limit:   pageSize,
		Offset:  (page - 1) * pageSize,
	})
	if err != nil {
		h.logger.Error("failed to list patients", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list patients"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(scope.Enforcer.FilterRecords(ctx, patientsResource, rows, access.OpRead)))
}

// GET /api/v1/patients/{id}
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request, scope *RequestScope, id string) {
	ctx := r.Context()
	if err := scope.Enforcer.CheckAccess(ctx, patientsResource, access.OpRead); err != nil {
		writeDenial(w, err)
		return
	}

	row, err := h.repo.Get(ctx, scope.Builder, id)
	if err != nil {
		h.logger.Error("failed to load patient", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load patient"))
		return
	}
	if row == nil {
		writeJSON(w, http.StatusNotFound, Fail("patient not found"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(scope.Enforcer.FilterFields(ctx, patientsResource, row, access.OpRead)))
}

// searchableColumns 搜索接口接受的条件列
var searchableColumns = []string{"status", "firstName", "lastName", "email"}

// GET /api/v1/patients/search
// params: status? / firstName? / lastName? / email?
func (h *PatientHandler) Search(w http.ResponseWriter, r *http.Request, scope *RequestScope) {
	ctx := r.Context()
	if err := scope.Enforcer.CheckAccess(ctx, patientsResource, access.OpRead); err != nil {
		writeDenial(w, err)
		return
	}

	conditions := make(map[string]any)
	for _, col := range searchableColumns {
		if v := r.URL.Query().Get(col); v != "" {
			conditions[col] = v
		}
	}
	if len(conditions) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("at least one search condition is required"))
		return
	}

	rows, err := h.repo.Search(ctx, scope.Builder, conditions)
	if err != nil {
		h.logger.Error("failed to search patients", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to search patients"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(scope.Enforcer.FilterRecords(ctx, patientsResource, rows, access.OpRead)))
}

// GET /api/v1/patients/{id}/reveal?field=nationalId
// 定向读取单个加密字段的明文，字段级权限单独检查并审计
func (h *PatientHandler) Reveal(w http.ResponseWriter, r *http.Request, scope *RequestScope, id string) {
	ctx := r.Context()
	field := r.URL.Query().Get("field")
	if !isEncryptedPatientField(field) {
		writeJSON(w, http.StatusBadRequest, Fail("unknown field"))
		return
	}

	if err := scope.Enforcer.CheckAccess(ctx, patientsResource, access.OpRead); err != nil {
		writeDenial(w, err)
		return
	}
	if err := scope.Enforcer.CheckFieldAccess(ctx, patientsResource, field, access.OpRead); err != nil {
		writeDenial(w, err)
		return
	}

	value, found, err := h.repo.RevealField(ctx, scope.Builder, id, field)
	if err != nil {
		// fail closed：解密失败不返回任何内容
		h.logger.Error("failed to reveal patient field",
			zap.String("id", id),
			zap.String("field", field),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("field could not be decrypted"))
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, Fail("patient not found"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]string{"field": field, "value": value}))
}

func isEncryptedPatientField(field string) bool {
	for _, f := range repository.EncryptedPatientFields {
		if f == field {
			return true
		}
	}
	return false
}

// POST /api/v1/patients
func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request, scope *RequestScope) {
	ctx := r.Context()
	if err := scope.Enforcer.CheckAccess(ctx, patientsResource, access.OpCreate); err != nil {
		writeDenial(w, err)
		return
	}

	var payload map[string]any
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if len(payload) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("empty request body"))
		return
	}

	// 订阅配额：达到上限后拒绝新建
	if limit := scope.Tenant.Limits.MaxPatients; limit > 0 {
		count, err := h.repo.Count(ctx, scope.Builder)
		if err != nil {
			h.logger.Error("failed to count patients for quota check", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("failed to create patient"))
			return
		}
		if count >= int64(limit) {
			writeJSON(w, http.StatusForbidden, Fail("patient limit reached for the current plan"))
			return
		}
	}

	row, err := h.repo.Create(ctx, scope.Builder, payload)
	if err != nil {
		h.logger.Error("failed to create patient", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to create patient"))
		return
	}

	writeJSON(w, http.StatusCreated, Ok(scope.Enforcer.FilterFields(ctx, patientsResource, row, access.OpRead)))
}

// PUT /api/v1/patients/{id}
func (h *PatientHandler) Update(w http.ResponseWriter, r *http.Request, scope *RequestScope, id string) {
	ctx := r.Context()
	if err := scope.Enforcer.CheckAccess(ctx, patientsResource, access.OpUpdate); err != nil {
		writeDenial(w, err)
		return
	}

	var payload map[string]any
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	// 角色不可更新的字段直接剔除（例如 USER 对病史只读）
	payload = scope.Enforcer.FilterFields(ctx, patientsResource, payload, access.OpUpdate)

	row, err := h.repo.Update(ctx, scope.Builder, id, payload)
	if err != nil {
		h.logger.Error("failed to update patient", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to update patient"))
		return
	}
	if row == nil {
		writeJSON(w, http.StatusNotFound, Fail("patient not found"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(scope.Enforcer.FilterFields(ctx, patientsResource, row, access.OpRead)))
}

// DELETE /api/v1/patients/{id}
func (h *PatientHandler) Delete(w http.ResponseWriter, r *http.Request, scope *RequestScope, id string) {
	ctx := r.Context()
	if err := scope.Enforcer.CheckAccess(ctx, patientsResource, access.OpDelete); err != nil {
		writeDenial(w, err)
		return
	}

	deleted, err := h.repo.Delete(ctx, scope.Builder, id)
	if err != nil {
		h.logger.Error("failed to delete patient", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to delete patient"))
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, Fail("patient not found"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]bool{"deleted": true}))
}
