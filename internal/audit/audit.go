package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 审计事件的存储与保留由外部协作方负责，本包只做推送。
// 任何 sink 失败都不允许影响业务请求，只记录告警。

// 事件结果
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeFiltered = "filtered"
)

// Event 审计事件
type Event struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	PrincipalID    string    `json:"principalId"`
	Role           string    `json:"role"`
	Resource       string    `json:"resource"`
	Operation      string    `json:"operation"`
	Outcome        string    `json:"outcome"`
	DeniedFields   []string  `json:"deniedFields,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// NewEvent 构造事件（生成 id 与时间戳）
func NewEvent(organizationID, principalID, role, resource, operation, outcome string, deniedFields []string) Event {
	return Event{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		PrincipalID:    principalID,
		Role:           role,
		Resource:       resource,
		Operation:      operation,
		Outcome:        outcome,
		DeniedFields:   deniedFields,
		OccurredAt:     time.Now().UTC(),
	}
}

// Emitter 审计事件输出接口
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// LogEmitter 输出到结构化日志（始终启用的兜底 sink）
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, event Event) {
	e.logger.Info("audit event",
		zap.String("event_id", event.ID),
		zap.String("organization_id", event.OrganizationID),
		zap.String("principal_id", event.PrincipalID),
		zap.String("role", event.Role),
		zap.String("resource", event.Resource),
		zap.String("operation", event.Operation),
		zap.String("outcome", event.Outcome),
		zap.Strings("denied_fields", event.DeniedFields),
	)
}

// MultiEmitter 按顺序扇出到多个 sink
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, event Event) {
	for _, e := range m {
		e.Emit(ctx, event)
	}
}

// Nop 空实现（测试用）
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}
