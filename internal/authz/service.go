package authz

import (
	"fmt"
	"strings"

	"github.com/stockkeeper/internal/constants"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/util"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const (
	casbinTableName = "casbin_rule"
	rolePrefix      = "role:"
)

// 受控资源
const (
	ObjectForceRelease = "/inventory/force-release"
	ObjectAuditExport  = "/audit/export"
	ObjectAuditArchive = "/audit/archive"
)

const defaultRBACModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// Service Casbin 授权服务
// 角色来自 JWT 声明，策略落库共享；内置角色在启动时播种。
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService 创建授权服务
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("authz db is nil")
	}

	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", casbinTableName)
	if err != nil {
		return nil, fmt.Errorf("create authz adapter failed: %w", err)
	}

	m, err := model.NewModelFromString(defaultRBACModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model failed: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer failed: %w", err)
	}
	enforcer.AddFunction("keyMatch2", util.KeyMatch2Func)
	enforcer.EnableAutoSave(true)

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load authz policy failed: %w", err)
	}

	service := &Service{enforcer: enforcer}
	if err := service.seedDefaultPolicies(); err != nil {
		return nil, err
	}
	return service, nil
}

// seedDefaultPolicies 播种内置角色策略（已存在时为幂等追加）
func (s *Service) seedDefaultPolicies() error {
	policies := [][]string{
		{SubjectForRole(constants.RoleAdmin), "/*", "*"},
		{SubjectForRole(constants.RoleInventoryManager), ObjectForceRelease, "*"},
		{SubjectForRole(constants.RoleInventoryManager), ObjectAuditExport, "*"},
	}
	for _, policy := range policies {
		if _, err := s.enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return fmt.Errorf("seed authz policy failed: %w", err)
		}
	}
	return nil
}

// Enforce 执行授权判断
func (s *Service) Enforce(role, obj, act string) (bool, error) {
	if s == nil || s.enforcer == nil {
		return false, fmt.Errorf("authz service unavailable")
	}
	normalized := strings.TrimSpace(role)
	if normalized == "" {
		return false, nil
	}
	return s.enforcer.Enforce(SubjectForRole(normalized), obj, strings.ToUpper(strings.TrimSpace(act)))
}

// CanForceRelease 判断角色是否可执行强制释放
func (s *Service) CanForceRelease(role string) bool {
	ok, err := s.Enforce(role, ObjectForceRelease, "POST")
	return err == nil && ok
}

// CanExportAudit 判断角色是否可导出/归档审计流水
func (s *Service) CanExportAudit(role string) bool {
	ok, err := s.Enforce(role, ObjectAuditExport, "GET")
	return err == nil && ok
}

// CanArchiveAudit 判断角色是否可执行审计归档
func (s *Service) CanArchiveAudit(role string) bool {
	ok, err := s.Enforce(role, ObjectAuditArchive, "POST")
	return err == nil && ok
}

// ReloadPolicy 重新加载策略
func (s *Service) ReloadPolicy() error {
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}
	return s.enforcer.LoadPolicy()
}

// SubjectForRole 生成角色主体标识
func SubjectForRole(role string) string {
	normalized := strings.TrimSpace(role)
	if strings.HasPrefix(normalized, rolePrefix) {
		return normalized
	}
	return rolePrefix + normalized
}
