package rbac

// 权限常量
const (
	PermissionReadMail      = "mail:read"
	PermissionManageMailbox = "mailbox:manage"
)

// 邮箱角色常量，与 mailbox_for_user.role 一致
const (
	RoleOwner = "OWNER"
	RoleAdmin = "ADMIN"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleOwner: {
		PermissionReadMail,
		PermissionManageMailbox,
	},
	RoleAdmin: {
		PermissionReadMail,
	},
}

// HasPermission 检查角色是否有指定权限；未知角色没有任何权限
func HasPermission(role string, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色权限，返回错误而不是布尔值，便于处理
func CheckPermission(role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
