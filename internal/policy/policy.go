package policy

// 角色常量。注册产生的用户固定为 member，admin 仅由初始化种子产生。
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Identity 是授权判定所依赖的最小身份信息。
//
// 它由认证层（JWT 中间件）构造并写入请求上下文，
// 授权规则只依赖这三个字段，不回查数据库。
type Identity struct {
	ID      uint   // 用户 ID
	Role    string // member / admin
	Blocked bool   // 被封禁的用户在中间件层已被拒绝，这里再兜底一次
}

// IsAdmin 判断当前身份是否为管理员。
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// CanReadQuestion 判断能否读取单个提问。
//
// 公开提问任何人可读；私有提问仅所有者或管理员可读。
func (id Identity) CanReadQuestion(ownerID uint, isPublic bool) bool {
	if isPublic {
		return true
	}
	return id.ID == ownerID || id.IsAdmin()
}

// CanListAllQuestions 判断能否列出全部提问（含私有）。
func (id Identity) CanListAllQuestions() bool {
	return id.IsAdmin()
}

// CanCreateQuestion 判断能否创建提问。
func (id Identity) CanCreateQuestion() bool {
	return !id.Blocked
}

// CanUpdateQuestion 判断能否修改提问（标题/描述/可见性）。
//
// 仅所有者可改，管理员也不行。
func (id Identity) CanUpdateQuestion(ownerID uint) bool {
	return id.ID == ownerID
}

// CanDeleteQuestion 判断能否删除提问。所有者或管理员。
func (id Identity) CanDeleteQuestion(ownerID uint) bool {
	return id.ID == ownerID || id.IsAdmin()
}

// CanForceDeleteQuestion 判断能否走管理员无条件删除路径。
func (id Identity) CanForceDeleteQuestion() bool {
	return id.IsAdmin()
}

// CanAnswerQuestion 判断能否回答提问。
//
// 任何未被封禁的登录用户都可以回答任意存在的提问，
// 包括他人的私有提问（与线上行为保持一致）。
func (id Identity) CanAnswerQuestion() bool {
	return !id.Blocked
}

// CanModerateAnswer 判断能否修改或删除回答。仅管理员。
func (id Identity) CanModerateAnswer() bool {
	return id.IsAdmin()
}

// CanAcceptAnswer 判断能否采纳回答。
//
// 只有回答所属提问的所有者可以采纳，管理员也不行。
func (id Identity) CanAcceptAnswer(questionOwnerID uint) bool {
	return id.ID == questionOwnerID
}
