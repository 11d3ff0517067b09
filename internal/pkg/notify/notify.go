package notify

// Mailer 定义邮件发送接口。
type Mailer interface {
	// SendPasswordReset 发送找回密码邮件。
	//
	// 参数:
	//   toEmail: 接收邮箱
	//   resetURL: 带一次性令牌的重置链接
	SendPasswordReset(toEmail string, resetURL string) error
}
