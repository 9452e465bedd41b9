// Package validate 提供按操作声明的输入校验规则。
// 同一请求会收集所有字段的违规项一次性返回；
// 单个字段内部的规则链在第一个违规处停止。
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Violation 描述一条被违反的规则。
type Violation struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Errors 聚合一次校验中的全部违规项。
type Errors []Violation

// Empty 判断是否没有任何违规。
func (e Errors) Empty() bool {
	return len(e) == 0
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// 密码必须包含的特殊字符集合。
const specialCharset = "!@#$%^&*()_+=[{]};:<>|./?,-"

// FieldChain 针对单个字段的规则链。
type FieldChain struct {
	errs    *Errors
	name    string
	value   string
	stopped bool
}

// Field 开始一个字段的规则链。
func Field(errs *Errors, name, value string) *FieldChain {
	return &FieldChain{errs: errs, name: name, value: value}
}

func (f *FieldChain) fail(rule, message string) *FieldChain {
	*f.errs = append(*f.errs, Violation{
		Message: message,
		Code:    f.name + "." + rule,
	})
	f.stopped = true
	return f
}

// Required 要求字段非空（忽略首尾空白）。
func (f *FieldChain) Required() *FieldChain {
	if f.stopped {
		return f
	}
	if strings.TrimSpace(f.value) == "" {
		return f.fail("required", fmt.Sprintf("%s must not be empty", f.name))
	}
	return f
}

// MaxLen 限制字段最大长度。
func (f *FieldChain) MaxLen(n int) *FieldChain {
	if f.stopped {
		return f
	}
	if len(f.value) > n {
		return f.fail("too_long", fmt.Sprintf("%s must be at most %d characters", f.name, n))
	}
	return f
}

// MinLen 限制字段最小长度。
func (f *FieldChain) MinLen(n int) *FieldChain {
	if f.stopped {
		return f
	}
	if len(f.value) < n {
		return f.fail("too_short", fmt.Sprintf("%s must be at least %d characters", f.name, n))
	}
	return f
}

// Email 要求字段符合邮箱格式。
func (f *FieldChain) Email() *FieldChain {
	if f.stopped {
		return f
	}
	if !emailPattern.MatchString(f.value) {
		return f.fail("email_format", fmt.Sprintf("%s is not a valid email address", f.name))
	}
	return f
}

// ContainsDigit 要求字段至少包含一个数字。
func (f *FieldChain) ContainsDigit() *FieldChain {
	if f.stopped {
		return f
	}
	if !strings.ContainsAny(f.value, "0123456789") {
		return f.fail("digit_required", fmt.Sprintf("%s must contain at least one digit", f.name))
	}
	return f
}

// ContainsSpecial 要求字段至少包含一个特殊字符。
func (f *FieldChain) ContainsSpecial() *FieldChain {
	if f.stopped {
		return f
	}
	if !strings.ContainsAny(f.value, specialCharset) {
		return f.fail("special_required", fmt.Sprintf("%s must contain at least one special character", f.name))
	}
	return f
}

// RegisterEmail 校验注册/用户管理场景下的邮箱字段。
func RegisterEmail(errs *Errors, email string) {
	Field(errs, "email", email).Required().MaxLen(200).Email()
}

// RegisterPassword 校验注册场景下的密码字段。
func RegisterPassword(errs *Errors, password string) {
	Field(errs, "password", password).Required().MinLen(4).ContainsDigit().ContainsSpecial()
}

// LoginCredentials 校验登录请求。
func LoginCredentials(errs *Errors, email, password string) {
	Field(errs, "email", email).Required().Email()
	Field(errs, "password", password).Required()
}
