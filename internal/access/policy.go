// Package access はプロフィールのロールから実行可能な操作（ケイパビリティ）を決める。
// ハンドラーはロール文字列を直接比較せず、必ずPolicyに問い合わせる。
package access

import (
	"sort"

	"github.com/hitoshi/sellerlens/internal/model"
)

// Capability はロールに許可される操作。
type Capability string

const (
	// マーケットプレイス連携の開始・解除
	CapIntegrationManage Capability = "integration:manage"
	// 競合分析の実行と参照
	CapCompetitionAnalyze Capability = "competition:analyze"
	// 連携用クレデンシャルの自己診断
	CapIntegrationCheck Capability = "integration:check"
)

// Policy はロールとケイパビリティの対応表。
type Policy struct {
	grants map[model.Role]map[Capability]bool
}

// DefaultPolicy は標準の対応表を返す。
// 一般ユーザーは連携と分析、管理者はそれに加えて診断を行える。
func DefaultPolicy() *Policy {
	user := []Capability{CapIntegrationManage, CapCompetitionAnalyze}
	admin := append([]Capability{CapIntegrationCheck}, user...)
	return NewPolicy(map[model.Role][]Capability{
		model.RoleUser:       user,
		model.RoleAdmin:      admin,
		model.RoleSuperAdmin: admin,
	})
}

// NewPolicy は任意の対応表からPolicyを生成する。
func NewPolicy(grants map[model.Role][]Capability) *Policy {
	p := &Policy{grants: make(map[model.Role]map[Capability]bool, len(grants))}
	for role, caps := range grants {
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			set[c] = true
		}
		p.grants[role] = set
	}
	return p
}

// Allows はロールがケイパビリティを持つかどうかを返す。未知のロールは何も持たない。
func (p *Policy) Allows(role model.Role, capability Capability) bool {
	return p.grants[role][capability]
}

// Capabilities はロールが持つケイパビリティを名前順で返す。
func (p *Policy) Capabilities(role model.Role) []string {
	out := make([]string, 0, len(p.grants[role]))
	for c := range p.grants[role] {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}
