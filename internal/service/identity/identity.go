// Пакет identity отдаёт личность оператора POS-сессии.
// Сейчас поддерживается статический оператор из конфигурации терминала;
// интеграция с SSO подключается через тот же порт.
package identity

import (
	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

// StaticProvider всегда возвращает одного и того же оператора.
type StaticProvider struct {
	operator domain.Operator
}

// NewStaticProvider создаёт провайдер с фиксированным оператором.
func NewStaticProvider(id, name string) *StaticProvider {
	return &StaticProvider{
		operator: domain.Operator{ID: id, Name: name},
	}
}

// Operator возвращает оператора текущей сессии.
func (p *StaticProvider) Operator() (domain.Operator, error) {
	return p.operator, nil
}

var _ domain.IdentityProvider = (*StaticProvider)(nil)
