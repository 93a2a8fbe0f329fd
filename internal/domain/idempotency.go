package domain

import "time"

// IdempotencyStatus описывает жизненный цикл idempotency-ключа checkout-запроса.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — checkout принят и ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — checkout завершился успешно, чек сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — checkout завершился ошибкой, ответ сохранён.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyRecord привязывает к ключу хэш запроса и сохранённый ответ,
// чтобы повтор того же checkout вернул тот же чек, а не пробил вторую продажу.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InFlight сообщает, что первый запрос с этим ключом ещё обрабатывается:
// повтор должен получить 409, а не запустить параллельный checkout.
func (r IdempotencyRecord) InFlight() bool {
	return r.Status == IdempotencyStatusProcessing
}

// Replayable сообщает, что по ключу есть завершённый ответ для повтора.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Expired сообщает, что срок хранения записи истёк к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !r.TTLAt.After(now)
}
