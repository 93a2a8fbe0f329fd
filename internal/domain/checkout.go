package domain

// CheckoutState — состояние конечного автомата одной попытки checkout.
type CheckoutState string

const (
	CheckoutStateIdle               CheckoutState = "idle"
	CheckoutStateValidating         CheckoutState = "validating"
	CheckoutStateCreatingOrder      CheckoutState = "creating_order"
	CheckoutStateRecordingLines     CheckoutState = "recording_lines"
	CheckoutStateAdjustingInventory CheckoutState = "adjusting_inventory"
	CheckoutStateCompleted          CheckoutState = "completed"
	CheckoutStateFailed             CheckoutState = "failed"
)

// checkoutTransitions задаёт допустимые переходы автомата.
// FAILED достижим из любого нефинального состояния.
var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateIdle:               {CheckoutStateValidating, CheckoutStateFailed},
	CheckoutStateValidating:         {CheckoutStateCreatingOrder, CheckoutStateFailed},
	CheckoutStateCreatingOrder:      {CheckoutStateRecordingLines, CheckoutStateFailed},
	CheckoutStateRecordingLines:     {CheckoutStateAdjustingInventory, CheckoutStateFailed},
	CheckoutStateAdjustingInventory: {CheckoutStateCompleted, CheckoutStateFailed},
}

// CanTransition проверяет допустимость перехода from → to.
func (from CheckoutState) CanTransition(to CheckoutState) bool {
	for _, allowed := range checkoutTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, является ли состояние финальным.
func (s CheckoutState) Terminal() bool {
	return s == CheckoutStateCompleted || s == CheckoutStateFailed
}
