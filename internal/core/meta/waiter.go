package meta

// WaiterName is the service name of the waiter module.
const WaiterName = "waiter"

// NewWaiter returns the waiter module: WAIT must be an integer.
func NewWaiter() *Module {
	return NewModule(WaiterName, []FieldRule{
		{
			Field:   "WAIT",
			Check:   IsInteger,
			Message: BracketMessage("is only numbers"),
		},
	}, nil)
}
