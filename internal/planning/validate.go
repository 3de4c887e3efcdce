package planning

const (
	ReasonOK                  = "ok"
	ReasonNotObject           = "planning_context_not_object"
	ReasonBadSide             = "missing_or_bad_side"
	ReasonBadEntryType        = "missing_or_bad_entry_type"
	ReasonBadTimeInForce      = "missing_or_bad_time_in_force"
	ReasonLimitMissingPrice   = "limit_missing_limit_price"
	ReasonBadExitStyle        = "missing_or_bad_exit_style"
	ReasonBracketMissingExits = "bracket_missing_stop_loss_or_take_profit"
)

type ValidateOptions struct {
	// RequireBracketExits enforces exit_style and its prices. Entry-only
	// workers leave it off; exits belong to the watcher there.
	RequireBracketExits bool
}

// Validate checks a decoded planning context and reports the first failing
// rule. It accepts any value and never panics.
func Validate(pc any, opts ValidateOptions) (bool, string) {
	m, ok := pc.(map[string]any)
	if !ok || m == nil {
		return false, ReasonNotObject
	}

	switch lowerString(m["side"]) {
	case "buy", "sell":
	default:
		return false, ReasonBadSide
	}

	entryType := lowerString(m["entry_type"])
	switch entryType {
	case "market", "limit":
	default:
		return false, ReasonBadEntryType
	}

	switch lowerString(m["time_in_force"]) {
	case "day", "gtc":
	default:
		return false, ReasonBadTimeInForce
	}

	if entryType == "limit" && m["limit_price"] == nil {
		return false, ReasonLimitMissingPrice
	}

	if opts.RequireBracketExits {
		exit := lowerString(m["exit_style"])
		switch exit {
		case "", ExitNone, ExitOCO:
		case ExitBracket:
			if m["stop_loss"] == nil || m["take_profit"] == nil {
				return false, ReasonBracketMissingExits
			}
		default:
			return false, ReasonBadExitStyle
		}
	}

	return true, ReasonOK
}
