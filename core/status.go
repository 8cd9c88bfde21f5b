package core

// Status is the firmware-wide result code. It doubles as the persisted
// e-stop reason, so values must stay stable across releases.
type Status uint8

const (
	StatOK Status = iota

	// Command boundary errors
	StatInvalidArguments
	StatTooFewArguments
	StatTooManyArguments
	StatUnrecognizedName
	StatBadFloat
	StatBadSegTime

	// G-code semantic errors
	StatFeedRateNotSpecified
	StatArcSpecificationError
	StatArcAxisMissing
	StatArcEndpointIsStart
	StatArcRadiusOutOfTolerance
	StatMinimumLengthMove
	StatSeekMissingAxis
	StatSeekMultipleAxes
	StatSeekZeroMove
	StatSeekAxisDisabled
	StatSeekSwitchDisabled

	// Alarms: these latch e-stop when raised during execution
	StatSoftLimitExceeded
	StatEstopSwitch
	StatEstopUser
	StatMotorFault
	StatSeekNotFound
	StatExpectedMove
	StatInternalError
	StatMachineAlarmed

	statMax
)

var statusStrings = [...]string{
	StatOK:                      "OK",
	StatInvalidArguments:        "Invalid arguments",
	StatTooFewArguments:         "Too few arguments",
	StatTooManyArguments:        "Too many arguments",
	StatUnrecognizedName:        "Unrecognized name",
	StatBadFloat:                "Bad floating point value",
	StatBadSegTime:              "Bad segment time",
	StatFeedRateNotSpecified:    "Feed rate not specified",
	StatArcSpecificationError:   "Arc specification error",
	StatArcAxisMissing:          "Arc axis missing for selected plane",
	StatArcEndpointIsStart:      "Arc endpoint is starting point",
	StatArcRadiusOutOfTolerance: "Arc radius out of tolerance",
	StatMinimumLengthMove:       "Move is shorter than minimum length",
	StatSeekMissingAxis:         "Seek axis missing",
	StatSeekMultipleAxes:        "Seek on multiple axes",
	StatSeekZeroMove:            "Seek zero move",
	StatSeekAxisDisabled:        "Seek axis disabled",
	StatSeekSwitchDisabled:      "Seek switch disabled",
	StatSoftLimitExceeded:       "Soft limit exceeded",
	StatEstopSwitch:             "EStop switch activated",
	StatEstopUser:               "User triggered EStop",
	StatMotorFault:              "Motor fault",
	StatSeekNotFound:            "Seek switch not found",
	StatExpectedMove:            "Expected move not queued",
	StatInternalError:           "Internal error",
	StatMachineAlarmed:          "Machine alarmed",
}

func (s Status) String() string {
	if int(s) < len(statusStrings) && statusStrings[s] != "" {
		return statusStrings[s]
	}
	return "Invalid status"
}

// Error makes Status usable anywhere an error is expected. StatOK is
// never returned as an error; callers return nil instead.
func (s Status) Error() string { return s.String() }

// StatusOf extracts the Status from an error, or StatInternalError when
// the error carries no code.
func StatusOf(err error) Status {
	if err == nil {
		return StatOK
	}
	if s, ok := err.(Status); ok {
		return s
	}
	return StatInternalError
}
