package identity

// ClassifyStatus maps confidence and completeness into the fixed status
// taxonomy. It is a pure, total function; thresholds are closed at 0.90
// and 0.70 and ties never round up.
//
// A confident non-personal address is not a review target and maps to
// not_applicable. High confidence with a surname missing still counts
// as extracted_high (surname optional at that confidence), but with no
// given name at all the result is downgraded to extracted_medium.
func ClassifyStatus(confidence float64, isPersonal bool, name1, name2 string) Status {
	if !isPersonal && confidence >= 0.90 {
		return StatusNotApplicable
	}
	switch {
	case confidence >= 0.90 && name1 != "":
		return StatusHigh
	case confidence >= 0.70:
		return StatusMedium
	default:
		return StatusLow
	}
}
