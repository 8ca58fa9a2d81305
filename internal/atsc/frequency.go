// Package atsc maps ATSC over-the-air RF channel numbers to center
// frequencies. The US broadcast plan is three contiguous bands: VHF low
// (RF 2-6, irregular spacing), VHF high (RF 7-13) and UHF (RF 14-36),
// the latter two on a regular 6 MHz raster.
package atsc

import "fmt"

// RF channel bounds for the post-repack US broadcast plan.
const (
	MinRFChannel = 2
	MaxRFChannel = 36
)

// vhfLow covers RF 2-6, where channel spacing is not uniform.
var vhfLow = map[int]int64{
	2: 57_000_000,
	3: 63_000_000,
	4: 69_000_000,
	5: 79_000_000,
	6: 85_000_000,
}

// ErrInvalidChannel is returned for RF channels outside the 2-36 plan.
type ErrInvalidChannel struct {
	RF int
}

func (e *ErrInvalidChannel) Error() string {
	return fmt.Sprintf("invalid ATSC RF channel: %d (valid range %d-%d)", e.RF, MinRFChannel, MaxRFChannel)
}

// RFToFrequencyHz converts an ATSC RF channel number to its center
// frequency in Hz.
func RFToFrequencyHz(rf int) (int64, error) {
	switch {
	case rf >= 14 && rf <= MaxRFChannel:
		return 473_000_000 + int64(rf-14)*6_000_000, nil
	case rf >= 7 && rf <= 13:
		return 177_000_000 + int64(rf-7)*6_000_000, nil
	default:
		if freq, ok := vhfLow[rf]; ok {
			return freq, nil
		}
		return 0, &ErrInvalidChannel{RF: rf}
	}
}
