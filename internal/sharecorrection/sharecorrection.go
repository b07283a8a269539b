// Package sharecorrection reconciles counted vehicle shares with the heavy
// and light commercial corrections of the traffic model.
package sharecorrection

import (
	"fmt"
	"math"

	"github.com/breatheroute/emissions/internal/emission"
)

// degenerateTolerance is the remaining share below which HGV and LCV are
// taken to cover all traffic.
const degenerateTolerance = 1e-9

// Factor returns the correction applied to PC, MOT and BUS so that the
// corrected volumes keep the daily total.
func Factor(hgvShare, lcvShare, hgvCorr, lcvCorr float64) (float64, error) {
	denominator := 1 - hgvShare - lcvShare
	if math.Abs(denominator) < degenerateTolerance {
		return 0, fmt.Errorf("%w: HGV share %g and LCV share %g leave no other traffic",
			emission.ErrDegenerateShareCorrection, hgvShare, lcvShare)
	}
	return (1 - hgvCorr*hgvShare - lcvCorr*lcvShare) / denominator, nil
}

// Correct splits dtvDay into per-class daily volumes. HGV and LCV are scaled
// by their link corrections and the remaining classes absorb the difference,
// so the volumes sum to dtvDay. Every tracked class needs a share.
func Correct(shares map[emission.VehicleClass]float64, hgvCorr, lcvCorr, dtvDay float64) (emission.VehicleVolumes, error) {
	for _, vc := range emission.VehicleClasses {
		if _, ok := shares[vc]; !ok {
			return nil, fmt.Errorf("%w: no share for %s", emission.ErrInputKeyMismatch, vc)
		}
	}

	k, err := Factor(shares[emission.HGV], shares[emission.LCV], hgvCorr, lcvCorr)
	if err != nil {
		return nil, err
	}

	return emission.VehicleVolumes{
		emission.PC:  dtvDay * shares[emission.PC] * k,
		emission.MOT: dtvDay * shares[emission.MOT] * k,
		emission.BUS: dtvDay * shares[emission.BUS] * k,
		emission.HGV: dtvDay * shares[emission.HGV] * hgvCorr,
		emission.LCV: dtvDay * shares[emission.LCV] * lcvCorr,
	}, nil
}
